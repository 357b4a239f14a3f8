// Package swpc reads the planetary K-index from the NOAA Space Weather
// Prediction Center.
package swpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/rewired-gh/aurorawatch/internal/models"
)

// DefaultURL is the SWPC planetary K-index product.
const DefaultURL = "https://services.swpc.noaa.gov/products/noaa-planetary-k-index.json"

const maxBodyBytes = 4 << 20

// Client provides access to the SWPC K-index product. One FetchLatest call
// makes at most one HTTP request; repeated failures open a circuit breaker so
// an unreachable upstream is not hammered every cycle.
type Client struct {
	url        string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[models.IndexReading]
}

// NewClient creates a new SWPC client. breakerFailures is the number of
// consecutive failures that opens the breaker; zero disables tripping.
func NewClient(url string, timeout time.Duration, breakerFailures uint32) *Client {
	if url == "" {
		url = DefaultURL
	}
	cb := gobreaker.NewCircuitBreaker[models.IndexReading](gobreaker.Settings{
		Name:        "swpc",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return breakerFailures > 0 && counts.ConsecutiveFailures >= breakerFailures
		},
	})
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: cb,
	}
}

// FetchLatest returns the newest reading in the product. Every failure wraps
// models.ErrDataUnavailable.
func (c *Client) FetchLatest(ctx context.Context) (models.IndexReading, error) {
	reading, err := c.breaker.Execute(func() (models.IndexReading, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return models.IndexReading{}, fmt.Errorf("%w: circuit %s", models.ErrDataUnavailable, err)
		}
		return models.IndexReading{}, err
	}
	return reading, nil
}

func (c *Client) fetch(ctx context.Context) (models.IndexReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return models.IndexReading{}, fmt.Errorf("%w: failed to build request: %v", models.ErrDataUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.IndexReading{}, fmt.Errorf("%w: %v", models.ErrDataUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return models.IndexReading{}, fmt.Errorf("%w: unexpected status %d", models.ErrDataUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.IndexReading{}, fmt.Errorf("%w: failed to read body: %v", models.ErrDataUnavailable, err)
	}

	reading, err := ParseLatest(body)
	if err != nil {
		return models.IndexReading{}, err
	}
	reading.Source = c.url
	return reading, nil
}

// ParseLatest decodes either shape of the K-index product and returns the
// last row. The legacy shape is an array of arrays whose first row is a
// header; the newer shape is an array of objects keyed by time_tag and Kp.
func ParseLatest(body []byte) (models.IndexReading, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return models.IndexReading{}, fmt.Errorf("%w: failed to decode product: %v", models.ErrDataUnavailable, err)
	}
	if len(rows) == 0 {
		return models.IndexReading{}, fmt.Errorf("%w: empty product", models.ErrDataUnavailable)
	}

	last := rows[len(rows)-1]
	var (
		rawKp   json.RawMessage
		rawTime string
	)
	switch firstByte(last) {
	case '[':
		// The header row is not data.
		if len(rows) < 2 {
			return models.IndexReading{}, fmt.Errorf("%w: product has a header but no data rows", models.ErrDataUnavailable)
		}
		var cells []json.RawMessage
		if err := json.Unmarshal(last, &cells); err != nil || len(cells) < 2 {
			return models.IndexReading{}, fmt.Errorf("%w: malformed row %s", models.ErrDataUnavailable, truncate(last))
		}
		if err := json.Unmarshal(cells[0], &rawTime); err != nil {
			return models.IndexReading{}, fmt.Errorf("%w: malformed time tag %s", models.ErrDataUnavailable, truncate(cells[0]))
		}
		rawKp = cells[1]
	case '{':
		var obj struct {
			TimeTag string          `json:"time_tag"`
			Kp      json.RawMessage `json:"Kp"`
		}
		if err := json.Unmarshal(last, &obj); err != nil || len(obj.Kp) == 0 {
			return models.IndexReading{}, fmt.Errorf("%w: malformed row %s", models.ErrDataUnavailable, truncate(last))
		}
		rawTime, rawKp = obj.TimeTag, obj.Kp
	default:
		return models.IndexReading{}, fmt.Errorf("%w: unexpected row %s", models.ErrDataUnavailable, truncate(last))
	}

	value, err := parseKp(rawKp)
	if err != nil {
		return models.IndexReading{}, err
	}

	reading := models.IndexReading{Value: value, RawObservedAt: rawTime}
	if t, err := models.ParseSourceTimestamp(rawTime); err == nil {
		reading.ObservedAt = t
	}
	return reading, nil
}

// parseKp accepts the value as a JSON number or a numeric string.
func parseKp(raw json.RawMessage) (float64, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: Kp value %s is neither number nor string", models.ErrDataUnavailable, truncate(raw))
		}
		v, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: Kp value %q is not numeric", models.ErrDataUnavailable, s)
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: Kp value %v is not finite", models.ErrDataUnavailable, v)
	}
	return v, nil
}

func firstByte(raw json.RawMessage) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b
	}
	return 0
}

func truncate(raw []byte) string {
	const max = 64
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
