// Package models defines the core domain entities: observer location, index
// readings, visibility verdicts, decisions and notification reports.
package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Coordinate bounds.
const (
	MinLat = -90.0
	MaxLat = 90.0
	MinLon = -180.0
	MaxLon = 180.0
)

// ObserverLocation is the fixed point the monitor evaluates visibility for.
type ObserverLocation struct {
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewObserverLocation validates the coordinates and returns the location.
// Out-of-range values are rejected, never clamped.
func NewObserverLocation(name string, lat, lon float64) (ObserverLocation, error) {
	if err := ValidateLatitude(lat); err != nil {
		return ObserverLocation{}, err
	}
	if math.IsNaN(lon) || lon < MinLon || lon > MaxLon {
		return ObserverLocation{}, fmt.Errorf("%w: longitude %v outside [%.0f, %.0f]", ErrInvalidInput, lon, MinLon, MaxLon)
	}
	return ObserverLocation{Name: name, Latitude: lat, Longitude: lon}, nil
}

// ValidateLatitude reports ErrInvalidInput for a latitude outside [-90, 90].
func ValidateLatitude(lat float64) error {
	if math.IsNaN(lat) || lat < MinLat || lat > MaxLat {
		return fmt.Errorf("%w: latitude %v outside [%.0f, %.0f]", ErrInvalidInput, lat, MinLat, MaxLat)
	}
	return nil
}

// DisplayName falls back to the coordinates when no name is configured.
func (o ObserverLocation) DisplayName() string {
	if strings.TrimSpace(o.Name) != "" {
		return o.Name
	}
	return o.Coordinates()
}

// Coordinates renders the location as "40.67°N, 89.59°W".
func (o ObserverLocation) Coordinates() string {
	ns := "N"
	if o.Latitude < 0 {
		ns = "S"
	}
	ew := "E"
	if o.Longitude < 0 {
		ew = "W"
	}
	return fmt.Sprintf("%.2f°%s, %.2f°%s", math.Abs(o.Latitude), ns, math.Abs(o.Longitude), ew)
}

// UnknownTimestamp is shown when a reading carries no observation time.
const UnknownTimestamp = "Unknown"

// IndexReading is one planetary K-index sample from the data source.
// ObservedAt is the zero time when the observation time is unknown.
type IndexReading struct {
	Value         float64   `json:"value"`
	ObservedAt    time.Time `json:"observed_at,omitempty"`
	RawObservedAt string    `json:"raw_observed_at,omitempty"`
	Source        string    `json:"source,omitempty"`
}

// UnavailableReading is the sentinel used when the source could not be read
// on a path that must still report: value 0, observation time unknown.
func UnavailableReading() IndexReading {
	return IndexReading{Value: 0, RawObservedAt: UnknownTimestamp}
}

// HasObservedAt reports whether the observation time is known.
func (r IndexReading) HasObservedAt() bool {
	return !r.ObservedAt.IsZero()
}

// FormattedObservedAt renders the observation time for humans.
func (r IndexReading) FormattedObservedAt() string {
	if r.RawObservedAt == "" && r.HasObservedAt() {
		return r.ObservedAt.UTC().Format(DisplayTimeLayout)
	}
	return FormatTimestamp(r.RawObservedAt)
}

// DisplayTimeLayout is the human-readable form of an observation time.
const DisplayTimeLayout = "2006-01-02 03:04 PM UTC"

// sourceTimeLayouts are the timestamp shapes the SWPC products have used.
var sourceTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
}

// ParseSourceTimestamp parses an SWPC time tag as UTC.
func ParseSourceTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range sourceTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized timestamp %q", ErrInvalidInput, raw)
}

// FormatTimestamp converts a source timestamp to DisplayTimeLayout. Empty or
// "Unknown" input yields "Unknown"; input that cannot be parsed is returned
// unchanged.
func FormatTimestamp(raw string) string {
	if raw == "" || raw == UnknownTimestamp {
		return UnknownTimestamp
	}
	t, err := ParseSourceTimestamp(raw)
	if err != nil {
		return raw
	}
	return t.Format(DisplayTimeLayout)
}

// VisibilityVerdict is derived from a reading and the observer latitude.
type VisibilityVerdict struct {
	IsVisible        bool    `json:"is_visible"`
	BoundaryLatitude float64 `json:"boundary_latitude"`
	Description      string  `json:"description"`
}

// DistanceToBoundary is how many degrees the observer sits from the boundary.
func (v VisibilityVerdict) DistanceToBoundary(observerLat float64) float64 {
	return math.Abs(observerLat - v.BoundaryLatitude)
}
