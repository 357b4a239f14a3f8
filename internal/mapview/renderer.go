// Package mapview renders the aurora forecast as a self-contained Leaflet
// HTML page.
package mapview

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/rewired-gh/aurorawatch/internal/models"
)

//go:embed templates/forecast.html
var templateFS embed.FS

const (
	filePrefix = "aurora_forecast_"
	fileSuffix = ".html"

	boundaryStep = 5.0
	zoneStep     = 10.0

	dataOpen  = `<script type="application/json" id="forecast-data">`
	dataClose = `</script>`
)

// ReferenceLatitudes are drawn as dashed lines with labels.
var ReferenceLatitudes = []float64{30, 40, 50, 60, 70}

// Forecast is the data embedded in a rendered page. It is everything needed
// to redraw the map, so a page can be read back with ReadArtifact.
type Forecast struct {
	Kp       float64                    `json:"kp"`
	DataFrom string                     `json:"data_from"`
	Boundary float64                    `json:"boundary"`
	Visible  bool                       `json:"visible"`
	Distance float64                    `json:"distance"`
	Observer models.ObserverLocation    `json:"observer"`
	Features *geojson.FeatureCollection `json:"features"`
}

type pageData struct {
	Forecast
	MarkerColor string
	DataJSON    template.JS
}

// Renderer writes forecast pages into a directory. Pages are named by the
// hash of their content, so rendering the same inputs twice yields the same
// file.
type Renderer struct {
	mu        sync.Mutex
	outputDir string
	tmpl      *template.Template
}

// NewRenderer parses the embedded template and creates outputDir if needed.
func NewRenderer(outputDir string) (*Renderer, error) {
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create map directory: %w", err)
	}
	raw, err := templateFS.ReadFile("templates/forecast.html")
	if err != nil {
		return nil, fmt.Errorf("failed to read map template: %w", err)
	}
	tmpl, err := template.New("forecast").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse map template: %w", err)
	}
	return &Renderer{outputDir: outputDir, tmpl: tmpl}, nil
}

// OutputDir returns the directory pages are written to.
func (r *Renderer) OutputDir() string {
	return r.outputDir
}

// NewForecast assembles the map geometry for a reading and its verdict.
func NewForecast(reading models.IndexReading, verdict models.VisibilityVerdict, observer models.ObserverLocation) Forecast {
	return Forecast{
		Kp:       reading.Value,
		DataFrom: reading.FormattedObservedAt(),
		Boundary: verdict.BoundaryLatitude,
		Visible:  verdict.IsVisible,
		Distance: verdict.DistanceToBoundary(observer.Latitude),
		Observer: observer,
		Features: buildFeatures(verdict, observer),
	}
}

func buildFeatures(verdict models.VisibilityVerdict, observer models.ObserverLocation) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	boundary := verdict.BoundaryLatitude

	zone := geojson.NewFeature(zonePolygon(boundary))
	zone.Properties["kind"] = "zone"
	fc.Append(zone)

	line := geojson.NewFeature(parallel(boundary, boundaryStep))
	line.Properties["kind"] = "boundary"
	line.Properties["latitude"] = boundary
	fc.Append(line)

	for _, lat := range ReferenceLatitudes {
		ref := geojson.NewFeature(orb.LineString{{-180, lat}, {180, lat}})
		ref.Properties["kind"] = "reference"
		ref.Properties["latitude"] = lat
		fc.Append(ref)
	}

	color := "red"
	if verdict.IsVisible {
		color = "orange"
	}
	marker := geojson.NewFeature(orb.Point{observer.Longitude, observer.Latitude})
	marker.Properties["kind"] = "observer"
	marker.Properties["color"] = color
	marker.Properties["coordinates"] = observer.Coordinates()
	fc.Append(marker)

	return fc
}

// parallel samples a line of constant latitude across all longitudes.
func parallel(lat, step float64) orb.LineString {
	var ls orb.LineString
	for lon := -180.0; lon <= 180; lon += step {
		ls = append(ls, orb.Point{lon, lat})
	}
	return ls
}

// zonePolygon covers everything from the boundary up to the pole.
func zonePolygon(boundary float64) orb.Polygon {
	ring := orb.Ring(parallel(boundary, zoneStep))
	for lon := 180.0; lon >= -180; lon -= zoneStep {
		ring = append(ring, orb.Point{lon, models.MaxLat})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// Render writes the forecast page and returns its handle. Identical inputs
// produce byte-identical pages at the same path.
func (r *Renderer) Render(reading models.IndexReading, verdict models.VisibilityVerdict, observer models.ObserverLocation) (models.Artifact, error) {
	if math.IsNaN(reading.Value) || math.IsInf(reading.Value, 0) {
		return models.Artifact{}, fmt.Errorf("%w: index value %v is not finite", models.ErrInvalidInput, reading.Value)
	}

	page, err := r.renderPage(NewForecast(reading, verdict, observer))
	if err != nil {
		return models.Artifact{}, err
	}

	sum := sha256.Sum256(page)
	checksum := hex.EncodeToString(sum[:])
	path := filepath.Join(r.outputDir, filePrefix+checksum[:16]+fileSuffix)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, page) {
		return models.Artifact{Path: path, Checksum: checksum}, nil
	}

	tmp, err := os.CreateTemp(r.outputDir, filePrefix+"*.tmp")
	if err != nil {
		return models.Artifact{}, fmt.Errorf("failed to create map file: %w", err)
	}
	if _, err := tmp.Write(page); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return models.Artifact{}, fmt.Errorf("failed to write map file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return models.Artifact{}, fmt.Errorf("failed to write map file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return models.Artifact{}, fmt.Errorf("failed to save map file: %w", err)
	}

	return models.Artifact{Path: path, Checksum: checksum}, nil
}

func (r *Renderer) renderPage(f Forecast) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode map data: %w", err)
	}
	color := "red"
	if f.Visible {
		color = "orange"
	}

	var buf bytes.Buffer
	err = r.tmpl.Execute(&buf, pageData{
		Forecast:    f,
		MarkerColor: color,
		DataJSON:    template.JS(data),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render map: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadArtifact loads the forecast embedded in a rendered page.
func ReadArtifact(path string) (Forecast, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Forecast{}, fmt.Errorf("failed to read map file: %w", err)
	}
	start := bytes.Index(raw, []byte(dataOpen))
	if start < 0 {
		return Forecast{}, errors.New("map file has no forecast data")
	}
	body := raw[start+len(dataOpen):]
	end := bytes.Index(body, []byte(dataClose))
	if end < 0 {
		return Forecast{}, errors.New("map file has unterminated forecast data")
	}

	var f Forecast
	if err := json.Unmarshal(body[:end], &f); err != nil {
		return Forecast{}, fmt.Errorf("failed to decode forecast data: %w", err)
	}
	return f, nil
}
