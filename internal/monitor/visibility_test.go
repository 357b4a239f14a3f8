package monitor

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/aurorawatch/internal/models"
)

func TestEvaluate_TabulatedBoundaries(t *testing.T) {
	for level := 0; level <= 9; level++ {
		boundary, ok := BoundaryLatitude(level)
		require.True(t, ok, "level %d should be tabulated", level)

		atBoundary, err := Evaluate(float64(level), boundary)
		require.NoError(t, err)
		assert.True(t, atBoundary.IsVisible, "level %d at %.2f should be visible", level, boundary)
		assert.Equal(t, boundary, atBoundary.BoundaryLatitude)

		justSouth, err := Evaluate(float64(level), boundary-0.01)
		require.NoError(t, err)
		assert.False(t, justSouth.IsVisible, "level %d at %.2f should not be visible", level, boundary-0.01)
	}
}

func TestEvaluate_StepFunction(t *testing.T) {
	latitudes := []float64{-45, 0, 40.6664, 55, 59.99, 60, 60.01, 90}
	for _, lat := range latitudes {
		fractional, err := Evaluate(4.9, lat)
		require.NoError(t, err)
		whole, err := Evaluate(4.0, lat)
		require.NoError(t, err)

		assert.Equal(t, whole.IsVisible, fractional.IsVisible, "lat %v", lat)
		assert.Equal(t, whole.BoundaryLatitude, fractional.BoundaryLatitude, "lat %v", lat)
	}

	v, err := Evaluate(4.9, 0)
	require.NoError(t, err)
	assert.Equal(t, 60.0, v.BoundaryLatitude)
}

func TestEvaluate_Extremes(t *testing.T) {
	tests := []struct {
		name     string
		kp       float64
		lat      float64
		boundary float64
		visible  bool
	}{
		{name: "negative index uses most conservative boundary", kp: -1, lat: 90, boundary: 80, visible: true},
		{name: "tiny negative index", kp: -0.01, lat: 79.99, boundary: 80, visible: false},
		{name: "above nine", kp: 12, lat: 35, boundary: 35, visible: true},
		{name: "exactly nine", kp: 9, lat: 34.99, boundary: 35, visible: false},
		{name: "peoria at kp 3.67", kp: 3.67, lat: 40.6664, boundary: 65, visible: false},
		{name: "southern hemisphere observer", kp: 9, lat: -60, boundary: 35, visible: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Evaluate(tt.kp, tt.lat)
			require.NoError(t, err)
			assert.Equal(t, tt.boundary, v.BoundaryLatitude)
			assert.Equal(t, tt.visible, v.IsVisible)
		})
	}
}

func TestEvaluate_Description(t *testing.T) {
	v, err := Evaluate(3.67, 40.6664)
	require.NoError(t, err)
	assert.Equal(t, "Kp=3.7, Visible south to 65°N", v.Description)
}

func TestEvaluate_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		kp   float64
		lat  float64
	}{
		{name: "latitude above 90", kp: 3, lat: 90.5},
		{name: "latitude below -90", kp: 3, lat: -90.5},
		{name: "NaN latitude", kp: 3, lat: math.NaN()},
		{name: "NaN index", kp: math.NaN(), lat: 45},
		{name: "infinite index", kp: math.Inf(1), lat: 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.kp, tt.lat)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrInvalidInput))
		})
	}
}

func TestBoundaryLatitude_Untabulated(t *testing.T) {
	_, ok := BoundaryLatitude(10)
	assert.False(t, ok)
	_, ok = BoundaryLatitude(-1)
	assert.False(t, ok)
}
