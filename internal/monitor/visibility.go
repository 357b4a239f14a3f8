package monitor

import (
	"fmt"
	"math"

	"github.com/rewired-gh/aurorawatch/internal/models"
)

// DefaultBoundaryLatitude applies when the index is below every tabulated level.
const DefaultBoundaryLatitude = 80.0

type visibilityLevel struct {
	kp       int
	latitude float64
}

// visibilityTable maps Kp levels to the southernmost latitude where aurora
// may be seen, highest level first.
var visibilityTable = []visibilityLevel{
	{9, 35},
	{8, 40},
	{7, 45},
	{6, 50},
	{5, 55},
	{4, 60},
	{3, 65},
	{2, 70},
	{1, 75},
	{0, 80},
}

// BoundaryLatitude returns the tabulated boundary for an integer Kp level.
func BoundaryLatitude(level int) (float64, bool) {
	for _, l := range visibilityTable {
		if l.kp == level {
			return l.latitude, true
		}
	}
	return 0, false
}

// boundaryFor is a step function: the largest tabulated level <= kp wins.
func boundaryFor(kp float64) float64 {
	for _, l := range visibilityTable {
		if kp >= float64(l.kp) {
			return l.latitude
		}
	}
	return DefaultBoundaryLatitude
}

// Evaluate maps an index value and an observer latitude to a verdict.
func Evaluate(kp float64, observerLat float64) (models.VisibilityVerdict, error) {
	if math.IsNaN(kp) || math.IsInf(kp, 0) {
		return models.VisibilityVerdict{}, fmt.Errorf("%w: index value %v is not finite", models.ErrInvalidInput, kp)
	}
	if err := models.ValidateLatitude(observerLat); err != nil {
		return models.VisibilityVerdict{}, err
	}

	boundary := boundaryFor(kp)
	return models.VisibilityVerdict{
		IsVisible:        observerLat >= boundary,
		BoundaryLatitude: boundary,
		Description:      fmt.Sprintf("Kp=%.1f, Visible south to %.0f°N", kp, boundary),
	}, nil
}
