package core

import (
	"math"

	"github.com/valter-silva-au/winsor/pkg/models"
)

// side tells quantile which bound it is computing, which matters only for
// nearest-observed interpolation.
type side int

const (
	lowerSide side = iota
	upperSide
)

// quantile returns the q-quantile of sorted, which must be non-empty and in
// ascending order. q is clamped to [0, 1].
//
// Nearest-observed positions are floored or ceiled exactly as computed, with
// no tolerance: a position that rounding lifts just above an integer, such
// as (1-0.7)*10, ceils to the next observation.
func quantile(sorted []float64, q float64, interp models.Interpolation, s side) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	q = math.Max(0, math.Min(1, q))
	pos := q * float64(n-1)

	switch interp {
	case models.InterpolationNearestObserved:
		if s == lowerSide {
			return sorted[int(math.Floor(pos))]
		}
		return sorted[int(math.Ceil(pos))]
	default:
		lo := int(math.Floor(pos))
		if lo >= n-1 {
			return sorted[n-1]
		}
		frac := pos - float64(lo)
		if frac == 0 {
			return sorted[lo]
		}
		return math.Min(sorted[lo+1], sorted[lo]+frac*(sorted[lo+1]-sorted[lo]))
	}
}
