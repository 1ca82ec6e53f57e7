package geometry

import (
	"sort"

	"github.com/golang/geo/r2"
)

// minPointsToLocate is the floor below which a ground cloud is considered
// too sparse to trust, per spec.md §4.4.
const minPointsToLocate = 20

// Locate returns the robust barycentre (median x, median y) of points, or
// ok=false when there are too few points or the result is non-finite.
// Median is chosen over the mean for robustness against reflective-floor
// and residual-wall-noise outliers.
func Locate(points []r2.Point) (pos r2.Point, ok bool) {
	if len(points) < minPointsToLocate {
		return r2.Point{}, false
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.X
		ys[i] = p.Y
	}

	mx := median(xs)
	my := median(ys)
	if !isFinite(mx) || !isFinite(my) {
		return r2.Point{}, false
	}

	return r2.Point{X: mx, Y: my}, true
}

// median computes the median of vs, sorting a private copy so the caller's
// slice order is never disturbed.
func median(vs []float64) float64 {
	sorted := make([]float64, len(vs))
	copy(sorted, vs)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
