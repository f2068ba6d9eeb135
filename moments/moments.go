// Package moments estimates sub-pixel line centroids from sampled spectra.
package moments

import "math"

// Quadratic locates the peak of a sampled spectrum to sub-pixel accuracy by
// fitting a parabola through the brightest sample and its two neighbors.
// x0 is the coordinate of the first sample and dx the sample spacing.
// It returns the interpolated peak coordinate and peak value. When the
// brightest sample sits on either edge, or the parabola degenerates, the raw
// sample position and value are returned instead.
func Quadratic(y []float64, x0, dx float64) (xMax, yMax float64) {
	if len(y) == 0 {
		return math.NaN(), math.NaN()
	}
	i := 0
	best := math.Inf(-1)
	for j, v := range y {
		if !math.IsNaN(v) && v > best {
			i = j
			best = v
		}
	}
	if i == 0 || i == len(y)-1 {
		return x0 + dx*float64(i), y[i]
	}

	a0 := y[i]
	a1 := 0.5 * (y[i+1] - y[i-1])
	a2 := 0.5 * (y[i+1] + y[i-1] - 2.0*a0)
	if a2 == 0 || math.IsNaN(a2) {
		return x0 + dx*float64(i), a0
	}

	dxPeak := -0.5 * a1 / a2
	xMax = x0 + dx*(float64(i)+dxPeak)
	yMax = a0 - 0.25*a1*a1/a2
	return xMax, yMax
}
