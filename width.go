package annulus

import (
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/disk-kinematics/annulus/internal/minimize"
)

// VrotFromWidth infers the rotation velocity as the shift that, after
// deprojecting all spectra to a common frame, produces the narrowest stacked
// line profile. The search is bounded to [0.7, 1.3] times vref; pass a vref
// of zero or NaN to derive one from GuessParameters. Returns NaN when the
// scalar minimizer does not converge.
func (e *Ensemble) VrotFromWidth(vref, resample float64) float64 {
	if vref == 0 || math.IsNaN(vref) {
		vref, _, _ = e.GuessParameters(true, true, CentroidQuadratic)
	}
	objective := func(vrot float64) float64 {
		return e.DeprojectedWidth(vrot, resample)
	}
	vrot, ok := minimize.Scalar(objective, 0.7*vref, 1.3*vref)
	if !ok {
		return math.NaN()
	}
	return vrot
}

// DeprojectedWidth returns the Gaussian-fit width of the merged deprojected
// spectrum at the candidate rotation velocity, restricted to the observed
// velocity range. Failed fits report the large penalty sentinel.
func (e *Ensemble) DeprojectedWidth(vrot, resample float64) float64 {
	x, y := e.DeprojectedSpectrum(vrot, resample)
	lo, hi := e.velax[0], e.velax[len(e.velax)-1]
	xm := make([]float64, 0, len(x))
	ym := make([]float64, 0, len(y))
	for i := range x {
		if x[i] >= lo && x[i] <= hi {
			xm = append(xm, x[i])
			ym = append(ym, y[i])
		}
	}
	return gaussianWidth(xm, ym)
}

// GuessParameters estimates the rotation velocity and the systemic velocity
// from the spread of the per-angle line centroids: vrot as half the
// peak-to-peak spread and vlsr as the mean. With fit set, the estimate is
// refined by least-squares fitting a cosine to the (angle, centroid) pairs,
// with a fixed or free phase depending on fixTheta; a failed refinement
// silently falls back to the raw estimate.
func (e *Ensemble) GuessParameters(fit, fixTheta bool, method CentroidMethod) (vrot, vlsr float64, err error) {
	vpeaks, err := e.PeakVelocities(method)
	if err != nil {
		return math.NaN(), math.NaN(), err
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	s := 0.0
	for _, v := range vpeaks {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		s += v
	}
	vrot = 0.5 * (hi - lo)
	vlsr = s / float64(len(vpeaks))
	if !fit {
		return vrot, vlsr, nil
	}

	var model func(theta float64, p []float64) float64
	var p0 []float64
	if fixTheta {
		model = func(theta float64, p []float64) float64 { return SHO(theta, p[0], p[1]) }
		p0 = []float64{vrot, vlsr}
	} else {
		model = func(theta float64, p []float64) float64 { return SHOOffset(theta, p[0], p[1], p[2]) }
		p0 = []float64{vrot, vlsr, 0.0}
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			ss := 0.0
			for i, t := range e.theta {
				r := model(t, p) - vpeaks[i]
				ss += r * r
			}
			if math.IsNaN(ss) {
				return math.Inf(1)
			}
			return ss
		},
	}
	res, ferr := optimize.Minimize(problem, p0, nil, &optimize.NelderMead{})
	if ferr != nil || !isFinite(res.X[0]) || !isFinite(res.X[1]) {
		return vrot, vlsr, nil
	}
	return res.X[0], res.X[1], nil
}
