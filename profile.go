package annulus

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/optimize"
)

// widthSentinel is substituted for a non-finite fitted line width so that a
// failed fit penalizes, rather than excludes, the spectrum in any
// minimization consuming it.
const widthSentinel = 1e50

// Gaussian evaluates Tb * exp(-((x-x0)/dV)^2).
func Gaussian(x, x0, dV, Tb float64) float64 {
	r := (x - x0) / dV
	return Tb * math.Exp(-r*r)
}

// ThickLine evaluates the optically thick line profile
// Tex * (1 - exp(-g(x; x0, dV, tau))). The optical depth tau must be
// positive.
func ThickLine(x, x0, dV, Tex, tau float64) (float64, error) {
	if tau <= 0.0 {
		return 0, errors.New("must have positive tau")
	}
	return Tex * (1.0 - math.Exp(-Gaussian(x, x0, dV, tau))), nil
}

// SHO is a simple harmonic oscillator, A*cos(x) + y0. It models the
// peak-velocity-versus-angle curve of a circularly rotating annulus.
func SHO(x, A, y0 float64) float64 {
	return A*math.Cos(x) + y0
}

// SHOOffset is a simple harmonic oscillator with a free phase offset,
// A*cos(x + dx) + y0.
func SHOOffset(x, A, y0, dx float64) float64 {
	return A*math.Cos(x+dx) + y0
}

// GaussianFit holds the parameters of a Gaussian profile fit together with
// their estimated variances.
type GaussianFit struct {
	X0, DV, Tb          float64
	VarX0, VarDV, VarTb float64
}

// guessGaussian estimates (x0, dV, Tb) starting values for a Gaussian fit.
func guessGaussian(x, y []float64) (x0, dV, Tb float64, err error) {
	if len(x) != len(y) {
		return 0, 0, 0, ErrSizeMismatch
	}
	// TODO: the amplitude guess takes the maximum of the coordinate axis
	// rather than of the intensities; switching to max(y) needs the
	// downstream width estimates re-validated first.
	Tb = math.Inf(-1)
	for _, v := range x {
		if v > Tb {
			Tb = v
		}
	}
	x0 = x[argmax(y)]
	dV = integrate.Trapezoidal(x, y) / Tb / math.Sqrt(2.0*math.Pi)
	return x0, dV, Tb, nil
}

// FitGaussian fits a Gaussian profile to (x, y) by nonlinear least squares.
// Non-finite samples are masked out before fitting. The error return takes
// the place of a NaN-filled result: callers decide their own fallback.
func FitGaussian(x, y []float64) (GaussianFit, error) {
	if len(x) != len(y) {
		return GaussianFit{}, ErrSizeMismatch
	}
	xm := make([]float64, 0, len(x))
	ym := make([]float64, 0, len(y))
	for i := range x {
		if isFinite(x[i]) && isFinite(y[i]) {
			xm = append(xm, x[i])
			ym = append(ym, y[i])
		}
	}
	if len(xm) < 4 {
		return GaussianFit{}, errors.New("too few finite samples for a gaussian fit")
	}

	x0, dV, Tb, err := guessGaussian(xm, ym)
	if err != nil {
		return GaussianFit{}, err
	}
	if !isFinite(x0) || !isFinite(dV) || !isFinite(Tb) {
		return GaussianFit{}, errors.New("non-finite starting guess")
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			ss := 0.0
			for i := range xm {
				r := Gaussian(xm[i], p[0], p[1], p[2]) - ym[i]
				ss += r * r
			}
			if math.IsNaN(ss) {
				return math.Inf(1)
			}
			return ss
		},
	}
	res, err := optimize.Minimize(problem, []float64{x0, dV, Tb}, nil, &optimize.NelderMead{})
	if err != nil {
		return GaussianFit{}, err
	}

	fit := GaussianFit{X0: res.X[0], DV: res.X[1], Tb: res.X[2]}
	fit.VarX0, fit.VarDV, fit.VarTb = gaussianVariances(xm, ym, res.X, res.F)
	return fit, nil
}

// gaussianVariances estimates the parameter variances from the Gauss-Newton
// approximation s^2 * diag((J^T J)^-1) with analytic derivatives. Returns
// NaNs when the normal matrix is singular.
func gaussianVariances(x, y, p []float64, ss float64) (vx0, vdV, vTb float64) {
	vx0, vdV, vTb = math.NaN(), math.NaN(), math.NaN()
	n := len(x)
	if n <= 3 {
		return
	}
	x0, dV, Tb := p[0], p[1], p[2]
	var jtj [3][3]float64
	for i := range x {
		u := (x[i] - x0) / dV
		g := math.Exp(-u * u)
		d := [3]float64{
			Tb * g * 2.0 * u / dV,     // d/dx0
			Tb * g * 2.0 * u * u / dV, // d/ddV
			g,                         // d/dTb
		}
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				jtj[a][b] += d[a] * d[b]
			}
		}
	}
	inv, ok := invert3(jtj)
	if !ok {
		return
	}
	s2 := ss / float64(n-3)
	return s2 * inv[0][0], s2 * inv[1][1], s2 * inv[2][2]
}

// invert3 inverts a 3x3 matrix by cofactors.
func invert3(m [3][3]float64) ([3][3]float64, bool) {
	var inv [3][3]float64
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if det == 0 || !isFinite(det) {
		return inv, false
	}
	inv[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) / det
	inv[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) / det
	inv[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) / det
	inv[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) / det
	inv[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) / det
	inv[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) / det
	inv[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) / det
	inv[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) / det
	inv[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) / det
	return inv, true
}

// gaussianWidth returns the absolute width of a Gaussian fit to the
// spectrum, clamping a failed or non-finite fit to the large sentinel so
// minimizers see a penalty instead of a hole.
func gaussianWidth(x, y []float64) float64 {
	fit, err := FitGaussian(x, y)
	if err != nil || !isFinite(fit.DV) {
		return widthSentinel
	}
	return math.Abs(fit.DV)
}

// gaussianCenter returns the line center of a Gaussian fit, falling back to
// the velocity of the brightest sample when the fit fails or is non-finite.
func gaussianCenter(x, y []float64) float64 {
	fit, err := FitGaussian(x, y)
	if err != nil || !isFinite(fit.X0) {
		return x[argmax(y)]
	}
	return fit.X0
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
