// Package minimize provides the bounded minimizers the inference pipeline
// delegates to: a bounded scalar search and a box-bounded simplex wrapper
// around gonum's Nelder-Mead. Both report convergence as a flag rather than
// an error; the caller chooses its fallback.
package minimize

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

const (
	scalarTol     = 1e-5
	scalarMaxEval = 500

	// boundPenalty is returned for points outside the box. Finite so the
	// simplex can recover, and graded so it slopes back toward the box.
	boundPenalty = 1e15
)

// Scalar minimizes f over the closed interval [lo, hi] using golden-section
// search with parabolic interpolation steps (Brent's bounded method). The
// second return is false when the evaluation budget ran out before the
// interval converged.
func Scalar(f func(float64) float64, lo, hi float64) (float64, bool) {
	const golden = 0.3819660112501051 // (3 - sqrt(5)) / 2
	sqrtEps := math.Sqrt(2.220446049250313e-16)

	a, b := lo, hi
	xf := a + golden*(b-a)
	nfc, fulc := xf, xf
	fx := f(xf)
	fnfc, ffulc := fx, fx
	nEval := 1

	var rat, e float64
	xm := 0.5 * (a + b)
	tol1 := sqrtEps*math.Abs(xf) + scalarTol/3.0
	tol2 := 2.0 * tol1

	for math.Abs(xf-xm) > tol2-0.5*(b-a) {
		goldenStep := true
		if math.Abs(e) > tol1 {
			// Try a parabolic step through (xf, nfc, fulc).
			r := (xf - nfc) * (fx - ffulc)
			q := (xf - fulc) * (fx - fnfc)
			p := (xf-fulc)*q - (xf-nfc)*r
			q = 2.0 * (q - r)
			if q > 0.0 {
				p = -p
			}
			q = math.Abs(q)
			r = e
			e = rat
			if math.Abs(p) < math.Abs(0.5*q*r) && p > q*(a-xf) && p < q*(b-xf) {
				goldenStep = false
				rat = p / q
				x := xf + rat
				if x-a < tol2 || b-x < tol2 {
					rat = tol1 * signOr(xm-xf, 1.0)
				}
			}
		}
		if goldenStep {
			if xf >= xm {
				e = a - xf
			} else {
				e = b - xf
			}
			rat = golden * e
		}

		x := xf + signOr(rat, 1.0)*math.Max(math.Abs(rat), tol1)
		fu := f(x)
		nEval++

		if fu <= fx {
			if x >= xf {
				a = xf
			} else {
				b = xf
			}
			fulc, ffulc = nfc, fnfc
			nfc, fnfc = xf, fx
			xf, fx = x, fu
		} else {
			if x < xf {
				a = x
			} else {
				b = x
			}
			switch {
			case fu <= fnfc || nfc == xf:
				fulc, ffulc = nfc, fnfc
				nfc, fnfc = x, fu
			case fu <= ffulc || fulc == xf || fulc == nfc:
				fulc, ffulc = x, fu
			}
		}

		xm = 0.5 * (a + b)
		tol1 = sqrtEps*math.Abs(xf) + scalarTol/3.0
		tol2 = 2.0 * tol1

		if nEval >= scalarMaxEval {
			return xf, false
		}
	}
	return xf, true
}

func signOr(v, def float64) float64 {
	if v > 0 {
		return 1.0
	}
	if v < 0 {
		return -1.0
	}
	return def
}

// Simplex minimizes f over the box [lo, hi] starting from x0, using gonum's
// Nelder-Mead with a graded penalty outside the box. lo and hi may contain
// infinities for unbounded coordinates. The second return is false when the
// optimizer failed to converge.
func Simplex(f func([]float64) float64, x0, lo, hi []float64) ([]float64, bool) {
	boxed := func(x []float64) float64 {
		excess := 0.0
		for i, v := range x {
			if v < lo[i] {
				excess += lo[i] - v
			} else if v > hi[i] {
				excess += v - hi[i]
			}
		}
		if excess > 0 {
			return boundPenalty * (1.0 + excess)
		}
		v := f(x)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return boundPenalty
		}
		return v
	}

	problem := optimize.Problem{Func: boxed}
	res, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		out := make([]float64, len(x0))
		copy(out, x0)
		return out, false
	}

	out := make([]float64, len(res.X))
	copy(out, res.X)
	for i, v := range out {
		if v < lo[i] {
			out[i] = lo[i]
		} else if v > hi[i] {
			out[i] = hi[i]
		}
	}
	return out, true
}
