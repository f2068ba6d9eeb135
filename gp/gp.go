// Package gp evaluates the log-likelihood of 1-D data under a fixed
// Gaussian-Process covariance: a white-noise (jitter) term plus a smooth
// Matern-3/2 term. It is the covariance collaborator used by the annulus
// inference pipeline, not a general-purpose GP library: one kernel pair, one
// likelihood method.
package gp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrFactorization is returned when the covariance matrix cannot be
// Cholesky-factorized, typically because it is numerically near-singular.
var ErrFactorization = errors.New("covariance factorization failed")

// GP is a conditioned Gaussian-Process model: a covariance built on a fixed
// coordinate array with a fixed mean, ready to score data vectors.
type GP struct {
	chol mat.Cholesky
	mean float64
	n    int
}

// Build constructs the covariance
//
//	K = noise^2 * I + sigma^2 * (1 + sqrt(3) r / rho) * exp(-sqrt(3) r / rho)
//
// over the coordinates x, with sigma^2 = exp(2*lnSigma) and
// rho = exp(lnRho), and factorizes it. The mean is subtracted from data
// vectors before scoring. Numerical breakdown (non-finite inputs,
// non-positive noise, failed factorization) is reported as an error value so
// callers can translate it into a rejected likelihood rather than a crash.
func Build(noise, lnSigma, lnRho float64, x []float64, mean float64) (*GP, error) {
	n := len(x)
	if n == 0 {
		return nil, errors.New("no coordinates")
	}
	if noise <= 0 || !finite(noise) || !finite(lnSigma) || !finite(lnRho) || !finite(mean) {
		return nil, errors.New("non-finite or non-positive kernel parameters")
	}
	for _, v := range x {
		if !finite(v) {
			return nil, errors.New("non-finite coordinate")
		}
	}

	sigma2 := math.Exp(2.0 * lnSigma)
	rho := math.Exp(lnRho)
	noise2 := noise * noise
	sqrt3 := math.Sqrt(3.0)

	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			r := math.Abs(x[i]-x[j]) * sqrt3 / rho
			v := sigma2 * (1.0 + r) * math.Exp(-r)
			if i == j {
				v += noise2
			}
			k.SetSym(i, j, v)
		}
	}

	g := &GP{mean: mean, n: n}
	if ok := g.chol.Factorize(k); !ok {
		return nil, ErrFactorization
	}
	return g, nil
}

// LogLikelihood scores the data vector y under the model:
//
//	-0.5 * (r^T K^-1 r + log|K| + n*log(2*pi)),  r = y - mean.
//
// A length mismatch is an error; numerical breakdown surfaces as a
// non-finite value which callers treat as an impossible model.
func (g *GP) LogLikelihood(y []float64) (float64, error) {
	if len(y) != g.n {
		return math.NaN(), errors.New("data length does not match coordinates")
	}
	r := mat.NewVecDense(g.n, nil)
	for i, v := range y {
		r.SetVec(i, v-g.mean)
	}
	var alpha mat.VecDense
	if err := g.chol.SolveVecTo(&alpha, r); err != nil {
		return math.NaN(), err
	}
	ll := -0.5 * (mat.Dot(r, &alpha) + g.chol.LogDet() + float64(g.n)*math.Log(2.0*math.Pi))
	return ll, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
