package annulus

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/disk-kinematics/annulus/gp"
	"github.com/disk-kinematics/annulus/internal/minimize"
	"github.com/disk-kinematics/annulus/mcmc"
)

// nllPenalty replaces a non-finite negative log-likelihood so bounded
// gradient-free minimizers never see infinities.
const nllPenalty = 1e15

// GPConfig configures the Gaussian-Process rotation-velocity estimate.
type GPConfig struct {
	// Vref is the predicted rotation velocity, typically the Keplerian
	// velocity at the annulus radius. It anchors the prior and the
	// optimizer bounds. Zero or NaN derives one from GuessParameters.
	Vref float64
	// P0 optionally fixes the initial parameter vector
	// (vrot, noise, lnSigma, lnRho); it overrides Vref when set.
	P0 []float64
	// Resample is the deprojection resampling factor (0 disables, the
	// recommended setting for the GP approach).
	Resample float64
	// Optimize is the number of staged-optimizer iterations used to
	// bootstrap the walker starting positions. Zero skips the bootstrap.
	Optimize int
	// Walkers, Burnin and Steps shape the MCMC run.
	Walkers int
	Burnin  int
	Steps   int
	// Scatter is the relative jitter applied to the walker starting
	// positions.
	Scatter float64
	// Seed seeds the jitter and sampler random streams.
	Seed int64
	// ReturnAll reports percentiles for all four parameters instead of
	// only the rotation velocity.
	ReturnAll bool
	// WalkerPlots, when non-empty, is the filename prefix for per-parameter
	// walker trace plots. Plotting is best effort and never fails the run.
	WalkerPlots string
}

// DefaultGPConfig mirrors the defaults of the width-of-a-radius survey
// pipelines this estimator comes from.
func DefaultGPConfig() GPConfig {
	return GPConfig{
		Optimize: 1,
		Walkers:  64,
		Burnin:   300,
		Steps:    300,
		Scatter:  1e-3,
		Seed:     1,
	}
}

// Percentiles holds the 16th, 50th and 84th percentiles of a marginal
// posterior distribution.
type Percentiles [3]float64

// VrotFromGP infers the rotation velocity by modelling the deprojected,
// stacked spectrum with a Gaussian Process: the velocity that deprojects the
// ensemble into the smoothest stacked profile maximizes the GP likelihood.
// It returns one Percentiles entry per parameter when cfg.ReturnAll is set,
// otherwise a single entry for the rotation velocity.
func (e *Ensemble) VrotFromGP(cfg GPConfig) ([]Percentiles, error) {
	if cfg.Walkers <= 0 || cfg.Burnin < 0 || cfg.Steps <= 0 {
		return nil, fmt.Errorf("bad MCMC shape: %d walkers, %d burn-in, %d steps",
			cfg.Walkers, cfg.Burnin, cfg.Steps)
	}

	vref := cfg.Vref
	if vref == 0 || math.IsNaN(vref) {
		var err error
		vref, _, err = e.GuessParameters(true, true, CentroidQuadratic)
		if err != nil {
			return nil, err
		}
	}

	p0 := cfg.P0
	if p0 == nil {
		p0 = e.guessParametersGP(vref)
	}
	if len(p0) != 4 {
		return nil, fmt.Errorf("incorrect length of p0: %d", len(p0))
	}
	vref = p0[0]

	if cfg.Optimize > 0 {
		p0 = e.optimizeP0(p0, cfg.Optimize, cfg.Resample)
		vref = p0[0]
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	positions := randomizeP0(p0, cfg.Walkers, cfg.Scatter, rng)
	for _, pos := range positions {
		for _, v := range pos {
			if !isFinite(v) {
				return nil, fmt.Errorf("non-finite walker starting position %v", pos)
			}
		}
	}

	lnProb := func(theta []float64) float64 {
		return e.lnProbability(theta, vref, cfg.Resample)
	}
	sampler, err := mcmc.New(cfg.Walkers, 4, lnProb, cfg.Seed)
	if err != nil {
		return nil, err
	}
	if err := sampler.Run(positions, cfg.Burnin+cfg.Steps); err != nil {
		return nil, err
	}
	samples := mcmc.Flatten(sampler.Chain(), cfg.Burnin)

	if cfg.WalkerPlots != "" {
		_ = PlotWalkers(sampler.Chain(), cfg.Burnin, cfg.WalkerPlots)
	}

	if cfg.ReturnAll {
		out := make([]Percentiles, 4)
		for j := 0; j < 4; j++ {
			out[j] = marginalPercentiles(samples, j)
		}
		return out, nil
	}
	return []Percentiles{marginalPercentiles(samples, 0)}, nil
}

func marginalPercentiles(samples [][]float64, j int) Percentiles {
	vals := make([]float64, len(samples))
	for i, s := range samples {
		vals[i] = s[j]
	}
	sort.Float64s(vals)
	return Percentiles{
		stat.Quantile(0.16, stat.LinInterp, vals, nil),
		stat.Quantile(0.50, stat.LinInterp, vals, nil),
		stat.Quantile(0.84, stat.LinInterp, vals, nil),
	}
}

// guessParametersGP derives an initial (vrot, noise, lnSigma, lnRho) vector
// from the data: the reference velocity, a noise estimate from the
// line-free edge channels, the log of the overall intensity scatter, and a
// broad correlation-length guess.
func (e *Ensemble) guessParametersGP(vref float64) []float64 {
	nEdge := len(e.velax) / 3
	if nEdge > 10 {
		nEdge = 10
	}
	var edges []float64
	for _, s := range e.spectra {
		edges = append(edges, s[:nEdge]...)
		edges = append(edges, s[len(s)-nEdge:]...)
	}
	noise := popStd(edges)
	lnSigma := math.Log(popStd(e.flat))
	lnRho := math.Log(150.0)
	return []float64{vref, noise, lnSigma, lnRho}
}

// randomizeP0 expands p0 into one jittered starting position per walker. The
// jitter is multiplicative, scaled by scatter; exactly-zero components are
// perturbed additively instead so they do not stay pinned at zero.
func randomizeP0(p0 []float64, nWalkers int, scatter float64, rng *rand.Rand) [][]float64 {
	out := make([][]float64, nWalkers)
	for w := range out {
		pos := make([]float64, len(p0))
		for j, base := range p0 {
			z := rng.NormFloat64()
			if base == 0.0 {
				pos[j] = scatter * z
			} else {
				pos[j] = base * (1.0 + scatter*z)
			}
		}
		out[w] = pos
	}
	return out
}

// -------------------- prior, likelihood, probability --------------------

// lnPrior is the bounded uninformative log-prior: exactly 0 inside the
// support and -Inf outside. The rotation velocity must sit within 20% of
// the reference velocity.
func lnPrior(theta []float64, vref float64) float64 {
	vrot, noise, lnSigma, lnRho := theta[0], theta[1], theta[2], theta[3]
	if math.Abs(vrot-vref)/vref > 0.2 {
		return math.Inf(-1)
	}
	if vrot <= 0.0 {
		return math.Inf(-1)
	}
	if noise <= 0.0 {
		return math.Inf(-1)
	}
	if !(-15.0 < lnSigma && lnSigma < 10.0) {
		return math.Inf(-1)
	}
	if !(0.0 <= lnRho && lnRho <= 10.0) {
		return math.Inf(-1)
	}
	return 0.0
}

// maskedSpectrum deprojects at the candidate rotation velocity and restricts
// the merged cloud to the central velocity window.
func (e *Ensemble) maskedSpectrum(vrot, resample float64) (x, y []float64) {
	xs, ys := e.DeprojectedSpectrum(vrot, resample)
	x = make([]float64, 0, len(xs))
	y = make([]float64, 0, len(ys))
	for i := range xs {
		if xs[i] >= e.vmask[0] && xs[i] <= e.vmask[1] {
			x = append(x, xs[i])
			y = append(y, ys[i])
		}
	}
	return x, y
}

// lnLikelihood scores theta by conditioning the jitter+Matern-3/2 kernel on
// the masked, deprojected data. Kernel construction failure and non-finite
// likelihoods both collapse to -Inf so samplers reject the point cleanly.
func (e *Ensemble) lnLikelihood(theta []float64, resample float64) float64 {
	x, y := e.maskedSpectrum(theta[0], resample)
	model, err := gp.Build(theta[1], theta[2], theta[3], x, nanmean(y))
	if err != nil {
		return math.Inf(-1)
	}
	ll, err := model.LogLikelihood(y)
	if err != nil || !isFinite(ll) {
		return math.Inf(-1)
	}
	return ll
}

// lnProbability is the posterior log-probability: prior plus likelihood,
// short-circuiting before the expensive likelihood when the prior already
// rejects theta.
func (e *Ensemble) lnProbability(theta []float64, vref, resample float64) float64 {
	if math.IsInf(lnPrior(theta, vref), -1) {
		return math.Inf(-1)
	}
	return e.lnLikelihood(theta, resample)
}

// negLnLikelihood and its fixed-block variants feed bounded minimizers,
// substituting a large finite penalty for non-finite likelihoods.

func (e *Ensemble) negLnLikelihood(theta []float64, resample float64) float64 {
	nll := -e.lnLikelihood(theta, resample)
	if !isFinite(nll) {
		return nllPenalty
	}
	return nll
}

func (e *Ensemble) negLnLikelihoodHyper(hyper []float64, vrot, resample float64) float64 {
	theta := append([]float64{vrot}, hyper...)
	return e.negLnLikelihood(theta, resample)
}

func (e *Ensemble) negLnLikelihoodVrot(vrot float64, hyper []float64, resample float64) float64 {
	theta := append([]float64{vrot}, hyper...)
	return e.negLnLikelihood(theta, resample)
}

// -------------------- staged p0 optimizer --------------------

// optimizeP0 bootstraps the walker starting vector by coordinate-block
// descent: per iteration, minimize the hyperparameters with the rotation
// velocity held fixed, then the rotation velocity with the hyperparameters
// held fixed, then everything jointly. A step is accepted only when the
// minimizer converged and the negative log-likelihood strictly improved;
// otherwise the previous vector stands. The input may come back unchanged
// when no step improves.
func (e *Ensemble) optimizeP0(p0 []float64, iterations int, resample float64) []float64 {
	best := make([]float64, len(p0))
	copy(best, p0)
	bestNLL := e.negLnLikelihood(best, resample)

	inf := math.Inf(1)
	for i := 0; i < iterations; i++ {
		vLo, vHi := 0.8*best[0], 1.2*best[0]

		// Hyperparameters only, vrot held.
		vrot := best[0]
		hyper, ok := minimize.Simplex(
			func(h []float64) float64 { return e.negLnLikelihoodHyper(h, vrot, resample) },
			best[1:],
			[]float64{0.0, -15.0, 0.0},
			[]float64{inf, 10.0, 10.0},
		)
		if ok {
			cand := append([]float64{vrot}, hyper...)
			if nll := e.negLnLikelihood(cand, resample); nll < bestNLL {
				best, bestNLL = cand, nll
			}
		}

		// Rotation velocity only, hyperparameters held.
		hyperFixed := append([]float64(nil), best[1:]...)
		vOpt, ok := minimize.Simplex(
			func(v []float64) float64 { return e.negLnLikelihoodVrot(v[0], hyperFixed, resample) },
			[]float64{best[0]},
			[]float64{vLo},
			[]float64{vHi},
		)
		if ok {
			cand := append([]float64{vOpt[0]}, hyperFixed...)
			if nll := e.negLnLikelihood(cand, resample); nll < bestNLL {
				best, bestNLL = cand, nll
			}
		}

		// Everything together.
		joint, ok := minimize.Simplex(
			func(t []float64) float64 { return e.negLnLikelihood(t, resample) },
			best,
			[]float64{vLo, 0.0, -15.0, 0.0},
			[]float64{vHi, inf, 10.0, 10.0},
		)
		if ok {
			if nll := e.negLnLikelihood(joint, resample); nll < bestNLL {
				best, bestNLL = joint, nll
			}
		}
	}
	return best
}
