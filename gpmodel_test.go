package annulus

import (
	"math"
	"math/rand"
	"testing"
)

// noisyEnsemble builds a small synthetic dataset with white noise so the GP
// noise estimate is well conditioned.
func noisyEnsemble(t *testing.T, nSpectra, nChan int, span, vrot, dV, noise float64, seed int64) *Ensemble {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	velax := testAxis(nChan, span)
	theta := make([]float64, nSpectra)
	spectra := make([][]float64, nSpectra)
	for i := range theta {
		theta[i] = 2.0 * math.Pi * float64(i) / float64(nSpectra)
		row := make([]float64, nChan)
		for j, v := range velax {
			row[j] = Gaussian(v, vrot*math.Cos(theta[i]), dV, 10.0) + noise*rng.NormFloat64()
		}
		spectra[i] = row
	}
	e, err := New(spectra, theta, velax)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func TestLnPriorBinary(t *testing.T) {
	const vref = 10.0
	accept := [][]float64{
		{10.0, 0.1, 0.0, 5.0},
		{8.01, 0.1, 0.0, 5.0},
		{11.99, 0.1, 0.0, 5.0},
	}
	reject := [][]float64{
		{12.5, 0.1, 0.0, 5.0},   // vrot more than 20% from vref
		{-1.0, 0.1, 0.0, 5.0},   // negative vrot
		{10.0, 0.0, 0.0, 5.0},   // zero noise
		{10.0, -0.1, 0.0, 5.0},  // negative noise
		{10.0, 0.1, -20.0, 5.0}, // lnSigma below range
		{10.0, 0.1, 10.0, 5.0},  // lnSigma on the open boundary
		{10.0, 0.1, 0.0, -0.1},  // lnRho below range
		{10.0, 0.1, 0.0, 11.0},  // lnRho above range
	}
	for _, theta := range accept {
		if got := lnPrior(theta, vref); got != 0.0 {
			t.Fatalf("in-support vector %v: got %f want 0", theta, got)
		}
	}
	for _, theta := range reject {
		if got := lnPrior(theta, vref); !math.IsInf(got, -1) {
			t.Fatalf("out-of-support vector %v: got %f want -Inf", theta, got)
		}
	}
}

func TestLnPriorClosedRhoBoundary(t *testing.T) {
	if lnPrior([]float64{10.0, 0.1, 0.0, 10.0}, 10.0) != 0.0 {
		t.Fatalf("lnRho = 10 sits inside the closed interval")
	}
	if lnPrior([]float64{10.0, 0.1, 0.0, 0.0}, 10.0) != 0.0 {
		t.Fatalf("lnRho = 0 sits inside the closed interval")
	}
}

func TestGuessParametersGP(t *testing.T) {
	e := noisyEnsemble(t, 6, 64, 30.0, 3.0, 1.5, 0.05, 1)
	p0 := e.guessParametersGP(3.0)
	if len(p0) != 4 {
		t.Fatalf("p0 length: got %d want 4", len(p0))
	}
	if p0[0] != 3.0 {
		t.Fatalf("p0 vref: got %f want 3", p0[0])
	}
	if !(p0[1] > 0.0) || p0[1] > 1.0 {
		t.Fatalf("edge-channel noise estimate out of range: %f", p0[1])
	}
	if math.Abs(p0[3]-math.Log(150.0)) > 1e-12 {
		t.Fatalf("correlation-length guess: got %f want ln(150)", p0[3])
	}
}

func TestRandomizeP0(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	p0 := []float64{3.0, 0.0, -1.0, 5.0}
	positions := randomizeP0(p0, 16, 1e-3, rng)
	if len(positions) != 16 {
		t.Fatalf("walker count: got %d want 16", len(positions))
	}
	for _, pos := range positions {
		if len(pos) != 4 {
			t.Fatalf("position length: got %d want 4", len(pos))
		}
		for j, v := range pos {
			if !isFinite(v) {
				t.Fatalf("non-finite start: %v", pos)
			}
			if p0[j] != 0.0 {
				if math.Abs(v-p0[j])/math.Abs(p0[j]) > 0.01 {
					t.Fatalf("component %d jittered too far: %f from %f", j, v, p0[j])
				}
			} else if math.Abs(v) > 0.01 {
				t.Fatalf("zero component jittered too far: %f", v)
			}
		}
	}
	// Zero components must not stay pinned at exactly zero for every
	// walker.
	allZero := true
	for _, pos := range positions {
		if pos[1] != 0.0 {
			allZero = false
		}
	}
	if allZero {
		t.Fatalf("zero component never perturbed")
	}
}

func TestLnProbabilityShortCircuit(t *testing.T) {
	e := noisyEnsemble(t, 6, 64, 30.0, 3.0, 1.5, 0.05, 2)
	// Impossible prior: the likelihood must not be consulted; the result is
	// exactly -Inf.
	lp := e.lnProbability([]float64{3.0, -1.0, 0.0, 5.0}, 3.0, 0)
	if !math.IsInf(lp, -1) {
		t.Fatalf("rejected prior must short-circuit to -Inf, got %f", lp)
	}
}

func TestNegLnLikelihoodFinite(t *testing.T) {
	e := noisyEnsemble(t, 6, 64, 30.0, 3.0, 1.5, 0.05, 3)
	p0 := e.guessParametersGP(3.0)
	p0[3] = math.Log(2.0) // correlation length on the scale of the line
	nll := e.negLnLikelihood(p0, 0)
	if !isFinite(nll) {
		t.Fatalf("penalized negative log-likelihood must be finite, got %f", nll)
	}
	// Broken hyperparameters collapse to the finite penalty, not +Inf.
	if got := e.negLnLikelihood([]float64{3.0, -1.0, 0.0, 5.0}, 0); got != 1e15 {
		t.Fatalf("want the 1e15 penalty, got %g", got)
	}
}

func TestOptimizeP0Monotonic(t *testing.T) {
	const vtrue = 3.0
	e := noisyEnsemble(t, 6, 64, 30.0, vtrue, 1.5, 0.05, 4)

	// Deliberately poor start: rotation velocity 50% high.
	p0 := e.guessParametersGP(1.5 * vtrue)
	p0[3] = math.Log(2.0)

	before := e.negLnLikelihood(p0, 0)
	opt := e.optimizeP0(p0, 1, 0)
	after := e.negLnLikelihood(opt, 0)

	if len(opt) != 4 {
		t.Fatalf("optimized vector length: got %d", len(opt))
	}
	if after > before {
		t.Fatalf("optimizer worsened the likelihood: %f -> %f", before, after)
	}
}

func TestVrotFromGPValidation(t *testing.T) {
	e := noisyEnsemble(t, 6, 64, 30.0, 3.0, 1.5, 0.05, 5)

	cfg := DefaultGPConfig()
	cfg.Vref = 3.0
	cfg.P0 = []float64{3.0, 0.05}
	if _, err := e.VrotFromGP(cfg); err == nil {
		t.Fatalf("expected an error for a wrong-length p0")
	}

	cfg = DefaultGPConfig()
	cfg.Walkers = 0
	if _, err := e.VrotFromGP(cfg); err == nil {
		t.Fatalf("expected an error for zero walkers")
	}
}

func TestVrotFromGPPosterior(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping MCMC run in short mode")
	}
	const vtrue = 3.0
	e := noisyEnsemble(t, 6, 64, 30.0, vtrue, 1.5, 0.05, 6)

	cfg := DefaultGPConfig()
	cfg.Vref = vtrue
	cfg.Optimize = 0
	cfg.Walkers = 8
	cfg.Burnin = 25
	cfg.Steps = 50
	cfg.Seed = 2
	cfg.ReturnAll = true
	cfg.P0 = []float64{vtrue, 0.05, math.Log(2.5), math.Log(2.0)}

	pct, err := e.VrotFromGP(cfg)
	if err != nil {
		t.Fatalf("VrotFromGP failed: %v", err)
	}
	if len(pct) != 4 {
		t.Fatalf("percentile rows: got %d want 4", len(pct))
	}
	for j, p := range pct {
		if !(p[0] <= p[1] && p[1] <= p[2]) {
			t.Fatalf("parameter %d percentiles out of order: %v", j, p)
		}
		for _, v := range p {
			if !isFinite(v) {
				t.Fatalf("parameter %d has non-finite percentiles: %v", j, p)
			}
		}
	}
	// The prior window alone keeps vrot within 20% of the reference.
	if math.Abs(pct[0][1]-vtrue)/vtrue > 0.25 {
		t.Fatalf("posterior vrot: got %f want about %f", pct[0][1], vtrue)
	}
}
