// Package annulus infers the rotation velocity of a gas annulus in a
// protoplanetary disk from Doppler-shifted spectra sampled at different polar
// angles around the annulus. Shifting every spectrum by the projected
// rotational Doppler velocity and stacking them should produce the sharpest,
// most coherent combined line profile; the package offers two estimators
// built on that idea: minimizing the width of the stacked profile
// (VrotFromWidth) and sampling the posterior of a Gaussian-Process model of
// the stacked profile (VrotFromGP).
package annulus

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrEmptyEnsemble is returned when no usable spectra remain after filtering.
var ErrEmptyEnsemble = errors.New("no finite spectra; check for NaNs")

// ErrSizeMismatch is returned when paired coordinate and intensity arrays
// differ in length.
var ErrSizeMismatch = errors.New("mismatch in array sizes")

// Ensemble holds the spectra extracted around an annulus, one per polar
// angle, together with the shared velocity axis. It is immutable after
// construction.
type Ensemble struct {
	theta    []float64   // polar angles in radians, sorted ascending
	thetaDeg []float64   // angles in degrees, wrapped to [0, 360)
	spectra  [][]float64 // one spectrum per angle, all on velax
	flat     []float64   // row-major flattened spectra

	velax   []float64  // common velocity axis, uniformly spaced
	channel float64    // channel width
	vrange  [2]float64 // axis range padded by half a channel
	vmask   [2]float64 // central 30th-70th percentile window
}

type config struct {
	keepEmpty bool
	noSort    bool
}

// Option configures ensemble construction.
type Option func(*config)

// KeepEmpty retains spectra whose intensities sum to zero instead of
// dropping them.
func KeepEmpty() Option {
	return func(cfg *config) { cfg.keepEmpty = true }
}

// NoSort keeps the spectra in their input order instead of sorting them by
// angle.
func NoSort() Option {
	return func(cfg *config) { cfg.noSort = true }
}

// New builds an Ensemble from spectra sampled at the given polar angles
// (radians) on a shared, uniformly spaced velocity axis. By default the
// spectra are sorted by angle and all-zero spectra are removed; an error is
// returned if no spectra survive.
func New(spectra [][]float64, theta, velax []float64, opts ...Option) (*Ensemble, error) {
	var cfg config
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if len(spectra) != len(theta) {
		return nil, fmt.Errorf("%w: %d spectra for %d angles", ErrSizeMismatch, len(spectra), len(theta))
	}
	if len(velax) < 2 {
		return nil, errors.New("velocity axis needs at least two channels")
	}
	for i, s := range spectra {
		if len(s) != len(velax) {
			return nil, fmt.Errorf("%w: spectrum %d has %d channels, axis has %d",
				ErrSizeMismatch, i, len(s), len(velax))
		}
	}

	idxs := make([]int, len(theta))
	for i := range idxs {
		idxs[i] = i
	}
	if !cfg.noSort {
		sort.SliceStable(idxs, func(a, b int) bool { return theta[idxs[a]] < theta[idxs[b]] })
	}

	e := &Ensemble{}
	for _, i := range idxs {
		if !cfg.keepEmpty && !(floats.Sum(spectra[i]) > 0.0) {
			continue
		}
		row := make([]float64, len(velax))
		copy(row, spectra[i])
		e.spectra = append(e.spectra, row)
		e.theta = append(e.theta, theta[i])
	}
	if len(e.theta) < 1 {
		return nil, ErrEmptyEnsemble
	}

	e.thetaDeg = make([]float64, len(e.theta))
	for i, t := range e.theta {
		deg := math.Mod(t*180.0/math.Pi, 360.0)
		if deg < 0 {
			deg += 360.0
		}
		e.thetaDeg[i] = deg
	}

	e.flat = make([]float64, 0, len(e.spectra)*len(velax))
	for _, s := range e.spectra {
		e.flat = append(e.flat, s...)
	}

	e.velax = make([]float64, len(velax))
	copy(e.velax, velax)
	e.channel = velax[1] - velax[0]
	e.vrange = [2]float64{
		velax[0] - 0.5*e.channel,
		velax[len(velax)-1] + 0.5*e.channel,
	}

	sorted := make([]float64, len(velax))
	copy(sorted, velax)
	sort.Float64s(sorted)
	e.vmask = [2]float64{
		stat.Quantile(0.30, stat.LinInterp, sorted, nil),
		stat.Quantile(0.70, stat.LinInterp, sorted, nil),
	}

	return e, nil
}

// N returns the number of spectra in the ensemble.
func (e *Ensemble) N() int { return len(e.theta) }

// Theta returns the polar angles in radians.
func (e *Ensemble) Theta() []float64 { return e.theta }

// ThetaDeg returns the polar angles in degrees, wrapped to [0, 360).
func (e *Ensemble) ThetaDeg() []float64 { return e.thetaDeg }

// Spectra returns the per-angle spectra, one row per angle.
func (e *Ensemble) Spectra() [][]float64 { return e.spectra }

// Velax returns the shared velocity axis.
func (e *Ensemble) Velax() []float64 { return e.velax }

// Channel returns the velocity channel width.
func (e *Ensemble) Channel() float64 { return e.channel }

// VelaxRange returns the velocity axis range padded by half a channel on
// each side, the span used for resampling bin edges.
func (e *Ensemble) VelaxRange() (lo, hi float64) { return e.vrange[0], e.vrange[1] }

// VelaxMask returns the central velocity window (30th to 70th percentile of
// the axis) used as the default fitting mask.
func (e *Ensemble) VelaxMask() (lo, hi float64) { return e.vmask[0], e.vmask[1] }

// -------------------- small numeric helpers --------------------

// argmax returns the index of the largest finite value, treating NaN as
// minus infinity. Returns 0 for an all-NaN input.
func argmax(x []float64) int {
	best := 0
	bestV := math.Inf(-1)
	for i, v := range x {
		if !math.IsNaN(v) && v > bestV {
			best = i
			bestV = v
		}
	}
	return best
}

// nanmean averages the finite values of x. Returns NaN when none are finite.
func nanmean(x []float64) float64 {
	s, n := 0.0, 0
	for _, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			s += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return s / float64(n)
}

// popStd is the population standard deviation (zero delta degrees of
// freedom).
func popStd(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	m := stat.Mean(x, nil)
	s := 0.0
	for _, v := range x {
		d := v - m
		s += d * d
	}
	return math.Sqrt(s / float64(len(x)))
}

// median of x; x is left unmodified.
func median(x []float64) float64 {
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.LinInterp, sorted, nil)
}
