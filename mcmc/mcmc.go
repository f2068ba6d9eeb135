// Package mcmc implements an affine-invariant ensemble sampler using the
// Goodman & Weare stretch move. An ensemble of walkers explores a target
// log-probability; each walker proposes moves along the line through itself
// and a randomly chosen companion walker.
package mcmc

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// LogProb evaluates the target log-probability density at a parameter
// vector. It may return minus infinity to reject a point outright; NaN is
// treated the same way.
type LogProb func(p []float64) float64

// Sampler runs a fixed-size walker ensemble against a log-probability
// target.
type Sampler struct {
	nWalkers int
	dim      int
	lnProb   LogProb
	rng      *rand.Rand
	stretch  float64

	chain [][][]float64 // [walker][step][dim]
}

// New creates a sampler of nWalkers walkers over a dim-dimensional target.
// The ensemble needs at least two walkers per dimension to span proposal
// space.
func New(nWalkers, dim int, lnProb LogProb, seed int64) (*Sampler, error) {
	if dim < 1 {
		return nil, errors.New("dimension must be at least 1")
	}
	if nWalkers < 2*dim {
		return nil, fmt.Errorf("need at least %d walkers for %d dimensions", 2*dim, dim)
	}
	if lnProb == nil {
		return nil, errors.New("nil log-probability function")
	}
	return &Sampler{
		nWalkers: nWalkers,
		dim:      dim,
		lnProb:   lnProb,
		rng:      rand.New(rand.NewSource(seed)),
		stretch:  2.0,
	}, nil
}

// Run advances the ensemble by steps iterations from the initial positions
// p0, one row per walker. The chain grows by steps entries per walker; Run
// may be called repeatedly to continue a run.
func (s *Sampler) Run(p0 [][]float64, steps int) error {
	if len(p0) != s.nWalkers {
		return fmt.Errorf("got %d initial positions for %d walkers", len(p0), s.nWalkers)
	}

	cur := make([][]float64, s.nWalkers)
	lp := make([]float64, s.nWalkers)
	for k, p := range p0 {
		if len(p) != s.dim {
			return fmt.Errorf("initial position %d has dimension %d, want %d", k, len(p), s.dim)
		}
		cur[k] = make([]float64, s.dim)
		copy(cur[k], p)
		lp[k] = s.eval(cur[k])
	}

	if s.chain == nil {
		s.chain = make([][][]float64, s.nWalkers)
	}

	prop := make([]float64, s.dim)
	for step := 0; step < steps; step++ {
		for k := 0; k < s.nWalkers; k++ {
			j := s.rng.Intn(s.nWalkers - 1)
			if j >= k {
				j++
			}

			// Stretch factor z ~ g(z) with g(z) proportional to
			// 1/sqrt(z) on [1/a, a].
			u := s.rng.Float64()
			z := u*(s.stretch-1.0) + 1.0
			z = z * z / s.stretch

			for d := 0; d < s.dim; d++ {
				prop[d] = cur[j][d] + z*(cur[k][d]-cur[j][d])
			}
			lpProp := s.eval(prop)

			logAccept := float64(s.dim-1)*math.Log(z) + lpProp - lp[k]
			if logAccept >= 0 || math.Log(s.rng.Float64()) < logAccept {
				copy(cur[k], prop)
				lp[k] = lpProp
			}

			pos := make([]float64, s.dim)
			copy(pos, cur[k])
			s.chain[k] = append(s.chain[k], pos)
		}
	}
	return nil
}

// eval scores a position, mapping NaN to an outright rejection.
func (s *Sampler) eval(p []float64) float64 {
	v := s.lnProb(p)
	if math.IsNaN(v) {
		return math.Inf(-1)
	}
	return v
}

// Chain returns the stored samples indexed [walker][step][dim].
func (s *Sampler) Chain() [][][]float64 { return s.chain }

// Flatten discards the first `discard` steps of every walker and merges the
// remainder into a single [sample][dim] array.
func Flatten(chain [][][]float64, discard int) [][]float64 {
	var flat [][]float64
	for _, walker := range chain {
		if discard >= len(walker) {
			continue
		}
		for _, pos := range walker[discard:] {
			p := make([]float64, len(pos))
			copy(p, pos)
			flat = append(flat, p)
		}
	}
	return flat
}
