package annulus

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// DeprojectedSpectra shifts each spectrum by the projected rotation velocity
// vrot*cos(theta) and re-expresses it on the common velocity axis by linear
// interpolation. Samples falling outside a spectrum's shifted support are
// NaN. One row is returned per spectrum.
func (e *Ensemble) DeprojectedSpectra(vrot float64) [][]float64 {
	out := make([][]float64, len(e.theta))
	shifted := make([]float64, len(e.velax))
	for i, t := range e.theta {
		dv := vrot * math.Cos(t)
		for j, v := range e.velax {
			shifted[j] = v - dv
		}
		var pl interp.PiecewiseLinear
		row := make([]float64, len(e.velax))
		if err := pl.Fit(shifted, e.spectra[i]); err != nil {
			for j := range row {
				row[j] = math.NaN()
			}
			out[i] = row
			continue
		}
		lo, hi := shifted[0], shifted[len(shifted)-1]
		for j, v := range e.velax {
			if v < lo || v > hi {
				row[j] = math.NaN()
			} else {
				row[j] = pl.Predict(v)
			}
		}
		out[i] = row
	}
	return out
}

// DeprojectedSpectrum shifts every sample of every spectrum by the projected
// rotation velocity, merges the samples into a single point cloud sorted by
// velocity, and optionally resamples it onto a regular grid. A resample
// factor of 0 returns the raw merged cloud; a factor f > 0 bins onto
// round((len(velax)-1)*f) equal bins spanning the half-channel-padded range.
func (e *Ensemble) DeprojectedSpectrum(vrot, resample float64) (x, y []float64) {
	vpnts := make([]float64, 0, len(e.flat))
	for _, t := range e.theta {
		dv := vrot * math.Cos(t)
		for _, v := range e.velax {
			vpnts = append(vpnts, v-dv)
		}
	}
	vp, sp, err := e.orderSpectra(vpnts, e.flat)
	if err != nil {
		// vpnts is built from e.theta and e.velax, so the sizes always agree.
		panic(err)
	}
	return e.resampleSpectra(vp, sp, resample)
}

// DeprojectedSpectrumMaximum aligns the spectra on their own line centroids
// instead of a rotation law: each spectrum is shifted by its peak velocity
// minus the median peak velocity across the ensemble. Useful as a
// quality-control deprojection that assumes nothing about circular rotation.
func (e *Ensemble) DeprojectedSpectrumMaximum(resample float64, method CentroidMethod) (x, y []float64, err error) {
	vmax, err := e.PeakVelocities(method)
	if err != nil {
		return nil, nil, err
	}
	med := median(vmax)
	vpnts := make([]float64, 0, len(e.flat))
	for i := range e.theta {
		dv := vmax[i] - med
		for _, v := range e.velax {
			vpnts = append(vpnts, v-dv)
		}
	}
	vp, sp, err := e.orderSpectra(vpnts, e.flat)
	if err != nil {
		return nil, nil, err
	}
	x, y = e.resampleSpectra(vp, sp, resample)
	return x, y, nil
}

// orderSpectra is the single sort point for merged point clouds. It returns
// new slices sorted ascending by coordinate and fails when the coordinate
// and intensity arrays differ in length.
func (e *Ensemble) orderSpectra(vpnts, spnts []float64) (v, s []float64, err error) {
	if len(vpnts) != len(spnts) {
		return nil, nil, ErrSizeMismatch
	}
	idxs := make([]int, len(vpnts))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return vpnts[idxs[a]] < vpnts[idxs[b]] })
	v = make([]float64, len(vpnts))
	s = make([]float64, len(spnts))
	for i, idx := range idxs {
		v[i] = vpnts[idx]
		s[i] = spnts[idx]
	}
	return v, s, nil
}

// resampleSpectra bins the sorted point cloud onto a regular grid, taking
// the mean intensity per bin. Empty bins are NaN; samples outside the padded
// velocity range are ignored. With resample <= 0 the cloud passes through
// untouched.
func (e *Ensemble) resampleSpectra(vpnts, spnts []float64, resample float64) (x, y []float64) {
	if resample <= 0 {
		return vpnts, spnts
	}
	bins := int(math.Round(float64(len(e.velax)-1) * resample))
	if bins < 1 {
		bins = 1
	}
	lo, hi := e.vrange[0], e.vrange[1]
	width := (hi - lo) / float64(bins)

	sums := make([]float64, bins)
	counts := make([]int, bins)
	for i, v := range vpnts {
		if v < lo || v > hi {
			continue
		}
		b := int((v - lo) / width)
		if b == bins { // right edge is inclusive
			b--
		}
		sums[b] += spnts[i]
		counts[b]++
	}

	x = make([]float64, bins)
	y = make([]float64, bins)
	for b := 0; b < bins; b++ {
		x[b] = lo + (float64(b)+0.5)*width
		if counts[b] == 0 {
			y[b] = math.NaN()
		} else {
			y[b] = sums[b] / float64(counts[b])
		}
	}
	return x, y
}
