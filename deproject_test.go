package annulus

import (
	"errors"
	"math"
	"testing"
)

func TestDeprojectedSpectrumZeroVelocityIdentity(t *testing.T) {
	velax := testAxis(51, 10.0)
	spectrum := make([]float64, len(velax))
	for j, v := range velax {
		spectrum[j] = Gaussian(v, 0.5, 1.0, 3.0)
	}
	e, err := New([][]float64{spectrum}, []float64{0.3}, velax)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	x, y := e.DeprojectedSpectrum(0.0, 0)
	if len(x) != len(velax) || len(y) != len(velax) {
		t.Fatalf("length mismatch: %d, %d", len(x), len(y))
	}
	for j := range x {
		if math.Abs(x[j]-velax[j]) > 1e-12 {
			t.Fatalf("coordinate %d changed: got %f want %f", j, x[j], velax[j])
		}
		if math.Abs(y[j]-spectrum[j]) > 1e-12 {
			t.Fatalf("intensity %d changed: got %f want %f", j, y[j], spectrum[j])
		}
	}
}

func TestDeprojectedSpectrumSorted(t *testing.T) {
	e := testEnsemble(t, 8, 101, 40.0, 5.0, 2.0)
	x, _ := e.DeprojectedSpectrum(5.0, 0)
	for i := 1; i < len(x); i++ {
		if x[i] < x[i-1] {
			t.Fatalf("merged cloud not sorted at %d: %f < %f", i, x[i], x[i-1])
		}
	}
}

func TestResampleGrid(t *testing.T) {
	e := testEnsemble(t, 8, 101, 40.0, 5.0, 2.0)
	x, y := e.DeprojectedSpectrum(5.0, 1.0)

	if len(x) != 100 {
		t.Fatalf("bin count: got %d want 100", len(x))
	}
	if len(y) != len(x) {
		t.Fatalf("coordinate/intensity length mismatch")
	}
	lo, hi := e.VelaxRange()
	width := (hi - lo) / float64(len(x))
	for b := range x {
		want := lo + (float64(b)+0.5)*width
		if math.Abs(x[b]-want) > 1e-9 {
			t.Fatalf("bin center %d: got %f want %f", b, x[b], want)
		}
	}
	// Uniform bin spacing.
	for b := 1; b < len(x); b++ {
		if math.Abs((x[b]-x[b-1])-width) > 1e-9 {
			t.Fatalf("bin spacing not uniform at %d", b)
		}
	}
}

func TestDeprojectedSpectraAlignsPeaks(t *testing.T) {
	const vtrue = 5.0
	e := testEnsemble(t, 8, 201, 100.0, vtrue, 2.0)
	rows := e.DeprojectedSpectra(vtrue)
	if len(rows) != e.N() {
		t.Fatalf("row count: got %d want %d", len(rows), e.N())
	}
	for i, row := range rows {
		xmax := e.Velax()[argmax(row)]
		if math.Abs(xmax) > e.Channel() {
			t.Fatalf("row %d peak not aligned at zero: %f", i, xmax)
		}
	}
}

func TestDeprojectedSpectraOutOfRangeNaN(t *testing.T) {
	const vtrue = 5.0
	e := testEnsemble(t, 4, 51, 10.0, vtrue, 1.0)
	rows := e.DeprojectedSpectra(vtrue)
	// The theta = 0 spectrum shifts by a full vtrue, so the leading edge of
	// the axis has no shifted support and must be NaN.
	if !math.IsNaN(rows[0][len(rows[0])-1]) {
		t.Fatalf("expected NaN outside the shifted support")
	}
}

func TestOrderSpectraSizeMismatch(t *testing.T) {
	e := testEnsemble(t, 4, 51, 10.0, 2.0, 1.0)
	if _, _, err := e.orderSpectra([]float64{1, 2}, []float64{1}); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("want ErrSizeMismatch, got %v", err)
	}
}

func TestDeprojectedSpectrumMaximum(t *testing.T) {
	const vtrue = 5.0
	e := testEnsemble(t, 8, 201, 100.0, vtrue, 2.0)
	x, y, err := e.DeprojectedSpectrumMaximum(1.0, CentroidQuadratic)
	if err != nil {
		t.Fatalf("DeprojectedSpectrumMaximum failed: %v", err)
	}
	if len(x) != len(y) {
		t.Fatalf("length mismatch")
	}
	// Aligning on the centroids must stack the lines into a narrow profile
	// centered at the median peak velocity.
	fit, err := FitGaussian(x, y)
	if err != nil {
		t.Fatalf("fit of aligned stack failed: %v", err)
	}
	if math.Abs(fit.DV) > 2.5 {
		t.Fatalf("aligned stack too wide: %f", fit.DV)
	}
}
