package minimize

import (
	"math"
	"testing"
)

func TestScalarParabola(t *testing.T) {
	f := func(x float64) float64 { return (x - 2.0) * (x - 2.0) }
	x, ok := Scalar(f, 0.0, 5.0)
	if !ok {
		t.Fatalf("did not converge")
	}
	if math.Abs(x-2.0) > 1e-4 {
		t.Fatalf("minimum: got %f want 2", x)
	}
}

func TestScalarBoundaryMinimum(t *testing.T) {
	f := func(x float64) float64 { return x }
	x, ok := Scalar(f, 1.0, 3.0)
	if !ok {
		t.Fatalf("did not converge")
	}
	if x < 1.0 || x > 1.01 {
		t.Fatalf("boundary minimum: got %f want about 1", x)
	}
}

func TestScalarNonSmooth(t *testing.T) {
	f := func(x float64) float64 { return math.Abs(x - 0.7) }
	x, ok := Scalar(f, -2.0, 2.0)
	if !ok {
		t.Fatalf("did not converge")
	}
	if math.Abs(x-0.7) > 1e-3 {
		t.Fatalf("minimum: got %f want 0.7", x)
	}
}

func TestSimplexSphere(t *testing.T) {
	f := func(x []float64) float64 {
		return (x[0]-1.0)*(x[0]-1.0) + (x[1]+2.0)*(x[1]+2.0)
	}
	inf := math.Inf(1)
	x, ok := Simplex(f, []float64{0.3, 0.3}, []float64{-inf, -inf}, []float64{inf, inf})
	if !ok {
		t.Fatalf("did not converge")
	}
	if math.Abs(x[0]-1.0) > 1e-3 || math.Abs(x[1]+2.0) > 1e-3 {
		t.Fatalf("minimum: got %v want (1, -2)", x)
	}
}

func TestSimplexRespectsBox(t *testing.T) {
	// Unconstrained minimum at (1, -2) but the box stops at zero.
	f := func(x []float64) float64 {
		return (x[0]-1.0)*(x[0]-1.0) + (x[1]+2.0)*(x[1]+2.0)
	}
	x, ok := Simplex(f, []float64{0.5, 0.5}, []float64{0.0, 0.0}, []float64{2.0, 2.0})
	if !ok {
		t.Fatalf("did not converge")
	}
	if x[1] < 0.0 || x[1] > 0.1 {
		t.Fatalf("bounded coordinate: got %f want about 0", x[1])
	}
	if math.Abs(x[0]-1.0) > 0.05 {
		t.Fatalf("free coordinate: got %f want 1", x[0])
	}
}
