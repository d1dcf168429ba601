package calib

import "testing"

func TestIdentityZeroAtOrigin(t *testing.T) {
	fit := Identity(63)
	x, y := fit.Apply(0, 0)
	if x != 0 || y != 0 {
		t.Fatalf("identity at (0,0) should map to (0,0), got (%v,%v)", x, y)
	}
}

func TestIdentityEastwardScenario(t *testing.T) {
	fit := Identity(63)
	x, y := fit.Apply(0.6, 0)
	if x != 37.8 || y != 0 {
		t.Fatalf("expected (37.8, 0), got (%v, %v)", x, y)
	}
}

func TestValidateRejectsWrongCoefficientLength(t *testing.T) {
	f := Fit{Model: ModelLinear, CoeffsX: []float64{1, 2}, CoeffsY: []float64{1, 2, 3}}
	if err := f.Validate(); err == nil {
		t.Fatal("expected validation error for short coefficient vector")
	}
}

func TestValidateAcceptsQuadratic(t *testing.T) {
	f := Fit{
		Model:   ModelQuadratic,
		CoeffsX: []float64{1, 2, 3, 4, 5, 6},
		CoeffsY: []float64{1, 2, 3, 4, 5, 6},
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("expected valid quadratic fit: %v", err)
	}
}

func TestRadius(t *testing.T) {
	if r := Radius(3, 4); r != 5 {
		t.Fatalf("expected 5, got %v", r)
	}
}
