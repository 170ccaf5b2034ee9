package dstack

import (
	"math"
	"testing"
)

func TestRectInterpolantMassConservation(t *testing.T) {
	rect := NewRect([2]float64{0, 0}, [2]float64{1, 15}, [2]int{10, 10})

	// For any in-bounds point the four bilinear fractions sum to
	// exactly 1
	for _, pt := range [][2]float64{
		{0.5, 7.5}, {0.071, 1.3}, {0.949, 13.49}, {0.05, 0.75}, {0.123456, 11.1},
	} {
		_, _, a0, a1, ok := rect.Interpolant(pt[0], pt[1])
		if !ok {
			t.Fatalf("point %v unexpectedly out of bounds", pt)
		}
		sum := (1-a0)*(1-a1) + a0*(1-a1) + (1-a0)*a1 + a0*a1
		if sum != 1.0 {
			t.Errorf("fractions for %v sum to %v, want exactly 1", pt, sum)
		}
	}
}

func TestRectInterpolantBounds(t *testing.T) {
	rect := NewRect([2]float64{0, 0}, [2]float64{1, 15}, [2]int{10, 10})

	for _, pt := range [][2]float64{
		{-0.5, 7.5},      // below E range
		{1.5, 7.5},       // above E range
		{0.5, -1.0},      // below mu range
		{0.5, 20.0},      // above mu range
		{0.999, 7.5},     // inside the top half-bin: i0+1 would overflow
		{0.5, 14.99},
	} {
		if i0, i1, _, _, ok := rect.Interpolant(pt[0], pt[1]); ok {
			if i0+1 >= rect.NBins[0] || i1+1 >= rect.NBins[1] {
				t.Errorf("point %v returned unaddressable bins (%d,%d)", pt, i0, i1)
			}
		}
	}

	// In-bounds indices are always deposit-safe
	i0, i1, _, _, ok := rect.Interpolant(0.51, 7.51)
	if !ok {
		t.Fatal("expected in-bounds")
	}
	if i0 < 0 || i1 < 0 || i0+1 >= rect.NBins[0] || i1+1 >= rect.NBins[1] {
		t.Errorf("indices (%d,%d) not deposit-safe", i0, i1)
	}
}

func TestRectGeometry(t *testing.T) {
	rect := NewRect([2]float64{-0.2, 3.75}, [2]float64{7.2, 19.25}, [2]int{740, 124})

	if math.Abs(rect.Dx[0]-0.01) > 1e-12 {
		t.Errorf("E bin width = %v, want 0.01", rect.Dx[0])
	}
	if math.Abs(rect.Dx[1]-0.125) > 1e-12 {
		t.Errorf("mu bin width = %v, want 0.125", rect.Dx[1])
	}

	if !rect.Contains(0.0, 10.0) || rect.Contains(7.3, 10.0) || rect.Contains(0.0, 19.3) {
		t.Error("Contains disagrees with bounds")
	}

	e, mu := rect.BinCenter(0, 0)
	if math.Abs(e-(-0.195)) > 1e-12 || math.Abs(mu-3.8125) > 1e-12 {
		t.Errorf("BinCenter(0,0) = (%v,%v)", e, mu)
	}
}
