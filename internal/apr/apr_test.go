package apr

import "testing"

func TestEstimate(t *testing.T) {
	got := Estimate(50000, 1000000, 1.0, 40, 100)
	want := 2.0 // 5% * 40/100 share
	if got != want {
		t.Fatalf("estimate mismatch: got %v want %v", got, want)
	}
}

func TestEstimateZeroDenominators(t *testing.T) {
	if got := Estimate(50000, 0, 1.0, 40, 100); got != 0 {
		t.Fatalf("zero tvl must yield 0, got %v", got)
	}
	if got := Estimate(50000, 1000000, 0, 40, 100); got != 0 {
		t.Fatalf("zero price must yield 0, got %v", got)
	}
	if got := Estimate(50000, 1000000, 1.0, 40, 0); got != 0 {
		t.Fatalf("zero total weight must yield 0, got %v", got)
	}
}
