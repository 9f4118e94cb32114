package stats

import (
	"testing"
	"time"
)

func dates(n int) []time.Time {
	out := make([]time.Time, n)
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

func TestComputeReturnsNullsWithFewerThanTwoObservations(t *testing.T) {
	m := Compute(dates(1), []float64{100}, []float64{100})
	if m.TotalReturn != nil || m.CAGR != nil || m.Sharpe != nil {
		t.Fatalf("expected all metrics null with a single observation, got %+v", m)
	}
}

func TestComputeTotalReturn(t *testing.T) {
	d := dates(3)
	values := []float64{100, 110, 121}
	m := Compute(d, values, values)

	if m.TotalReturn == nil {
		t.Fatalf("expected non-null total return")
	}
	if abs(*m.TotalReturn-0.21) > 1e-9 {
		t.Fatalf("expected total return 0.21, got %v", *m.TotalReturn)
	}
}

func TestComputeMaxDrawdown(t *testing.T) {
	d := dates(4)
	values := []float64{100, 120, 90, 110}
	m := Compute(d, values, values)

	// peak 120 -> trough 90: (90/120 - 1) = -0.25
	if abs(*m.MaxDrawdown-(-0.25)) > 1e-9 {
		t.Fatalf("expected max drawdown -0.25, got %v", *m.MaxDrawdown)
	}
}

func TestBetaIsPerfectlyCorrelatedWhenSeriesMatch(t *testing.T) {
	d := dates(5)
	values := []float64{100, 102, 101, 105, 103}
	m := Compute(d, values, values)

	if m.Beta == nil {
		t.Fatalf("expected non-null beta")
	}
	if abs(*m.Beta-1) > 1e-6 {
		t.Fatalf("expected beta ~1 when portfolio mirrors benchmark, got %v", *m.Beta)
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
