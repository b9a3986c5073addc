package analyzer

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pegwatch/internal/store"
)

func newFixture(t *testing.T, prices []string) (*Analyzer, *store.Store) {
	t.Helper()
	st := store.New([]string{"USDT"}, store.Options{MaxSamples: 1000})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, price := range prices {
		err := st.Append(store.Sample{
			Asset:      "USDT",
			Price:      decimal.RequireFromString(price),
			ObservedAt: base.Add(time.Duration(i) * 5 * time.Minute),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	a := New(Options{
		Window:              96,
		StddevMultiplier:    3.0,
		AnomalyThresholdPct: 2.0,
	}, st, map[string]decimal.Decimal{"USDT": decimal.NewFromInt(1)}, zerolog.Nop())
	return a, st
}

func TestEvaluateEmptySeries(t *testing.T) {
	a, _ := newFixture(t, nil)
	verdict := a.Evaluate("USDT")
	if verdict.Anomalous {
		t.Fatal("empty series must not be anomalous")
	}
	if verdict.WindowSize != 0 {
		t.Fatalf("expected empty window, got %d", verdict.WindowSize)
	}
}

func TestEvaluateSingleSampleNotAnomalous(t *testing.T) {
	// Even a hard breach stays unflagged with insufficient history.
	a, _ := newFixture(t, []string{"0.90"})
	verdict := a.Evaluate("USDT")
	if verdict.Anomalous {
		t.Fatal("single sample must not be anomalous")
	}
	if verdict.DeviationPct.Round(1).String() != "-10" {
		t.Fatalf("expected deviation -10, got %s", verdict.DeviationPct)
	}
}

func TestEvaluatePegBreach(t *testing.T) {
	a, _ := newFixture(t, []string{"1.00", "1.00", "1.00", "1.00", "0.95"})
	verdict := a.Evaluate("USDT")

	if !verdict.Anomalous {
		t.Fatal("5% depeg must be anomalous")
	}
	if got := verdict.DeviationPct.InexactFloat64(); math.Abs(got+5.0) > 1e-9 {
		t.Fatalf("expected deviation -5.0, got %f", got)
	}
}

func TestEvaluateTightBandStable(t *testing.T) {
	prices := []string{"1.001", "0.999", "1.000", "1.002"}
	for i := range prices {
		a, _ := newFixture(t, prices[:i+1])
		if verdict := a.Evaluate("USDT"); verdict.Anomalous {
			t.Fatalf("point %d within 0.2%% of peg flagged anomalous", i)
		}
	}
}

func TestEvaluateStatisticalOutlier(t *testing.T) {
	// Within the 2% hard band but far outside the rolling baseline.
	prices := make([]string, 0, 12)
	for i := 0; i < 11; i++ {
		prices = append(prices, "1.0000")
	}
	prices = append(prices, "1.015")
	a, _ := newFixture(t, prices)
	verdict := a.Evaluate("USDT")
	if !verdict.Anomalous {
		t.Fatal("statistical outlier should be flagged without a hard breach")
	}
	if verdict.DeviationPct.Abs().GreaterThan(decimal.NewFromInt(2)) {
		t.Fatalf("test premise broken: deviation %s exceeds hard threshold", verdict.DeviationPct)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	a, _ := newFixture(t, []string{"1.00", "0.99", "1.01"})
	first := a.Evaluate("USDT")
	second := a.Evaluate("USDT")
	if first.Anomalous != second.Anomalous || !first.DeviationPct.Equal(second.DeviationPct) {
		t.Fatal("evaluate must be deterministic for unchanged series")
	}
}

func TestEvaluateSeriesFlags(t *testing.T) {
	a, _ := newFixture(t, nil)
	prices := []decimal.Decimal{
		decimal.RequireFromString("1.00"),
		decimal.RequireFromString("0.95"),
		decimal.RequireFromString("1.001"),
	}
	flags := a.EvaluateSeries("USDT", prices)
	if flags[0] || flags[2] {
		t.Fatal("near-peg prices must not be flagged")
	}
	if !flags[1] {
		t.Fatal("5% depeg must be flagged")
	}
}

func TestVerdictCarriesTimestamps(t *testing.T) {
	a, st := newFixture(t, []string{"1.00", "1.00"})
	latest, _ := st.Latest("USDT")

	verdict := a.Evaluate("USDT")
	if !verdict.ObservedAt.Equal(latest.ObservedAt) {
		t.Fatalf("verdict ObservedAt %s should match newest sample %s", verdict.ObservedAt, latest.ObservedAt)
	}
	if verdict.ComputedAt.IsZero() {
		t.Fatal("verdict must carry a computation timestamp")
	}
}
