package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func sampleAt(asset string, ts time.Time, price string) Sample {
	return Sample{
		Asset:      asset,
		Price:      decimal.RequireFromString(price),
		ObservedAt: ts,
	}
}

func TestAppendKeepsTimeOrder(t *testing.T) {
	s := New([]string{"USDT"}, Options{MaxSamples: 100})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Deliberately out of order; Tail must still come back sorted.
	for _, offset := range []int{2, 0, 3, 1} {
		if err := s.Append(sampleAt("USDT", base.Add(time.Duration(offset)*time.Minute), "1.00")); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	tail := s.Tail("USDT", 10)
	if len(tail) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(tail))
	}
	for i := 1; i < len(tail); i++ {
		if !tail[i-1].ObservedAt.Before(tail[i].ObservedAt) {
			t.Fatalf("tail not strictly increasing at index %d", i)
		}
	}
}

func TestAppendDuplicateRejected(t *testing.T) {
	s := New([]string{"USDC"}, Options{MaxSamples: 10})
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Append(sampleAt("USDC", ts, "1.00")); err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	if err := s.Append(sampleAt("USDC", ts, "0.99")); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if got := s.Len("USDC"); got != 1 {
		t.Fatalf("expected exactly one stored sample, got %d", got)
	}
}

func TestAppendUnknownAsset(t *testing.T) {
	s := New([]string{"USDT"}, Options{MaxSamples: 10})
	err := s.Append(sampleAt("SHIB", time.Now(), "0.00001"))
	if err != ErrUnknownAsset {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestEvictionByCount(t *testing.T) {
	s := New([]string{"DAI"}, Options{MaxSamples: 3})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := s.Append(sampleAt("DAI", base.Add(time.Duration(i)*time.Minute), "1.00")); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	tail := s.Tail("DAI", 10)
	if len(tail) != 3 {
		t.Fatalf("expected 3 retained samples, got %d", len(tail))
	}
	if !tail[0].ObservedAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("oldest retained sample should be t+2m, got %s", tail[0].ObservedAt)
	}
	if !tail[2].ObservedAt.Equal(base.Add(4 * time.Minute)) {
		t.Fatalf("newest retained sample should be t+4m, got %s", tail[2].ObservedAt)
	}
}

func TestEvictionByAge(t *testing.T) {
	s := New([]string{"DAI"}, Options{MaxSamples: 100, MaxAge: 15 * time.Minute})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Append(sampleAt("DAI", base, "1.00"))
	s.Append(sampleAt("DAI", base.Add(5*time.Minute), "1.00"))
	s.Append(sampleAt("DAI", base.Add(20*time.Minute), "1.00"))

	// Newest is t+20m, so the 15m window keeps t+5m and drops t+0.
	tail := s.Tail("DAI", 10)
	if len(tail) != 2 {
		t.Fatalf("expected the oldest sample aged out, got %d samples", len(tail))
	}
	if !tail[0].ObservedAt.Equal(base.Add(5 * time.Minute)) {
		t.Fatalf("unexpected oldest sample %s", tail[0].ObservedAt)
	}
}

func TestTailUnknownAssetEmpty(t *testing.T) {
	s := New([]string{"USDT"}, Options{MaxSamples: 10})
	if tail := s.Tail("FRAX", 5); len(tail) != 0 {
		t.Fatalf("expected empty tail for unknown asset, got %d", len(tail))
	}
	if tail := s.Tail("USDT", 5); len(tail) != 0 {
		t.Fatalf("expected empty tail for empty series, got %d", len(tail))
	}
}

func TestLatest(t *testing.T) {
	s := New([]string{"USDT"}, Options{MaxSamples: 10})
	if _, ok := s.Latest("USDT"); ok {
		t.Fatal("empty series should report no latest sample")
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Append(sampleAt("USDT", base, "1.00"))
	s.Append(sampleAt("USDT", base.Add(time.Minute), "0.99"))

	latest, ok := s.Latest("USDT")
	if !ok {
		t.Fatal("expected a latest sample")
	}
	if latest.Price.String() != "0.99" {
		t.Fatalf("expected newest price 0.99, got %s", latest.Price)
	}
}

func TestTailCopyIsolation(t *testing.T) {
	s := New([]string{"USDT"}, Options{MaxSamples: 10})
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	supply := decimal.NewFromInt(1000)
	s.Append(Sample{Asset: "USDT", Price: decimal.NewFromInt(1), Supply: &supply, ObservedAt: ts})

	tail := s.Tail("USDT", 1)
	*tail[0].Supply = decimal.NewFromInt(5)

	again := s.Tail("USDT", 1)
	if !again[0].Supply.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("stored sample mutated through Tail result: %s", again[0].Supply)
	}
}
