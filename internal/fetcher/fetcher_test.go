package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pegwatch/internal/config"
)

type stubPrice struct {
	point PricePoint
	err   error
}

func (s *stubPrice) FetchPrice(ctx context.Context, id string) (PricePoint, error) {
	return s.point, s.err
}

type stubSupply struct {
	stats ChainStats
	err   error
}

func (s *stubSupply) FetchChainStats(ctx context.Context, asset config.Asset) (ChainStats, error) {
	return s.stats, s.err
}

type stubTVL struct {
	tvl decimal.Decimal
	err error
}

func (s *stubTVL) FetchChainTVL(ctx context.Context) (decimal.Decimal, error) {
	return s.tvl, s.err
}

func TestFetchMergesAllProviders(t *testing.T) {
	supply := decimal.NewFromInt(1000)
	holders := int64(42)
	f := New(
		&stubPrice{point: PricePoint{Price: decimal.NewFromFloat(0.999)}},
		&stubSupply{stats: ChainStats{Supply: &supply, Holders: &holders}},
		&stubTVL{tvl: decimal.NewFromInt(7)},
		noopLogger(),
	)

	observed := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	sample, err := f.Fetch(context.Background(), testAsset, observed)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if sample.Asset != "USDT" {
		t.Fatalf("asset symbol lost: %q", sample.Asset)
	}
	if !sample.ObservedAt.Equal(observed) {
		t.Fatalf("observation timestamp rewritten: %s", sample.ObservedAt)
	}
	if sample.Supply == nil || sample.Holders == nil || sample.TVL == nil {
		t.Fatal("optional fields must be populated when providers succeed")
	}
}

func TestFetchPriceFailureFailsSample(t *testing.T) {
	f := New(&stubPrice{err: permanentError(errors.New("boom"))}, nil, nil, noopLogger())
	if _, err := f.Fetch(context.Background(), testAsset, time.Now()); err == nil {
		t.Fatal("price failure must fail the fetch")
	}
}

func TestFetchPartialFailureLeavesOptionalsNil(t *testing.T) {
	f := New(
		&stubPrice{point: PricePoint{Price: decimal.NewFromInt(1)}},
		&stubSupply{err: transportError(errors.New("etherscan down"))},
		&stubTVL{err: transportError(errors.New("llama down"))},
		noopLogger(),
	)

	sample, err := f.Fetch(context.Background(), testAsset, time.Now())
	if err != nil {
		t.Fatalf("partial provider failure must not fail the fetch: %v", err)
	}
	if sample.Supply != nil || sample.Holders != nil || sample.TVL != nil {
		t.Fatal("failed optional lookups must stay nil")
	}
	if !sample.Price.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("price lost: %s", sample.Price)
	}
}

func TestFetchWithoutOptionalProviders(t *testing.T) {
	f := New(&stubPrice{point: PricePoint{Price: decimal.NewFromInt(1)}}, nil, nil, noopLogger())
	sample, err := f.Fetch(context.Background(), testAsset, time.Now())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if sample.Supply != nil || sample.TVL != nil {
		t.Fatal("disabled providers must leave optional fields nil")
	}
}
