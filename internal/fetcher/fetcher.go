package fetcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pegwatch/internal/config"
	"pegwatch/internal/store"
)

// PriceProvider retrieves the current market data for one coin.
type PriceProvider interface {
	FetchPrice(ctx context.Context, coingeckoID string) (PricePoint, error)
}

// HistoryProvider retrieves historical prices for charting and export.
type HistoryProvider interface {
	FetchHistory(ctx context.Context, coingeckoID string, days int) ([]HistoryPoint, error)
}

// SupplyProvider retrieves on-chain supply and holder figures.
type SupplyProvider interface {
	FetchChainStats(ctx context.Context, asset config.Asset) (ChainStats, error)
}

// TVLProvider retrieves aggregate chain TVL.
type TVLProvider interface {
	FetchChainTVL(ctx context.Context) (decimal.Decimal, error)
}

// Fetcher assembles one normalized sample per asset from the configured
// providers. Price is mandatory; supply, holders, and TVL are merged
// best-effort so a partial provider outage never fails the whole cycle.
type Fetcher struct {
	price  PriceProvider
	supply SupplyProvider
	tvl    TVLProvider
	logger zerolog.Logger
}

// New constructs a Fetcher. supply and tvl may be nil when disabled.
func New(price PriceProvider, supply SupplyProvider, tvl TVLProvider, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		price:  price,
		supply: supply,
		tvl:    tvl,
		logger: logger.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch collects one sample for asset, stamped with observedAt so repeated
// fetches for the same cycle stay idempotent in the store.
func (f *Fetcher) Fetch(ctx context.Context, asset config.Asset, observedAt time.Time) (store.Sample, error) {
	point, err := f.price.FetchPrice(ctx, asset.CoingeckoID)
	if err != nil {
		return store.Sample{}, err
	}

	sample := store.Sample{
		Asset:      asset.Symbol,
		Price:      point.Price,
		MarketCap:  point.MarketCap,
		Change24h:  point.Change24h,
		ObservedAt: observedAt.UTC(),
	}

	if f.supply != nil {
		stats, err := f.supply.FetchChainStats(ctx, asset)
		if err != nil {
			f.logger.Warn().Err(err).Str("asset", asset.Symbol).
				Str("kind", ErrKind(err).String()).
				Msg("chain stats unavailable, recording partial sample")
		} else {
			sample.Supply = stats.Supply
			sample.Holders = stats.Holders
		}
	}

	if f.tvl != nil {
		tvl, err := f.tvl.FetchChainTVL(ctx)
		if err != nil {
			f.logger.Warn().Err(err).Str("asset", asset.Symbol).Msg("chain tvl unavailable")
		} else {
			sample.TVL = &tvl
		}
	}

	return sample, nil
}
