package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pegwatch/internal/analyzer"
	"pegwatch/internal/config"
	"pegwatch/internal/service"
	"pegwatch/internal/store"
)

// SimulateAlert feeds a synthetic price through the full evaluate-alert path
// so operators can verify notification wiring without waiting for a depeg.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	asset, ok := a.Config.AssetBySymbol(opts.Asset)
	if !ok {
		return fmt.Errorf("unknown asset %q", opts.Asset)
	}

	// Scope the cycle to the simulated asset only.
	cfg := *a.Config
	cfg.Assets = []config.Asset{asset}

	st := store.New([]string{asset.Symbol}, store.Options{
		MaxSamples: a.Config.Retention.MaxSamples,
		MaxAge:     a.Config.Retention.MaxAge,
	})

	// Seed a small at-peg baseline; the analyzer never flags a lone sample.
	tick := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	peg := decimal.NewFromFloat(asset.Peg)
	for i := 3; i >= 1; i-- {
		seed := store.Sample{
			Asset:      asset.Symbol,
			Price:      peg,
			ObservedAt: tick.Add(-time.Duration(i) * a.Config.Scheduler.Interval),
		}
		if err := st.Append(seed); err != nil {
			return err
		}
	}

	eval := analyzer.New(analyzer.Options{
		Window:              a.Config.Analyzer.Window,
		StddevMultiplier:    a.Config.Analyzer.StddevMultiplier,
		AnomalyThresholdPct: a.Config.Analyzer.AnomalyThresholdPct,
	}, st, map[string]decimal.Decimal{asset.Symbol: peg}, a.Logger)

	static := &staticFetcher{price: decimal.NewFromFloat(opts.Price)}
	svc := service.New(&cfg, nil, static, st, eval, notifier, a.Logger)

	a.Logger.Info().
		Str("asset", asset.Symbol).
		Float64("price", opts.Price).
		Msg("simulating alert cycle")

	return svc.ProcessCycle(ctx, tick)
}

type staticFetcher struct {
	price decimal.Decimal
}

func (s *staticFetcher) Fetch(ctx context.Context, asset config.Asset, observedAt time.Time) (store.Sample, error) {
	return store.Sample{
		Asset:      asset.Symbol,
		Price:      s.price,
		ObservedAt: observedAt,
	}, nil
}

var _ service.SampleFetcher = (*staticFetcher)(nil)
