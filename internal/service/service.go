package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"pegwatch/internal/alerting"
	"pegwatch/internal/analyzer"
	"pegwatch/internal/config"
	"pegwatch/internal/scheduler"
	"pegwatch/internal/store"
)

// SampleFetcher assembles one normalized sample per asset.
type SampleFetcher interface {
	Fetch(ctx context.Context, asset config.Asset, observedAt time.Time) (store.Sample, error)
}

// Evaluator derives a stability verdict from the stored series.
type Evaluator interface {
	Evaluate(asset string) analyzer.Verdict
}

// Service orchestrates scheduled fetch-append-evaluate cycles and publishes
// the latest verdict per asset for read-only consumers.
type Service struct {
	cfg      *config.Config
	sched    *scheduler.Scheduler
	fetcher  SampleFetcher
	store    *store.Store
	eval     Evaluator
	notifier alerting.Notifier
	logger   zerolog.Logger

	workers      int
	fetchTimeout time.Duration
	threshold    decimal.Decimal
	cooldown     time.Duration
	channels     []string
	alertsOn     bool

	mu        sync.RWMutex
	verdicts  map[string]analyzer.Verdict
	lastAlert map[string]time.Time
}

// New constructs the monitoring service.
func New(cfg *config.Config, sched *scheduler.Scheduler, fetcher SampleFetcher, st *store.Store, eval Evaluator, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	workers := cfg.Scheduler.Workers
	if workers <= 0 {
		workers = 1
	}

	fetchTimeout := cfg.Scheduler.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}

	return &Service{
		cfg:          cfg,
		sched:        sched,
		fetcher:      fetcher,
		store:        st,
		eval:         eval,
		notifier:     notifier,
		logger:       logger.With().Str("component", "service").Logger(),
		workers:      workers,
		fetchTimeout: fetchTimeout,
		threshold:    decimal.NewFromFloat(cfg.Analyzer.AnomalyThresholdPct),
		cooldown:     cfg.Alerting.Cooldown,
		channels:     cfg.Alerting.Channels,
		alertsOn:     cfg.Alerting.Enabled,
		verdicts:     make(map[string]analyzer.Verdict, len(cfg.Assets)),
		lastAlert:    make(map[string]time.Time, len(cfg.Assets)),
	}
}

// Run begins the periodic sampling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.sched.Run(ctx, s.ProcessCycle)
}

// ProcessCycle runs one fetch-evaluate pass over every configured asset.
// Assets are independent: each unit runs in a bounded worker pool and a
// failing asset only skips its own slot, leaving the prior verdict visible.
func (s *Service) ProcessCycle(ctx context.Context, tick time.Time) error {
	var group errgroup.Group
	group.SetLimit(s.workers)

	for _, asset := range s.cfg.Assets {
		asset := asset
		group.Go(func() error {
			s.processAsset(ctx, asset, tick)
			return nil
		})
	}

	_ = group.Wait()
	return ctx.Err()
}

func (s *Service) processAsset(ctx context.Context, asset config.Asset, tick time.Time) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	sample, err := s.fetcher.Fetch(ctx, asset, tick)
	if err != nil {
		// Stale-but-available: the previous sample and verdict stay published.
		s.logger.Error().Err(err).Str("asset", asset.Symbol).Time("tick", tick).
			Msg("fetch failed, keeping last good data")
		return
	}

	if err := s.store.Append(sample); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			s.logger.Debug().Str("asset", asset.Symbol).Time("tick", tick).
				Msg("sample already recorded for this tick")
		} else {
			s.logger.Error().Err(err).Str("asset", asset.Symbol).Msg("failed to append sample")
			return
		}
	}

	verdict := s.eval.Evaluate(asset.Symbol)
	s.publish(verdict)

	s.logger.Info().Str("asset", asset.Symbol).Time("tick", tick).
		Str("price", verdict.Price.String()).
		Str("deviation_pct", verdict.DeviationPct.StringFixed(4)).
		Bool("anomalous", verdict.Anomalous).
		Msg("sample recorded")

	s.maybeAlert(ctx, sample, verdict)
}

func (s *Service) publish(verdict analyzer.Verdict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdicts[verdict.Asset] = verdict
}

// Verdict returns the most recently published verdict for asset.
func (s *Service) Verdict(asset string) (analyzer.Verdict, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	verdict, ok := s.verdicts[asset]
	return verdict, ok
}

// Verdicts lists published verdicts sorted by asset symbol.
func (s *Service) Verdicts() []analyzer.Verdict {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]analyzer.Verdict, 0, len(s.verdicts))
	for _, verdict := range s.verdicts {
		out = append(out, verdict)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

func (s *Service) maybeAlert(ctx context.Context, sample store.Sample, verdict analyzer.Verdict) {
	if !s.alertsOn || s.notifier == nil || !verdict.Anomalous {
		return
	}
	if !s.takeAlertSlot(verdict.Asset, verdict.ComputedAt) {
		s.logger.Debug().Str("asset", verdict.Asset).Msg("alert suppressed by cooldown")
		return
	}

	note := alerting.Notification{
		Asset:        verdict.Asset,
		Price:        verdict.Price,
		DeviationPct: verdict.DeviationPct,
		ThresholdPct: s.threshold,
		Supply:       sample.Supply,
		Holders:      sample.Holders,
		ObservedAt:   verdict.ObservedAt,
		Channels:     s.channels,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("asset", verdict.Asset).Msg("failed to dispatch alert")
	}
}

// takeAlertSlot reserves the alert window for asset, enforcing the cooldown.
func (s *Service) takeAlertSlot(asset string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.lastAlert[asset]; ok && s.cooldown > 0 && now.Sub(last) < s.cooldown {
		return false
	}
	s.lastAlert[asset] = now
	return true
}
