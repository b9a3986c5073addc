package analyzer

import (
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pegwatch/internal/store"
)

var dec100 = decimal.NewFromInt(100)

// Verdict is the per-asset stability assessment derived from the sample
// series. It is recomputed every cycle and never stored.
type Verdict struct {
	Asset        string
	Price        decimal.Decimal
	DeviationPct decimal.Decimal
	Anomalous    bool
	Mean         float64
	Stddev       float64
	WindowSize   int
	ObservedAt   time.Time
	ComputedAt   time.Time
}

// Options tune the anomaly checks.
type Options struct {
	// Window is the number of most recent samples feeding the rolling
	// baseline.
	Window int
	// StddevMultiplier widens the statistical band around the rolling mean.
	StddevMultiplier float64
	// AnomalyThresholdPct is the hard peg-breach threshold in percent.
	AnomalyThresholdPct float64
}

// Analyzer evaluates peg stability from the sample store. It only reads the
// store and is deterministic given the same series contents.
type Analyzer struct {
	opts   Options
	store  *store.Store
	pegs   map[string]decimal.Decimal
	logger zerolog.Logger
}

// New constructs an Analyzer. pegs maps asset symbol to its target price.
func New(opts Options, st *store.Store, pegs map[string]decimal.Decimal, logger zerolog.Logger) *Analyzer {
	if opts.Window < 2 {
		opts.Window = 2
	}
	return &Analyzer{
		opts:   opts,
		store:  st,
		pegs:   pegs,
		logger: logger.With().Str("component", "analyzer").Logger(),
	}
}

// Evaluate computes the stability verdict for asset. With no samples the
// verdict carries a zero price and is never anomalous.
func (a *Analyzer) Evaluate(asset string) Verdict {
	now := time.Now().UTC()
	window := a.store.Tail(asset, a.opts.Window)
	if len(window) == 0 {
		return Verdict{Asset: asset, ComputedAt: now}
	}

	latest := window[len(window)-1]
	peg := a.pegFor(asset)
	deviation := latest.Price.Sub(peg).Div(peg).Mul(dec100)

	verdict := Verdict{
		Asset:        asset,
		Price:        latest.Price,
		DeviationPct: deviation,
		WindowSize:   len(window),
		ObservedAt:   latest.ObservedAt,
		ComputedAt:   now,
	}

	mean, stddev, ok := priceBaseline(window)
	verdict.Mean = mean
	verdict.Stddev = stddev

	// A single observation is insufficient history; never flag it.
	if len(window) < 2 {
		return verdict
	}

	breach := deviation.Abs().GreaterThan(decimal.NewFromFloat(a.opts.AnomalyThresholdPct))
	outlier := false
	if ok && stddev > 0 {
		outlier = math.Abs(latest.Price.InexactFloat64()-mean) > a.opts.StddevMultiplier*stddev
	}

	// Either the statistical band or the hard peg breach flags the sample.
	verdict.Anomalous = breach || outlier
	return verdict
}

// EvaluateSeries flags every price in a standalone series against the hard
// threshold, used when charting history that never entered the store.
func (a *Analyzer) EvaluateSeries(asset string, prices []decimal.Decimal) []bool {
	peg := a.pegFor(asset)
	threshold := decimal.NewFromFloat(a.opts.AnomalyThresholdPct)
	flags := make([]bool, len(prices))
	for i, price := range prices {
		deviation := price.Sub(peg).Div(peg).Mul(dec100)
		flags[i] = deviation.Abs().GreaterThan(threshold)
	}
	return flags
}

func (a *Analyzer) pegFor(asset string) decimal.Decimal {
	if peg, ok := a.pegs[asset]; ok && !peg.IsZero() {
		return peg
	}
	return decimal.NewFromInt(1)
}

// priceBaseline returns the sample mean and standard deviation of prices.
// With fewer than 2 samples the deviation is undefined and ok is false.
func priceBaseline(window []store.Sample) (mean, stddev float64, ok bool) {
	if len(window) < 2 {
		if len(window) == 1 {
			return window[0].Price.InexactFloat64(), 0, false
		}
		return 0, 0, false
	}

	var sum float64
	for _, sample := range window {
		sum += sample.Price.InexactFloat64()
	}
	mean = sum / float64(len(window))

	var sq float64
	for _, sample := range window {
		d := sample.Price.InexactFloat64() - mean
		sq += d * d
	}
	stddev = math.Sqrt(sq / float64(len(window)))
	return mean, stddev, true
}
