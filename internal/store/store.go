package store

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrDuplicate indicates a sample with the same (asset, observed_at)
	// pair already exists. Re-fetches hitting this are benign.
	ErrDuplicate = errors.New("store: duplicate sample")
	// ErrUnknownAsset indicates the asset is not tracked by this store.
	ErrUnknownAsset = errors.New("store: unknown asset")
)

// Options bound the per-asset retention window.
type Options struct {
	MaxSamples int
	MaxAge     time.Duration
}

// Store holds bounded, time-ordered sample series for a fixed set of assets.
// Appends come from scheduler-driven writers, reads from the presentation
// side; both are safe for concurrent use. Stored samples are never updated,
// corrections arrive as new samples.
type Store struct {
	mu     sync.RWMutex
	opts   Options
	series map[string][]Sample
}

// New constructs a Store tracking the given asset symbols.
func New(assets []string, opts Options) *Store {
	series := make(map[string][]Sample, len(assets))
	for _, asset := range assets {
		series[asset] = nil
	}
	return &Store{opts: opts, series: series}
}

// Append inserts a sample in time order and evicts entries beyond retention.
func (s *Store) Append(sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, tracked := s.series[sample.Asset]
	if !tracked {
		return ErrUnknownAsset
	}

	idx := sort.Search(len(series), func(i int) bool {
		return !series[i].ObservedAt.Before(sample.ObservedAt)
	})
	if idx < len(series) && series[idx].ObservedAt.Equal(sample.ObservedAt) {
		return ErrDuplicate
	}

	series = append(series, Sample{})
	copy(series[idx+1:], series[idx:])
	series[idx] = sample.Clone()

	s.series[sample.Asset] = s.evict(series)
	return nil
}

// Tail returns up to n most recent samples oldest-first. Unknown assets and
// empty series yield an empty slice.
func (s *Store) Tail(asset string, n int) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.series[asset]
	if n <= 0 || len(series) == 0 {
		return nil
	}
	if n > len(series) {
		n = len(series)
	}

	out := make([]Sample, 0, n)
	for _, sample := range series[len(series)-n:] {
		out = append(out, sample.Clone())
	}
	return out
}

// Latest returns the newest sample for asset.
func (s *Store) Latest(asset string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.series[asset]
	if len(series) == 0 {
		return Sample{}, false
	}
	return series[len(series)-1].Clone(), true
}

// Len reports the number of stored samples for asset.
func (s *Store) Len(asset string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[asset])
}

// Assets lists tracked asset symbols in sorted order.
func (s *Store) Assets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.series))
	for asset := range s.series {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out
}

// evict drops the oldest entries beyond the count bound, then everything
// older than the age bound relative to the newest sample. Caller holds mu.
func (s *Store) evict(series []Sample) []Sample {
	if s.opts.MaxSamples > 0 && len(series) > s.opts.MaxSamples {
		series = series[len(series)-s.opts.MaxSamples:]
	}
	if s.opts.MaxAge > 0 && len(series) > 0 {
		cutoff := series[len(series)-1].ObservedAt.Add(-s.opts.MaxAge)
		idx := sort.Search(len(series), func(i int) bool {
			return !series[i].ObservedAt.Before(cutoff)
		})
		series = series[idx:]
	}
	return series
}
