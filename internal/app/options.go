package service

import (
	"time"

	"github.com/okian/worthrank/internal/adapters/repository"
	"github.com/okian/worthrank/internal/domain/dedupe"
	"github.com/okian/worthrank/internal/domain/histogram"
	"github.com/okian/worthrank/internal/domain/model"
	"github.com/okian/worthrank/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the authoritative store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithHistogram sets the histogram store.
func WithHistogram(h *histogram.Store) Option {
	return func(s *Service) {
		if h != nil {
			s.histogram = h
		}
	}
}

// WithRecencyCache sets the fast-layer recency cache.
func WithRecencyCache(c dedupe.RecencyCache) Option {
	return func(s *Service) {
		if c != nil {
			s.recency = c
		}
	}
}

// WithBackends sets the statistics backend trusted by submit, rank-only and lookup.
func WithBackends(submit, rank, lookup model.Backend) Option {
	return func(s *Service) {
		if submit.Valid() {
			s.submitBackend = submit
		}
		if rank.Valid() {
			s.rankBackend = rank
		}
		if lookup.Valid() {
			s.lookupBackend = lookup
		}
	}
}

// WithMinSamples sets the showRanking thresholds per backend.
func WithMinSamples(histogramMin, storeMin int64) Option {
	return func(s *Service) {
		if histogramMin >= 0 {
			s.histogramMinSamples = histogramMin
		}
		if storeMin >= 0 {
			s.storeMinSamples = storeMin
		}
	}
}

// WithWindows sets the fast-layer windows for submit and rank-only.
func WithWindows(submit, rank time.Duration) Option {
	return func(s *Service) {
		if submit > 0 {
			s.submitWindow = submit
		}
		if rank > 0 {
			s.rankWindow = rank
		}
	}
}

// WithDurableWindow sets the durable-layer trailing window.
func WithDurableWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.durableWindow = d
		}
	}
}

// WithDurableChecks toggles the durable layer per endpoint.
func WithDurableChecks(submit, rank bool) Option {
	return func(s *Service) {
		s.submitDurable = submit
		s.rankDurable = rank
	}
}

// WithAsyncFold routes histogram increments through a bounded queue and worker pool.
func WithAsyncFold(queueSize, workers int) Option {
	return func(s *Service) {
		s.foldAsync = true
		if queueSize > 0 {
			s.foldQueueSize = queueSize
		}
		if workers > 0 {
			s.foldWorkers = workers
		}
	}
}

// WithReconcileInterval schedules periodic histogram rebuilds. Zero disables them.
func WithReconcileInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.reconcileInterval = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source of the default recency cache and the
// durable layer.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
