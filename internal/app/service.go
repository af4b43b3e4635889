// Package service orchestrates submissions and rank lookups over the
// authoritative store, the histogram store and the deduplication guard.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/worthrank/internal/adapters/cache"
	eventqueue "github.com/okian/worthrank/internal/adapters/mq/queue"
	workerpool "github.com/okian/worthrank/internal/adapters/mq/worker"
	"github.com/okian/worthrank/internal/adapters/repository"
	"github.com/okian/worthrank/internal/domain/dedupe"
	"github.com/okian/worthrank/internal/domain/histogram"
	"github.com/okian/worthrank/internal/domain/model"
	"github.com/okian/worthrank/internal/domain/ranking"
	"github.com/okian/worthrank/pkg/logger"
	"github.com/okian/worthrank/pkg/metrics"
)

// Default windows, matching the write and read endpoints.
const (
	DefaultSubmitWindow = 10 * time.Minute
	DefaultRankWindow   = time.Minute
)

// foldTimeout bounds one asynchronous histogram increment.
const foldTimeout = 2 * time.Second

// Messages attached to guarded responses.
const (
	MessageFastDuplicate    = "duplicate request, returning cached ranking"
	MessageDurableDuplicate = "same client cannot resubmit within 10 minutes"
)

// SubmitInput is a new evaluation.
type SubmitInput struct {
	FormData  json.RawMessage
	Score     float64
	ClientKey string
}

// SubmitResult is the outcome of Submit. ID is empty on a fast-layer hit and
// holds the prior submission on a durable-layer hit.
type SubmitResult struct {
	ID        string
	Score     float64
	Rank      model.RankResult
	FromCache bool
	Layer     dedupe.Layer
	Message   string
}

// RankInput is a read-only rank lookup.
type RankInput struct {
	Score     float64
	ClientKey string
}

// RankOnlyResult is the outcome of RankOnly.
type RankOnlyResult struct {
	Rank      model.RankResult
	FromCache bool
	Message   string
}

// EvaluationResult is a stored evaluation with its current rank.
type EvaluationResult struct {
	Sample model.ScoreSample
	Rank   model.RankResult
}

// Statistics combines both statistics backends.
type Statistics struct {
	Store        model.StoreSummary `json:"store"`
	Distribution model.Distribution `json:"distribution"`
}

// Service implements the API dependencies for the ranking system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	histogram *histogram.Store
	recency   dedupe.RecencyCache
	guard     *dedupe.Guard
	foldQueue *eventqueue.InMemoryQueue
	pool      *workerpool.Pool

	// Configuration
	submitBackend       model.Backend
	rankBackend         model.Backend
	lookupBackend       model.Backend
	histogramMinSamples int64
	storeMinSamples     int64
	submitWindow        time.Duration
	rankWindow          time.Duration
	durableWindow       time.Duration
	submitDurable       bool
	rankDurable         bool
	foldAsync           bool
	foldQueueSize       int
	foldWorkers         int
	reconcileInterval   time.Duration
	now                 func() time.Time

	// State
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		submitBackend:       model.BackendHistogram,
		rankBackend:         model.BackendStore,
		lookupBackend:       model.BackendHistogram,
		histogramMinSamples: ranking.DefaultHistogramMinSamples,
		storeMinSamples:     ranking.DefaultStoreMinSamples,
		submitWindow:        DefaultSubmitWindow,
		rankWindow:          DefaultRankWindow,
		durableWindow:       dedupe.DefaultDurableWindow,
		submitDurable:       true,
		rankDurable:         true,
		foldQueueSize:       10000,
		foldWorkers:         2,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start fills in missing components with in-memory defaults and starts the
// background fold workers and reconciliation loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	if s.store == nil {
		s.store = repository.NewTreapStore(ctx)
		s.logger.Info(ctx, "using in-memory treap store")
	}
	if s.histogram == nil {
		s.histogram = histogram.New(cache.NewMemoryHistogram(), histogram.WithLogger(s.logger))
		s.logger.Info(ctx, "using in-memory histogram")
	}
	if s.recency == nil {
		s.recency = dedupe.NewRecencyCache(
			dedupe.WithSweepWindow(s.submitWindow),
			dedupe.WithClock(s.now),
		)
	}
	s.guard = dedupe.NewGuard(s.recency, s.store,
		dedupe.WithDurableWindow(s.durableWindow),
		dedupe.WithGuardClock(s.now),
		dedupe.WithGuardLogger(s.logger),
	)

	if s.foldAsync {
		s.foldQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.foldQueueSize))
		s.pool = workerpool.NewPool(s.foldWorkers, s.foldQueue, s.histogram,
			workerpool.WithLogger(s.logger), workerpool.WithFoldTimeout(foldTimeout))
		s.pool.Start(context.WithoutCancel(ctx))
	}

	s.stopCh = make(chan struct{})
	if s.reconcileInterval > 0 {
		s.wg.Add(1)
		go s.reconcileLoop(ctx)
	}

	s.started = true
	s.logger.Info(ctx, "ranking service started",
		logger.String("submit_backend", string(s.submitBackend)),
		logger.String("rank_backend", string(s.rankBackend)),
		logger.String("lookup_backend", string(s.lookupBackend)),
		logger.Bool("fold_async", s.foldAsync),
		logger.Duration("reconcile_interval", s.reconcileInterval),
	)
	return nil
}

// Stop drains the fold queue, stops background loops and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping ranking service...")

	close(s.stopCh)
	s.wg.Wait()

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "fold pool shutdown incomplete", logger.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "error closing store", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "ranking service stopped")
}

// Started reports whether Start has completed.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Submit runs CHECK_FAST_DUP, CHECK_DURABLE_DUP, WRITE, COMPUTE_RANK.
// A guard hit skips WRITE and reports FromCache.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	if !s.Started() {
		return SubmitResult{}, ErrNotStarted
	}
	if !ranking.ValidScore(in.Score) {
		return SubmitResult{}, fmt.Errorf("%w: score must be a valid number", ErrValidation)
	}
	if isEmptyJSON(in.FormData) {
		return SubmitResult{}, fmt.Errorf("%w: formData is required", ErrValidation)
	}

	verdict := s.guard.Check(ctx, dedupe.Request{
		ClientKey:  in.ClientKey,
		Score:      in.Score,
		FastWindow: s.submitWindow,
		Durable:    s.submitDurable,
	})
	if verdict.Duplicate {
		s.logger.Debug(ctx, "duplicate submission short-circuited",
			logger.String("client", in.ClientKey),
			logger.String("layer", string(verdict.Layer)),
		)
		res := SubmitResult{
			ID:        verdict.PriorID,
			Score:     in.Score,
			Rank:      s.computeRank(ctx, s.submitBackend, in.Score),
			FromCache: true,
			Layer:     verdict.Layer,
			Message:   MessageFastDuplicate,
		}
		if verdict.Layer == dedupe.LayerDurable {
			res.Message = MessageDurableDuplicate
		}
		return res, nil
	}

	sample := model.ScoreSample{
		Score:     in.Score,
		ClientKey: in.ClientKey,
		FormData:  in.FormData,
	}
	id, err := s.store.Insert(ctx, sample)
	if err != nil {
		metrics.RecordErrorByComponent("service", "persistence")
		return SubmitResult{}, fmt.Errorf("persist evaluation: %w", err)
	}
	sample.ID = id
	metrics.RecordSubmission()
	s.guard.Remember(ctx, in.ClientKey, in.Score)

	s.fold(ctx, sample)

	return SubmitResult{
		ID:    id,
		Score: in.Score,
		Rank:  s.computeRank(ctx, s.submitBackend, in.Score),
	}, nil
}

// RankOnly answers where score ranks without mutating anything.
func (s *Service) RankOnly(ctx context.Context, in RankInput) (RankOnlyResult, error) {
	if !s.Started() {
		return RankOnlyResult{}, ErrNotStarted
	}
	if !ranking.ValidScore(in.Score) {
		return RankOnlyResult{}, fmt.Errorf("%w: score must be a valid number", ErrValidation)
	}

	verdict := s.guard.Check(ctx, dedupe.Request{
		ClientKey:  in.ClientKey,
		Score:      in.Score,
		FastWindow: s.rankWindow,
		Durable:    s.rankDurable,
	})

	res := RankOnlyResult{
		Rank:      s.computeRank(ctx, s.rankBackend, in.Score),
		FromCache: verdict.Duplicate,
	}
	switch verdict.Layer {
	case dedupe.LayerFast:
		res.Message = MessageFastDuplicate
	case dedupe.LayerDurable:
		res.Message = MessageDurableDuplicate
	}
	return res, nil
}

// Evaluation fetches a stored evaluation and ranks its score.
func (s *Service) Evaluation(ctx context.Context, id string) (EvaluationResult, error) {
	if !s.Started() {
		return EvaluationResult{}, ErrNotStarted
	}
	if id == "" {
		return EvaluationResult{}, fmt.Errorf("%w: id is required", ErrValidation)
	}
	sample, err := s.store.FetchByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return EvaluationResult{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("fetch evaluation: %w", err)
	}
	return EvaluationResult{
		Sample: sample,
		Rank:   s.computeRank(ctx, s.lookupBackend, sample.Score),
	}, nil
}

// Statistics returns the store summary and the histogram distribution.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	if !s.Started() {
		return Statistics{}, ErrNotStarted
	}
	summary, err := s.store.Summary(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("store summary: %w", err)
	}
	return Statistics{
		Store:        summary,
		Distribution: s.histogram.Distribution(ctx),
	}, nil
}

// RebuildHistogram replays the authoritative store into the histogram.
func (s *Service) RebuildHistogram(ctx context.Context) (histogram.RebuildReport, error) {
	if !s.Started() {
		return histogram.RebuildReport{}, ErrNotStarted
	}
	return s.rebuild(ctx)
}

// rebuild runs without the started check; Stop holds the lock while the
// reconcile loop drains.
func (s *Service) rebuild(ctx context.Context) (histogram.RebuildReport, error) {
	report, err := s.histogram.Rebuild(ctx, repository.ScanScores(s.store))
	if err != nil {
		metrics.RecordErrorByComponent("service", "rebuild")
		return histogram.RebuildReport{}, fmt.Errorf("rebuild histogram: %w", err)
	}
	return report, nil
}

// RecencySize returns the number of fast-layer entries.
func (s *Service) RecencySize() int64 {
	if s.recency == nil {
		return 0
	}
	return s.recency.Size()
}

// fold applies the histogram increment, asynchronously when configured.
// A failure leaves the sample persisted and the histogram lagging.
func (s *Service) fold(ctx context.Context, sample model.ScoreSample) {
	if s.foldQueue != nil {
		if s.foldQueue.Enqueue(ctx, sample) {
			return
		}
		s.logger.Warn(ctx, "fold queue rejected sample, folding synchronously", logger.String("id", sample.ID))
	}
	if err := s.histogram.Increment(ctx, sample.Score); err != nil {
		s.logger.Error(ctx, "histogram increment failed, sample persisted",
			logger.String("id", sample.ID),
			logger.Error(err),
		)
	}
}

// computeRank runs COMPUTE_RANK against backend. Backend failures degrade to
// the zero result with ranking hidden.
func (s *Service) computeRank(ctx context.Context, backend model.Backend, score float64) model.RankResult {
	var (
		p          model.Percentile
		minSamples int64
	)
	switch backend {
	case model.BackendStore:
		p = s.storePercentile(ctx, score)
		minSamples = s.storeMinSamples
	default:
		backend = model.BackendHistogram
		p = s.histogram.PercentileOf(ctx, score)
		minSamples = s.histogramMinSamples
	}

	metrics.RecordRankComputation(string(backend))
	if !p.OK {
		metrics.RecordDegraded(string(backend))
	}
	return ranking.Result(p, backend, minSamples)
}

// storePercentile issues three separate count queries; they may observe
// different snapshots under concurrent inserts.
func (s *Service) storePercentile(ctx context.Context, score float64) model.Percentile {
	total, err := s.store.CountTotal(ctx)
	if err != nil {
		s.logger.Error(ctx, "store percentile degraded", logger.Error(err))
		return ranking.Degraded()
	}
	below, err := s.store.CountBelow(ctx, score)
	if err != nil {
		s.logger.Error(ctx, "store percentile degraded", logger.Error(err))
		return ranking.Degraded()
	}
	above, err := s.store.CountAbove(ctx, score)
	if err != nil {
		s.logger.Error(ctx, "store percentile degraded", logger.Error(err))
		return ranking.Degraded()
	}
	return ranking.Compute(below, above, total)
}

func (s *Service) reconcileLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.rebuild(ctx); err != nil {
				s.logger.Error(ctx, "periodic histogram rebuild failed", logger.Error(err))
			}
		}
	}
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// FoldBacklog returns the number of histogram increments still queued and
// the queue capacity. Both are zero when folds are synchronous.
func (s *Service) FoldBacklog(ctx context.Context) (queued, capacity int) {
	if s.foldQueue == nil {
		return 0, 0
	}
	return s.foldQueue.Len(ctx), s.foldQueue.Capacity()
}
