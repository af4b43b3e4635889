// Package histogram is the approximate, cache-resident score distribution.
//
// Scores are rounded to two decimals and counted per bucket next to a running
// total. Reads never fail: when the backend is unavailable the store logs and
// returns the zero result so ranking degrades to "not shown".
package histogram

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/worthrank/internal/domain/model"
	"github.com/okian/worthrank/internal/domain/ranking"
	"github.com/okian/worthrank/pkg/logger"
	"github.com/okian/worthrank/pkg/metrics"
)

// Backend persists bucket counts and the global total.
type Backend interface {
	// Increment adds one to bucket and to the global total.
	Increment(ctx context.Context, bucket string) error
	// Buckets returns every bucket with its count.
	Buckets(ctx context.Context) (map[string]int64, error)
	// Total returns the global counter.
	Total(ctx context.Context) (int64, error)
	// Replace atomically swaps the whole content.
	Replace(ctx context.Context, buckets map[string]int64, total int64) error
}

// ScanFunc replays every authoritative score through yield.
type ScanFunc func(ctx context.Context, yield func(score float64) error) error

// RebuildReport summarizes a reconciliation run. FoldedDuringScan counts
// increments that landed between the scan and the replace.
type RebuildReport struct {
	PreviousTotal    int64         `json:"previousTotal"`
	Total            int64         `json:"total"`
	Drift            int64         `json:"drift"`
	Buckets          int           `json:"buckets"`
	FoldedDuringScan int64         `json:"foldedDuringScan"`
	Took             time.Duration `json:"took"`
}

// Store wraps a Backend with rounding, percentile math and degradation.
type Store struct {
	backend Backend
	log     logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for degraded reads.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment folds one score into its bucket and the total.
func (s *Store) Increment(ctx context.Context, score float64) error {
	if !ranking.ValidScore(score) {
		return fmt.Errorf("histogram increment: %w", ErrInvalidScore)
	}
	if err := s.backend.Increment(ctx, ranking.BucketKey(score)); err != nil {
		metrics.RecordHistogramIncrementError()
		return fmt.Errorf("histogram increment: %w", err)
	}
	metrics.RecordHistogramIncrement()
	return nil
}

// Distribution returns buckets sorted ascending by numeric score with the
// total and count-weighted average. Backend errors yield the empty distribution.
func (s *Store) Distribution(ctx context.Context) model.Distribution {
	raw, err := s.backend.Buckets(ctx)
	if err != nil {
		s.log.Error(ctx, "histogram distribution unavailable", logger.Error(err))
		return model.Distribution{Buckets: []model.Bucket{}}
	}

	type parsed struct {
		bucket model.Bucket
		value  float64
	}
	entries := make([]parsed, 0, len(raw))
	var total int64
	var weighted float64
	for key, count := range raw {
		v, err := ranking.ParseBucket(key)
		if err != nil {
			s.log.Warn(ctx, "skipping malformed histogram bucket", logger.String("bucket", key))
			continue
		}
		entries = append(entries, parsed{bucket: model.Bucket{Score: key, Count: count}, value: v})
		total += count
		weighted += v * float64(count)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].value < entries[j].value })

	d := model.Distribution{Buckets: make([]model.Bucket, len(entries)), TotalCount: total}
	for i, e := range entries {
		d.Buckets[i] = e.bucket
	}
	if total > 0 {
		d.AverageScore = weighted / float64(total)
	}
	metrics.UpdateHistogramShape(len(d.Buckets), total)
	return d
}

// PercentileOf scans every bucket. score is rounded to its own bucket first,
// so a sample is never counted against itself. Buckets strictly below that
// bucket count as lower, strictly above as higher.
func (s *Store) PercentileOf(ctx context.Context, score float64) model.Percentile {
	raw, err := s.backend.Buckets(ctx)
	if err != nil {
		s.log.Error(ctx, "histogram percentile degraded", logger.Float64("score", score), logger.Error(err))
		return ranking.Degraded()
	}
	q, err := ranking.ParseBucket(ranking.BucketKey(score))
	if err != nil {
		s.log.Error(ctx, "histogram percentile degraded", logger.Float64("score", score), logger.Error(err))
		return ranking.Degraded()
	}

	var lower, higher, total int64
	for key, count := range raw {
		v, err := ranking.ParseBucket(key)
		if err != nil {
			continue
		}
		total += count
		switch {
		case v < q:
			lower += count
		case v > q:
			higher += count
		}
	}
	return ranking.Compute(lower, higher, total)
}

// Rebuild replays every authoritative sample into a fresh bucket map and
// replaces the backend content with it.
//
// Increments folded while the scan runs are overwritten by the replace. Their
// samples are in the store, so the next rebuild restores them; the report
// counts them in FoldedDuringScan and a warning is logged.
func (s *Store) Rebuild(ctx context.Context, scan ScanFunc) (RebuildReport, error) {
	start := time.Now()

	previous, err := s.backend.Total(ctx)
	previousOK := err == nil
	if err != nil {
		// the replace below rewrites the counter
		s.log.Warn(ctx, "histogram total unreadable before rebuild", logger.Error(err))
		previous = 0
	}

	buckets := make(map[string]int64)
	var total int64
	err = scan(ctx, func(score float64) error {
		if !ranking.ValidScore(score) {
			return nil
		}
		buckets[ranking.BucketKey(score)]++
		total++
		return nil
	})
	if err != nil {
		return RebuildReport{}, fmt.Errorf("histogram rebuild scan: %w", err)
	}

	var folded int64
	if after, err := s.backend.Total(ctx); err == nil && previousOK && after != previous {
		folded = after - previous
		s.log.Warn(ctx, "histogram changed during rebuild scan, concurrent increments will be overwritten",
			logger.Int64("folded_during_scan", folded))
	}

	if err := s.backend.Replace(ctx, buckets, total); err != nil {
		return RebuildReport{}, fmt.Errorf("histogram rebuild replace: %w", err)
	}

	report := RebuildReport{
		PreviousTotal:    previous,
		Total:            total,
		Drift:            total - previous,
		Buckets:          len(buckets),
		FoldedDuringScan: folded,
		Took:             time.Since(start),
	}
	metrics.RecordRebuild(report.Drift, float64(report.Took.Microseconds())/1000, time.Now().Unix())
	metrics.UpdateHistogramShape(report.Buckets, report.Total)
	s.log.Info(ctx, "histogram rebuilt",
		logger.Int64("previous_total", report.PreviousTotal),
		logger.Int64("total", report.Total),
		logger.Int64("drift", report.Drift),
		logger.Int("buckets", report.Buckets),
		logger.Duration("took", report.Took),
	)
	return report, nil
}
