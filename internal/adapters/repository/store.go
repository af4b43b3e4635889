// Package repository is the authoritative store of every evaluation.
package repository

import (
	"context"
	"time"

	"github.com/okian/worthrank/internal/domain/model"
	"github.com/okian/worthrank/internal/domain/ranking"
	"github.com/okian/worthrank/pkg/metrics"
)

// Store provides exact, durable access to score samples.
type Store interface {
	// Insert appends a sample and returns its identifier. A zero OccurredAt is
	// stamped with the current time. Fails with ErrPersistence when the
	// backing store rejects the write.
	Insert(ctx context.Context, sample model.ScoreSample) (string, error)

	// FetchByID returns the sample or ErrNotFound.
	FetchByID(ctx context.Context, id string) (model.ScoreSample, error)

	// CountTotal returns the number of stored samples.
	CountTotal(ctx context.Context) (int64, error)
	// CountBelow counts samples with a score strictly below score.
	CountBelow(ctx context.Context, score float64) (int64, error)
	// CountAbove counts samples with a score strictly above score.
	CountAbove(ctx context.Context, score float64) (int64, error)

	// RecentByClient returns the client's samples at or after since, newest
	// first. An empty or unknown client key yields no samples and no error.
	RecentByClient(ctx context.Context, clientKey string, since time.Time) ([]model.ScoreSample, error)

	// Summary returns the total, mean and fixed range counts.
	Summary(ctx context.Context) (model.StoreSummary, error)

	// Scan calls fn for every sample. Returning an error from fn stops the scan.
	Scan(ctx context.Context, fn func(model.ScoreSample) error) error

	Close() error
}

// ScanScores adapts a Store scan to the score-only replay used by histogram rebuilds.
func ScanScores(s Store) func(ctx context.Context, yield func(score float64) error) error {
	return func(ctx context.Context, yield func(score float64) error) error {
		return s.Scan(ctx, func(sample model.ScoreSample) error {
			return yield(sample.Score)
		})
	}
}

// Operation names used for latency and error metrics.
const (
	opInsert  = "insert"
	opFetch   = "fetch"
	opCount   = "count"
	opRecent  = "recent_by_client"
	opSummary = "summary"
	opScan    = "scan"
)

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}

// prepare validates a sample and fills its identifier and timestamp.
func prepare(sample model.ScoreSample, o options) (model.ScoreSample, error) {
	if !ranking.ValidScore(sample.Score) {
		return model.ScoreSample{}, ErrInvalidScore
	}
	if sample.ID == "" {
		sample.ID = o.newID()
	}
	if sample.OccurredAt.IsZero() {
		sample.OccurredAt = o.now()
	}
	return sample, nil
}
