// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"time"
)

// ScoreSample is one persisted evaluation. Samples are append-only and never mutated.
type ScoreSample struct {
	ID         string          // generated by the authoritative store on insert
	Score      float64         // externally computed job-worth score
	OccurredAt time.Time       // submission time
	ClientKey  string          // best-effort client identity, "unknown" when unavailable
	FormData   json.RawMessage // opaque evaluation record
}

// Bucket is one histogram entry: a score rounded to two decimals and its occurrence count.
type Bucket struct {
	Score string `json:"score"`
	Count int64  `json:"count"`
}

// Distribution is a snapshot of the histogram store.
type Distribution struct {
	Buckets      []Bucket `json:"buckets"` // ascending by numeric score
	TotalCount   int64    `json:"totalCount"`
	AverageScore float64  `json:"averageScore"`
}

// Percentile is the raw outcome of a percentile computation against one backend.
// OK is false when the backend was unavailable and the zero result was substituted.
type Percentile struct {
	Percentile  string
	LowerCount  int64
	HigherCount int64
	TotalCount  int64
	OK          bool
}

// Backend names a statistics source an endpoint trusts.
type Backend string

// Statistics backends.
const (
	BackendHistogram Backend = "histogram"
	BackendStore     Backend = "store"
)

// Valid reports whether b names a known backend.
func (b Backend) Valid() bool {
	return b == BackendHistogram || b == BackendStore
}

// RankResult is derived on every request and never persisted.
// Percentile and Rank are nil when ShowRanking is false.
type RankResult struct {
	Percentile  *string
	Rank        *int64
	TotalCount  int64
	ShowRanking bool
	Backend     Backend
}

// ScoreRange is a half-open score interval [Min, Max).
type ScoreRange struct {
	Label string
	Min   float64
	Max   float64
}

// Contains reports whether score falls inside the range.
func (r ScoreRange) Contains(score float64) bool {
	return score >= r.Min && score < r.Max
}

// SummaryRanges are the fixed ranges reported by store summaries.
var SummaryRanges = []ScoreRange{ //nolint:gochecknoglobals // fixed reporting table
	{Label: "0-0.6", Min: 0, Max: 0.6},
	{Label: "0.6-1.0", Min: 0.6, Max: 1.0},
	{Label: "1.0-1.8", Min: 1.0, Max: 1.8},
	{Label: "1.8-2.5", Min: 1.8, Max: 2.5},
	{Label: "2.5-3.2", Min: 2.5, Max: 3.2},
	{Label: "3.2-4.0", Min: 3.2, Max: 4.0},
	{Label: "4.0+", Min: 4.0, Max: 100},
}

// RangeCount is the number of samples inside one summary range.
type RangeCount struct {
	Range string `json:"range"`
	Count int64  `json:"count"`
}

// StoreSummary aggregates the authoritative store.
type StoreSummary struct {
	Total        int64        `json:"total"`
	AverageScore float64      `json:"averageScore"`
	Ranges       []RangeCount `json:"ranges"`
}

// NewStoreSummary returns a summary with every range present and zeroed.
func NewStoreSummary() StoreSummary {
	ranges := make([]RangeCount, len(SummaryRanges))
	for i, r := range SummaryRanges {
		ranges[i] = RangeCount{Range: r.Label}
	}
	return StoreSummary{Ranges: ranges}
}

// Add folds one score into the summary. AverageScore must be finalized with Finish.
func (s *StoreSummary) Add(score float64) {
	s.Total++
	s.AverageScore += score
	for i, r := range SummaryRanges {
		if r.Contains(score) {
			s.Ranges[i].Count++
			return
		}
	}
}

// Finish turns the accumulated score sum into the mean.
func (s *StoreSummary) Finish() {
	if s.Total > 0 {
		s.AverageScore /= float64(s.Total)
	}
}
