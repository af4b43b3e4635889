// Package ranking holds the pure rank and percentile math shared by both statistics backends.
//
// Rank is the number of samples with a strictly higher score, so 0 is the best
// possible rank and tied scores share a rank. Percentile is the share of samples
// strictly below a score, formatted to one decimal.
package ranking

import (
	"fmt"
	"math"
	"strconv"

	"github.com/okian/worthrank/internal/domain/model"
)

// Default showRanking thresholds per backend.
const (
	DefaultHistogramMinSamples int64 = 1000
	DefaultStoreMinSamples     int64 = 1
)

// ZeroPercentile is reported when there are no samples at all.
const ZeroPercentile = "0"

// BucketKey rounds a score to the two-decimal histogram bucket it belongs to.
func BucketKey(score float64) string {
	return strconv.FormatFloat(score, 'f', 2, 64)
}

// ParseBucket converts a bucket key back to its numeric score.
func ParseBucket(key string) (float64, error) {
	v, err := strconv.ParseFloat(key, 64)
	if err != nil {
		return 0, fmt.Errorf("parse bucket %q: %w", key, err)
	}
	return v, nil
}

// ValidScore reports whether score is a finite number.
func ValidScore(score float64) bool {
	return !math.IsNaN(score) && !math.IsInf(score, 0)
}

// FormatPercentile renders lower/total*100 with one decimal, or ZeroPercentile when total is 0.
func FormatPercentile(lower, total int64) string {
	if total <= 0 {
		return ZeroPercentile
	}
	return strconv.FormatFloat(float64(lower)/float64(total)*100, 'f', 1, 64)
}

// Compute builds a Percentile from exact counts.
func Compute(lower, higher, total int64) model.Percentile {
	return model.Percentile{
		Percentile:  FormatPercentile(lower, total),
		LowerCount:  lower,
		HigherCount: higher,
		TotalCount:  total,
		OK:          true,
	}
}

// Degraded is the zero result substituted when a backend cannot be reached.
func Degraded() model.Percentile {
	return model.Percentile{Percentile: ZeroPercentile}
}

// Result applies the showRanking gate. Ranking is shown only for a healthy
// computation whose sample size reaches minSamples.
func Result(p model.Percentile, backend model.Backend, minSamples int64) model.RankResult {
	res := model.RankResult{
		TotalCount: p.TotalCount,
		Backend:    backend,
	}
	if !p.OK || p.TotalCount < minSamples {
		return res
	}
	percentile := p.Percentile
	rank := p.HigherCount
	res.Percentile = &percentile
	res.Rank = &rank
	res.ShowRanking = true
	return res
}
