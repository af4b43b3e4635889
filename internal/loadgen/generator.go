package loadgen

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math"
	"math/big"

	"github.com/google/uuid"
	"github.com/okian/worthrank/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	bandDivisor        = 6
)

// Score bands, weighted toward the middle like real evaluations.
const (
	lowMin     = 0.1
	lowRange   = 0.5
	belowMin   = 0.6
	belowRange = 0.4
	avgMin     = 1.0
	avgRange   = 0.8
	goodMin    = 1.8
	goodRange  = 0.7
	greatMin   = 2.5
	greatRange = 1.5
	wideMin    = 0.1
	wideRange  = 4.8
)

// Constants for band cases.
const (
	caseLow = iota
	caseBelow
	caseAverage
	caseGood
	caseGreat
	caseWide
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// generateSubmissions creates count submissions, each from its own client.
func generateSubmissions(ctx context.Context, config *Config, stats *Stats) ([]Submission, error) {
	logger.Get().Info(ctx, "generating submissions", logger.Int("count", config.Submissions))

	subs := make([]Submission, config.Submissions)
	for i := range subs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during generation: %w", err)
		}
		form, err := json.Marshal(map[string]any{
			"evaluationId":    uuid.NewString(),
			"salary":          100000 + i%50*10000,
			"workDaysPerWeek": 5,
			"commuteHours":    float64(i%4) / 2,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal form data %d: %w", i, err)
		}
		subs[i] = Submission{
			ClientIP: clientIP(config.ClientPrefix, i),
			Score:    generateScore(),
			FormData: form,
		}
	}

	stats.Generated = len(subs)
	logger.Get().Info(ctx, "generated submissions successfully", logger.Int("count", len(subs)))
	return subs, nil
}

// clientIP derives a distinct address for index i under prefix (e.g. "10.42").
func clientIP(prefix string, i int) string {
	return fmt.Sprintf("%s.%d.%d", prefix, (i/250)%250+1, i%250+1)
}

// generateScore draws a score from one of the bands, rounded to cents.
func generateScore() float64 {
	band, _ := rand.Int(rand.Reader, big.NewInt(bandDivisor))
	var v float64
	switch band.Int64() {
	case caseLow:
		v = lowMin + getRandomFloat()*lowRange
	case caseBelow:
		v = belowMin + getRandomFloat()*belowRange
	case caseAverage:
		v = avgMin + getRandomFloat()*avgRange
	case caseGood:
		v = goodMin + getRandomFloat()*goodRange
	case caseGreat:
		v = greatMin + getRandomFloat()*greatRange
	default: // caseWide
		v = wideMin + getRandomFloat()*wideRange
	}
	return math.Round(v*100) / 100
}

// probeScores returns n evenly spaced scores across [0, maxScore].
func probeScores(n int) []float64 {
	if n < 2 {
		n = 2
	}
	out := make([]float64, n)
	step := maxScore / float64(n-1)
	for i := range out {
		out[i] = math.Round(float64(i)*step*100) / 100
	}
	return out
}
