package loadgen

import (
	"context"
	"fmt"

	"github.com/okian/worthrank/pkg/logger"
)

// probeRanks asks for the rank of each score without submitting it.
func probeRanks(ctx context.Context, config *Config, scores []float64, stats *Stats) ([]Probe, error) {
	logger.Get().Info(ctx, "probing ranks", logger.Int("probes", len(scores)))

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/job-worth/rank"
	probes := make([]Probe, 0, len(scores))

	for i, score := range scores {
		var resp RankResponse
		// probes use their own client so the fast layer never answers them
		ip := clientIP("192.0", i)
		status, err := client.Post(ctx, url, ip, map[string]any{"score": score}, &resp)
		if err != nil {
			return nil, fmt.Errorf("rank probe %.2f: %w", score, err)
		}
		if status != StatusOK {
			return nil, fmt.Errorf("rank probe %.2f: status %d", score, status)
		}
		probes = append(probes, Probe{Score: score, Response: resp})
	}

	stats.ProbesAnswered = len(probes)
	return probes, nil
}

// fetchStoreTotal reads the authoritative sample count from /stats.
func fetchStoreTotal(ctx context.Context, config *Config) (int64, error) {
	client := newHTTPClient(config.Timeout)
	var resp StatsResponse
	status, err := client.Get(ctx, config.BaseURL+"/stats", &resp)
	if err != nil {
		return 0, fmt.Errorf("fetch stats: %w", err)
	}
	if status != StatusOK || !resp.Success {
		return 0, fmt.Errorf("fetch stats: status %d", status)
	}
	return resp.Data.Store.Total, nil
}
