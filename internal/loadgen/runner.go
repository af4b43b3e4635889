package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/worthrank/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Run executes a complete load run and returns the collected statistics.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("loadgen")

	log.Info(ctx, "starting worthrank load run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("submissions", config.Submissions),
		logger.Int("duplicates", config.Duplicates),
		logger.Int("probes", config.Probes),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	before, err := fetchStoreTotal(ctx, config)
	if err != nil {
		return nil, err
	}
	stats.StoreBefore = before

	// Step 2: Generate submissions
	subs, err := generateSubmissions(ctx, config, stats)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	// Step 3: Submit concurrently
	for _, o := range submitAll(ctx, config, subs) {
		switch o {
		case outcomeStored:
			stats.Stored++
		case outcomeCached:
			stats.Cached++
		default:
			stats.Failed++
		}
	}
	log.Info(ctx, "submission completed",
		logger.Int("stored", stats.Stored),
		logger.Int("cached", stats.Cached),
		logger.Int("failed", stats.Failed))

	// Step 4: Repeat a prefix from the same clients
	repeats := subs[:min(config.Duplicates, len(subs))]
	for _, o := range submitAll(ctx, config, repeats) {
		stats.DuplicatesSent++
		if o == outcomeStored {
			stats.DuplicatesFresh++
		}
	}

	// Step 5: Probe ranks read-only
	probes, err := probeRanks(ctx, config, probeScores(config.Probes), stats)
	if err != nil {
		return nil, fmt.Errorf("rank probes failed: %w", err)
	}

	after, err := fetchStoreTotal(ctx, config)
	if err != nil {
		return nil, err
	}
	stats.StoreAfter = after

	// Step 6: Verify
	verr := errors.Join(verifyDuplicates(stats), verifyMonotonic(probes), verifyCounts(stats))

	if config.OutputFile != "" {
		if err := saveSubmissions(ctx, config.OutputFile, subs); err != nil {
			log.Warn(ctx, "failed to save submissions", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if verr != nil {
		return stats, fmt.Errorf("verification failed: %w", verr)
	}
	log.Info(ctx, "load run completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout)
	status, err := client.Get(ctx, config.BaseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if status != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", status)
	}
	return nil
}

// saveSubmissions writes the generated submissions as a JSON array.
func saveSubmissions(ctx context.Context, filename string, subs []Submission) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal submissions: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	logger.Get().Info(ctx, "submissions saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var storedRate, perSecond float64
	if stats.Generated > 0 {
		storedRate = float64(stats.Stored) / float64(stats.Generated) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		perSecond = float64(stats.Generated+stats.DuplicatesSent) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("stored", stats.Stored),
		logger.Int("cached", stats.Cached),
		logger.Int("failed", stats.Failed),
		logger.Int("duplicatesSent", stats.DuplicatesSent),
		logger.Int("duplicatesFresh", stats.DuplicatesFresh),
		logger.Int("probes", stats.ProbesAnswered),
		logger.Int64("storeGrowth", stats.StoreAfter-stats.StoreBefore),
		logger.Duration("duration", stats.Duration),
		logger.Float64("storedRate", storedRate),
		logger.Float64("requestsPerSecond", perSecond))
}
