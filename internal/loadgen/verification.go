package loadgen

import (
	"errors"
	"fmt"
	"strconv"
)

// Verification failures.
var (
	ErrDuplicateCounted = errors.New("duplicate submission was counted")
	ErrNotMonotonic     = errors.New("percentile decreased as score increased")
	ErrCountMismatch    = errors.New("store total does not match stored submissions")
)

// verifyDuplicates requires every repeated submission to be answered from cache.
func verifyDuplicates(stats *Stats) error {
	if stats.DuplicatesFresh > 0 {
		return fmt.Errorf("%w: %d of %d repeats stored", ErrDuplicateCounted, stats.DuplicatesFresh, stats.DuplicatesSent)
	}
	return nil
}

// verifyMonotonic checks that percentile never falls and rank never rises as
// the probed score increases. Probes with ranking hidden are skipped.
func verifyMonotonic(probes []Probe) error {
	var (
		lastPct  = -1.0
		lastRank int64
		seen     bool
	)
	for _, p := range probes {
		r := p.Response
		if !r.ShowRanking || r.Percentile == nil || r.Rank == nil {
			continue
		}
		pct, err := strconv.ParseFloat(*r.Percentile, 64)
		if err != nil {
			return fmt.Errorf("parse percentile %q: %w", *r.Percentile, err)
		}
		if seen && (pct < lastPct || *r.Rank > lastRank) {
			return fmt.Errorf("%w: score %.2f has percentile %.1f rank %d after %.1f rank %d",
				ErrNotMonotonic, p.Score, pct, *r.Rank, lastPct, lastRank)
		}
		lastPct, lastRank, seen = pct, *r.Rank, true
	}
	return nil
}

// verifyCounts compares the store growth with the submissions reported stored.
// Other writers against the same server make this check fail.
func verifyCounts(stats *Stats) error {
	grew := stats.StoreAfter - stats.StoreBefore
	if grew != int64(stats.Stored) {
		return fmt.Errorf("%w: grew by %d, stored %d", ErrCountMismatch, grew, stats.Stored)
	}
	return nil
}
