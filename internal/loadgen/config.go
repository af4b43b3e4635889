// Package loadgen drives a running worthrank server over HTTP and checks
// the properties clients rely on: duplicates are answered from cache,
// read-only ranking never counts, and percentiles grow with the score.
package loadgen

import (
	"encoding/json"
	"time"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Submissions  int           // Number of distinct evaluations to submit
	Duplicates   int           // Number of submissions to repeat from the same client
	Probes       int           // Number of read-only rank probes
	Workers      int           // Number of concurrent workers
	Timeout      time.Duration // HTTP request timeout
	OutputFile   string        // Output file for generated submissions, empty to skip
	Verbose      bool          // Enable verbose logging
	ClientPrefix string        // First two octets of generated client addresses
}

// Submission is one generated evaluation and the client that sends it.
type Submission struct {
	ClientIP string          `json:"clientIp"`
	Score    float64         `json:"score"`
	FormData json.RawMessage `json:"formData"`
}

// SubmitResponse mirrors POST /job-worth.
type SubmitResponse struct {
	Success     bool    `json:"success"`
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	Percentile  *string `json:"percentile"`
	Rank        *int64  `json:"rank"`
	TotalCount  int64   `json:"totalCount"`
	ShowRanking bool    `json:"showRanking"`
	FromCache   bool    `json:"fromCache"`
	Message     string  `json:"message"`
}

// RankResponse mirrors POST /job-worth/rank.
type RankResponse struct {
	Success     bool    `json:"success"`
	Percentile  *string `json:"percentile"`
	Rank        *int64  `json:"rank"`
	TotalCount  int64   `json:"totalCount"`
	ShowRanking bool    `json:"showRanking"`
	FromCache   bool    `json:"fromCache"`
}

// Probe is the answer to one read-only rank request.
type Probe struct {
	Score    float64
	Response RankResponse
}

// StatsResponse mirrors GET /stats.
type StatsResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Store struct {
			Total        int64   `json:"total"`
			AverageScore float64 `json:"averageScore"`
		} `json:"store"`
		Distribution struct {
			TotalCount int64 `json:"totalCount"`
		} `json:"distribution"`
	} `json:"data"`
}

// Stats holds run statistics.
type Stats struct {
	Generated       int
	Stored          int
	Cached          int
	Failed          int
	DuplicatesSent  int
	DuplicatesFresh int
	ProbesAnswered  int
	StoreBefore     int64
	StoreAfter      int64
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
