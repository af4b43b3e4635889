// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a file and the environment on top of the defaults.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"context"
	"runtime"
	"time"
)

// Storage and histogram drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogFormat selects text or json log records.
	LogFormat string `koanf:"log_format" validate:"omitempty,oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// StoreDriver selects the authoritative store.
	StoreDriver string `koanf:"store_driver" validate:"oneof=sqlite memory"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `koanf:"sqlite_path" validate:"required_if=StoreDriver sqlite"`

	// HistogramDriver selects the histogram backend.
	HistogramDriver string `koanf:"histogram_driver" validate:"oneof=redis memory"`

	// Redis connection for the redis histogram driver.
	RedisAddr      string `koanf:"redis_addr" validate:"required_if=HistogramDriver redis"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db" validate:"min=0"`
	RedisKeyPrefix string `koanf:"redis_key_prefix" validate:"required"`

	// Backends trusted by each endpoint: histogram or store.
	SubmitBackend string `koanf:"submit_backend" validate:"oneof=histogram store"`
	RankBackend   string `koanf:"rank_backend" validate:"oneof=histogram store"`
	LookupBackend string `koanf:"lookup_backend" validate:"oneof=histogram store"`

	// Minimum sample sizes before a ranking is shown.
	HistogramMinSamples int64 `koanf:"histogram_min_samples" validate:"min=0"`
	StoreMinSamples     int64 `koanf:"store_min_samples" validate:"min=0"`

	// Deduplication windows.
	SubmitWindow  time.Duration `koanf:"submit_window" validate:"gt=0"`
	RankWindow    time.Duration `koanf:"rank_window" validate:"gt=0"`
	DurableWindow time.Duration `koanf:"durable_window" validate:"gt=0"`

	// Durable duplicate checks per endpoint.
	SubmitDurableCheck bool `koanf:"submit_durable_check"`
	RankDurableCheck   bool `koanf:"rank_durable_check"`

	// Recency cache bounds. A hard cap of zero disables it.
	RecencySoftCap int `koanf:"recency_soft_cap" validate:"gt=0"`
	RecencyHardCap int `koanf:"recency_hard_cap" validate:"min=0"`

	// Asynchronous histogram folding.
	FoldAsync     bool `koanf:"fold_async"`
	FoldQueueSize int  `koanf:"fold_queue_size" validate:"gt=0"`
	FoldWorkers   int  `koanf:"fold_workers" validate:"gt=0"`

	// ReconcileInterval schedules histogram rebuilds. Zero disables them.
	ReconcileInterval time.Duration `koanf:"reconcile_interval" validate:"min=0"`

	// AdminEnabled exposes POST /admin/histogram/rebuild.
	AdminEnabled bool `koanf:"admin_enabled"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		StoreDriver:         DriverSQLite,
		SQLitePath:          "data/worthrank.db",
		HistogramDriver:     DriverRedis,
		RedisAddr:           "localhost:6379",
		RedisKeyPrefix:      "worthrank",
		SubmitBackend:       "histogram",
		RankBackend:         "store",
		LookupBackend:       "histogram",
		HistogramMinSamples: 1000,
		StoreMinSamples:     1,
		SubmitWindow:        10 * time.Minute,
		RankWindow:          time.Minute,
		DurableWindow:       10 * time.Minute,
		SubmitDurableCheck:  true,
		RankDurableCheck:    true,
		RecencySoftCap:      1000,
		RecencyHardCap:      50_000,
		FoldAsync:           false,
		FoldQueueSize:       10_000,
		FoldWorkers:         runtime.NumCPU(),
		ReconcileInterval:   0,
		AdminEnabled:        false,
	}
}
