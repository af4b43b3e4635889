package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/okian/worthrank/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigDefaults(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverSQLite)
			convey.So(cfg.HistogramDriver, convey.ShouldEqual, config.DriverRedis)
			convey.So(cfg.SubmitBackend, convey.ShouldEqual, "histogram")
			convey.So(cfg.RankBackend, convey.ShouldEqual, "store")
			convey.So(cfg.LookupBackend, convey.ShouldEqual, "histogram")
			convey.So(cfg.HistogramMinSamples, convey.ShouldEqual, 1000)
			convey.So(cfg.StoreMinSamples, convey.ShouldEqual, 1)
			convey.So(cfg.SubmitWindow, convey.ShouldEqual, 10*time.Minute)
			convey.So(cfg.RankWindow, convey.ShouldEqual, time.Minute)
			convey.So(cfg.DurableWindow, convey.ShouldEqual, 10*time.Minute)
			convey.So(cfg.RecencySoftCap, convey.ShouldEqual, 1000)
			convey.So(cfg.RecencyHardCap, convey.ShouldEqual, 50_000)
			convey.So(cfg.FoldWorkers, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.RedisKeyPrefix, convey.ShouldEqual, "worthrank")
				convey.So(cfg.SubmitDurableCheck, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("WORTHRANK_ADDR", ":8080")
			_ = os.Setenv("WORTHRANK_STORE_DRIVER", "memory")
			_ = os.Setenv("WORTHRANK_HISTOGRAM_MIN_SAMPLES", "50")
			_ = os.Setenv("WORTHRANK_SUBMIT_WINDOW", "90s")
			_ = os.Setenv("WORTHRANK_RANK_DURABLE_CHECK", "false")
			_ = os.Setenv("WORTHRANK_FOLD_ASYNC", "true")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
				convey.So(cfg.HistogramMinSamples, convey.ShouldEqual, 50)
				convey.So(cfg.SubmitWindow, convey.ShouldEqual, 90*time.Second)
				convey.So(cfg.RankDurableCheck, convey.ShouldBeFalse)
				convey.So(cfg.FoldAsync, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			path := writeConfigFile(t, "worthrank.yaml", `
# local development
addr: ":9090"
histogram_driver: memory
rank_backend: histogram
durable_window: 5m
recency_soft_cap: 200
recency_hard_cap: 0
`)
			_ = os.Setenv("WORTHRANK_CONFIG", path)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.HistogramDriver, convey.ShouldEqual, config.DriverMemory)
				convey.So(cfg.RankBackend, convey.ShouldEqual, "histogram")
				convey.So(cfg.DurableWindow, convey.ShouldEqual, 5*time.Minute)
				convey.So(cfg.RecencySoftCap, convey.ShouldEqual, 200)
				convey.So(cfg.RecencyHardCap, convey.ShouldEqual, 0)
				convey.So(cfg.SubmitWindow, convey.ShouldEqual, 10*time.Minute) // From defaults
			})
		})

		convey.Convey("When loading config with TOML file", func() {
			path := writeConfigFile(t, "worthrank.toml", `
addr = ":7070"
store_driver = "memory"
reconcile_interval = "1h"
fold_workers = 3
`)
			_ = os.Setenv("WORTHRANK_CONFIG", path)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from TOML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
				convey.So(cfg.ReconcileInterval, convey.ShouldEqual, time.Hour)
				convey.So(cfg.FoldWorkers, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			path := writeConfigFile(t, "worthrank.yaml", `
addr: ":9090"
fold_queue_size: 300
`)
			_ = os.Setenv("WORTHRANK_CONFIG", path)
			_ = os.Setenv("WORTHRANK_ADDR", ":8080") // This should override the file
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")        // Overridden by env
				convey.So(cfg.FoldQueueSize, convey.ShouldEqual, 300) // From file
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			path := writeConfigFile(t, "broken.yaml", `invalid: yaml: content: [`)
			_ = os.Setenv("WORTHRANK_CONFIG", path)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an unknown file extension", func() {
			path := writeConfigFile(t, "worthrank.json", `{"addr":":1"}`)
			_ = os.Setenv("WORTHRANK_CONFIG", path)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then the format is rejected", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(errors.Is(err, config.ErrUnsupportedFormat), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("WORTHRANK_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("WORTHRANK_FOLD_QUEUE_SIZE", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestConfigValidation(t *testing.T) {
	convey.Convey("Given config validation", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		cases := map[string]map[string]string{
			"empty addr":          {"WORTHRANK_ADDR": ""},
			"unknown store":       {"WORTHRANK_STORE_DRIVER": "postgres"},
			"unknown backend":     {"WORTHRANK_SUBMIT_BACKEND": "cache"},
			"zero submit window":  {"WORTHRANK_SUBMIT_WINDOW": "0s"},
			"negative min":        {"WORTHRANK_STORE_MIN_SAMPLES": "-1"},
			"hard below soft cap": {"WORTHRANK_RECENCY_SOFT_CAP": "500", "WORTHRANK_RECENCY_HARD_CAP": "100"},
			"redis without addr":  {"WORTHRANK_REDIS_ADDR": ""},
			"bad log format":      {"WORTHRANK_LOG_FORMAT": "xml"},
		}

		for name, env := range cases {
			convey.Convey("When the config has "+name, func() {
				for k, v := range env {
					_ = os.Setenv(k, v)
				}

				cfg, err := config.Load(ctx)

				convey.Convey("Then it is rejected as invalid", func() {
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
					convey.So(cfg, convey.ShouldBeNil)
				})
			})
		}

		convey.Convey("When the hard cap is disabled", func() {
			_ = os.Setenv("WORTHRANK_RECENCY_HARD_CAP", "0")

			cfg, err := config.Load(ctx)

			convey.Convey("Then any soft cap is accepted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.RecencyHardCap, convey.ShouldEqual, 0)
			})
		})
	})
}

// Helper functions.

var configEnvVars = []string{
	"WORTHRANK_CONFIG",
	"WORTHRANK_ADDR",
	"WORTHRANK_LOG_FORMAT",
	"WORTHRANK_STORE_DRIVER",
	"WORTHRANK_REDIS_ADDR",
	"WORTHRANK_SUBMIT_BACKEND",
	"WORTHRANK_HISTOGRAM_MIN_SAMPLES",
	"WORTHRANK_STORE_MIN_SAMPLES",
	"WORTHRANK_SUBMIT_WINDOW",
	"WORTHRANK_RANK_DURABLE_CHECK",
	"WORTHRANK_RECENCY_SOFT_CAP",
	"WORTHRANK_RECENCY_HARD_CAP",
	"WORTHRANK_FOLD_ASYNC",
	"WORTHRANK_FOLD_QUEUE_SIZE",
}

func clearConfigEnvVars() {
	for _, envVar := range configEnvVars {
		_ = os.Unsetenv(envVar)
	}
}

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
