package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/worthrank/internal/adapters/cache"
	"github.com/okian/worthrank/internal/adapters/http/api"
	"github.com/okian/worthrank/internal/adapters/http/swagger"
	"github.com/okian/worthrank/internal/adapters/repository"
	app "github.com/okian/worthrank/internal/app"
	"github.com/okian/worthrank/internal/config"
	"github.com/okian/worthrank/internal/domain/dedupe"
	"github.com/okian/worthrank/internal/domain/histogram"
	"github.com/okian/worthrank/internal/domain/model"
	"github.com/okian/worthrank/pkg/logger"
	"github.com/okian/worthrank/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitWithOptions(logger.Options{Format: cfg.LogFormat}); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	loggerInstance := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, loggerInstance); err != nil {
		loggerInstance.Error(ctx, "server exited", logger.Error(err))
		os.Exit(1)
	}
}

// run builds the service, serves HTTP until ctx is done, then shuts down.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	svc, cleanup, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, svc, log, cfg.AdminEnabled),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// buildService selects the configured store and histogram drivers. The
// returned cleanup releases resources the service does not own.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, func(), error) {
	var store repository.Store
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := repository.OpenSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		store = s
	default:
		store = repository.NewTreapStore(ctx)
	}

	var (
		backend histogram.Backend
		cleanup = func() {}
	)
	switch cfg.HistogramDriver {
	case config.DriverRedis:
		client, err := cache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		rh := cache.NewRedisHistogram(client, cache.WithKeyPrefix(cfg.RedisKeyPrefix))
		backend = rh
		cleanup = func() {
			if err := rh.Close(); err != nil {
				log.Warn(ctx, "error closing redis", logger.Error(err))
			}
		}
	default:
		backend = cache.NewMemoryHistogram()
	}

	opts := []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithHistogram(histogram.New(backend, histogram.WithLogger(log.Named("histogram")))),
		app.WithRecencyCache(dedupe.NewRecencyCache(
			dedupe.WithSoftCap(cfg.RecencySoftCap),
			dedupe.WithHardCap(cfg.RecencyHardCap),
			dedupe.WithSweepWindow(cfg.SubmitWindow),
		)),
		app.WithBackends(model.Backend(cfg.SubmitBackend), model.Backend(cfg.RankBackend), model.Backend(cfg.LookupBackend)),
		app.WithMinSamples(cfg.HistogramMinSamples, cfg.StoreMinSamples),
		app.WithWindows(cfg.SubmitWindow, cfg.RankWindow),
		app.WithDurableWindow(cfg.DurableWindow),
		app.WithDurableChecks(cfg.SubmitDurableCheck, cfg.RankDurableCheck),
		app.WithReconcileInterval(cfg.ReconcileInterval),
	}
	if cfg.FoldAsync {
		opts = append(opts, app.WithAsyncFold(cfg.FoldQueueSize, cfg.FoldWorkers))
	}
	return app.New(opts...), cleanup, nil
}

// newHandler registers the docs and business routes.
func newHandler(ctx context.Context, svc *app.Service, log logger.Logger, adminEnabled bool) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc,
		api.WithLogger(log.Named("api")),
		api.WithReadiness(svc.Started),
		api.WithAdminRoutes(adminEnabled),
	).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes gauges that are not updated on the request path.
func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	metrics.UpdateRecencyCacheSize(svc.RecencySize())
	if queued, capacity := svc.FoldBacklog(ctx); capacity > 0 {
		metrics.UpdateFoldQueue(queued, capacity)
	}
}
