package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/admin"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/alert"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/antenna"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/circuitbreaker"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/config"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/engine"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/predictor"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/qos"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/scheduler"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/tracing"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/tracker"
)

const serviceName = "handover-engine"

func buildAlerter(cfg config.AlertConfig, logger *slog.Logger) *alert.MultiAlerter {
	channels := []alert.Alerter{alert.NewLogAlerter(logger)}
	if cfg.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.WebhookURL))
	}
	return alert.NewMultiAlerter(cfg.Cooldown, cfg.MaxPerMinute, logger, channels...)
}

func runHTTPServer(ctx context.Context, name string, port int, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("server shutdown error", "server", name, "error", err)
		}
	}()

	logger.Info("server started", "server", name, "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

func main() {
	// Setup logger
	logLevel := slog.LevelInfo
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting handover engine",
		"api_port", cfg.Server.APIPort,
		"metrics_port", cfg.Server.MetricsPort,
		"antenna_registry", cfg.Antenna.RegistryPath,
		"max_ues", cfg.Tracking.MaxUEs,
		"async_workers", cfg.Async.Workers,
		"async_queue_size", cfg.Async.QueueSize,
		"qos_bias_enabled", cfg.QoSBias.Enabled,
	)

	// Initialize OpenTelemetry tracing
	shutdownTracing, err := tracing.Init(context.Background(), serviceName, cfg.Tracing.OTLPEndpoint, cfg.Tracing.Insecure)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.OTLPEndpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.OTLPEndpoint)
	}

	// Static cell registry
	registry, err := antenna.LoadRegistry(cfg.Antenna.RegistryPath)
	if err != nil {
		logger.Error("failed to load antenna registry", "path", cfg.Antenna.RegistryPath, "error", err)
		os.Exit(1)
	}
	logger.Info("antenna registry loaded", "antennas", registry.Len(), "fallback_cell", registry.FallbackCell())

	// Classifier behind the model lock and circuit breaker
	breaker := circuitbreaker.New(circuitbreaker.Options{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		Logger:           logger,
	})
	guard := predictor.NewGuard(predictor.NewNearestCentroid(), breaker, logger)

	// Per-UE state
	trackerCfg := tracker.Config{
		MaxUEs:           cfg.Tracking.MaxUEs,
		TTL:              cfg.Tracking.TTL,
		MemoryLimitBytes: cfg.Tracking.MemoryLimitBytes,
	}
	handovers, err := tracker.NewHandoverTracker(trackerCfg)
	if err != nil {
		logger.Error("failed to create handover tracker", "error", err)
		os.Exit(1)
	}
	signals, err := tracker.NewSignalProcessor(trackerCfg)
	if err != nil {
		logger.Error("failed to create signal processor", "error", err)
		os.Exit(1)
	}
	mobility, err := tracker.NewMobilityProcessor(trackerCfg)
	if err != nil {
		logger.Error("failed to create mobility processor", "error", err)
		os.Exit(1)
	}

	profiler, err := qos.NewProfiler(qos.Config{})
	if err != nil {
		logger.Error("failed to create qos profiler", "error", err)
		os.Exit(1)
	}

	alerter := buildAlerter(cfg.Alert, logger)
	diversity := engine.NewDiversityMonitor(
		cfg.Diversity.WindowSize,
		cfg.Diversity.EvalSize,
		cfg.Diversity.MinUniqueRatio,
		alerter,
		logger,
	)

	eng := engine.New(
		engine.Config{PingPong: cfg.PingPong, QoSBias: cfg.QoSBias},
		guard,
		handovers,
		signals,
		mobility,
		profiler,
		registry,
		logger,
		engine.WithDiversityMonitor(diversity),
		engine.WithAlerter(alerter),
	)

	sched, err := scheduler.New(guard, scheduler.Config{
		QueueSize: cfg.Async.QueueSize,
		Workers:   cfg.Async.Workers,
		Retention: cfg.Async.Retention,
	}, logger)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	// Operational API with audit and per-IP rate limiting
	apiServer := admin.NewServer(eng, logger,
		admin.WithScheduler(sched),
		admin.WithProfiler(profiler),
		admin.WithHandoverTracker(handovers),
		admin.WithHealth(eng.Health()),
	)
	rateLimiter := admin.NewRateLimitMiddleware(logger)
	defer rateLimiter.Stop()
	apiHandler := rateLimiter.Wrap(admin.AuditMiddleware(logger, apiServer.Handler()))

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if eng.Health().Status() == engine.HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})

	// Context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(gCtx)
	})

	g.Go(func() error {
		return runHTTPServer(gCtx, "api", cfg.Server.APIPort, apiHandler, logger)
	})

	g.Go(func() error {
		return runHTTPServer(gCtx, "metrics", cfg.Server.MetricsPort, metricsMux, logger)
	})

	startCacheStatsPump(gCtx, map[string]cacheStatsSource{
		"handover":     handovers,
		"signal":       signals,
		"mobility":     mobility,
		"qos_profiler": profiler,
	}, logger)

	// Signal handler
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("engine exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("engine shut down gracefully")
}
