package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/inkpad-ai/researchd/internal/circuitbreaker"
	"github.com/inkpad-ai/researchd/internal/collab"
	"github.com/inkpad-ai/researchd/internal/config"
	"github.com/inkpad-ai/researchd/internal/docstore"
	"github.com/inkpad-ai/researchd/internal/executor"
	"github.com/inkpad-ai/researchd/internal/health"
	"github.com/inkpad-ai/researchd/internal/httpapi"
	"github.com/inkpad-ai/researchd/internal/merge"
	"github.com/inkpad-ai/researchd/internal/orchestrator"
	"github.com/inkpad-ai/researchd/internal/progress"
	"github.com/inkpad-ai/researchd/internal/queue"
	"github.com/inkpad-ai/researchd/internal/streaming"
)

func main() {
	ctx := context.Background()

	configPath := os.Getenv("RESEARCHD_CONFIG")
	if configPath == "" {
		if _, err := os.Stat("config/research.yaml"); err == nil {
			configPath = "config/research.yaml"
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting researchd",
		zap.String("config", configPath),
		zap.Int("max_concurrent", cfg.MaxConcurrent),
		zap.Int("admin_port", cfg.AdminPort),
	)

	// Document store: Redis when configured, in-memory otherwise.
	var store docstore.Store
	if cfg.RedisAddr != "" {
		rs, err := docstore.NewRedisStore(cfg.RedisAddr, logger)
		if err != nil {
			log.Fatalf("Failed to connect to redis at %s: %v", cfg.RedisAddr, err)
		}
		defer rs.Close()
		store = rs
		logger.Info("Using redis document store", zap.String("addr", cfg.RedisAddr))
	} else {
		store = docstore.NewMemoryStore()
		logger.Info("Using in-memory document store")
	}

	// Collaborators behind rate limits and circuit breakers.
	client := collab.NewHTTPClient(cfg.SearchURL, cfg.SynthesisURL, logger)
	searchBreaker := circuitbreaker.NewCircuitBreaker("search", circuitbreaker.DefaultConfig(), logger)
	synthBreaker := circuitbreaker.NewCircuitBreaker("synthesis", circuitbreaker.DefaultConfig(), logger)
	search := collab.NewLimitedSearch(client, cfg.SearchRPM, searchBreaker)
	synth := collab.NewLimitedSynthesis(client, cfg.SynthesisRPM, synthBreaker)

	// Core components.
	q := queue.New(cfg.MaxConcurrent, logger)
	exec := executor.New(search, synth, executor.Config{
		MaxRetries:    cfg.MaxRetries,
		PerJobTimeout: cfg.PerJobTimeout(),
		MaxSources:    cfg.MaxSourcesPerJob,
		BackoffBase:   cfg.RetryBackoff(),
	}, logger)
	agg := progress.NewAggregator()
	merger := merge.NewMerger(store, logger)
	hub := streaming.NewHub(cfg.EventRingCapacity)
	orch := orchestrator.New(q, exec, agg, merger, hub, logger)

	// Hot-reload of the runtime tunables.
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
			q.SetMaxConcurrent(next.MaxConcurrent)
			exec.UpdateConfig(executor.Config{
				MaxRetries:    next.MaxRetries,
				PerJobTimeout: next.PerJobTimeout(),
				MaxSources:    next.MaxSourcesPerJob,
				BackoffBase:   next.RetryBackoff(),
			})
		}, logger)
		if err != nil {
			logger.Warn("Config watcher unavailable", zap.Error(err))
		} else if err := watcher.Start(); err != nil {
			logger.Warn("Config watcher failed to start", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	// Health checks.
	hm := health.NewManager(logger)
	hm.Register(health.NewStoreChecker(store))
	hm.Register(health.NewQueueChecker(q))
	hm.Register(health.NewHubChecker(hub, 1024))
	hm.Start(ctx)
	defer hm.Stop()

	// Admin HTTP surface: operations, streaming, health, metrics.
	mux := http.NewServeMux()
	httpapi.NewResearchHandler(orch, logger).RegisterRoutes(mux)
	httpapi.NewStreamingHandler(hub, logger).RegisterRoutes(mux)
	health.NewHTTPHandler(hm, logger).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AdminPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Admin HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Admin HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Orchestrator shutdown", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

// buildLogger maps the logging config onto a zap preset.
func buildLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if lc.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if lc.Level != "" {
		lvl, err := zapcore.ParseLevel(lc.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", lc.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}
