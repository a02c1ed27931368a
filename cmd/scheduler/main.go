package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"climacan/internal/app"
	"climacan/internal/config"
	"climacan/internal/scheduler"
	"climacan/internal/tasks"
	"climacan/pkg/logging"
	"climacan/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger("climacan-scheduler", cfg)

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting ClimaCan scheduler", logging.Fields{
		"version":      app.Version,
		"run_at_start": cfg.Schedule.RunAtStart,
		"timezone":     cfg.AEMET.Timezone,
	})

	metricsCollector := metrics.NewCollector("climacan", prometheus.DefaultRegisterer)

	a, err := app.New(cfg, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to initialize", logging.Fields{}, err)
	}
	defer a.Close()

	loc, _ := time.LoadLocation(cfg.AEMET.Timezone)
	s := scheduler.New(a.Manager, loc, cfg.Schedule.RunAtStart, logger)

	// Registration order is the run-at-start order: the catalogs go first so
	// the ingestion tasks see them.
	specs := cfg.Schedule.Specs()
	for _, name := range []string{
		tasks.Municipalities,
		tasks.GrafcanStations,
		tasks.Predictions,
		tasks.ConventionalObservations,
		tasks.GrafcanObservations,
	} {
		task, err := tasks.Lookup(a.Tasks, name)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Unknown task", logging.Fields{}, err)
		}
		if err := s.Add(task, specs[name]); err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to schedule task", logging.Fields{"task": name}, err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Schedule.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(ctx, "[METRICS_START] Metrics server listening", logging.Fields{
			"address": metricsServer.Addr,
		})
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "[METRICS_ERROR] Metrics server failed", logging.Fields{}, err)
		}
	}()

	s.Start()
	for name, at := range s.NextRuns() {
		logger.Info(ctx, "[SCHEDULER_NEXT_RUN] Next run", logging.Fields{
			"task":     name,
			"next_run": at.Format(time.RFC3339),
		})
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Stopping scheduler...", logging.Fields{})
	s.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Metrics server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Scheduler stopped", logging.Fields{})
}
