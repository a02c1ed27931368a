package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"climacan/internal/app"
	"climacan/internal/config"
	"climacan/internal/tasks"
	"climacan/pkg/logging"
	"climacan/pkg/metrics"
)

func main() {
	// Parse command-line flags
	taskName := flag.String("task", "", "Task to run once: "+strings.Join([]string{
		tasks.Municipalities,
		tasks.Predictions,
		tasks.ConventionalObservations,
		tasks.GrafcanStations,
		tasks.GrafcanObservations,
	}, ", "))
	flag.Parse()

	if *taskName == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger("climacan-ingester", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[INGESTER_START] Starting one-off task", logging.Fields{
		"version": app.Version,
		"task":    *taskName,
	})

	metricsCollector := metrics.NewCollector("climacan_ingester", prometheus.NewRegistry())

	a, err := app.New(cfg, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to initialize", logging.Fields{}, err)
	}

	task, err := tasks.Lookup(a.Tasks, *taskName)
	if err != nil {
		a.Close()
		logger.Fatal(ctx, "[INGESTER_ERROR] Unknown task", logging.Fields{}, err)
	}

	run := a.Manager.Execute(ctx, task)

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("TASK COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Task:     %s\n", run.Task)
	fmt.Printf("Run ID:   %s\n", run.ID)
	fmt.Printf("Success:  %t\n", run.Success)
	fmt.Printf("Duration: %v\n", run.Duration())
	if run.Error != "" {
		fmt.Printf("\nErrors:\n")
		lines := strings.Split(run.Error, "\n")
		for i, line := range lines {
			if i == 10 {
				fmt.Printf("  ... and %d more errors\n", len(lines)-10)
				break
			}
			fmt.Printf("  - %s\n", line)
		}
	}

	if err := a.Close(); err != nil {
		logger.Error(ctx, "[INGESTER_ERROR] Failed to close stores", logging.Fields{}, err)
	}
	if !run.Success {
		os.Exit(1)
	}
}
