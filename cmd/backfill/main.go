package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"climacan/internal/app"
	"climacan/internal/config"
	"climacan/internal/grafcan"
	"climacan/internal/services"
	"climacan/pkg/logging"
	"climacan/pkg/metrics"
)

const dateLayout = "2006-01-02"

func main() {
	// Parse command-line flags
	thingID := flag.Int64("thing", 0, "Grafcan thing id of the station")
	variable := flag.String("variable", services.AllVariables, "Datastream name or id, or ALL")
	fromDate := flag.String("from", "", "First day to load (YYYY-MM-DD)")
	toDate := flag.String("to", "", "Last day to load (YYYY-MM-DD)")
	pageSize := flag.Int("page-size", grafcan.DefaultPageSize, "Observations per API page")
	listVariables := flag.Bool("list-variables", false, "List the station datastreams and exit")
	flag.Parse()

	if *thingID <= 0 {
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

	logger := app.NewLogger("climacan-backfill", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger, metrics.NewCollector("climacan_backfill", prometheus.NewRegistry()))
	if err != nil {
		logger.Fatal(ctx, "[BACKFILL_ERROR] Failed to initialize", logging.Fields{}, err)
	}
	defer a.Close()

	if *listVariables {
		streams, err := a.Grafcan.Datastreams(ctx, *thingID)
		if err != nil {
			logger.Fatal(ctx, "[BACKFILL_ERROR] Failed to list datastreams", logging.Fields{"thing_id": *thingID}, err)
		}
		for _, ds := range streams {
			fmt.Printf("%-8d %-40s %s\n", ds.ID, ds.Name, ds.Unit)
		}
		return
	}

	from, err := time.Parse(dateLayout, *fromDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid -from date %q, want YYYY-MM-DD\n", *fromDate)
		os.Exit(2)
	}
	to, err := time.Parse(dateLayout, *toDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid -to date %q, want YYYY-MM-DD\n", *toDate)
		os.Exit(2)
	}

	logger.Info(ctx, "[BACKFILL_START] Starting Grafcan backfill", logging.Fields{
		"version":  app.Version,
		"thing_id": *thingID,
		"variable": *variable,
		"from":     *fromDate,
		"to":       *toDate,
	})

	result, err := a.Grafcan.Backfill(ctx, services.BackfillRequest{
		ThingID:  *thingID,
		Variable: *variable,
		From:     from,
		To:       to,
		PageSize: *pageSize,
	})
	if result == nil {
		logger.Fatal(ctx, "[BACKFILL_ERROR] Backfill failed", logging.Fields{"thing_id": *thingID}, err)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("BACKFILL COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Datastreams: %d\n", result.Datastreams)
	fmt.Printf("Months:      %d\n", result.Windows)
	fmt.Printf("Points:      %d\n", result.Points)
	fmt.Printf("Failed:      %d\n", result.Failed)
	fmt.Printf("Duration:    %v\n", result.Duration)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("\nInterrupted")
		} else {
			fmt.Printf("\nErrors:\n")
			for _, line := range strings.Split(err.Error(), "\n") {
				fmt.Printf("  - %s\n", line)
			}
		}
		a.Close()
		os.Exit(1)
	}
}
