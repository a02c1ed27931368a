package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"climacan/internal/aemet"
	"climacan/internal/forecast"
	"climacan/pkg/logging"
)

// forecast-dump normalizes a saved AEMET hourly prediction document without
// touching any store and prints the resulting tables.
func main() {
	file := flag.String("file", "-", "Prediction data document to read, - for stdin")
	tz := flag.String("tz", "Atlantic/Canary", "Zone of the forecast base dates")
	rows := flag.Int("rows", 3, "Rows to print per table, 0 for all")
	flag.Parse()

	logger := logging.NewStructuredLogger("forecast-dump", "1.0.0", logging.WarnLevel)
	ctx := context.Background()

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		logger.Fatal(ctx, "[DUMP_ERROR] Invalid timezone", logging.Fields{"tz": *tz}, err)
	}

	raw, err := readInput(*file)
	if err != nil {
		logger.Fatal(ctx, "[DUMP_ERROR] Failed to read document", logging.Fields{"file": *file}, err)
	}

	prediction, err := aemet.DecodePrediction(raw)
	if err != nil {
		logger.Fatal(ctx, "[DUMP_ERROR] Failed to decode prediction", logging.Fields{"file": *file}, err)
	}

	builder := forecast.NewBuilder(*file)
	builder.Location = loc
	fc, buildErr := builder.Build(prediction.Days)

	var noData *forecast.NoProcessableDataError
	if errors.As(buildErr, &noData) {
		logger.Fatal(ctx, "[DUMP_ERROR] Nothing to tabulate", logging.Fields{"file": *file}, buildErr)
	}

	fmt.Println(strings.Repeat("═", 64))
	fmt.Printf("FORECAST %s (%s, %s)\n", prediction.Name, prediction.Municipality, prediction.Province)
	fmt.Printf("Elaborated: %s\n", prediction.Elaborated)
	fmt.Println(strings.Repeat("═", 64))

	for _, table := range fc.Tables() {
		fmt.Printf("\n%s %s: %d rows\n", table.Date, table.Measurement, table.Len())
		fmt.Println(strings.Repeat("─", 64))
		for i, row := range table.Rows {
			if *rows > 0 && i == *rows {
				fmt.Printf("  ... %d more\n", table.Len()-i)
				break
			}
			fmt.Printf("  %s  %s\n", row.Timestamp.Format(time.RFC3339), formatFields(row.Fields))
		}
	}

	if len(fc.Skipped) > 0 {
		fmt.Printf("\nSkipped (%d):\n", len(fc.Skipped))
		for _, s := range fc.Skipped {
			fmt.Printf("  - %s %s: %s\n", s.Date, s.Measurement, s.Reason)
		}
	}

	if buildErr != nil {
		fmt.Printf("\nFailed measurements:\n")
		for _, line := range strings.Split(buildErr.Error(), "\n") {
			fmt.Printf("  - %s\n", line)
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("═", 64))
	fmt.Printf("Tables: %d | Skipped: %d\n", fc.Len(), len(fc.Skipped))
	fmt.Println(strings.Repeat("═", 64))
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func formatFields(fields map[string]forecast.Field) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		f := fields[name]
		switch {
		case f.Missing():
			parts = append(parts, name+"=NULL")
		case f.IsList():
			parts = append(parts, fmt.Sprintf("%s=%v", name, f.Values()))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", name, f.Value()))
		}
	}
	return strings.Join(parts, " | ")
}
