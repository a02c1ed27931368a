package tasks

import (
	"context"
	"fmt"
	"sort"

	"climacan/internal/services"
)

// Task names, also used as schedule keys.
const (
	Municipalities           = "municipalities"
	Predictions              = "predictions"
	ConventionalObservations = "conventional_observations"
	GrafcanStations          = "grafcan_stations"
	GrafcanObservations      = "grafcan_observations"
)

// Status databases and measurements the runs are reported under.
const (
	aemetStatusDatabase      = "aemet_tasks"
	aemetStatusMeasurement   = "main_aemet"
	grafcanStatusDatabase    = "grafcan_tasks"
	grafcanStatusMeasurement = "tasks_status"
)

// Services are the jobs the catalog wires into tasks.
type Services struct {
	Municipalities *services.MunicipalityService
	Predictions    *services.PredictionService
	Observations   *services.ObservationService
	Grafcan        *services.GrafcanService
}

// Catalog returns every task keyed by name.
func Catalog(svc Services) map[string]Task {
	return map[string]Task{
		Municipalities: {
			Name:        Municipalities,
			Database:    aemetStatusDatabase,
			Measurement: aemetStatusMeasurement,
			Field:       "task_success_update_canary_municipalities",
			Run: func(ctx context.Context) error {
				_, err := svc.Municipalities.Refresh(ctx)
				return err
			},
		},
		Predictions: {
			Name:        Predictions,
			Database:    aemetStatusDatabase,
			Measurement: aemetStatusMeasurement,
			Field:       "task_success_canary_aemet_prediction",
			Run: func(ctx context.Context) error {
				_, err := svc.Predictions.IngestAll(ctx)
				return err
			},
		},
		ConventionalObservations: {
			Name:        ConventionalObservations,
			Database:    aemetStatusDatabase,
			Measurement: aemetStatusMeasurement,
			Field:       "task_success_get_conventional_observations",
			Run: func(ctx context.Context) error {
				_, err := svc.Observations.IngestConventional(ctx)
				return err
			},
		},
		GrafcanStations: {
			Name:        GrafcanStations,
			Database:    grafcanStatusDatabase,
			Measurement: grafcanStatusMeasurement,
			Field:       "task_success_update_historical_locations",
			Run: func(ctx context.Context) error {
				_, err := svc.Grafcan.RefreshStations(ctx)
				return err
			},
		},
		GrafcanObservations: {
			Name:        GrafcanObservations,
			Database:    grafcanStatusDatabase,
			Measurement: grafcanStatusMeasurement,
			Field:       "task_success_write_last_observations",
			Run: func(ctx context.Context) error {
				_, err := svc.Grafcan.IngestLastObservations(ctx)
				return err
			},
		},
	}
}

// Names returns the task names of a catalog in order.
func Names(catalog map[string]Task) []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named task or an error listing the known names.
func Lookup(catalog map[string]Task, name string) (Task, error) {
	task, ok := catalog[name]
	if !ok {
		return Task{}, fmt.Errorf("unknown task %q (known: %v)", name, Names(catalog))
	}
	return task, nil
}
