package services

import (
	"context"
	"time"

	"climacan/internal/aemet"
	"climacan/internal/forecast"
	"climacan/internal/grafcan"
	"climacan/internal/models"
)

// Databases the ingestion services write to. Forecasts use one database per
// municipality, named after it.
const (
	ConventionalObservationsDatabase = "aemet_conventional_observations"
	GrafcanDatabase                  = "grafcan"
)

// Source labels for ingestion metrics.
const (
	sourcePrediction  = "aemet_prediction"
	sourceObservation = "aemet_observation"
	sourceGrafcan     = "grafcan"
)

// PredictionSource fetches hourly municipality forecasts.
type PredictionSource interface {
	HourlyPrediction(ctx context.Context, municipality string) (*aemet.Prediction, error)
}

// ObservationSource fetches the latest conventional observations of every
// AEMET station.
type ObservationSource interface {
	ConventionalObservations(ctx context.Context) ([]aemet.StationRecord, error)
}

// MunicipalitySource fetches the AEMET municipality master list.
type MunicipalitySource interface {
	Municipalities(ctx context.Context) ([]aemet.MunicipalityRecord, error)
}

// StationSource reads the Grafcan station network.
type StationSource interface {
	HistoricalStations(ctx context.Context) ([]models.Station, error)
	LastObservations(ctx context.Context, thingID int64) ([]models.SeriesPoint, error)
	Datastreams(ctx context.Context, thingID int64) ([]grafcan.Datastream, error)
	Observations(ctx context.Context, datastreamID int64, w grafcan.Window, pageSize int) ([]grafcan.Observation, error)
}

// DatasourceWriter publishes one dashboard datasource per database.
type DatasourceWriter interface {
	WriteDatasources(databases []string) error
}

// tablePoints turns a forecast table into series points. Missing fields are
// dropped; list fields are stored as JSON arrays.
func tablePoints(database string, t *forecast.Table) []models.SeriesPoint {
	points := make([]models.SeriesPoint, 0, len(t.Rows))
	for _, row := range t.Rows {
		fields := make(map[string]any, len(row.Fields))
		for name, f := range row.Fields {
			switch {
			case f.Missing():
				continue
			case f.IsList():
				fields[name] = f.Values()
			default:
				fields[name] = f.Value()
			}
		}
		if len(fields) == 0 {
			continue
		}
		points = append(points, models.SeriesPoint{
			Database: database,
			Series:   t.Measurement,
			Time:     row.Timestamp,
			Fields:   fields,
		})
	}
	return points
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
