package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"climacan/internal/forecast"
	"climacan/internal/models"
	"climacan/internal/repository"
	"climacan/pkg/logging"
	"climacan/pkg/metrics"
)

// PredictionConfig tunes forecast ingestion.
type PredictionConfig struct {
	// MaxRetries bounds the fetch and build attempts per municipality.
	MaxRetries int
	// Backoff is the base delay; attempt n waits Backoff * n * 2.5.
	Backoff time.Duration
	// Location is the zone of the forecast base dates.
	Location *time.Location
}

// PredictionService ingests hourly municipality forecasts
type PredictionService struct {
	source  PredictionSource
	catalog repository.CatalogRepository
	series  repository.SeriesRepository
	cfg     PredictionConfig
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	sleep   func(ctx context.Context, d time.Duration) error
}

// TableResult reports the write of one forecast table.
type TableResult struct {
	Date        string
	Measurement string
	Points      int
	Err         error
}

// PredictionResult reports the ingestion of one municipality.
type PredictionResult struct {
	Municipality string
	Name         string
	Attempts     int
	Tables       []TableResult
	Skipped      []forecast.Skipped
	// BuildErr holds measurements that could not be tabulated while the rest
	// of the forecast was written.
	BuildErr error
}

// Written returns the number of tables stored.
func (r *PredictionResult) Written() int {
	n := 0
	for _, t := range r.Tables {
		if t.Err == nil {
			n++
		}
	}
	return n
}

// PredictionRunResult summarizes a run over the whole catalog.
type PredictionRunResult struct {
	Succeeded      int
	Failed         int
	Municipalities []*PredictionResult
	Duration       time.Duration
}

// NewPredictionService creates a new prediction service
func NewPredictionService(source PredictionSource, catalog repository.CatalogRepository, series repository.SeriesRepository, cfg PredictionConfig, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *PredictionService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &PredictionService{
		source:  source,
		catalog: catalog,
		series:  series,
		cfg:     cfg,
		logger:  logger,
		metrics: metricsCollector,
		sleep:   sleepContext,
	}
}

// IngestAll ingests the forecast of every catalog municipality. A failing
// municipality does not stop the run; the run fails only when none succeeds.
func (s *PredictionService) IngestAll(ctx context.Context) (*PredictionRunResult, error) {
	startTime := time.Now()

	municipalities, err := s.catalog.ListMunicipalities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list municipalities: %w", err)
	}
	if len(municipalities) == 0 {
		return nil, errors.New("municipality catalog is empty")
	}

	s.logger.Info(ctx, "[PREDICTION_START] Starting forecast ingestion", logging.Fields{
		"municipalities": len(municipalities),
		"stage":          "INITIALIZATION",
	})

	result := &PredictionRunResult{}
	for _, m := range municipalities {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		r, err := s.IngestMunicipality(ctx, m)
		result.Municipalities = append(result.Municipalities, r)
		if err != nil {
			result.Failed++
			s.logger.Error(ctx, "[PREDICTION_MUNICIPALITY_ERROR] Municipality forecast failed", logging.Fields{
				"municipality_id": m.ID,
				"municipality":    m.Name,
				"attempts":        r.Attempts,
			}, err)
			continue
		}
		result.Succeeded++
	}

	result.Duration = time.Since(startTime)
	s.metrics.IngestionDuration.WithLabelValues(sourcePrediction).Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[PREDICTION_COMPLETE] Forecast ingestion completed", logging.Fields{
		"succeeded":        result.Succeeded,
		"failed":           result.Failed,
		"duration_seconds": result.Duration.Seconds(),
		"stage":            "COMPLETE",
	})

	if result.Succeeded == 0 {
		return result, fmt.Errorf("no municipality forecast ingested (%d failed)", result.Failed)
	}
	return result, nil
}

// IngestMunicipality fetches, normalizes and stores the forecast of one
// municipality. Fetch and build failures are retried; write failures are not.
func (s *PredictionService) IngestMunicipality(ctx context.Context, m *models.Municipality) (*PredictionResult, error) {
	log := s.logger.WithFields(logging.Fields{
		"municipality_id": m.ID,
		"municipality":    m.Name,
	})
	result := &PredictionResult{Municipality: m.ID, Name: m.Name}

	var f *forecast.Forecast
	for attempt := 1; ; attempt++ {
		result.Attempts = attempt

		var err error
		f, err = s.buildForecast(ctx, m, result)
		if err == nil {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}

		s.metrics.RecordIngestionError(sourcePrediction, "fetch_error")
		if attempt >= s.cfg.MaxRetries {
			return result, fmt.Errorf("municipality %s: giving up after %d attempts: %w", m.ID, attempt, err)
		}

		wait := time.Duration(float64(s.cfg.Backoff) * float64(attempt) * 2.5)
		log.Warn(ctx, "[PREDICTION_RETRY] Forecast attempt failed", logging.Fields{
			"attempt":     attempt,
			"max_retries": s.cfg.MaxRetries,
			"wait_ms":     wait.Milliseconds(),
		}, err)
		if err := s.sleep(ctx, wait); err != nil {
			return result, err
		}
	}

	result.Skipped = f.Skipped
	for _, sk := range f.Skipped {
		s.metrics.TablesSkippedTotal.WithLabelValues(sk.Measurement).Inc()
	}
	for _, me := range measurementErrors(result.BuildErr) {
		s.metrics.TablesFailedTotal.WithLabelValues(me.Measurement).Inc()
		log.Warn(ctx, "[PREDICTION_MEASUREMENT_ERROR] Measurement could not be tabulated", logging.Fields{
			"date":        me.Date,
			"measurement": me.Measurement,
		}, me.Err)
	}

	var writeErrs []error
	for _, t := range f.Tables() {
		points := tablePoints(m.Name, forecast.CoerceNumeric(t))
		tr := TableResult{Date: t.Date, Measurement: t.Measurement, Points: len(points)}

		if err := s.series.WriteSeries(ctx, points); err != nil {
			tr.Err = err
			writeErrs = append(writeErrs, fmt.Errorf("table %s on %s: %w", t.Measurement, t.Date, err))
			s.metrics.TablesFailedTotal.WithLabelValues(t.Measurement).Inc()
			s.metrics.RecordIngestionError(sourcePrediction, "write_error")
			log.Error(ctx, "[PREDICTION_WRITE_ERROR] Failed to write table", logging.Fields{
				"date":        t.Date,
				"measurement": t.Measurement,
				"points":      len(points),
			}, err)
		} else {
			s.metrics.TablesBuiltTotal.WithLabelValues(t.Measurement).Inc()
			s.metrics.IngestionPointsTotal.WithLabelValues(sourcePrediction).Add(float64(len(points)))
		}
		result.Tables = append(result.Tables, tr)
	}

	log.Info(ctx, "[PREDICTION_MUNICIPALITY] Municipality forecast stored", logging.Fields{
		"tables":   result.Written(),
		"failed":   len(writeErrs),
		"skipped":  len(result.Skipped),
		"attempts": result.Attempts,
	})

	return result, errors.Join(writeErrs...)
}

// buildForecast fetches and tabulates one forecast. Partial build failures
// are kept in result.BuildErr and do not fail the attempt.
func (s *PredictionService) buildForecast(ctx context.Context, m *models.Municipality, result *PredictionResult) (*forecast.Forecast, error) {
	p, err := s.source.HourlyPrediction(ctx, m.ID)
	if err != nil {
		return nil, err
	}

	origin := p.URL
	if origin == "" {
		origin = m.ID
	}
	builder := forecast.NewBuilder(origin)
	builder.Location = s.cfg.Location

	f, err := builder.Build(p.Days)
	if err != nil && f.Len() == 0 {
		return nil, err
	}
	result.BuildErr = err
	return f, nil
}

// measurementErrors collects the MeasurementErrors of a joined build error.
func measurementErrors(err error) []*forecast.MeasurementError {
	if err == nil {
		return nil
	}
	var out []*forecast.MeasurementError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, measurementErrors(e)...)
		}
		return out
	}
	var me *forecast.MeasurementError
	if errors.As(err, &me) {
		out = append(out, me)
	}
	return out
}
