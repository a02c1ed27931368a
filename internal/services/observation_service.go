package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"climacan/internal/models"
	"climacan/internal/repository"
	"climacan/pkg/logging"
	"climacan/pkg/metrics"
)

// ObservationService ingests AEMET conventional station observations
type ObservationService struct {
	source  ObservationSource
	series  repository.SeriesRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// ObservationResult contains ingestion statistics
type ObservationResult struct {
	TotalRecords   int
	CanaryRecords  int
	InvalidRecords int
	Locations      int
	FailedWrites   int
	Points         int
	Duration       time.Duration
}

// NewObservationService creates a new observation service
func NewObservationService(source ObservationSource, series repository.SeriesRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ObservationService {
	return &ObservationService{
		source:  source,
		series:  series,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// IngestConventional stores the latest observation of every Canary station,
// one series per normalized station location.
func (s *ObservationService) IngestConventional(ctx context.Context) (*ObservationResult, error) {
	startTime := time.Now()

	records, err := s.source.ConventionalObservations(ctx)
	if err != nil {
		s.metrics.RecordIngestionError(sourceObservation, "fetch_error")
		return nil, fmt.Errorf("failed to fetch conventional observations: %w", err)
	}

	result := &ObservationResult{TotalRecords: len(records)}
	byLocation := make(map[string][]models.SeriesPoint)

	for _, r := range records {
		if !r.IsCanary() {
			continue
		}
		result.CanaryRecords++

		obs, err := r.ToObservation()
		if err != nil {
			result.InvalidRecords++
			s.metrics.RecordIngestionError(sourceObservation, "conversion_error")
			s.logger.Warn(ctx, "[OBSERVATION_INVALID] Skipping observation record", logging.Fields{
				"idema": r.Idema(),
				"error": err.Error(),
			})
			continue
		}

		p := models.SeriesPoint{
			Database: ConventionalObservationsDatabase,
			Series:   obs.Location,
			Time:     obs.Time,
			Fields:   obs.Fields,
			Tags:     map[string]string{"idema": obs.Idema},
		}
		if !p.DropNullFields() {
			result.InvalidRecords++
			continue
		}
		byLocation[obs.Location] = append(byLocation[obs.Location], p)
	}

	if len(byLocation) == 0 {
		return result, errors.New("no Canary station observation to store")
	}

	locations := make([]string, 0, len(byLocation))
	for loc := range byLocation {
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	var writeErrs []error
	for _, loc := range locations {
		points := byLocation[loc]
		if err := s.series.WriteSeries(ctx, points); err != nil {
			result.FailedWrites++
			writeErrs = append(writeErrs, fmt.Errorf("location %s: %w", loc, err))
			s.metrics.RecordIngestionError(sourceObservation, "write_error")
			s.logger.Error(ctx, "[OBSERVATION_WRITE_ERROR] Failed to write station series", logging.Fields{
				"location": loc,
				"points":   len(points),
			}, err)
			continue
		}
		result.Locations++
		result.Points += len(points)
	}
	s.metrics.IngestionPointsTotal.WithLabelValues(sourceObservation).Add(float64(result.Points))

	result.Duration = time.Since(startTime)
	s.metrics.IngestionDuration.WithLabelValues(sourceObservation).Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[OBSERVATION_COMPLETE] Conventional observations stored", logging.Fields{
		"total_records":   result.TotalRecords,
		"canary_records":  result.CanaryRecords,
		"invalid_records": result.InvalidRecords,
		"locations":       result.Locations,
		"failed_writes":   result.FailedWrites,
		"points":          result.Points,
		"duration_ms":     result.Duration.Milliseconds(),
	})

	if result.Locations == 0 {
		return result, fmt.Errorf("no station series written: %w", errors.Join(writeErrs...))
	}
	return result, nil
}
