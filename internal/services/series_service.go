package services

import (
	"context"

	"climacan/internal/models"
	"climacan/internal/repository"
	"climacan/pkg/logging"
	"climacan/pkg/metrics"
)

// SeriesService handles series read operations
type SeriesService struct {
	repo    repository.SeriesRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewSeriesService creates a new series service
func NewSeriesService(repo repository.SeriesRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SeriesService {
	return &SeriesService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// QuerySeries retrieves points of one series with filtering
func (s *SeriesService) QuerySeries(ctx context.Context, filter repository.SeriesFilter) ([]models.SeriesPoint, int, error) {
	if err := validateSeriesFilter(filter); err != nil {
		return nil, 0, err
	}
	return s.repo.QuerySeries(ctx, filter)
}

// ListSeries lists stored series, optionally within one database
func (s *SeriesService) ListSeries(ctx context.Context, database string) ([]*models.SeriesInfo, error) {
	return s.repo.ListSeries(ctx, database)
}

// HealthCheck checks the backing store
func (s *SeriesService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}

func validateSeriesFilter(filter repository.SeriesFilter) error {
	switch {
	case filter.Database == "":
		return &models.ValidationError{Field: "database", Message: "database is required"}
	case filter.Series == "":
		return &models.ValidationError{Field: "series", Message: "series is required"}
	case filter.From != nil && filter.To != nil && filter.To.Before(*filter.From):
		return &models.ValidationError{Field: "to", Value: filter.To.String(), Message: "end of window is before its start"}
	}
	return nil
}
