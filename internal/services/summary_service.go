package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"climacan/internal/models"
	"climacan/internal/repository"
	"climacan/pkg/logging"
	"climacan/pkg/metrics"
)

// SummaryService aggregates stored series
type SummaryService struct {
	repo    repository.SeriesRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewSummaryService creates a new summary service
func NewSummaryService(repo repository.SeriesRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SummaryService {
	return &SummaryService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Summarize aggregates the numeric fields of one series over a window
func (s *SummaryService) Summarize(ctx context.Context, filter repository.SeriesFilter) (*models.SeriesSummary, error) {
	if err := validateSeriesFilter(filter); err != nil {
		return nil, err
	}
	return s.repo.SummarizeSeries(ctx, filter)
}

// SummarizeDatabase aggregates every series of a database. Series with no
// point in the window are left out, as are series that fail.
func (s *SummaryService) SummarizeDatabase(ctx context.Context, database string, from, to *time.Time) ([]*models.SeriesSummary, error) {
	startTime := time.Now()

	series, err := s.repo.ListSeries(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}

	summaries := make([]*models.SeriesSummary, 0, len(series))
	for _, info := range series {
		summary, err := s.repo.SummarizeSeries(ctx, repository.SeriesFilter{
			Database: info.Database,
			Series:   info.Series,
			From:     from,
			To:       to,
		})
		var notFound *repository.NotFoundError
		if errors.As(err, &notFound) {
			continue
		}
		if err != nil {
			s.logger.Error(ctx, "[SUMMARY_ERROR] Failed to summarize series", logging.Fields{
				"database": info.Database,
				"series":   info.Series,
			}, err)
			continue
		}
		summaries = append(summaries, summary)
	}

	s.logger.Info(ctx, "[SUMMARY_COMPLETE] Database summarized", logging.Fields{
		"database":    database,
		"series":      len(series),
		"summarized":  len(summaries),
		"duration_ms": time.Since(startTime).Milliseconds(),
	})
	return summaries, nil
}
