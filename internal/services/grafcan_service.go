package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"climacan/internal/grafcan"
	"climacan/internal/models"
	"climacan/internal/repository"
	"climacan/pkg/logging"
	"climacan/pkg/metrics"
)

// GrafcanService keeps the Grafcan station catalog and ingests the latest
// station observations
type GrafcanService struct {
	source  StationSource
	catalog repository.CatalogRepository
	series  repository.SeriesRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// GrafcanResult contains per-run station statistics
type GrafcanResult struct {
	Stations int
	Written  int
	Skipped  int
	Failed   int
	Points   int
	Duration time.Duration
}

// NewGrafcanService creates a new Grafcan service
func NewGrafcanService(source StationSource, catalog repository.CatalogRepository, series repository.SeriesRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *GrafcanService {
	return &GrafcanService{
		source:  source,
		catalog: catalog,
		series:  series,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// RefreshStations reloads the station catalog from the historical locations.
func (s *GrafcanService) RefreshStations(ctx context.Context) (int, error) {
	stations, err := s.source.HistoricalStations(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch stations: %w", err)
	}
	if len(stations) == 0 {
		return 0, errors.New("grafcan returned no station")
	}

	ptrs := make([]*models.Station, len(stations))
	for i := range stations {
		ptrs[i] = &stations[i]
	}
	if err := s.catalog.UpsertStations(ctx, ptrs); err != nil {
		return 0, fmt.Errorf("failed to store stations: %w", err)
	}

	s.logger.Info(ctx, "[GRAFCAN_STATIONS] Station catalog refreshed", logging.Fields{
		"stations": len(stations),
	})
	return len(stations), nil
}

// IngestLastObservations stores the latest observation of every catalog
// station. Stations that fail or report nothing are logged and skipped.
func (s *GrafcanService) IngestLastObservations(ctx context.Context) (*GrafcanResult, error) {
	startTime := time.Now()

	stations, err := s.catalog.ListStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	if len(stations) == 0 {
		return nil, errors.New("station catalog is empty")
	}

	result := &GrafcanResult{Stations: len(stations)}
	for _, st := range stations {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		n, err := s.ingestStation(ctx, st)
		switch {
		case errors.Is(err, grafcan.ErrNoData) || (err == nil && n == 0):
			result.Skipped++
			s.logger.Warn(ctx, "[GRAFCAN_NO_DATA] Station reported no observation", logging.Fields{
				"thing_id": st.ThingID,
				"location": st.LocationName,
			})
		case err != nil:
			result.Failed++
			s.metrics.RecordIngestionError(sourceGrafcan, "station_error")
			s.logger.Error(ctx, "[GRAFCAN_STATION_ERROR] Station ingestion failed", logging.Fields{
				"thing_id": st.ThingID,
				"location": st.LocationName,
			}, err)
		default:
			result.Written++
			result.Points += n
		}
	}
	s.metrics.IngestionPointsTotal.WithLabelValues(sourceGrafcan).Add(float64(result.Points))

	result.Duration = time.Since(startTime)
	s.metrics.IngestionDuration.WithLabelValues(sourceGrafcan).Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[GRAFCAN_COMPLETE] Last observations stored", logging.Fields{
		"stations":    result.Stations,
		"written":     result.Written,
		"skipped":     result.Skipped,
		"failed":      result.Failed,
		"points":      result.Points,
		"duration_ms": result.Duration.Milliseconds(),
	})

	if result.Written == 0 {
		return result, fmt.Errorf("no station observation written (%d skipped, %d failed)", result.Skipped, result.Failed)
	}
	return result, nil
}

func (s *GrafcanService) ingestStation(ctx context.Context, st *models.Station) (int, error) {
	points, err := s.source.LastObservations(ctx, st.ThingID)
	if err != nil {
		return 0, err
	}

	series := models.NormalizeMeasurement(st.LocationName)
	if series == "" {
		series = fmt.Sprintf("thing_%d", st.ThingID)
	}

	kept := points[:0]
	for _, p := range points {
		p.Database = GrafcanDatabase
		p.Series = series
		p.Tags = st.Tags()
		if !p.DropNullFields() {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return 0, nil
	}

	if err := s.series.WriteSeries(ctx, kept); err != nil {
		return 0, err
	}
	return len(kept), nil
}
