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

// MunicipalityService maintains the Canary municipality catalog
type MunicipalityService struct {
	source      MunicipalitySource
	catalog     repository.CatalogRepository
	datasources DatasourceWriter
	logger      *logging.StructuredLogger
	metrics     *metrics.Collector
	now         func() time.Time
}

// RefreshResult contains catalog refresh statistics
type RefreshResult struct {
	Fetched int
	Kept    int
	Invalid int
}

// NewMunicipalityService creates a new municipality service. datasources may
// be nil to skip dashboard provisioning.
func NewMunicipalityService(source MunicipalitySource, catalog repository.CatalogRepository, datasources DatasourceWriter, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *MunicipalityService {
	return &MunicipalityService{
		source:      source,
		catalog:     catalog,
		datasources: datasources,
		logger:      logger,
		metrics:     metricsCollector,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Refresh replaces the catalog with the Canary municipalities of the AEMET
// master list and regenerates the dashboard datasources.
func (s *MunicipalityService) Refresh(ctx context.Context) (*RefreshResult, error) {
	records, err := s.source.Municipalities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch municipalities: %w", err)
	}

	now := s.now()
	result := &RefreshResult{Fetched: len(records)}
	municipalities := make([]*models.Municipality, 0, len(records))
	seen := make(map[string]bool)

	for _, r := range records {
		if !r.IsCanary() {
			continue
		}
		m, err := r.ToMunicipality(now)
		if err != nil {
			result.Invalid++
			s.logger.Warn(ctx, "[MUNICIPALITY_INVALID] Skipping municipality record", logging.Fields{
				"id":    r.ID,
				"error": err.Error(),
			})
			continue
		}
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		municipalities = append(municipalities, m)
	}
	if len(municipalities) == 0 {
		return result, errors.New("master list has no Canary municipality")
	}

	if err := s.catalog.ReplaceMunicipalities(ctx, municipalities); err != nil {
		return result, fmt.Errorf("failed to store municipalities: %w", err)
	}
	result.Kept = len(municipalities)

	if s.datasources != nil {
		names := make([]string, len(municipalities))
		for i, m := range municipalities {
			names[i] = m.Name
		}
		if err := s.datasources.WriteDatasources(names); err != nil {
			return result, fmt.Errorf("failed to provision datasources: %w", err)
		}
	}

	s.logger.Info(ctx, "[MUNICIPALITY_REFRESH] Municipality catalog refreshed", logging.Fields{
		"fetched": result.Fetched,
		"kept":    result.Kept,
		"invalid": result.Invalid,
	})
	return result, nil
}

// List returns the stored catalog.
func (s *MunicipalityService) List(ctx context.Context) ([]*models.Municipality, error) {
	return s.catalog.ListMunicipalities(ctx)
}

// Get returns one municipality by INE code.
func (s *MunicipalityService) Get(ctx context.Context, id string) (*models.Municipality, error) {
	return s.catalog.GetMunicipality(ctx, id)
}
