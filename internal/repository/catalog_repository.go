package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"climacan/internal/models"
	"climacan/pkg/database"
	"climacan/pkg/logging"
	"climacan/pkg/metrics"
)

// CatalogRepository provides data access for the municipality and station
// catalogs
type CatalogRepository interface {
	// Municipality operations
	ReplaceMunicipalities(ctx context.Context, municipalities []*models.Municipality) error
	ListMunicipalities(ctx context.Context) ([]*models.Municipality, error)
	GetMunicipality(ctx context.Context, id string) (*models.Municipality, error)

	// Station operations
	UpsertStations(ctx context.Context, stations []*models.Station) error
	ListStations(ctx context.Context) ([]*models.Station, error)
}

// catalogRepository implements CatalogRepository
type catalogRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) CatalogRepository {
	return &catalogRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

const municipalityColumns = `id, name, capital, population, altitude, latitude, longitude, region, updated_at`

// ReplaceMunicipalities swaps the whole municipality table in one transaction
func (r *catalogRepository) ReplaceMunicipalities(ctx context.Context, municipalities []*models.Municipality) error {
	if len(municipalities) == 0 {
		return &models.ValidationError{Field: "municipalities", Message: "refusing to replace the catalog with an empty list"}
	}
	for _, m := range municipalities {
		if err := m.Validate(); err != nil {
			return err
		}
	}

	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM municipalities"); err != nil {
			return fmt.Errorf("failed to clear municipalities: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO municipalities (`+municipalityColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, m := range municipalities {
			_, err := stmt.ExecContext(ctx,
				m.ID,
				m.Name,
				m.Capital,
				m.Population,
				m.Altitude,
				m.Latitude,
				m.Longitude,
				m.Region,
				m.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert municipality %s: %w", m.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		r.metrics.RecordDBError("replace_municipalities_error")
		return err
	}

	r.logger.Info(ctx, "[REPO_MUNICIPALITIES] Municipality catalog replaced", logging.Fields{
		"count": len(municipalities),
	})
	return nil
}

// ListMunicipalities retrieves every municipality ordered by id
func (r *catalogRepository) ListMunicipalities(ctx context.Context) ([]*models.Municipality, error) {
	var municipalities []*models.Municipality
	err := r.db.SelectContext(ctx, "list_municipalities", &municipalities,
		"SELECT "+municipalityColumns+" FROM municipalities ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list municipalities: %w", err)
	}
	return municipalities, nil
}

// GetMunicipality retrieves a municipality by INE code
func (r *catalogRepository) GetMunicipality(ctx context.Context, id string) (*models.Municipality, error) {
	var m models.Municipality
	err := r.db.GetContext(ctx, "get_municipality", &m,
		"SELECT "+municipalityColumns+" FROM municipalities WHERE id = $1", id)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{
			Resource: "municipality",
			ID:       id,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get municipality: %w", err)
	}
	return &m, nil
}

const stationColumns = `thing_id, name, description, main_purpose, serial_number, anemometer_height,
	location_id, location_name, location_description, longitude, latitude, start_up, updated_at`

// UpsertStations creates or updates Grafcan stations keyed by thing id
func (r *catalogRepository) UpsertStations(ctx context.Context, stations []*models.Station) error {
	if len(stations) == 0 {
		return nil
	}

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO stations (`+stationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (thing_id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				main_purpose = EXCLUDED.main_purpose,
				serial_number = EXCLUDED.serial_number,
				anemometer_height = EXCLUDED.anemometer_height,
				location_id = EXCLUDED.location_id,
				location_name = EXCLUDED.location_name,
				location_description = EXCLUDED.location_description,
				longitude = EXCLUDED.longitude,
				latitude = EXCLUDED.latitude,
				start_up = EXCLUDED.start_up,
				updated_at = EXCLUDED.updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, s := range stations {
			_, err := stmt.ExecContext(ctx,
				s.ThingID,
				s.Name,
				s.Description,
				s.MainPurpose,
				s.SerialNumber,
				s.AnemometerHeight,
				s.LocationID,
				s.LocationName,
				s.LocationDescription,
				s.Longitude,
				s.Latitude,
				s.StartUp,
				s.UpdatedAt,
			)
			if err != nil {
				r.metrics.RecordDBError("upsert_station_error")
				return fmt.Errorf("failed to upsert station %d: %w", s.ThingID, err)
			}
		}
		return nil
	})
}

// ListStations retrieves every station ordered by thing id
func (r *catalogRepository) ListStations(ctx context.Context) ([]*models.Station, error) {
	var stations []*models.Station
	err := r.db.SelectContext(ctx, "list_stations", &stations,
		"SELECT "+stationColumns+" FROM stations ORDER BY thing_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	return stations, nil
}
