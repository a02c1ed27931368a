package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"climacan/internal/models"
	"climacan/pkg/database"
	"climacan/pkg/logging"
	"climacan/pkg/metrics"
)

// SeriesRepository stores timestamped field sets grouped into databases and
// series.
type SeriesRepository interface {
	// WriteSeries upserts points in one transaction. Fields of an existing
	// point are merged with the new ones, new values win.
	WriteSeries(ctx context.Context, points []models.SeriesPoint) error
	QuerySeries(ctx context.Context, filter SeriesFilter) ([]models.SeriesPoint, int, error)
	SummarizeSeries(ctx context.Context, filter SeriesFilter) (*models.SeriesSummary, error)
	ListSeries(ctx context.Context, db string) ([]*models.SeriesInfo, error)

	HealthCheck(ctx context.Context) error
}

// SeriesFilter selects points of one series. Database and Series are
// required by QuerySeries and SummarizeSeries.
type SeriesFilter struct {
	Database string
	Series   string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// seriesRepository implements SeriesRepository
type seriesRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewSeriesRepository creates a new series repository
func NewSeriesRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) SeriesRepository {
	return &seriesRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

const upsertPointQuery = `
	INSERT INTO series_points (database, series, ts, fields, tags, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (database, series, ts) DO UPDATE SET
		fields = series_points.fields || EXCLUDED.fields,
		tags = EXCLUDED.tags,
		updated_at = EXCLUDED.updated_at
`

// WriteSeries upserts a batch of points in a single transaction
func (r *seriesRepository) WriteSeries(ctx context.Context, points []models.SeriesPoint) error {
	if len(points) == 0 {
		return nil
	}
	for i := range points {
		if err := points[i].Validate(); err != nil {
			return err
		}
	}

	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.IngestionBatchSize.Observe(float64(len(points)))
		r.logger.Debug(ctx, "[REPO_BATCH_UPSERT] Batch upsert completed", logging.Fields{
			"database":    points[0].Database,
			"series":      points[0].Series,
			"count":       len(points),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	now := time.Now().UTC()
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertPointQuery)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			fields, err := json.Marshal(p.Fields)
			if err != nil {
				return fmt.Errorf("failed to encode fields of %s/%s: %w", p.Database, p.Series, err)
			}
			tags := []byte("{}")
			if len(p.Tags) > 0 {
				if tags, err = json.Marshal(p.Tags); err != nil {
					return fmt.Errorf("failed to encode tags of %s/%s: %w", p.Database, p.Series, err)
				}
			}
			if _, err := stmt.ExecContext(ctx, p.Database, p.Series, p.Time.UTC(), fields, tags, now); err != nil {
				r.metrics.RecordDBError("upsert_point_error")
				return fmt.Errorf("failed to upsert point %s/%s at %s: %w", p.Database, p.Series, p.Time.Format(time.RFC3339), err)
			}
		}
		return nil
	})
}

type pointRow struct {
	Database string    `db:"database"`
	Series   string    `db:"series"`
	TS       time.Time `db:"ts"`
	Fields   []byte    `db:"fields"`
	Tags     []byte    `db:"tags"`
}

func (row pointRow) toPoint() (models.SeriesPoint, error) {
	p := models.SeriesPoint{
		Database: row.Database,
		Series:   row.Series,
		Time:     row.TS.UTC(),
	}
	if err := json.Unmarshal(row.Fields, &p.Fields); err != nil {
		return p, fmt.Errorf("failed to decode fields: %w", err)
	}
	if len(row.Tags) > 0 {
		if err := json.Unmarshal(row.Tags, &p.Tags); err != nil {
			return p, fmt.Errorf("failed to decode tags: %w", err)
		}
	}
	return p, nil
}

// seriesWhere builds the WHERE clause shared by the point queries. The
// returned argNum is the next free placeholder number.
func seriesWhere(filter SeriesFilter) (string, []interface{}, int) {
	clauses := []string{"database = $1", "series = $2"}
	args := []interface{}{filter.Database, filter.Series}
	argNum := 3

	if filter.From != nil {
		clauses = append(clauses, fmt.Sprintf("ts >= $%d", argNum))
		args = append(args, filter.From.UTC())
		argNum++
	}
	if filter.To != nil {
		clauses = append(clauses, fmt.Sprintf("ts <= $%d", argNum))
		args = append(args, filter.To.UTC())
		argNum++
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, argNum
}

// QuerySeries retrieves points of one series with pagination, newest first
func (r *seriesRepository) QuerySeries(ctx context.Context, filter SeriesFilter) ([]models.SeriesPoint, int, error) {
	where, args, argNum := seriesWhere(filter)

	var totalCount int
	err := r.db.GetContext(ctx, "count_points", &totalCount, "SELECT COUNT(*) FROM series_points"+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count points: %w", err)
	}

	query := "SELECT database, series, ts, fields, tags FROM series_points" + where
	query += " ORDER BY ts DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var rows []pointRow
	if err := r.db.SelectContext(ctx, "query_points", &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to query points: %w", err)
	}

	points := make([]models.SeriesPoint, 0, len(rows))
	for _, row := range rows {
		p, err := row.toPoint()
		if err != nil {
			return nil, 0, fmt.Errorf("point %s/%s at %s: %w", row.Database, row.Series, row.TS.Format(time.RFC3339), err)
		}
		points = append(points, p)
	}
	return points, totalCount, nil
}

// SummarizeSeries aggregates the numeric fields of one series
func (r *seriesRepository) SummarizeSeries(ctx context.Context, filter SeriesFilter) (*models.SeriesSummary, error) {
	timer := time.Now()
	defer func() {
		r.logger.Debug(ctx, "[REPO_SUMMARY] Series summarized", logging.Fields{
			"database":    filter.Database,
			"series":      filter.Series,
			"duration_ms": time.Since(timer).Milliseconds(),
		})
	}()

	where, args, _ := seriesWhere(filter)

	var count int
	if err := r.db.GetContext(ctx, "count_points", &count, "SELECT COUNT(*) FROM series_points"+where, args...); err != nil {
		return nil, fmt.Errorf("failed to count points: %w", err)
	}
	if count == 0 {
		return nil, &NotFoundError{Resource: "series", ID: filter.Database + "/" + filter.Series}
	}

	query := `
		SELECT
			f.key AS field,
			COUNT(*) AS count,
			MIN((f.value #>> '{}')::double precision) AS min,
			MAX((f.value #>> '{}')::double precision) AS max,
			AVG((f.value #>> '{}')::double precision) AS avg
		FROM series_points, jsonb_each(series_points.fields) AS f
	` + where + `
		  AND jsonb_typeof(f.value) = 'number'
		GROUP BY f.key
		ORDER BY f.key
	`

	var fields []models.FieldSummary
	if err := r.db.SelectContext(ctx, "summarize_series", &fields, query, args...); err != nil {
		return nil, fmt.Errorf("failed to summarize series: %w", err)
	}

	return &models.SeriesSummary{
		Database:   filter.Database,
		Series:     filter.Series,
		From:       filter.From,
		To:         filter.To,
		PointCount: count,
		Fields:     fields,
	}, nil
}

// ListSeries lists stored series, optionally restricted to one database
func (r *seriesRepository) ListSeries(ctx context.Context, db string) ([]*models.SeriesInfo, error) {
	query := `
		SELECT database, series, COUNT(*) AS point_count, MIN(ts) AS first_time, MAX(ts) AS last_time
		FROM series_points
	`
	var args []interface{}
	if db != "" {
		query += " WHERE database = $1"
		args = append(args, db)
	}
	query += " GROUP BY database, series ORDER BY database, series"

	var series []*models.SeriesInfo
	if err := r.db.SelectContext(ctx, "list_series", &series, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	return series, nil
}

// HealthCheck performs a repository health check
func (r *seriesRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}
