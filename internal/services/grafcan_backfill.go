package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"climacan/internal/grafcan"
	"climacan/internal/models"
	"climacan/pkg/logging"
)

// AllVariables selects every datastream of a station in a backfill.
const AllVariables = "ALL"

// ErrUnknownVariable is returned when a backfill names a variable the
// station does not measure.
var ErrUnknownVariable = errors.New("unknown grafcan variable")

// BackfillRequest selects a station, its variables and an inclusive day range.
type BackfillRequest struct {
	ThingID  int64
	Variable string
	From     time.Time
	To       time.Time
	PageSize int
}

// BackfillResult counts what a backfill stored.
type BackfillResult struct {
	Datastreams int
	Windows     int
	Points      int
	Failed      int
	Duration    time.Duration
}

// Datastreams lists the variables a station measures.
func (s *GrafcanService) Datastreams(ctx context.Context, thingID int64) ([]grafcan.Datastream, error) {
	return s.source.Datastreams(ctx, thingID)
}

// Backfill loads the historical observations of a station month by month and
// writes them to the station series used by the last-observation ingestion.
// A failed month of one datastream is logged and counted; the rest continue.
func (s *GrafcanService) Backfill(ctx context.Context, req BackfillRequest) (*BackfillResult, error) {
	startTime := time.Now()

	windows := grafcan.MonthWindows(req.From, req.To)
	if len(windows) == 0 {
		return nil, &models.ValidationError{
			Field:   "to",
			Value:   req.To.Format("2006-01-02"),
			Message: "end date is before start date",
		}
	}

	streams, err := s.source.Datastreams(ctx, req.ThingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list datastreams: %w", err)
	}
	streams, err = selectDatastreams(streams, req.Variable)
	if err != nil {
		return nil, fmt.Errorf("thing %d: %w", req.ThingID, err)
	}

	series, tags, err := s.stationSeries(ctx, req.ThingID)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logging.Fields{
		"thing_id": req.ThingID,
		"series":   series,
	})
	log.Info(ctx, "[GRAFCAN_BACKFILL_START] Backfill started", logging.Fields{
		"datastreams": len(streams),
		"from":        windows[0].From.Format(time.RFC3339),
		"to":          windows[len(windows)-1].To.Format(time.RFC3339),
	})

	result := &BackfillResult{Datastreams: len(streams), Windows: len(windows)}
	var errs []error
	for _, w := range windows {
		for _, ds := range streams {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			n, err := s.backfillWindow(ctx, ds, w, req.PageSize, series, tags)
			if err != nil {
				result.Failed++
				errs = append(errs, fmt.Errorf("datastream %d in %s: %w", ds.ID, w.Month(), err))
				s.metrics.RecordIngestionError(sourceGrafcan, "backfill_error")
				log.Error(ctx, "[GRAFCAN_BACKFILL_ERROR] Backfill month failed", logging.Fields{
					"datastream": ds.Name,
					"month":      w.Month(),
				}, err)
				continue
			}
			result.Points += n
			log.Debug(ctx, "[GRAFCAN_BACKFILL_MONTH] Month stored", logging.Fields{
				"datastream": ds.Name,
				"month":      w.Month(),
				"points":     n,
			})
		}
	}
	s.metrics.IngestionPointsTotal.WithLabelValues(sourceGrafcan).Add(float64(result.Points))

	result.Duration = time.Since(startTime)
	log.Info(ctx, "[GRAFCAN_BACKFILL_COMPLETE] Backfill finished", logging.Fields{
		"datastreams": result.Datastreams,
		"months":      result.Windows,
		"points":      result.Points,
		"failed":      result.Failed,
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result, errors.Join(errs...)
}

func (s *GrafcanService) backfillWindow(ctx context.Context, ds grafcan.Datastream, w grafcan.Window, pageSize int, series string, tags map[string]string) (int, error) {
	obs, err := s.source.Observations(ctx, ds.ID, w, pageSize)
	if err != nil {
		return 0, err
	}

	field := models.CleanFieldName(ds.Name, ds.Unit)
	points := make([]models.SeriesPoint, 0, len(obs))
	for _, o := range obs {
		v, ok := numericResult(o.Value)
		if !ok {
			continue
		}
		points = append(points, models.SeriesPoint{
			Database: GrafcanDatabase,
			Series:   series,
			Tags:     tags,
			Time:     o.Time,
			Fields:   map[string]any{field: v},
		})
	}
	if len(points) == 0 {
		return 0, nil
	}
	if err := s.series.WriteSeries(ctx, points); err != nil {
		return 0, err
	}
	return len(points), nil
}

// stationSeries names the series of a station from the catalog, falling back
// to thing_<id> when the station is not catalogued yet.
func (s *GrafcanService) stationSeries(ctx context.Context, thingID int64) (string, map[string]string, error) {
	stations, err := s.catalog.ListStations(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to list stations: %w", err)
	}
	for _, st := range stations {
		if st.ThingID != thingID {
			continue
		}
		if series := models.NormalizeMeasurement(st.LocationName); series != "" {
			return series, st.Tags(), nil
		}
		return fmt.Sprintf("thing_%d", thingID), st.Tags(), nil
	}
	return fmt.Sprintf("thing_%d", thingID), map[string]string{"thing_id": strconv.FormatInt(thingID, 10)}, nil
}

func selectDatastreams(streams []grafcan.Datastream, variable string) ([]grafcan.Datastream, error) {
	if len(streams) == 0 {
		return nil, grafcan.ErrNoData
	}
	if variable == "" || strings.EqualFold(variable, AllVariables) {
		return streams, nil
	}
	ds, ok := grafcan.FindDatastream(streams, variable)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariable, variable)
	}
	return []grafcan.Datastream{ds}, nil
}

// numericResult coerces an observation result to a float. Results that are
// not numbers are dropped.
func numericResult(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}
