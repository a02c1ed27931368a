package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"climacan/internal/aemet"
	"climacan/internal/grafcan"
	"climacan/internal/models"
	"climacan/internal/repository"
	"climacan/pkg/logging"
	"climacan/pkg/metrics"
)

func testDeps() (*logging.StructuredLogger, *metrics.Collector) {
	return logging.Discard(), metrics.NewCollector("test", prometheus.NewRegistry())
}

// fakeSeriesRepo records writes in memory. failSeries makes writes of the
// named series fail.
type fakeSeriesRepo struct {
	mu         sync.Mutex
	writes     [][]models.SeriesPoint
	failSeries map[string]error
	summaries  map[string]*models.SeriesSummary
	series     []*models.SeriesInfo
}

func (f *fakeSeriesRepo) WriteSeries(ctx context.Context, points []models.SeriesPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(points) > 0 {
		if err, ok := f.failSeries[points[0].Series]; ok {
			return err
		}
	}
	for i := range points {
		if err := points[i].Validate(); err != nil {
			return err
		}
	}
	f.writes = append(f.writes, points)
	return nil
}

func (f *fakeSeriesRepo) QuerySeries(ctx context.Context, filter repository.SeriesFilter) ([]models.SeriesPoint, int, error) {
	var out []models.SeriesPoint
	for _, batch := range f.writes {
		for _, p := range batch {
			if p.Database == filter.Database && p.Series == filter.Series {
				out = append(out, p)
			}
		}
	}
	return out, len(out), nil
}

func (f *fakeSeriesRepo) SummarizeSeries(ctx context.Context, filter repository.SeriesFilter) (*models.SeriesSummary, error) {
	if s, ok := f.summaries[filter.Database+"/"+filter.Series]; ok {
		return s, nil
	}
	return nil, &repository.NotFoundError{Resource: "series", ID: filter.Database + "/" + filter.Series}
}

func (f *fakeSeriesRepo) ListSeries(ctx context.Context, db string) ([]*models.SeriesInfo, error) {
	return f.series, nil
}

func (f *fakeSeriesRepo) HealthCheck(ctx context.Context) error { return nil }

// written returns every stored point of a database/series pair.
func (f *fakeSeriesRepo) written(db, series string) []models.SeriesPoint {
	points, _, _ := f.QuerySeries(context.Background(), repository.SeriesFilter{Database: db, Series: series})
	return points
}

type fakeCatalog struct {
	municipalities []*models.Municipality
	stations       []*models.Station
	replaceErr     error
}

func (f *fakeCatalog) ReplaceMunicipalities(ctx context.Context, ms []*models.Municipality) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.municipalities = ms
	return nil
}

func (f *fakeCatalog) ListMunicipalities(ctx context.Context) ([]*models.Municipality, error) {
	return f.municipalities, nil
}

func (f *fakeCatalog) GetMunicipality(ctx context.Context, id string) (*models.Municipality, error) {
	for _, m := range f.municipalities {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, &repository.NotFoundError{Resource: "municipality", ID: id}
}

func (f *fakeCatalog) UpsertStations(ctx context.Context, stations []*models.Station) error {
	f.stations = stations
	return nil
}

func (f *fakeCatalog) ListStations(ctx context.Context) ([]*models.Station, error) {
	return f.stations, nil
}

// fakePredictionSource replays a queue of outcomes per municipality code.
type fakePredictionSource struct {
	responses map[string][]predictionOutcome
	calls     map[string]int
}

type predictionOutcome struct {
	prediction *aemet.Prediction
	err        error
}

func (f *fakePredictionSource) HourlyPrediction(ctx context.Context, code string) (*aemet.Prediction, error) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	queue := f.responses[code]
	i := f.calls[code]
	f.calls[code]++
	if i >= len(queue) {
		i = len(queue) - 1
	}
	return queue[i].prediction, queue[i].err
}

type fakeObservationSource struct {
	records []aemet.StationRecord
	err     error
}

func (f *fakeObservationSource) ConventionalObservations(ctx context.Context) ([]aemet.StationRecord, error) {
	return f.records, f.err
}

type fakeMunicipalitySource struct {
	records []aemet.MunicipalityRecord
	err     error
}

func (f *fakeMunicipalitySource) Municipalities(ctx context.Context) ([]aemet.MunicipalityRecord, error) {
	return f.records, f.err
}

type fakeStationSource struct {
	stations     []models.Station
	observations map[int64][]models.SeriesPoint
	errs         map[int64]error

	datastreams map[int64][]grafcan.Datastream
	history     map[int64][]grafcan.Observation
	// historyErrs fails a datastream month, keyed "<datastream id>/<YYYY-MM>".
	historyErrs map[string]error
	windows     []grafcan.Window
}

func (f *fakeStationSource) HistoricalStations(ctx context.Context) ([]models.Station, error) {
	return f.stations, nil
}

func (f *fakeStationSource) LastObservations(ctx context.Context, thingID int64) ([]models.SeriesPoint, error) {
	if err, ok := f.errs[thingID]; ok {
		return nil, err
	}
	return f.observations[thingID], nil
}

func (f *fakeStationSource) Datastreams(ctx context.Context, thingID int64) ([]grafcan.Datastream, error) {
	return f.datastreams[thingID], nil
}

func (f *fakeStationSource) Observations(ctx context.Context, datastreamID int64, w grafcan.Window, pageSize int) ([]grafcan.Observation, error) {
	f.windows = append(f.windows, w)
	if err, ok := f.historyErrs[fmt.Sprintf("%d/%s", datastreamID, w.Month())]; ok {
		return nil, err
	}
	var out []grafcan.Observation
	for _, o := range f.history[datastreamID] {
		if !o.Time.Before(w.From) && !o.Time.After(w.To) {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeDatasources struct {
	databases []string
}

func (f *fakeDatasources) WriteDatasources(databases []string) error {
	f.databases = databases
	return nil
}

// recordSleeps replaces the service sleep and records the requested waits.
func recordSleeps(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}
