package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"climacan/internal/aemet"
	"climacan/internal/grafcan"
	"climacan/internal/models"
	"climacan/internal/repository"
)

func TestObservationService_IngestConventional(t *testing.T) {
	records := []aemet.StationRecord{
		{"idema": "C029O", "lon": -13.6, "lat": 29.0, "fint": "2024-01-10T10:00:00+0000", "ta": 19.2, "ubi": "LANZAROTE AEROPUERTO", "prec": nil},
		{"idema": "C029O", "lon": -13.6, "lat": 29.0, "fint": "2024-01-10T11:00:00+0000", "ta": 20.1, "ubi": "LANZAROTE AEROPUERTO"},
		{"idema": "C449C", "lon": -16.2, "lat": 28.4, "fint": "2024-01-10T10:00:00+0000", "ta": 17.5, "ubi": "SANTA CRUZ DE TENERIFE"},
		{"idema": "6156X", "lon": -4.4, "lat": 36.7, "fint": "2024-01-10T10:00:00+0000", "ta": 15.0, "ubi": "MALAGA"},
		{"idema": "C111X", "fint": "not a time", "ta": 1.0, "ubi": "BROKEN"},
	}

	tests := []struct {
		name        string
		source      *fakeObservationSource
		failSeries  map[string]error
		wantErr     bool
		checkValues func(t *testing.T, r *ObservationResult, series *fakeSeriesRepo)
	}{
		{
			name:   "groups Canary stations by location",
			source: &fakeObservationSource{records: records},
			checkValues: func(t *testing.T, r *ObservationResult, series *fakeSeriesRepo) {
				if r.TotalRecords != 5 || r.CanaryRecords != 4 || r.InvalidRecords != 1 {
					t.Errorf("counts = %+v", r)
				}
				if r.Locations != 2 || r.Points != 3 {
					t.Errorf("Locations/Points = %d/%d, want 2/3", r.Locations, r.Points)
				}
				points := series.written(ConventionalObservationsDatabase, "lanzarote_aeropuerto")
				if len(points) != 2 {
					t.Fatalf("lanzarote points = %d, want 2", len(points))
				}
				if points[0].Tags["idema"] != "C029O" {
					t.Errorf("Tags = %v", points[0].Tags)
				}
				if len(series.written(ConventionalObservationsDatabase, "malaga")) != 0 {
					t.Error("peninsular station stored")
				}
			},
		},
		{
			name:       "one failed location does not fail the run",
			source:     &fakeObservationSource{records: records},
			failSeries: map[string]error{"santa_cruz_de_tenerife": errors.New("disk full")},
			checkValues: func(t *testing.T, r *ObservationResult, series *fakeSeriesRepo) {
				if r.Locations != 1 || r.FailedWrites != 1 {
					t.Errorf("Locations/FailedWrites = %d/%d", r.Locations, r.FailedWrites)
				}
			},
		},
		{
			name:    "fetch failure",
			source:  &fakeObservationSource{err: aemet.ErrEmptyPayload},
			wantErr: true,
		},
		{
			name:    "no Canary station",
			source:  &fakeObservationSource{records: records[3:4]},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, m := testDeps()
			series := &fakeSeriesRepo{failSeries: tt.failSeries}
			svc := NewObservationService(tt.source, series, logger, m)

			r, err := svc.IngestConventional(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("IngestConventional() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checkValues != nil {
				tt.checkValues(t, r, series)
			}
		})
	}
}

func TestMunicipalityService_Refresh(t *testing.T) {
	source := &fakeMunicipalitySource{records: []aemet.MunicipalityRecord{
		{ID: "id35006", Name: "Arucas", Capital: "Arucas", Population: "38138"},
		{ID: "id35016", Name: "Palmas de Gran Canaria, Las", Capital: "Palmas de Gran Canaria, Las"},
		{ID: "id38001", Name: "Adeje", Capital: "Adeje"},
		{ID: "id28079", Name: "Madrid", Capital: "Madrid"},
		{ID: "id38999", Name: "", Capital: ""},
	}}
	catalog := &fakeCatalog{}
	datasources := &fakeDatasources{}
	logger, m := testDeps()
	svc := NewMunicipalityService(source, catalog, datasources, logger, m)
	svc.now = func() time.Time { return time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC) }

	r, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if r.Fetched != 5 || r.Kept != 3 || r.Invalid != 1 {
		t.Errorf("result = %+v", r)
	}

	want := []string{"Arucas", "Palmas_de_Gran_Canaria", "Adeje"}
	if len(datasources.databases) != len(want) {
		t.Fatalf("datasources = %v, want %v", datasources.databases, want)
	}
	for i := range want {
		if datasources.databases[i] != want[i] {
			t.Errorf("datasource[%d] = %q, want %q", i, datasources.databases[i], want[i])
		}
	}

	got, err := svc.Get(context.Background(), "38001")
	if err != nil || got.Name != "Adeje" {
		t.Errorf("Get() = %v, %v", got, err)
	}
	var notFound *repository.NotFoundError
	if _, err := svc.Get(context.Background(), "99999"); !errors.As(err, &notFound) {
		t.Errorf("Get(unknown) error = %v, want NotFoundError", err)
	}
}

func TestMunicipalityService_Refresh_Errors(t *testing.T) {
	logger, m := testDeps()

	noCanary := NewMunicipalityService(&fakeMunicipalitySource{records: []aemet.MunicipalityRecord{{ID: "id28079", Name: "Madrid"}}}, &fakeCatalog{}, nil, logger, m)
	if _, err := noCanary.Refresh(context.Background()); err == nil {
		t.Error("expected error when no Canary municipality is listed")
	}

	storeErr := errors.New("constraint violation")
	failing := NewMunicipalityService(&fakeMunicipalitySource{records: []aemet.MunicipalityRecord{{ID: "id35006", Name: "Arucas"}}}, &fakeCatalog{replaceErr: storeErr}, nil, logger, m)
	if _, err := failing.Refresh(context.Background()); !errors.Is(err, storeErr) {
		t.Errorf("Refresh() error = %v, want %v", err, storeErr)
	}
}

func TestGrafcanService(t *testing.T) {
	ts := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	source := &fakeStationSource{
		stations: []models.Station{
			{ThingID: 1, Name: "Agaete", LocationID: 11, LocationName: "Agaete (Puerto)"},
			{ThingID: 2, Name: "Teide", LocationID: 12, LocationName: "Pico del Teide"},
			{ThingID: 3, Name: "Gáldar", LocationID: 13, LocationName: "Gáldar"},
			{ThingID: 4, Name: "Mogán", LocationID: 14, LocationName: "Mogán"},
		},
		observations: map[int64][]models.SeriesPoint{
			1: {{Time: ts, Fields: map[string]any{"air_temperature_c": 21.4, "radiation_w/m2": nil}}},
			4: {{Time: ts, Fields: map[string]any{"radiation_w/m2": nil}}},
		},
		errs: map[int64]error{
			2: fmt.Errorf("thing 2: %w", grafcan.ErrNoData),
			3: errors.New("502 bad gateway"),
		},
	}
	catalog := &fakeCatalog{}
	series := &fakeSeriesRepo{}
	logger, m := testDeps()
	svc := NewGrafcanService(source, catalog, series, logger, m)
	ctx := context.Background()

	if _, err := svc.IngestLastObservations(ctx); err == nil {
		t.Error("expected error before the station catalog is loaded")
	}

	n, err := svc.RefreshStations(ctx)
	if err != nil || n != 4 {
		t.Fatalf("RefreshStations() = %d, %v", n, err)
	}

	r, err := svc.IngestLastObservations(ctx)
	if err != nil {
		t.Fatalf("IngestLastObservations() error = %v", err)
	}
	if r.Written != 1 || r.Skipped != 2 || r.Failed != 1 || r.Points != 1 {
		t.Errorf("result = %+v", r)
	}

	points := series.written(GrafcanDatabase, "agaete_puerto")
	if len(points) != 1 {
		t.Fatalf("agaete points = %d, want 1", len(points))
	}
	p := points[0]
	if _, ok := p.Fields["radiation_w/m2"]; ok {
		t.Error("null field kept")
	}
	if p.Tags["thing_id"] != "1" || p.Tags["location_name"] != "Agaete (Puerto)" {
		t.Errorf("Tags = %v", p.Tags)
	}
}

func TestSeriesService_Validation(t *testing.T) {
	logger, m := testDeps()
	svc := NewSeriesService(&fakeSeriesRepo{}, logger, m)
	from := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	before := from.Add(-time.Hour)

	tests := []struct {
		name      string
		filter    repository.SeriesFilter
		wantField string
	}{
		{name: "missing database", filter: repository.SeriesFilter{Series: "temperature"}, wantField: "database"},
		{name: "missing series", filter: repository.SeriesFilter{Database: "Arucas"}, wantField: "series"},
		{name: "inverted window", filter: repository.SeriesFilter{Database: "Arucas", Series: "temperature", From: &from, To: &before}, wantField: "to"},
		{name: "valid", filter: repository.SeriesFilter{Database: "Arucas", Series: "temperature", From: &before, To: &from}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.QuerySeries(context.Background(), tt.filter)
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("QuerySeries() error = %v", err)
				}
				return
			}
			var ve *models.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.wantField {
				t.Errorf("QuerySeries() error = %v, want validation error on %s", err, tt.wantField)
			}
		})
	}
}

func TestSummaryService_SummarizeDatabase(t *testing.T) {
	repo := &fakeSeriesRepo{
		series: []*models.SeriesInfo{
			{Database: "Arucas", Series: "temperature"},
			{Database: "Arucas", Series: "precipitation"},
		},
		summaries: map[string]*models.SeriesSummary{
			"Arucas/temperature": {Database: "Arucas", Series: "temperature", PointCount: 24},
		},
	}
	logger, m := testDeps()
	svc := NewSummaryService(repo, logger, m)

	summaries, err := svc.SummarizeDatabase(context.Background(), "Arucas", nil, nil)
	if err != nil {
		t.Fatalf("SummarizeDatabase() error = %v", err)
	}
	if len(summaries) != 1 || summaries[0].Series != "temperature" {
		t.Errorf("summaries = %v", summaries)
	}

	if _, err := svc.Summarize(context.Background(), repository.SeriesFilter{Database: "Arucas"}); err == nil {
		t.Error("expected validation error without series")
	}
}
