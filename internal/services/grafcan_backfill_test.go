package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"climacan/internal/grafcan"
	"climacan/internal/models"
)

func backfillSource() *fakeStationSource {
	at := func(m time.Month, d int) time.Time { return time.Date(2024, m, d, 12, 0, 0, 0, time.UTC) }
	return &fakeStationSource{
		datastreams: map[int64][]grafcan.Datastream{
			1: {
				{ID: 11, Name: "Temperatura del aire", Unit: "ºC"},
				{ID: 12, Name: "Humedad relativa", Unit: "%"},
			},
		},
		history: map[int64][]grafcan.Observation{
			11: {
				{Time: at(1, 20), Value: 18.5},
				{Time: at(2, 3), Value: "19.25"},
				{Time: at(2, 4), Value: "n/a"},
				{Time: at(3, 1), Value: 21.0},
			},
			12: {
				{Time: at(1, 20), Value: 70.0},
				{Time: at(2, 3), Value: nil},
			},
		},
	}
}

func TestGrafcanService_Backfill(t *testing.T) {
	from := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	temperature := models.CleanFieldName("Temperatura del aire", "ºC")
	humidity := models.CleanFieldName("Humedad relativa", "%")
	gatewayErr := errors.New("502 bad gateway")

	tests := []struct {
		name        string
		req         BackfillRequest
		historyErrs map[string]error
		catalog     []*models.Station
		wantErr     error
		checkValues func(t *testing.T, r *BackfillResult, source *fakeStationSource, series *fakeSeriesRepo)
	}{
		{
			name:    "every variable month by month",
			req:     BackfillRequest{ThingID: 1, Variable: AllVariables, From: from, To: to},
			catalog: []*models.Station{{ThingID: 1, Name: "Agaete", LocationName: "Agaete (Puerto)"}},
			checkValues: func(t *testing.T, r *BackfillResult, source *fakeStationSource, series *fakeSeriesRepo) {
				if r.Datastreams != 2 || r.Windows != 2 || r.Points != 3 || r.Failed != 0 {
					t.Errorf("result = %+v", r)
				}
				if len(source.windows) != 4 {
					t.Errorf("observation requests = %d, want 4", len(source.windows))
				}
				if !source.windows[0].From.Equal(from) {
					t.Errorf("first window starts %v, want %v", source.windows[0].From, from)
				}

				points := series.written(GrafcanDatabase, "agaete_puerto")
				if len(points) != 3 {
					t.Fatalf("points = %d, want 3", len(points))
				}
				var temps, hums int
				for _, p := range points {
					if _, ok := p.Fields[temperature]; ok {
						temps++
					}
					if _, ok := p.Fields[humidity]; ok {
						hums++
					}
					if p.Tags["thing_id"] != "1" {
						t.Errorf("Tags = %v", p.Tags)
					}
				}
				if temps != 2 || hums != 1 {
					t.Errorf("temperature points = %d, humidity points = %d", temps, hums)
				}
			},
		},
		{
			name: "single variable by name",
			req:  BackfillRequest{ThingID: 1, Variable: "humedad relativa", From: from, To: to},
			checkValues: func(t *testing.T, r *BackfillResult, source *fakeStationSource, series *fakeSeriesRepo) {
				if r.Datastreams != 1 || r.Points != 1 {
					t.Errorf("result = %+v", r)
				}
				points := series.written(GrafcanDatabase, "thing_1")
				if len(points) != 1 || points[0].Fields[humidity] != 70.0 {
					t.Errorf("uncatalogued station points = %v", points)
				}
			},
		},
		{
			name: "single variable by id",
			req:  BackfillRequest{ThingID: 1, Variable: "11", From: from, To: to},
			checkValues: func(t *testing.T, r *BackfillResult, source *fakeStationSource, series *fakeSeriesRepo) {
				if r.Datastreams != 1 || r.Points != 2 {
					t.Errorf("result = %+v", r)
				}
				if points := series.written(GrafcanDatabase, "thing_1"); len(points) == 0 || points[1].Fields[temperature] != 19.25 {
					t.Errorf("points = %v", points)
				}
			},
		},
		{
			name:        "failed month is reported and the rest continue",
			req:         BackfillRequest{ThingID: 1, From: from, To: to},
			historyErrs: map[string]error{"11/2024-01": gatewayErr},
			wantErr:     gatewayErr,
			checkValues: func(t *testing.T, r *BackfillResult, source *fakeStationSource, series *fakeSeriesRepo) {
				if r.Failed != 1 || r.Points != 2 {
					t.Errorf("result = %+v", r)
				}
			},
		},
		{
			name:    "unknown variable",
			req:     BackfillRequest{ThingID: 1, Variable: "Viento", From: from, To: to},
			wantErr: ErrUnknownVariable,
		},
		{
			name:    "station without datastreams",
			req:     BackfillRequest{ThingID: 2, From: from, To: to},
			wantErr: grafcan.ErrNoData,
		},
		{
			name:    "inverted range",
			req:     BackfillRequest{ThingID: 1, From: to, To: from},
			wantErr: &models.ValidationError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := backfillSource()
			source.historyErrs = tt.historyErrs
			series := &fakeSeriesRepo{}
			logger, m := testDeps()
			svc := NewGrafcanService(source, &fakeCatalog{stations: tt.catalog}, series, logger, m)

			r, err := svc.Backfill(context.Background(), tt.req)
			switch want := tt.wantErr.(type) {
			case nil:
				if err != nil {
					t.Fatalf("Backfill() error = %v", err)
				}
			case *models.ValidationError:
				var ve *models.ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("Backfill() error = %v, want ValidationError", err)
				}
			default:
				if !errors.Is(err, want) {
					t.Fatalf("Backfill() error = %v, want %v", err, want)
				}
			}
			if tt.checkValues != nil {
				tt.checkValues(t, r, source, series)
			}
		})
	}
}
