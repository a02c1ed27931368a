package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"climacan/internal/models"
	"climacan/internal/repository"
	"climacan/internal/services"
	"climacan/pkg/logging"
	"climacan/pkg/metrics"
)

type stubSeriesRepo struct {
	points    []models.SeriesPoint
	series    []*models.SeriesInfo
	summaries map[string]*models.SeriesSummary
	lastQuery repository.SeriesFilter
	healthErr error
}

func (s *stubSeriesRepo) WriteSeries(ctx context.Context, points []models.SeriesPoint) error {
	return nil
}

func (s *stubSeriesRepo) QuerySeries(ctx context.Context, filter repository.SeriesFilter) ([]models.SeriesPoint, int, error) {
	s.lastQuery = filter
	end := filter.Offset + filter.Limit
	if end > len(s.points) {
		end = len(s.points)
	}
	if filter.Offset >= len(s.points) {
		return []models.SeriesPoint{}, len(s.points), nil
	}
	return s.points[filter.Offset:end], len(s.points), nil
}

func (s *stubSeriesRepo) SummarizeSeries(ctx context.Context, filter repository.SeriesFilter) (*models.SeriesSummary, error) {
	if sum, ok := s.summaries[filter.Series]; ok {
		return sum, nil
	}
	return nil, &repository.NotFoundError{Resource: "series", ID: filter.Series}
}

func (s *stubSeriesRepo) ListSeries(ctx context.Context, database string) ([]*models.SeriesInfo, error) {
	return s.series, nil
}

func (s *stubSeriesRepo) HealthCheck(ctx context.Context) error { return s.healthErr }

type stubCatalog struct {
	municipalities []*models.Municipality
}

func (c *stubCatalog) ReplaceMunicipalities(ctx context.Context, m []*models.Municipality) error {
	return nil
}

func (c *stubCatalog) ListMunicipalities(ctx context.Context) ([]*models.Municipality, error) {
	return c.municipalities, nil
}

func (c *stubCatalog) GetMunicipality(ctx context.Context, id string) (*models.Municipality, error) {
	for _, m := range c.municipalities {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, &repository.NotFoundError{Resource: "municipality", ID: id}
}

func (c *stubCatalog) UpsertStations(ctx context.Context, stations []*models.Station) error {
	return nil
}

func (c *stubCatalog) ListStations(ctx context.Context) ([]*models.Station, error) {
	return nil, nil
}

type stubRuns struct {
	runs     []*models.TaskRun
	lastTask string
	err      error
}

func (s *stubRuns) Recent(ctx context.Context, task string, limit int) ([]*models.TaskRun, error) {
	s.lastTask = task
	if limit < len(s.runs) {
		return s.runs[:limit], s.err
	}
	return s.runs, s.err
}

func (s *stubRuns) Latest(ctx context.Context) ([]*models.TaskRun, error) {
	return s.runs[:1], s.err
}

func newTestRouter(repo *stubSeriesRepo, runs TaskRunReader) *mux.Router {
	logger := logging.Discard()
	m := metrics.NewCollector("test", prometheus.NewRegistry())

	catalog := &stubCatalog{municipalities: []*models.Municipality{
		{ID: "38038", Name: "Santa Cruz de Tenerife", Capital: "Santa Cruz de Tenerife"},
		{ID: "35016", Name: "Las Palmas de Gran Canaria", Capital: "Las Palmas de Gran Canaria"},
	}}

	h := NewSeriesHandler(
		services.NewSeriesService(repo, logger, m),
		services.NewSummaryService(repo, logger, m),
		services.NewMunicipalityService(nil, catalog, nil, logger, m),
		runs,
		logger,
		m,
	)
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return router
}

func seriesPoints(n int) []models.SeriesPoint {
	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	points := make([]models.SeriesPoint, n)
	for i := range points {
		points[i] = models.SeriesPoint{
			Database: "santa_cruz_de_tenerife",
			Series:   "temperature",
			Time:     start.Add(time.Duration(i) * time.Hour),
			Fields:   map[string]any{"value": float64(18 + i)},
		}
	}
	return points
}

func TestSeriesHandler_GetSeries(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantStatus  int
		checkValues func(t *testing.T, body []byte, repo *stubSeriesRepo)
	}{
		{
			name:       "first page",
			query:      "database=santa_cruz_de_tenerife&series=temperature&limit=2",
			wantStatus: http.StatusOK,
			checkValues: func(t *testing.T, body []byte, repo *stubSeriesRepo) {
				var resp struct {
					Data       []models.SeriesPoint `json:"data"`
					Total      int                  `json:"total"`
					Page       int                  `json:"page"`
					TotalPages int                  `json:"total_pages"`
				}
				if err := json.Unmarshal(body, &resp); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if len(resp.Data) != 2 || resp.Total != 5 || resp.Page != 1 || resp.TotalPages != 3 {
					t.Errorf("response = %+v", resp)
				}
			},
		},
		{
			name:       "page and window",
			query:      "database=santa_cruz_de_tenerife&series=temperature&limit=2&page=3&from=2024-01-10&to=2024-01-11T00:00:00Z",
			wantStatus: http.StatusOK,
			checkValues: func(t *testing.T, body []byte, repo *stubSeriesRepo) {
				if repo.lastQuery.Offset != 4 || repo.lastQuery.Limit != 2 {
					t.Errorf("offset/limit = %d/%d", repo.lastQuery.Offset, repo.lastQuery.Limit)
				}
				if repo.lastQuery.From == nil || repo.lastQuery.To == nil {
					t.Fatal("window not passed to repository")
				}
				if !repo.lastQuery.To.Equal(time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)) {
					t.Errorf("to = %v", repo.lastQuery.To)
				}
			},
		},
		{
			name:       "limit over maximum falls back to default",
			query:      "database=santa_cruz_de_tenerife&series=temperature&limit=5000",
			wantStatus: http.StatusOK,
			checkValues: func(t *testing.T, body []byte, repo *stubSeriesRepo) {
				if repo.lastQuery.Limit != defaultPageLimit {
					t.Errorf("limit = %d", repo.lastQuery.Limit)
				}
			},
		},
		{
			name:       "missing series",
			query:      "database=santa_cruz_de_tenerife",
			wantStatus: http.StatusBadRequest,
			checkValues: func(t *testing.T, body []byte, repo *stubSeriesRepo) {
				if !strings.Contains(string(body), "series") {
					t.Errorf("body = %s", body)
				}
			},
		},
		{
			name:       "bad from",
			query:      "database=x&series=y&from=yesterday",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "window ends before it starts",
			query:      "database=x&series=y&from=2024-02-01&to=2024-01-01",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubSeriesRepo{points: seriesPoints(5)}
			router := newTestRouter(repo, nil)

			req := httptest.NewRequest(http.MethodGet, "/api/series?"+tt.query, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.checkValues != nil {
				tt.checkValues(t, rec.Body.Bytes(), repo)
			}
		})
	}
}

func TestSeriesHandler_GetSummary(t *testing.T) {
	avg := 19.5
	repo := &stubSeriesRepo{
		series: []*models.SeriesInfo{
			{Database: "grafcan", Series: "la_laguna"},
			{Database: "grafcan", Series: "teide"},
		},
		summaries: map[string]*models.SeriesSummary{
			"la_laguna": {Database: "grafcan", Series: "la_laguna", PointCount: 3, Fields: []models.FieldSummary{{Field: "air_temperature_c", Count: 3, Avg: &avg}}},
		},
	}
	router := newTestRouter(repo, nil)

	tests := []struct {
		name        string
		query       string
		wantStatus  int
		checkValues func(t *testing.T, body []byte)
	}{
		{
			name:       "one series",
			query:      "database=grafcan&series=la_laguna",
			wantStatus: http.StatusOK,
			checkValues: func(t *testing.T, body []byte) {
				var sum models.SeriesSummary
				if err := json.Unmarshal(body, &sum); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if sum.PointCount != 3 || len(sum.Fields) != 1 || *sum.Fields[0].Avg != avg {
					t.Errorf("summary = %+v", sum)
				}
			},
		},
		{
			name:       "whole database skips empty series",
			query:      "database=grafcan",
			wantStatus: http.StatusOK,
			checkValues: func(t *testing.T, body []byte) {
				var resp struct {
					Data  []models.SeriesSummary `json:"data"`
					Count int                    `json:"count"`
				}
				if err := json.Unmarshal(body, &resp); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if resp.Count != 1 || resp.Data[0].Series != "la_laguna" {
					t.Errorf("response = %+v", resp)
				}
			},
		},
		{
			name:       "no points",
			query:      "database=grafcan&series=teide",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "no database",
			query:      "",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/series/summary?"+tt.query, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.checkValues != nil {
				tt.checkValues(t, rec.Body.Bytes())
			}
		})
	}
}

func TestSeriesHandler_Municipalities(t *testing.T) {
	router := newTestRouter(&stubSeriesRepo{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/municipalities", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":2`) {
		t.Errorf("list: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/municipalities/38038", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Santa Cruz de Tenerife") {
		t.Errorf("get: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/municipalities/99999", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown: %d %s", rec.Code, rec.Body.String())
	}
}

func TestSeriesHandler_ListTaskRuns(t *testing.T) {
	runs := &stubRuns{runs: []*models.TaskRun{
		{ID: "b", Task: "predictions", Success: true},
		{ID: "a", Task: "predictions", Success: false, Error: "timeout"},
	}}
	router := newTestRouter(&stubSeriesRepo{}, runs)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks?task=predictions&limit=1", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":1`) || runs.lastTask != "predictions" {
		t.Errorf("recent: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks?latest=true", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"b"`) {
		t.Errorf("latest: %d %s", rec.Code, rec.Body.String())
	}

	runs.err = errors.New("database is locked")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("ledger failure: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newTestRouter(&stubSeriesRepo{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no ledger: %d", rec.Code)
	}
}

func TestSeriesHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		healthErr  error
		wantStatus int
		wantBody   string
	}{
		{name: "healthy", wantStatus: http.StatusOK, wantBody: `"status":"healthy"`},
		{name: "store down", healthErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantBody: `"status":"unhealthy"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubSeriesRepo{healthErr: tt.healthErr}, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.wantStatus || !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("health: %d %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDocs(t *testing.T) {
	rec := httptest.NewRecorder()
	OpenAPISpec(rec, httptest.NewRequest(http.MethodGet, OpenAPISpecPath, nil))

	var spec struct {
		Info  map[string]any `json:"info"`
		Paths map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &spec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, path := range []string{"/api/series", "/api/series/summary", "/api/municipalities/{id}", "/api/tasks", "/health"} {
		if _, ok := spec.Paths[path]; !ok {
			t.Errorf("path %s not documented", path)
		}
	}

	rec = httptest.NewRecorder()
	SwaggerUI("ClimaCan API", OpenAPISpecPath)(rec, httptest.NewRequest(http.MethodGet, "/api/docs", nil))
	if !strings.Contains(rec.Body.String(), "<title>ClimaCan API</title>") {
		t.Errorf("swagger page missing title")
	}
}
