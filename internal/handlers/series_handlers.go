package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"climacan/internal/models"
	"climacan/internal/repository"
	"climacan/internal/services"
	"climacan/pkg/logging"
	"climacan/pkg/metrics"
)

// TaskRunReader reads the task run ledger.
type TaskRunReader interface {
	Recent(ctx context.Context, task string, limit int) ([]*models.TaskRun, error)
	Latest(ctx context.Context) ([]*models.TaskRun, error)
}

// SeriesHandler handles the read API over ingested series
type SeriesHandler struct {
	seriesService       *services.SeriesService
	summaryService      *services.SummaryService
	municipalityService *services.MunicipalityService
	taskRuns            TaskRunReader
	logger              *logging.StructuredLogger
	metrics             *metrics.Collector
}

// NewSeriesHandler creates a new series handler. taskRuns may be nil.
func NewSeriesHandler(
	seriesService *services.SeriesService,
	summaryService *services.SummaryService,
	municipalityService *services.MunicipalityService,
	taskRuns TaskRunReader,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *SeriesHandler {
	return &SeriesHandler{
		seriesService:       seriesService,
		summaryService:      summaryService,
		municipalityService: municipalityService,
		taskRuns:            taskRuns,
		logger:              logger,
		metrics:             metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// ListResponse wraps an unpaginated list
type ListResponse struct {
	Data  interface{} `json:"data"`
	Count int         `json:"count"`
}

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
	defaultRunLimit  = 20
)

// GetSeries handles GET /api/series
func (h *SeriesHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/series"
	ctx := r.Context()
	defer h.observe(endpoint, time.Now())

	q := r.URL.Query()
	page, limit := parsePagination(q.Get("page"), q.Get("limit"))

	filter := repository.SeriesFilter{
		Database: q.Get("database"),
		Series:   q.Get("series"),
		Limit:    limit,
		Offset:   (page - 1) * limit,
	}

	var err error
	if filter.From, err = parseTimeParam(q.Get("from")); err != nil {
		h.sendError(w, r, "invalid from, expected RFC3339 or YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if filter.To, err = parseTimeParam(q.Get("to")); err != nil {
		h.sendError(w, r, "invalid to, expected RFC3339 or YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	points, total, err := h.seriesService.QuerySeries(ctx, filter)
	if err != nil {
		h.handleServiceError(w, r, endpoint, "[API_GET_SERIES_ERROR] Failed to query series", logging.Fields{
			"database": filter.Database,
			"series":   filter.Series,
		}, err)
		return
	}

	response := PaginatedResponse{
		Data:       points,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}

	h.metrics.RecordAPIRequest(endpoint, "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// ListSeries handles GET /api/series/list
func (h *SeriesHandler) ListSeries(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/series/list"
	ctx := r.Context()
	defer h.observe(endpoint, time.Now())

	database := r.URL.Query().Get("database")
	series, err := h.seriesService.ListSeries(ctx, database)
	if err != nil {
		h.handleServiceError(w, r, endpoint, "[API_LIST_SERIES_ERROR] Failed to list series", logging.Fields{
			"database": database,
		}, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, "GET", "200")
	h.sendJSON(w, ListResponse{Data: series, Count: len(series)}, http.StatusOK)
}

// GetSummary handles GET /api/series/summary. Without a series name every
// series of the database is summarized.
func (h *SeriesHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/series/summary"
	ctx := r.Context()
	defer h.observe(endpoint, time.Now())

	q := r.URL.Query()
	from, err := parseTimeParam(q.Get("from"))
	if err != nil {
		h.sendError(w, r, "invalid from, expected RFC3339 or YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	to, err := parseTimeParam(q.Get("to"))
	if err != nil {
		h.sendError(w, r, "invalid to, expected RFC3339 or YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	database := q.Get("database")
	series := q.Get("series")
	fields := logging.Fields{"database": database, "series": series}

	if series == "" {
		if database == "" {
			h.sendError(w, r, "database is required", http.StatusBadRequest)
			return
		}
		summaries, err := h.summaryService.SummarizeDatabase(ctx, database, from, to)
		if err != nil {
			h.handleServiceError(w, r, endpoint, "[API_SUMMARY_ERROR] Failed to summarize database", fields, err)
			return
		}
		h.metrics.RecordAPIRequest(endpoint, "GET", "200")
		h.sendJSON(w, ListResponse{Data: summaries, Count: len(summaries)}, http.StatusOK)
		return
	}

	summary, err := h.summaryService.Summarize(ctx, repository.SeriesFilter{
		Database: database,
		Series:   series,
		From:     from,
		To:       to,
	})
	if err != nil {
		h.handleServiceError(w, r, endpoint, "[API_SUMMARY_ERROR] Failed to summarize series", fields, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, "GET", "200")
	h.sendJSON(w, summary, http.StatusOK)
}

// ListMunicipalities handles GET /api/municipalities
func (h *SeriesHandler) ListMunicipalities(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/municipalities"
	ctx := r.Context()
	defer h.observe(endpoint, time.Now())

	municipalities, err := h.municipalityService.List(ctx)
	if err != nil {
		h.handleServiceError(w, r, endpoint, "[API_MUNICIPALITIES_ERROR] Failed to list municipalities", logging.Fields{}, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, "GET", "200")
	h.sendJSON(w, ListResponse{Data: municipalities, Count: len(municipalities)}, http.StatusOK)
}

// GetMunicipality handles GET /api/municipalities/{id}
func (h *SeriesHandler) GetMunicipality(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/municipalities/{id}"
	ctx := r.Context()
	defer h.observe(endpoint, time.Now())

	id := mux.Vars(r)["id"]
	municipality, err := h.municipalityService.Get(ctx, id)
	if err != nil {
		h.handleServiceError(w, r, endpoint, "[API_MUNICIPALITY_ERROR] Failed to get municipality", logging.Fields{
			"municipality_id": id,
		}, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, "GET", "200")
	h.sendJSON(w, municipality, http.StatusOK)
}

// ListTaskRuns handles GET /api/tasks. With ?latest=true only the latest
// run of every task is returned.
func (h *SeriesHandler) ListTaskRuns(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/tasks"
	ctx := r.Context()
	defer h.observe(endpoint, time.Now())

	if h.taskRuns == nil {
		h.sendError(w, r, "task ledger is not configured", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	var (
		runs []*models.TaskRun
		err  error
	)
	if latest, _ := strconv.ParseBool(q.Get("latest")); latest {
		runs, err = h.taskRuns.Latest(ctx)
	} else {
		limit := defaultRunLimit
		if l, convErr := strconv.Atoi(q.Get("limit")); convErr == nil && l > 0 && l <= maxPageLimit {
			limit = l
		}
		runs, err = h.taskRuns.Recent(ctx, q.Get("task"), limit)
	}
	if err != nil {
		h.handleServiceError(w, r, endpoint, "[API_TASKS_ERROR] Failed to read task runs", logging.Fields{}, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, "GET", "200")
	h.sendJSON(w, ListResponse{Data: runs, Count: len(runs)}, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *SeriesHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	code := http.StatusOK
	if err := h.seriesService.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK] Series store unhealthy", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, code)
}

func (h *SeriesHandler) observe(endpoint string, startTime time.Time) {
	h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
}

// handleServiceError maps service errors onto status codes.
func (h *SeriesHandler) handleServiceError(w http.ResponseWriter, r *http.Request, endpoint, msg string, fields logging.Fields, err error) {
	var validationErr *models.ValidationError
	var notFoundErr *repository.NotFoundError

	switch {
	case errors.As(err, &validationErr):
		h.metrics.RecordAPIError("validation_error", endpoint)
		h.sendError(w, r, validationErr.Error(), http.StatusBadRequest)
	case errors.As(err, &notFoundErr):
		h.metrics.RecordAPIError("not_found", endpoint)
		h.sendError(w, r, notFoundErr.Error(), http.StatusNotFound)
	default:
		h.logger.Error(r.Context(), msg, fields, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, "internal error", http.StatusInternalServerError)
	}
}

// sendJSON sends a JSON response
func (h *SeriesHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *SeriesHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all read API routes
func (h *SeriesHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/series", h.GetSeries).Methods("GET")
	router.HandleFunc("/api/series/list", h.ListSeries).Methods("GET")
	router.HandleFunc("/api/series/summary", h.GetSummary).Methods("GET")
	router.HandleFunc("/api/municipalities", h.ListMunicipalities).Methods("GET")
	router.HandleFunc("/api/municipalities/{id}", h.GetMunicipality).Methods("GET")
	router.HandleFunc("/api/tasks", h.ListTaskRuns).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}

func parsePagination(pageStr, limitStr string) (int, int) {
	page, limit := 1, defaultPageLimit
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= maxPageLimit {
		limit = l
	}
	return page, limit
}

// parseTimeParam accepts RFC3339 timestamps or plain dates. Empty means unset.
func parseTimeParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
