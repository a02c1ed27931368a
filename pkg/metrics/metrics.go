package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	// Upstream fetch metrics
	FetchRequestsTotal *prometheus.CounterVec
	FetchDuration      *prometheus.HistogramVec
	FetchRetriesTotal  *prometheus.CounterVec

	// Normalization metrics
	TablesBuiltTotal   *prometheus.CounterVec
	TablesSkippedTotal *prometheus.CounterVec
	TablesFailedTotal  *prometheus.CounterVec

	// Ingestion metrics
	IngestionPointsTotal *prometheus.CounterVec
	IngestionErrorsTotal *prometheus.CounterVec
	IngestionDuration    *prometheus.HistogramVec
	IngestionBatchSize   prometheus.Histogram

	// Task metrics
	TaskRunsTotal   *prometheus.CounterVec
	TaskLastSuccess *prometheus.GaugeVec
	TaskDuration    *prometheus.HistogramVec

	// API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec

	// Database metrics
	DBQueryDuration  *prometheus.HistogramVec
	DBConnectionPool *prometheus.GaugeVec
	DBErrorsTotal    *prometheus.CounterVec
}

// NewCollector registers every metric under namespace with reg. Binaries pass
// prometheus.DefaultRegisterer; tests pass a fresh prometheus.NewRegistry().
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		FetchRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_requests_total",
				Help:      "Upstream API requests by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),

		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Upstream API request duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"provider"},
		),

		FetchRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_retries_total",
				Help:      "Upstream API retries by provider",
			},
			[]string{"provider"},
		),

		TablesBuiltTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecast_tables_built_total",
				Help:      "Forecast tables built by measurement key",
			},
			[]string{"measurement"},
		),

		TablesSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecast_tables_skipped_total",
				Help:      "Forecast measurement keys skipped because they held no list",
			},
			[]string{"measurement"},
		),

		TablesFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forecast_tables_failed_total",
				Help:      "Forecast measurement keys that failed to tabulate",
			},
			[]string{"measurement"},
		),

		IngestionPointsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingestion_points_written_total",
				Help:      "Time-series points written by source",
			},
			[]string{"source"},
		),

		IngestionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingestion_errors_total",
				Help:      "Ingestion errors by source and type",
			},
			[]string{"source", "error_type"},
		),

		IngestionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingestion_duration_seconds",
				Help:      "Duration of ingestion runs in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"source"},
		),

		IngestionBatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingestion_batch_size",
				Help:      "Number of points per write batch",
				Buckets:   []float64{1, 5, 10, 24, 50, 100, 500, 1000},
			},
		),

		TaskRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_runs_total",
				Help:      "Scheduled task runs by task and outcome",
			},
			[]string{"task", "outcome"},
		),

		TaskLastSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "task_last_success",
				Help:      "1 if the last run of the task succeeded, 0 otherwise",
			},
			[]string{"task"},
		),

		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Scheduled task duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 300, 900, 1800, 3600},
			},
			[]string{"task"},
		),

		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"endpoint"},
		),

		APIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API errors by type",
			},
			[]string{"error_type", "endpoint"},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"query_type"},
		),

		DBConnectionPool: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"state"}, // "in_use", "idle", "total"
		),

		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors by type",
			},
			[]string{"error_type"},
		),
	}
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordFetch counts one upstream request and its latency.
func (c *Collector) RecordFetch(provider, outcome string, d time.Duration) {
	c.FetchRequestsTotal.WithLabelValues(provider, outcome).Inc()
	c.FetchDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordIngestionError increments ingestion error counter
func (c *Collector) RecordIngestionError(source, errorType string) {
	c.IngestionErrorsTotal.WithLabelValues(source, errorType).Inc()
}

// RecordTaskRun records the outcome of a scheduled task.
func (c *Collector) RecordTaskRun(task string, success bool, d time.Duration) {
	outcome := "failure"
	last := 0.0
	if success {
		outcome = "success"
		last = 1
	}
	c.TaskRunsTotal.WithLabelValues(task, outcome).Inc()
	c.TaskLastSuccess.WithLabelValues(task).Set(last)
	c.TaskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// RecordAPIRequest increments API request counter
func (c *Collector) RecordAPIRequest(endpoint, method, status string) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordAPIError increments API error counter
func (c *Collector) RecordAPIError(errorType, endpoint string) {
	c.APIErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}

// RecordDBError increments database error counter
func (c *Collector) RecordDBError(errorType string) {
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}

// UpdateDBConnectionPool updates database connection pool metrics
func (c *Collector) UpdateDBConnectionPool(inUse, idle, total int) {
	c.DBConnectionPool.WithLabelValues("in_use").Set(float64(inUse))
	c.DBConnectionPool.WithLabelValues("idle").Set(float64(idle))
	c.DBConnectionPool.WithLabelValues("total").Set(float64(total))
}
