// Package app wires configuration, stores, clients and services into the
// components shared by the binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"climacan/internal/aemet"
	"climacan/internal/config"
	"climacan/internal/fetch"
	"climacan/internal/grafcan"
	"climacan/internal/provisioning"
	"climacan/internal/repository"
	"climacan/internal/services"
	"climacan/internal/storage/sqlite"
	"climacan/internal/tasks"
	"climacan/pkg/database"
	"climacan/pkg/logging"
	"climacan/pkg/metrics"
)

// Version is reported in logs by every binary.
const Version = "1.0.0"

// App holds the wired components of one process.
type App struct {
	Config  *config.Config
	DB      *database.PostgresDB
	Ledger  *sqlite.TaskRunStorage
	Series  repository.SeriesRepository
	Catalog repository.CatalogRepository

	Municipalities *services.MunicipalityService
	Predictions    *services.PredictionService
	Observations   *services.ObservationService
	Grafcan        *services.GrafcanService
	SeriesQuery    *services.SeriesService
	Summary        *services.SummaryService

	Tasks   map[string]tasks.Task
	Manager *tasks.Manager

	taskDB *sql.DB
}

// NewLogger creates a logger at the configured level.
func NewLogger(service string, cfg *config.Config) *logging.StructuredLogger {
	level := logging.InfoLevel
	switch cfg.Logging.Level {
	case "debug":
		level = logging.DebugLevel
	case "warn", "warning":
		level = logging.WarnLevel
	case "error":
		level = logging.ErrorLevel
	}
	return logging.NewStructuredLogger(service, Version, level)
}

// DatabaseConfig maps the configuration onto the connection pool settings.
func DatabaseConfig(cfg *config.Config) *database.Config {
	return &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
		ConnectDelay:    cfg.Database.ConnectDelay,
	}
}

// FetchConfig returns the HTTP client settings for one upstream.
func FetchConfig(name string, cfg *config.Config) fetch.Config {
	return fetch.Config{
		Name:             name,
		Timeout:          cfg.Fetch.Timeout,
		MaxRetries:       cfg.Fetch.MaxRetries,
		InitialBackoff:   cfg.Fetch.InitialBackoff,
		MaxBackoff:       cfg.Fetch.MaxBackoff,
		RequestsPerSec:   cfg.Fetch.RequestsPerSec,
		Burst:            cfg.Fetch.Burst,
		BreakerFailures:  cfg.Fetch.BreakerFailures,
		BreakerOpenDelay: cfg.Fetch.BreakerOpenDelay,
	}
}

// New connects to the stores and builds every service and task.
func New(cfg *config.Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*App, error) {
	if err := aemet.ValidateCatalog(); err != nil {
		return nil, fmt.Errorf("invalid AEMET field catalog: %w", err)
	}

	loc, err := time.LoadLocation(cfg.AEMET.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.AEMET.Timezone, err)
	}

	db, err := database.NewPostgresDB(DatabaseConfig(cfg), logger, metricsCollector)
	if err != nil {
		return nil, err
	}

	taskDB, err := sqlite.Open(cfg.TaskStore.Path)
	if err != nil {
		db.Close()
		return nil, err
	}
	ledger, err := sqlite.NewTaskRunStorage(taskDB, logger)
	if err != nil {
		taskDB.Close()
		db.Close()
		return nil, err
	}

	a := &App{
		Config:  cfg,
		DB:      db,
		Ledger:  ledger,
		Series:  repository.NewSeriesRepository(db, logger, metricsCollector),
		Catalog: repository.NewCatalogRepository(db, logger, metricsCollector),
		taskDB:  taskDB,
	}

	aemetClient := aemet.NewClient(
		fetch.NewClient(FetchConfig("aemet", cfg), logger, metricsCollector),
		cfg.AEMET.BaseURL,
		cfg.AEMET.APIKey,
	)
	grafcanClient := grafcan.NewClient(
		fetch.NewClient(FetchConfig("grafcan", cfg), logger, metricsCollector),
		cfg.Grafcan.BaseURL,
		cfg.Grafcan.APIKey,
	)
	datasources := provisioning.NewGrafanaProvisioner(
		cfg.Grafana.ProvisioningPath,
		cfg.Grafana.DatasourceURL,
		cfg.Grafana.DatasourceType,
	)

	a.Municipalities = services.NewMunicipalityService(aemetClient, a.Catalog, datasources, logger, metricsCollector)
	a.Predictions = services.NewPredictionService(aemetClient, a.Catalog, a.Series, services.PredictionConfig{
		MaxRetries: cfg.Fetch.PredictionRetries,
		Backoff:    cfg.Fetch.PredictionBackoff,
		Location:   loc,
	}, logger, metricsCollector)
	a.Observations = services.NewObservationService(aemetClient, a.Series, logger, metricsCollector)
	a.Grafcan = services.NewGrafcanService(grafcanClient, a.Catalog, a.Series, logger, metricsCollector)
	a.SeriesQuery = services.NewSeriesService(a.Series, logger, metricsCollector)
	a.Summary = services.NewSummaryService(a.Series, logger, metricsCollector)

	a.Tasks = tasks.Catalog(tasks.Services{
		Municipalities: a.Municipalities,
		Predictions:    a.Predictions,
		Observations:   a.Observations,
		Grafcan:        a.Grafcan,
	})
	a.Manager = tasks.NewManager(ledger, a.Series, logger, metricsCollector)

	logger.Info(context.Background(), "[APP_READY] Components wired", logging.Fields{
		"tasks":      len(a.Tasks),
		"task_store": cfg.TaskStore.Path,
		"timezone":   loc.String(),
	})
	return a, nil
}

// Close releases both stores.
func (a *App) Close() error {
	return errors.Join(a.taskDB.Close(), a.DB.Close())
}
