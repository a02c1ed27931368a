package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config is the complete runtime configuration shared by every binary.
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Logging   LoggingConfig
	AEMET     AEMETConfig
	Grafcan   GrafcanConfig
	Fetch     FetchConfig
	Schedule  ScheduleConfig
	TaskStore TaskStoreConfig
	Grafana   GrafanaConfig
}

type DatabaseConfig struct {
	Host            string `validate:"required"`
	Port            int    `validate:"min=1,max=65535"`
	User            string `validate:"required"`
	Password        string
	Database        string `validate:"required"`
	SSLMode         string `validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns    int    `validate:"min=1"`
	MaxIdleConns    int    `validate:"min=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectAttempts int `validate:"min=1"`
	ConnectDelay    time.Duration
}

type ServerConfig struct {
	Host         string
	Port         int `validate:"min=1,max=65535"`
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level string `validate:"oneof=debug info warn warning error"`
}

// AEMETConfig configures the AEMET OpenData client.
type AEMETConfig struct {
	APIKey   string `validate:"required"`
	BaseURL  string `validate:"required,url"`
	Timezone string `validate:"required"`
}

// GrafcanConfig configures the Grafcan sensor network client.
type GrafcanConfig struct {
	APIKey  string
	BaseURL string `validate:"required,url"`
}

// FetchConfig holds the resilience settings shared by the HTTP clients.
type FetchConfig struct {
	Timeout          time.Duration `validate:"gt=0"`
	MaxRetries       int           `validate:"min=0"`
	InitialBackoff   time.Duration `validate:"gt=0"`
	MaxBackoff       time.Duration `validate:"gtefield=InitialBackoff"`
	RequestsPerSec   float64       `validate:"gt=0"`
	Burst            int           `validate:"min=1"`
	BreakerFailures  int           `validate:"min=1"`
	BreakerOpenDelay time.Duration `validate:"gt=0"`

	// PredictionRetries and PredictionBackoff drive the per-municipality
	// retry loop: attempt n sleeps PredictionBackoff * n * 2.5.
	PredictionRetries int           `validate:"min=1"`
	PredictionBackoff time.Duration `validate:"min=0"`
}

// ScheduleConfig holds one crontab spec per scheduled task.
type ScheduleConfig struct {
	Municipalities          string
	Predictions             string
	ConventionalObservation string
	GrafcanStations         string
	GrafcanObservations     string
	RunAtStart              bool
	MetricsPort             int `validate:"min=1,max=65535"`
}

type TaskStoreConfig struct {
	Path string `validate:"required"`
}

// GrafanaConfig drives the datasource provisioning file.
type GrafanaConfig struct {
	ProvisioningPath string `validate:"required"`
	DatasourceURL    string `validate:"required"`
	DatasourceType   string `validate:"required"`
}

// LoadConfig loads configuration from the environment. A .env file in the
// working directory is read first when present; real environment variables
// take precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var errs []error
	l := loader{errs: &errs}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:            l.getString("DB_HOST", "localhost"),
			Port:            l.getInt("DB_PORT", 5432),
			User:            l.getString("DB_USER", "climacan"),
			Password:        l.getString("DB_PASSWORD", ""),
			Database:        l.getString("DB_NAME", "climacan"),
			SSLMode:         l.getString("DB_SSLMODE", "disable"),
			MaxOpenConns:    l.getInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    l.getInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: l.getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: l.getDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			ConnectAttempts: l.getInt("DB_CONNECT_ATTEMPTS", 10),
			ConnectDelay:    l.getDuration("DB_CONNECT_DELAY", 3*time.Second),
		},
		Server: ServerConfig{
			Host:         l.getString("SERVER_HOST", "0.0.0.0"),
			Port:         l.getInt("SERVER_PORT", 8080),
			ReadTimeout:  l.getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: l.getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  l.getDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level: strings.ToLower(l.getString("LOG_LEVEL", "info")),
		},
		AEMET: AEMETConfig{
			APIKey:   l.getString("AEMET_API_KEY", ""),
			BaseURL:  l.getString("AEMET_BASE_URL", "https://opendata.aemet.es/opendata"),
			Timezone: l.getString("AEMET_TIMEZONE", "Atlantic/Canary"),
		},
		Grafcan: GrafcanConfig{
			APIKey:  l.getString("GRAFCAN_API_KEY", ""),
			BaseURL: l.getString("GRAFCAN_BASE_URL", "https://sensores.grafcan.es/api/v1.0"),
		},
		Fetch: FetchConfig{
			Timeout:           l.getDuration("FETCH_TIMEOUT", 30*time.Second),
			MaxRetries:        l.getInt("FETCH_MAX_RETRIES", 3),
			InitialBackoff:    l.getDuration("FETCH_INITIAL_BACKOFF", 500*time.Millisecond),
			MaxBackoff:        l.getDuration("FETCH_MAX_BACKOFF", 10*time.Second),
			RequestsPerSec:    l.getFloat("FETCH_RPS", 0.75),
			Burst:             l.getInt("FETCH_BURST", 2),
			BreakerFailures:   l.getInt("FETCH_BREAKER_FAILURES", 5),
			BreakerOpenDelay:  l.getDuration("FETCH_BREAKER_OPEN_DELAY", time.Minute),
			PredictionRetries: l.getInt("PREDICTION_MAX_RETRIES", 10),
			PredictionBackoff: l.getDuration("PREDICTION_BACKOFF", 2*time.Second),
		},
		Schedule: ScheduleConfig{
			Municipalities:          l.getString("CRON_MUNICIPALITIES", "0 0 1,8,15,21 * 1"),
			Predictions:             l.getString("CRON_PREDICTIONS", "0 */6 * * *"),
			ConventionalObservation: l.getString("CRON_CONVENTIONAL_OBSERVATIONS", "2 * * * *"),
			GrafcanStations:         l.getString("CRON_GRAFCAN_STATIONS", "0 23 * * 1,3,5"),
			GrafcanObservations:     l.getString("CRON_GRAFCAN_OBSERVATIONS", "*/10 * * * *"),
			RunAtStart:              l.getBool("SCHEDULER_RUN_AT_START", false),
			MetricsPort:             l.getInt("SCHEDULER_METRICS_PORT", 9102),
		},
		TaskStore: TaskStoreConfig{
			Path: l.getString("TASK_STORE_PATH", "data/tasks.db"),
		},
		Grafana: GrafanaConfig{
			ProvisioningPath: l.getString("GRAFANA_PROVISIONING_PATH", "grafana/provisioning/datasources/datasources.yaml"),
			DatasourceURL:    l.getString("GRAFANA_DATASOURCE_URL", "postgres:5432"),
			DatasourceType:   l.getString("GRAFANA_DATASOURCE_TYPE", "grafana-postgresql-datasource"),
		},
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and that every cron spec parses.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for name, spec := range c.Schedule.Specs() {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid cron spec for %s %q: %w", name, spec, err)
		}
	}

	if _, err := time.LoadLocation(c.AEMET.Timezone); err != nil {
		return fmt.Errorf("invalid AEMET_TIMEZONE %q: %w", c.AEMET.Timezone, err)
	}
	return nil
}

// Specs returns the crontab spec of every scheduled task keyed by task name.
func (s ScheduleConfig) Specs() map[string]string {
	return map[string]string{
		"municipalities":            s.Municipalities,
		"predictions":               s.Predictions,
		"conventional_observations": s.ConventionalObservation,
		"grafcan_stations":          s.GrafcanStations,
		"grafcan_observations":      s.GrafcanObservations,
	}
}

// loader reads typed environment variables, collecting parse errors instead
// of silently falling back to defaults.
type loader struct {
	errs *[]error
}

func (l loader) getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (l loader) getInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*l.errs = append(*l.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func (l loader) getFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*l.errs = append(*l.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return f
}

func (l loader) getBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*l.errs = append(*l.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return b
}

func (l loader) getDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*l.errs = append(*l.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}
