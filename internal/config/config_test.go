package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		wantLoadErr string
		wantErr     string
		checkValues func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults",
			env:  map[string]string{"AEMET_API_KEY": "token"},
			checkValues: func(t *testing.T, cfg *Config) {
				if cfg.AEMET.BaseURL != "https://opendata.aemet.es/opendata" {
					t.Errorf("AEMET.BaseURL = %q", cfg.AEMET.BaseURL)
				}
				if cfg.Schedule.Predictions != "0 */6 * * *" {
					t.Errorf("Schedule.Predictions = %q", cfg.Schedule.Predictions)
				}
				if cfg.Fetch.PredictionRetries != 10 {
					t.Errorf("Fetch.PredictionRetries = %d, want 10", cfg.Fetch.PredictionRetries)
				}
				if cfg.Database.Port != 5432 {
					t.Errorf("Database.Port = %d", cfg.Database.Port)
				}
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"AEMET_API_KEY":          "token",
				"DB_PORT":                "6543",
				"FETCH_TIMEOUT":          "5s",
				"FETCH_RPS":              "2.5",
				"LOG_LEVEL":              "DEBUG",
				"SCHEDULER_RUN_AT_START": "true",
			},
			checkValues: func(t *testing.T, cfg *Config) {
				if cfg.Database.Port != 6543 {
					t.Errorf("Database.Port = %d, want 6543", cfg.Database.Port)
				}
				if cfg.Fetch.Timeout != 5*time.Second {
					t.Errorf("Fetch.Timeout = %v", cfg.Fetch.Timeout)
				}
				if cfg.Fetch.RequestsPerSec != 2.5 {
					t.Errorf("Fetch.RequestsPerSec = %v", cfg.Fetch.RequestsPerSec)
				}
				if cfg.Logging.Level != "debug" {
					t.Errorf("Logging.Level = %q", cfg.Logging.Level)
				}
				if !cfg.Schedule.RunAtStart {
					t.Error("Schedule.RunAtStart = false")
				}
			},
		},
		{
			name:        "malformed number",
			env:         map[string]string{"DB_PORT": "five"},
			wantLoadErr: "DB_PORT",
		},
		{
			name:    "missing AEMET key",
			env:     map[string]string{},
			wantErr: "APIKey",
		},
		{
			name:    "bad cron spec",
			env:     map[string]string{"AEMET_API_KEY": "token", "CRON_PREDICTIONS": "every six hours"},
			wantErr: "predictions",
		},
		{
			name:    "idle above open connections",
			env:     map[string]string{"AEMET_API_KEY": "token", "DB_MAX_OPEN_CONNS": "2", "DB_MAX_IDLE_CONNS": "3"},
			wantErr: "MaxIdleConns",
		},
		{
			name:    "unknown timezone",
			env:     map[string]string{"AEMET_API_KEY": "token", "AEMET_TIMEZONE": "Atlantic/Nowhere"},
			wantErr: "AEMET_TIMEZONE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AEMET_API_KEY", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			if tt.wantLoadErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantLoadErr) {
					t.Fatalf("LoadConfig() error = %v, want mention of %q", err, tt.wantLoadErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}

			err = cfg.Validate()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Validate() error = %v, want mention of %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}

			if tt.checkValues != nil {
				tt.checkValues(t, cfg)
			}
		})
	}
}
