package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB      DatabaseConfig
	Sources SourcesConfig
	Fetch   FetchConfig
	Logging LoggingConfig
}

type DatabaseConfig struct {
	Driver   string // "postgres" or "sqlite"
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Path     string // sqlite only
}

type SourcesConfig struct {
	TPSBaseURL       string
	OpenMeteoBaseURL string
	// Timezone of the incident source's civil calendar. OCC_HOUR values
	// are hours in this zone, not UTC.
	IncidentTimezone string
	// Earliest local day to backfill incidents from when the table is empty.
	BaselineDate string
	// Root of the partitioned raw-response archive. Empty disables it.
	RawDir string
}

type FetchConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
	Throttle     time.Duration
	Timeout      time.Duration
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		DB: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "collisions"),
			Path:     getEnv("DB_PATH", "./data/collisions.db"),
		},
		Sources: SourcesConfig{
			TPSBaseURL:       getEnv("TPS_BASE_URL", "https://services.arcgis.com/S9th0jAJ7bqgIRjw/ArcGIS/rest/services/Traffic_Collisions_Open_Data/FeatureServer/0/query"),
			OpenMeteoBaseURL: getEnv("OPENMETEO_BASE_URL", "https://archive-api.open-meteo.com/v1/archive"),
			IncidentTimezone: getEnv("INCIDENT_TIMEZONE", "America/Toronto"),
			BaselineDate:     getEnv("BASELINE_DATE", "2024-01-01"),
			RawDir:           getEnv("RAW_ARCHIVE_DIR", "data/raw"),
		},
		Fetch: FetchConfig{
			MaxRetries:   getEnvInt("FETCH_MAX_RETRIES", 3),
			RetryBackoff: getEnvDuration("FETCH_RETRY_BACKOFF", 2*time.Second),
			Throttle:     getEnvDuration("FETCH_THROTTLE", 700*time.Millisecond),
			Timeout:      getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid DB_DRIVER: %s", c.DB.Driver)
	}

	if c.DB.Driver == "postgres" {
		if c.DB.Port < 1 || c.DB.Port > 65535 {
			return fmt.Errorf("invalid DB_PORT: %d", c.DB.Port)
		}
		if c.DB.Name == "" {
			return fmt.Errorf("DB_NAME is required")
		}
	} else if c.DB.Path == "" {
		return fmt.Errorf("DB_PATH is required for the sqlite driver")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Fetch.MaxRetries < 1 {
		return fmt.Errorf("FETCH_MAX_RETRIES must be at least 1")
	}
	if c.Fetch.RetryBackoff < 0 || c.Fetch.Throttle < 0 {
		return fmt.Errorf("retry backoff and throttle must not be negative")
	}

	if _, err := time.Parse("2006-01-02", c.Sources.BaselineDate); err != nil {
		return fmt.Errorf("invalid BASELINE_DATE: %w", err)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
