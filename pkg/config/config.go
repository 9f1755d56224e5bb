// Package config loads importer settings from defaults, an optional YAML
// file named by CONFIG_FILE and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Import   ImportConfig   `yaml:"import"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns a postgres:// connection URL.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{d.SSLMode}}.Encode()
	}
	return u.String()
}

type ImportConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MatchWorkers        int     `yaml:"match_workers"`
	HistoryLimit        int     `yaml:"history_limit"`
	ProgressChannel     string  `yaml:"progress_channel"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps Level to a slog level. Unknown values are info.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			Name:    "finance",
			SSLMode: "disable",
		},
		Import: ImportConfig{
			SimilarityThreshold: 0.4,
			MatchWorkers:        4,
			HistoryLimit:        2000,
			ProgressChannel:     "import_progress",
		},
		Metrics: MetricsConfig{Port: 9090},
		Log:     LogConfig{Level: "info"},
	}
}

// Load builds the configuration. It does not read .env files; the binary
// calls godotenv before Load.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit YAML file. An empty path falls back to
// CONFIG_FILE.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.overlayEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

func (c *Config) overlayEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("DB_HOST", &c.Database.Host)
	integer("DB_PORT", &c.Database.Port)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.Name)
	str("DB_SSLMODE", &c.Database.SSLMode)

	if v, ok := os.LookupEnv("IMPORT_SIMILARITY_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("IMPORT_SIMILARITY_THRESHOLD: %w", err))
		} else {
			c.Import.SimilarityThreshold = f
		}
	}
	integer("IMPORT_MATCH_WORKERS", &c.Import.MatchWorkers)
	integer("IMPORT_HISTORY_LIMIT", &c.Import.HistoryLimit)
	str("IMPORT_PROGRESS_CHANNEL", &c.Import.ProgressChannel)

	boolean("METRICS_ENABLED", &c.Metrics.Enabled)
	integer("METRICS_PORT", &c.Metrics.Port)

	str("LOG_LEVEL", &c.Log.Level)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %w", errors.Join(errs...))
	}
	return nil
}

// Validate checks the import tunables.
func (c *Config) Validate() error {
	var errs []error
	if t := c.Import.SimilarityThreshold; t <= 0 || t >= 1 {
		errs = append(errs, fmt.Errorf("import.similarity_threshold must be in (0,1), got %v", t))
	}
	if c.Import.MatchWorkers <= 0 {
		errs = append(errs, fmt.Errorf("import.match_workers must be positive, got %d", c.Import.MatchWorkers))
	}
	if c.Import.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("import.history_limit must be positive, got %d", c.Import.HistoryLimit))
	}
	if c.Import.ProgressChannel == "" {
		errs = append(errs, errors.New("import.progress_channel is required"))
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port))
	}
	return errors.Join(errs...)
}
