// Package config provides centralized configuration management for the ETL job.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all job configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Source   SourceConfig
	Paths    PathsConfig
	Load     LoadConfig
	Quality  QualityConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// DatabaseConfig holds destination database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. When set it wins over the discrete fields.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	Host     string `env:"POSTGRES_HOST" default:"localhost"`
	Port     int    `env:"POSTGRES_PORT" default:"5432"`
	Name     string `env:"POSTGRES_DB" default:"retail_db"`
	User     string `env:"POSTGRES_USER" default:"postgres"`
	Password string `env:"POSTGRES_PASSWORD"`
	SSLMode  string `env:"POSTGRES_SSLMODE" default:"disable"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// ConnectTimeout bounds the initial connect and ping (default: 10s)
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" default:"10s"`
}

// SourceConfig holds settings for fetching and caching the raw dataset.
type SourceConfig struct {
	// Dataset is the Kaggle dataset slug (owner/name)
	Dataset string `env:"KAGGLE_DATASET" default:"ytgangster/online-sales-in-usa"`

	// FileName is the CSV file expected inside the dataset archive
	FileName string `env:"SOURCE_FILE" default:"sales.csv"`

	Username string `env:"KAGGLE_USERNAME"`
	Key      string `env:"KAGGLE_KEY"`

	// APIURL is the Kaggle API base URL
	APIURL string `env:"KAGGLE_API_URL" default:"https://www.kaggle.com/api/v1"`

	// MinFileSize is the smallest cached file considered valid, in bytes (default: 1MB)
	MinFileSize int64 `env:"SOURCE_MIN_FILE_SIZE" default:"1048576"`

	// MaxAge is the oldest cached file considered valid (default: 30 days)
	MaxAge time.Duration `env:"SOURCE_MAX_AGE" default:"720h"`

	// DownloadTimeout bounds a single dataset download (default: 10m)
	DownloadTimeout time.Duration `env:"SOURCE_DOWNLOAD_TIMEOUT" default:"10m"`
}

// PathsConfig holds the on-disk layout for raw, processed and report files.
type PathsConfig struct {
	// DataDir is the root of the data layout (default: data)
	DataDir string `env:"DATA_DIR" default:"data"`
}

// LoadConfig holds database load settings.
type LoadConfig struct {
	// BatchSize is the number of dimension rows sent per batch (default: 1000)
	BatchSize int `env:"LOAD_BATCH_SIZE" default:"1000"`

	// Timeout is the maximum duration for the whole load transaction (default: 10m)
	Timeout time.Duration `env:"LOAD_TIMEOUT" default:"10m"`
}

// QualityConfig holds data-quality rule settings.
type QualityConfig struct {
	// RulesFile is an optional YAML file overriding the default rule set
	RulesFile string `env:"RULES_FILE"`

	// Tolerance is the allowed absolute difference before a stored amount is replaced (default: 0.01)
	Tolerance float64 `env:"QUALITY_TOLERANCE" default:"0.01"`

	// ReferenceYear anchors two-digit years in date cells (default: 2020)
	ReferenceYear int `env:"QUALITY_REFERENCE_YEAR" default:"2020"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// Addr, when set, serves /metrics and /healthz for the duration of the run
	Addr string `env:"METRICS_ADDR"`

	// Textfile enables writing metrics/salesetl.prom after the run (default: true)
	Textfile bool `env:"METRICS_TEXTFILE" default:"true"`
}

// ConnString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// HasCredentials reports whether Kaggle credentials are configured.
func (c *SourceConfig) HasCredentials() bool {
	return c.Username != "" && c.Key != ""
}

// RawDir returns the directory holding the downloaded source file.
func (c *PathsConfig) RawDir() string { return filepath.Join(c.DataDir, "raw") }

// BackupDir returns the directory holding backups of replaced source files.
func (c *PathsConfig) BackupDir() string { return filepath.Join(c.DataDir, "backup") }

// MetadataDir returns the directory holding extraction metadata.
func (c *PathsConfig) MetadataDir() string { return filepath.Join(c.DataDir, "metadata") }

// ProcessedDir returns the directory holding the normalized CSV exports.
func (c *PathsConfig) ProcessedDir() string { return filepath.Join(c.DataDir, "processed") }

// ReportsDir returns the directory holding HTML run reports.
func (c *PathsConfig) ReportsDir() string { return filepath.Join(c.DataDir, "reports") }

// MetricsDir returns the directory holding the Prometheus textfile.
func (c *PathsConfig) MetricsDir() string { return filepath.Join(c.DataDir, "metrics") }

// String returns a safe string representation of the config for logging.
// Credentials are masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Database: {Host: %q, Port: %d, Name: %q, URL: %s}, Source: {Dataset: %q, User: %q, Key: %s}, "+
			"Paths: {DataDir: %q}, Load: {BatchSize: %d}, Quality: {RulesFile: %q, Tolerance: %v}, "+
			"Logging: {Level: %q, Format: %q}}",
		c.Database.Host, c.Database.Port, c.Database.Name, mask(c.Database.URL),
		c.Source.Dataset, c.Source.Username, mask(c.Source.Key),
		c.Paths.DataDir, c.Load.BatchSize, c.Quality.RulesFile, c.Quality.Tolerance,
		c.Logging.Level, c.Logging.Format,
	)
}

func mask(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
