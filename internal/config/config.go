package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Adapter names accepted in database.adapter.
const (
	AdapterSQLite  = "sqlite"
	AdapterPGXPool = "pgx.pool"
	AdapterSQLDB   = "sql.db"
	AdapterSQLX    = "sqlx.db"
)

// Environment variables overriding file values.
const (
	EnvAdapter    = "LENDING_DB_ADAPTER"
	EnvDSN        = "LENDING_DB_DSN"
	EnvLogLevel   = "LENDING_LOG_LEVEL"
	EnvLogFormat  = "LENDING_LOG_FORMAT"
	EnvFinePerDay = "LENDING_FINE_PER_DAY"

	EnvOTelEnabled     = "LENDING_OTEL_ENABLED"
	EnvOTelEndpoint    = "LENDING_OTEL_ENDPOINT"
	EnvOTelInsecure    = "LENDING_OTEL_INSECURE"
	EnvOTelServiceName = "LENDING_OTEL_SERVICE_NAME"
)

var (
	ErrUnknownAdapter          = errors.New("unknown database adapter")
	ErrEmptyDSN                = errors.New("database dsn must not be empty")
	ErrNegativeFinePerDay      = errors.New("fine per day must not be negative")
	ErrNonPositiveLoanDays     = errors.New("default loan days must be positive")
	ErrNonPositiveSweepPeriod  = errors.New("sweep interval must be positive")
	ErrNonPositiveMaxConns     = errors.New("max connections must be positive")
	ErrUnknownLogLevel         = errors.New("unknown log level")
	ErrUnknownLogFormat        = errors.New("unknown log format")
	ErrInvalidEnvironmentValue = errors.New("invalid environment value")
	ErrEmptyOTelEndpoint       = errors.New("otel endpoint must not be empty when observability is enabled")
	ErrEmptyServiceName        = errors.New("otel service name must not be empty when observability is enabled")
	ErrNonPositiveMetricPeriod = errors.New("metric export interval must be positive")
)

// Config is the complete lendingctl configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Lending  LendingConfig  `yaml:"lending"`
	Log      LogConfig      `yaml:"log"`

	Observability ObservabilityConfig `yaml:"observability"`
}

type DatabaseConfig struct {
	// Adapter is one of sqlite, pgx.pool, sql.db, sqlx.db.
	Adapter string `yaml:"adapter"`

	// DSN is a file path for sqlite and a PostgreSQL connection string otherwise.
	DSN string `yaml:"dsn"`

	// MaxConns bounds the PostgreSQL pool. SQLite always uses a single connection.
	MaxConns int32 `yaml:"max_conns"`
}

type LendingConfig struct {
	FinePerDay      float64       `yaml:"fine_per_day"`
	DefaultLoanDays int           `yaml:"default_loan_days"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

// ObservabilityConfig controls the OpenTelemetry SDK. When disabled, spans and metrics go to the global no-op providers.
type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the host:port of an OTLP gRPC receiver, usually an OpenTelemetry Collector.
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`

	ServiceName    string        `yaml:"service_name"`
	MetricInterval time.Duration `yaml:"metric_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the configuration used when nothing else is given.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Adapter:  AdapterSQLite,
			DSN:      "lending.db",
			MaxConns: 10,
		},
		Lending: LendingConfig{
			FinePerDay:      0.5,
			DefaultLoanDays: 14,
			SweepInterval:   time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			Insecure:       true,
			ServiceName:    "lendingctl",
			MetricInterval: 10 * time.Second,
		},
	}
}

// Load reads defaults, then the YAML file at path (skipped when path is empty),
// then the process environment, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := cfg.decode(data); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// decode overlays the YAML document on cfg. Unknown keys are rejected.
func (c *Config) decode(data []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// ApplyEnv overrides values from the LENDING_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(key string) (string, bool)) error {
	if value, ok := lookup(EnvAdapter); ok && value != "" {
		c.Database.Adapter = value
	}

	if value, ok := lookup(EnvDSN); ok && value != "" {
		c.Database.DSN = value
	}

	if value, ok := lookup(EnvLogLevel); ok && value != "" {
		c.Log.Level = strings.ToLower(value)
	}

	if value, ok := lookup(EnvLogFormat); ok && value != "" {
		c.Log.Format = strings.ToLower(value)
	}

	if value, ok := lookup(EnvFinePerDay); ok && value != "" {
		fine, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidEnvironmentValue, EnvFinePerDay, value)
		}

		c.Lending.FinePerDay = fine
	}

	if err := lookupBool(lookup, EnvOTelEnabled, &c.Observability.Enabled); err != nil {
		return err
	}

	if value, ok := lookup(EnvOTelEndpoint); ok && value != "" {
		c.Observability.Endpoint = value
	}

	if err := lookupBool(lookup, EnvOTelInsecure, &c.Observability.Insecure); err != nil {
		return err
	}

	if value, ok := lookup(EnvOTelServiceName); ok && value != "" {
		c.Observability.ServiceName = value
	}

	return nil
}

func lookupBool(lookup func(key string) (string, bool), key string, target *bool) error {
	value, ok := lookup(key)
	if !ok || value == "" {
		return nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidEnvironmentValue, key, value)
	}

	*target = parsed

	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Database.Adapter {
	case AdapterSQLite, AdapterPGXPool, AdapterSQLDB, AdapterSQLX:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownAdapter, c.Database.Adapter))
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, ErrEmptyDSN)
	}

	if c.Database.MaxConns <= 0 {
		errs = append(errs, ErrNonPositiveMaxConns)
	}

	if c.Lending.FinePerDay < 0 {
		errs = append(errs, ErrNegativeFinePerDay)
	}

	if c.Lending.DefaultLoanDays <= 0 {
		errs = append(errs, ErrNonPositiveLoanDays)
	}

	if c.Lending.SweepInterval <= 0 {
		errs = append(errs, ErrNonPositiveSweepPeriod)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownLogFormat, c.Log.Format))
	}

	if c.Observability.Enabled {
		if strings.TrimSpace(c.Observability.Endpoint) == "" {
			errs = append(errs, ErrEmptyOTelEndpoint)
		}

		if strings.TrimSpace(c.Observability.ServiceName) == "" {
			errs = append(errs, ErrEmptyServiceName)
		}
	}

	if c.Observability.MetricInterval <= 0 {
		errs = append(errs, ErrNonPositiveMetricPeriod)
	}

	return errors.Join(errs...)
}

// UsesPostgres reports whether the adapter talks to PostgreSQL.
func (c DatabaseConfig) UsesPostgres() bool {
	return c.Adapter != AdapterSQLite
}

// SlogLevel maps Level to a slog.Level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	switch c.Level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLogLevel, c.Level)
	}
}

// NewHandler builds the slog handler described by c, writing to w.
func (c LogConfig) NewHandler(w io.Writer) slog.Handler {
	level, err := c.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}

	options := &slog.HandlerOptions{Level: level}

	if c.Format == "json" {
		return slog.NewJSONHandler(w, options)
	}

	return slog.NewTextHandler(w, options)
}
