// Package config defines the configuration of the astroscope API. It is loaded
// once at process start and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any invalid value fails startup.
package config

import (
	"time"

	"astroscope/internal/types"
)

// SecretString is an alias for types.SecretString so connection strings are
// redacted wherever the config is logged.
type SecretString = types.SecretString

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
	StoreDriverNone     = "none"
)

// Config is the top-level configuration. Sub-components receive only the
// section they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"astroscope-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Store         StoreConfig
	Redis         RedisConfig
	Ephemeris     EphemerisConfig
	Scan          ScanConfig
	Security      SecurityConfig
	Observability ObservabilityConfig
	AWS           AWSConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s" validate:"gt=0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"1048576" validate:"gt=0"`
}

// StoreConfig selects and tunes the saved-search store.
type StoreConfig struct {
	Driver     string       `envconfig:"STORE_DRIVER" default:"memory" validate:"oneof=postgres sqlite memory none"`
	URL        SecretString `envconfig:"DATABASE_URL" validate:"required_if=Driver postgres"`
	SQLitePath string       `envconfig:"STORE_SQLITE_PATH" default:"data/astroscope.db" validate:"required_if=Driver sqlite"`
	Namespace  string       `envconfig:"STORE_NAMESPACE" default:"astroscope" validate:"required"`
	ListLimit  int          `envconfig:"STORE_LIST_LIMIT" default:"100" validate:"min=1,max=1000"`

	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	OpenTimeout     time.Duration `envconfig:"DB_OPEN_TIMEOUT" default:"10s" validate:"gt=0"`
}

// RedisConfig points at the shared Redis used for the ephemeris cache, rate
// limiting and idempotency. An empty URL selects in-process fallbacks.
type RedisConfig struct {
	URL SecretString `envconfig:"REDIS_URL"`
}

// EphemerisConfig configures the Horizons provider and its cache.
type EphemerisConfig struct {
	HorizonsURL    string        `envconfig:"HORIZONS_URL" default:"https://ssd.jpl.nasa.gov/api/horizons.api" validate:"required,url"`
	RequestTimeout time.Duration `envconfig:"EPHEMERIS_TIMEOUT" default:"20s" validate:"gt=0"`
	MaxRetries     int           `envconfig:"EPHEMERIS_MAX_RETRIES" default:"2" validate:"min=0,max=5"`
	SpeedLag       time.Duration `envconfig:"EPHEMERIS_SPEED_LAG" default:"24h" validate:"gt=0"`
	CacheTTL       time.Duration `envconfig:"EPHEMERIS_CACHE_TTL" default:"720h"`
}

// ScanConfig bounds historical transit scans.
type ScanConfig struct {
	ChunkDays       int           `envconfig:"SCAN_CHUNK_DAYS" default:"366" validate:"min=1"`
	Workers         int           `envconfig:"SCAN_WORKERS" default:"4" validate:"min=1,max=64"`
	MaxYears        int           `envconfig:"SCAN_MAX_YEARS" default:"200" validate:"min=0"`
	Timeout         time.Duration `envconfig:"SCAN_TIMEOUT" default:"25s" validate:"gt=0"`
	RefineEntry     bool          `envconfig:"SCAN_REFINE_ENTRY" default:"false"`
	RefinePrecision time.Duration `envconfig:"SCAN_REFINE_PRECISION" default:"1m" validate:"gt=0"`
}

// SecurityConfig holds CORS, rate limiting and idempotency settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RateLimitRequests  int           `envconfig:"RATE_LIMIT_REQUESTS" default:"120" validate:"min=0"`
	RateLimitWindow    time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m" validate:"gt=0"`
	IdempotencyTTL     time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h" validate:"gt=0"`
	TrustProxyHeaders  bool          `envconfig:"TRUST_PROXY_HEADERS" default:"false"`
}

// ObservabilityConfig holds metrics settings.
type ObservabilityConfig struct {
	EnableMetrics   bool          `envconfig:"ENABLE_METRICS" default:"false"`
	MetricNamespace string        `envconfig:"METRIC_NAMESPACE" default:"Astroscope"`
	FlushInterval   time.Duration `envconfig:"METRIC_FLUSH_INTERVAL" default:"30s" validate:"gt=0"`
}

// AWSConfig holds the AWS region and an optional endpoint override for
// LocalStack.
type AWSConfig struct {
	Region      string `envconfig:"AWS_REGION" default:"us-east-1"`
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
