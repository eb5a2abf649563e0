package domain

import (
	"time"
)

// Storage drivers for profiles, trials and match records.
const (
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Consent ledger drivers.
const (
	ConsentSQLite   = "sqlite"
	ConsentPostgres = "postgres"
)

// Config represents the main application configuration
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Mongo       MongoConfig    `mapstructure:"mongo"`
	Database    DatabaseConfig `mapstructure:"database"`
	Consent     ConsentConfig  `mapstructure:"consent"`
	Cache       CacheConfig    `mapstructure:"cache"`
	AI          AIConfig       `mapstructure:"ai"`
	Auth        AuthConfig     `mapstructure:"auth"`
	Search      SearchConfig   `mapstructure:"search"`
	Intake      IntakeConfig   `mapstructure:"intake"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	Tracing     TracingConfig  `mapstructure:"tracing"`
	MCP         MCPConfig      `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// StorageConfig selects the backend for profiles, trials and match records.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // "mongo", "postgres", "memory"
}

// MongoConfig represents document database configuration
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
}

// DatabaseConfig represents PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// ConsentConfig configures the consent ledger
type ConsentConfig struct {
	Driver     string `mapstructure:"driver"` // "sqlite", "postgres"
	SQLitePath string `mapstructure:"sqlite_path"`
}

// CacheConfig represents extraction cache configuration
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	MemorySize  int           `mapstructure:"memory_size"`
	MemoryTTL   time.Duration `mapstructure:"memory_ttl"`
}

// AIConfig represents the generative model used for extraction and matching
type AIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int64         `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"` // requests per second
	RateBurst   int           `mapstructure:"rate_burst"`
	RetryCount  int           `mapstructure:"retry_count"`
	Temperature float64       `mapstructure:"temperature"`
}

// AuthConfig protects researcher-facing routes
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// SearchConfig bounds the candidate filter
type SearchConfig struct {
	DefaultLimit  int `mapstructure:"default_limit"`
	MaxLimit      int `mapstructure:"max_limit"`
	WorkingSetCap int `mapstructure:"working_set_cap"`
}

// IntakeConfig configures record upload and matching
type IntakeConfig struct {
	MaxUploadBytes   int64 `mapstructure:"max_upload_bytes"`
	MaxBatchFiles    int   `mapstructure:"max_batch_files"`
	BatchConcurrency int   `mapstructure:"batch_concurrency"`
	MatchThreshold   int   `mapstructure:"match_threshold"`

	// BatchRetention is how long a finished batch stays queryable.
	BatchRetention time.Duration `mapstructure:"batch_retention"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig configures OpenTelemetry export. An empty endpoint disables export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
