package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/pharmatrace-server/internal/domain"
)

// LiteConfig configures the stdio MCP server. It is read from the environment only so that
// MCP clients can launch the binary without a config file.
type LiteConfig struct {
	DataDir string // holds seed.json for the memory driver

	StorageDriver string // "memory" or "mongo"
	MongoURI      string
	MongoDatabase string

	WorkingSetCap int

	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()

	return &LiteConfig{
		DataDir:       filepath.Join(homeDir, ".pharmatrace"),
		StorageDriver: domain.StorageMemory,
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "pharmatrace",
		WorkingSetCap: 5000,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from PHARMATRACE_* environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("PHARMATRACE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PHARMATRACE_STORAGE_DRIVER"); v != "" {
		cfg.StorageDriver = v
	}
	if v := os.Getenv("PHARMATRACE_MONGO_URI"); v != "" {
		cfg.MongoURI = v
	}
	if v := os.Getenv("PHARMATRACE_MONGO_DATABASE"); v != "" {
		cfg.MongoDatabase = v
	}
	if v := os.Getenv("PHARMATRACE_SEARCH_WORKING_SET_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WorkingSetCap = n
		}
	}

	if v := os.Getenv("PHARMATRACE_LOGGING_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PHARMATRACE_LOGGING_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// SeedPath returns the JSON fixture loaded into the memory driver.
func (c *LiteConfig) SeedPath() string {
	return filepath.Join(c.DataDir, "seed.json")
}

// SearchConfig returns the candidate search bounds for the lite server.
func (c *LiteConfig) SearchConfig() domain.SearchConfig {
	return domain.SearchConfig{DefaultLimit: 10, MaxLimit: 200, WorkingSetCap: c.WorkingSetCap}
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}
