// Package config loads graphkv's runtime configuration.
//
// Defaults are seeded from an optional YAML file (MergeYAMLFile), then
// overridden by environment variables (LoadFromEnv) — the same two-layer
// precedence the APOC function config uses (apoc/config.go), generalized
// from per-function toggles to database/transaction/logging settings.
//
// Example Usage:
//
//	cfg := config.DefaultConfig()
//	if err := config.MergeYAMLFile(cfg, "graphkv.yaml"); err != nil && !os.IsNotExist(err) {
//		log.Fatalf("reading graphkv.yaml: %v", err)
//	}
//	cfg.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds graphkv's top-level configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Transaction TransactionConfig `yaml:"transaction"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DatabaseConfig holds storage settings.
type DatabaseConfig struct {
	// DataDir is the directory the Badger engine persists to.
	DataDir string `yaml:"data_dir"`
	// InMemory selects the in-process MemoryEngine over Badger, ignoring
	// DataDir. Intended for tests and ephemeral sessions.
	InMemory bool `yaml:"in_memory"`
	// DefaultDatabase names a database. It is loaded but not read by
	// database.Open or sessions.
	DefaultDatabase string `yaml:"default_database"`
	// ReadOnly is loaded and reported by String; database.Open does not
	// read it, so Write transactions are not refused.
	ReadOnly bool `yaml:"read_only"`
	// TransactionTimeout is loaded but not enforced: no component closes
	// a transaction when it elapses.
	TransactionTimeout time.Duration `yaml:"transaction_timeout"`
	// MaxConcurrentTransactions must be positive to pass Validate; no
	// component limits live transactions by it.
	MaxConcurrentTransactions int `yaml:"max_concurrent_transactions"`
}

// TransactionConfig holds the per-transaction options a session accepts
// when opening a Schema or Data transaction.
type TransactionConfig struct {
	// Type names READ or WRITE. Session.Transaction takes the mode as its
	// own argument and does not read this field.
	Type string `yaml:"type"`
	// SchemaRefreshRate overrides the schema graph's snapshot-rotation
	// period for a READ schema transaction; zero uses the default.
	SchemaRefreshRate int `yaml:"schema_refresh_rate"`
	// Explain, Parallel, Infer, TraceInference are inputs to the
	// out-of-scope reasoner/planner, stored but not acted upon here.
	Explain        bool `yaml:"explain"`
	Parallel       bool `yaml:"parallel"`
	Infer          bool `yaml:"infer"`
	TraceInference bool `yaml:"trace_inference"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (DEBUG, INFO, WARN, ERROR)
	Level string `yaml:"level"`
	// Format (json, text)
	Format string `yaml:"format"`
	// Output path (stdout, stderr, or file path)
	Output string `yaml:"output"`
}

// DefaultConfig returns a Config with graphkv's baseline defaults: an
// on-disk database rooted at "./data", a 30-second transaction timeout,
// up to 64 concurrent transactions, and INFO-level text logging to stdout.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataDir:                   "./data",
			DefaultDatabase:           "graphkv",
			TransactionTimeout:        30 * time.Second,
			MaxConcurrentTransactions: 64,
		},
		Transaction: TransactionConfig{
			SchemaRefreshRate: 100,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
	}
}

// MergeYAMLFile reads path and unmarshals it over cfg, so a partial YAML
// file only overrides the fields it sets.
// A missing file is reported via the returned error (check os.IsNotExist)
// so callers can treat it as "no overlay" rather than a fatal error.
func MergeYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables, applied over
// cfg's current values (normally seeded by DefaultConfig and an optional
// YAML overlay) so a GRAPHKV_* env var always wins last.
func (c *Config) LoadFromEnv() {
	c.Database.DataDir = getEnv("GRAPHKV_DATA_DIR", c.Database.DataDir)
	c.Database.InMemory = getEnvBool("GRAPHKV_IN_MEMORY", c.Database.InMemory)
	c.Database.DefaultDatabase = getEnv("GRAPHKV_DEFAULT_DATABASE", c.Database.DefaultDatabase)
	c.Database.ReadOnly = getEnvBool("GRAPHKV_READ_ONLY", c.Database.ReadOnly)
	c.Database.TransactionTimeout = getEnvDuration("GRAPHKV_TRANSACTION_TIMEOUT", c.Database.TransactionTimeout)
	c.Database.MaxConcurrentTransactions = getEnvInt("GRAPHKV_MAX_CONCURRENT_TRANSACTIONS", c.Database.MaxConcurrentTransactions)

	c.Transaction.SchemaRefreshRate = getEnvInt("GRAPHKV_SCHEMA_REFRESH_RATE", c.Transaction.SchemaRefreshRate)

	c.Logging.Level = getEnv("GRAPHKV_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("GRAPHKV_LOG_FORMAT", c.Logging.Format)
	c.Logging.Output = getEnv("GRAPHKV_LOG_OUTPUT", c.Logging.Output)
}

// Validate checks the Config for internally inconsistent settings.
func (c *Config) Validate() error {
	if !c.Database.InMemory && c.Database.DataDir == "" {
		return fmt.Errorf("database.data_dir must be set unless database.in_memory is true")
	}
	if c.Database.MaxConcurrentTransactions <= 0 {
		return fmt.Errorf("invalid max concurrent transactions: %d", c.Database.MaxConcurrentTransactions)
	}
	if c.Transaction.SchemaRefreshRate < 0 {
		return fmt.Errorf("invalid schema refresh rate: %d", c.Transaction.SchemaRefreshRate)
	}
	return nil
}

// String returns a string representation of the Config, safe for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DataDir: %s, InMemory: %v, ReadOnly: %v, LogLevel: %s}",
		c.Database.DataDir, c.Database.InMemory, c.Database.ReadOnly, c.Logging.Level,
	)
}

// Helper functions for environment variable parsing.

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
