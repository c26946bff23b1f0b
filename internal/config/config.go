// Package config provides environment-driven configuration for import runs.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Config holds the runtime settings of the loader. Mapping documents carry
// their own flow settings; command line flags override both.
type Config struct {
	DatabaseURL      Secret        `yaml:"database_url"`
	MaxConns         int32         `yaml:"max_conns"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ChunkSize          int    `yaml:"chunk_size"`
	ErrorPolicy        string `yaml:"error_policy"`
	SkipEmptyRows      bool   `yaml:"skip_empty_rows"`
	TruncateLongFields bool   `yaml:"truncate_long_fields"`

	MetricsFile string `yaml:"metrics_file"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		MaxConns:           4,
		StatementTimeout:   30 * time.Second,
		LogLevel:           "info",
		LogFormat:          "text",
		ChunkSize:          500,
		ErrorPolicy:        "continue",
		SkipEmptyRows:      true,
		TruncateLongFields: true,
	}
}

// Load builds the configuration from the defaults, the optional YAML file
// at path, and then environment variables, each overriding the previous.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.DatabaseURL = Secret(envOrDefault("DATABASE_URL", c.DatabaseURL.Value()))
	c.LogLevel = envOrDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOrDefault("LOG_FORMAT", c.LogFormat)
	c.ErrorPolicy = envOrDefault("ERROR_POLICY", c.ErrorPolicy)
	c.MetricsFile = envOrDefault("METRICS_FILE", c.MetricsFile)

	chunk, err := strconv.Atoi(envOrDefault("CHUNK_SIZE", strconv.Itoa(c.ChunkSize)))
	if err != nil {
		return fmt.Errorf("CHUNK_SIZE must be an integer: %w", err)
	}

	c.ChunkSize = chunk

	conns, err := strconv.ParseInt(envOrDefault("DB_MAX_CONNS", strconv.Itoa(int(c.MaxConns))), 10, 32)
	if err != nil {
		return fmt.Errorf("DB_MAX_CONNS must be an integer: %w", err)
	}

	c.MaxConns = int32(conns)

	timeout, err := time.ParseDuration(envOrDefault("DB_STATEMENT_TIMEOUT", c.StatementTimeout.String()))
	if err != nil {
		return fmt.Errorf("DB_STATEMENT_TIMEOUT must be a duration: %w", err)
	}

	c.StatementTimeout = timeout

	if c.SkipEmptyRows, err = envBool("SKIP_EMPTY_ROWS", c.SkipEmptyRows); err != nil {
		return err
	}

	if c.TruncateLongFields, err = envBool("TRUNCATE_LONG_FIELDS", c.TruncateLongFields); err != nil {
		return err
	}

	return nil
}

func (c *Config) validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}

	if c.ErrorPolicy != "stop" && c.ErrorPolicy != "continue" {
		return fmt.Errorf("ERROR_POLICY must be stop or continue, got %q", c.ErrorPolicy)
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.MaxConns < 1 || c.MaxConns > 64 {
		return fmt.Errorf("DB_MAX_CONNS must be between 1 and 64")
	}

	if c.StatementTimeout < 0 {
		return fmt.Errorf("DB_STATEMENT_TIMEOUT must not be negative")
	}

	// An empty URL selects the in-memory store.
	if c.DatabaseURL.Value() == "" {
		return nil
	}

	dbURL, err := url.Parse(c.DatabaseURL.Value())
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL")
	}

	if dbURL.Scheme != "postgres" && dbURL.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL scheme must be postgres:// or postgresql://")
	}

	if dbURL.Hostname() == "" {
		return fmt.Errorf("DATABASE_URL must include a host")
	}

	return nil
}

// Logger builds the logger the settings describe, writing to stderr.
func (c *Config) Logger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	log.SetLevel(level)

	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return log
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}

	return b, nil
}
