// Package config loads service configuration from an optional YAML file,
// a .env file and the process environment, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	// CacheTTL is how long Redis keeps market metadata and summaries.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// RecomputeWorkers bounds concurrent entity recomputes.
	RecomputeWorkers int `yaml:"recompute_workers"`

	Log struct {
		Level  string `yaml:"level"`  // DEBUG, INFO, WARN, ERROR
		Format string `yaml:"format"` // json or text
	} `yaml:"log"`

	Tracing struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"tracing"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	c := &Config{
		Port:             "8080",
		CacheTTL:         30 * time.Second,
		RecomputeWorkers: 8,
	}
	c.Log.Level = "INFO"
	c.Log.Format = "json"
	return c
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port cannot be empty")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port '%s': %w", c.Port, err)
	}
	if c.RecomputeWorkers < 1 {
		return fmt.Errorf("recompute_workers must be at least 1, got %d", c.RecomputeWorkers)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive, got %s", c.CacheTTL)
	}
	switch strings.ToUpper(c.Log.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("log.level must be DEBUG, INFO, WARN or ERROR, got '%s'", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log.format must be 'json' or 'text', got '%s'", c.Log.Format)
	}
	if c.RedisURL != "" && c.DatabaseURL == "" {
		return errors.New("redis_url requires database_url: the cache wraps the PostgreSQL store")
	}
	return nil
}

// Load reads path (skipped when empty or missing), then .env, then the
// environment, and validates the result.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, c); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	_ = godotenv.Load()

	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CACHE_TTL '%s': %w", v, err)
		}
		c.CacheTTL = ttl
	}
	if v := os.Getenv("RECOMPUTE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RECOMPUTE_WORKERS '%s': %w", v, err)
		}
		c.RecomputeWorkers = n
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled = v == "true"
	}
	return nil
}
