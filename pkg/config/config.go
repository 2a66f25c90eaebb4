// Package config loads dataguard configuration from config.yaml with
// environment variable overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for dataguard.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values. Secrets
// (passwords) must only come from environment variables.
type Config struct {
	// Server configuration (health + metrics endpoints)
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3460"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Guard is the enforcement pipeline configuration.
	Guard GuardConfig `yaml:"guard"`

	// Cache is the permission verdict cache configuration.
	Cache CacheConfig `yaml:"cache"`

	// Audit is the audit sink configuration.
	Audit AuditConfig `yaml:"audit"`

	// Database configuration (PostgreSQL, permission store + audit sink)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (verdict cache backend, optional)
	Redis RedisConfig `yaml:"redis"`
}

// GuardConfig controls the access guard pipeline.
type GuardConfig struct {
	// Enabled=false bypasses enforcement entirely (calls proceed unguarded).
	Enabled bool `yaml:"enabled" env:"GUARD_ENABLED" env-default:"true"`

	// ExcludedServicesStr is a comma-separated allow-list of services whose
	// calls bypass enforcement.
	ExcludedServicesStr string `yaml:"excluded_services" env:"GUARD_EXCLUDED_SERVICES" env-default:""`

	// ExcludedServices is the parsed list from ExcludedServicesStr.
	ExcludedServices []string `yaml:"-"`

	// SlowQueryThresholdMs flags read operations slower than this. Purely
	// observational; slow calls are never blocked or cancelled.
	SlowQueryThresholdMs int64 `yaml:"slow_query_threshold_ms" env:"GUARD_SLOW_QUERY_THRESHOLD_MS" env-default:"1000"`
}

// CacheConfig controls the permission verdict cache.
type CacheConfig struct {
	// TTLMinutes bounds how long a cached verdict (allow or deny) may be
	// served without consulting the store. Administrative updates invalidate
	// affected keys explicitly; this TTL is the upper bound on staleness.
	TTLMinutes int `yaml:"ttl_minutes" env:"CACHE_TTL_MINUTES" env-default:"5"`
}

// AuditConfig controls redaction and truncation in the audit sink.
type AuditConfig struct {
	// MaxErrorMessageLength bounds persisted error messages. Longer messages
	// are cut and suffixed with a truncation marker.
	MaxErrorMessageLength int `yaml:"max_error_message_length" env:"AUDIT_MAX_ERROR_MESSAGE_LENGTH" env-default:"500"`

	// MaxSnapshotLength bounds persisted before/after data snapshots.
	MaxSnapshotLength int `yaml:"max_snapshot_length" env:"AUDIT_MAX_SNAPSHOT_LENGTH" env-default:"4000"`

	// RetentionDays is how long audit entries are kept before the offline
	// purge removes them. Zero disables purging.
	RetentionDays int `yaml:"retention_days" env:"AUDIT_RETENTION_DAYS" env-default:"90"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"dataguard"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"dataguard"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds Redis configuration for the verdict cache.
// An empty host means Redis is not configured and the in-process cache is
// used instead.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	cfg.parseComplexFields()

	return cfg, nil
}

// LoadFromEnv builds a Config from environment variables and defaults alone,
// for deployments without a config.yaml.
func LoadFromEnv(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment config: %w", err)
	}

	cfg.parseComplexFields()

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Guard.ExcludedServices = parseList(c.Guard.ExcludedServicesStr)
}

// parseList splits a comma-separated string, trimming whitespace and dropping
// empty elements.
func parseList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
