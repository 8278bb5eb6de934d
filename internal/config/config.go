// Package config loads the optional pgdbapi.yaml file.
//
// Values in the file are defaults for the command line: flags and
// environment variables override them. Durations are Go duration strings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

type ConnectionConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Database       string `yaml:"database"`
	SSLMode        string `yaml:"sslmode"`
	SSLCert        string `yaml:"sslcert,omitempty"`
	SSLKey         string `yaml:"sslkey,omitempty"`
	SSLRootCert    string `yaml:"sslrootcert,omitempty"`
	AuthMethod     string `yaml:"auth_method,omitempty"`
	AzureTenantID  string `yaml:"azure_tenant_id,omitempty"`
	AzureClientID  string `yaml:"azure_client_id,omitempty"`
	AWSRegion      string `yaml:"aws_region,omitempty"`
	GoogleInstance string `yaml:"google_instance,omitempty"`
}

type PoolConfig struct {
	Size           int    `yaml:"size"`
	AcquireTimeout string `yaml:"acquire_timeout"`
}

type RetryConfig struct {
	Delay string `yaml:"delay"`
}

type SchemaConfig struct {
	RefreshInterval string   `yaml:"refresh_interval"`
	Schemas         []string `yaml:"schemas"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	// Addr is the listen address of the Prometheus endpoint; empty disables it.
	Addr string `yaml:"addr"`
}

type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Pool       PoolConfig       `yaml:"pool"`
	Retry      RetryConfig      `yaml:"retry"`
	Schema     SchemaConfig     `yaml:"schema"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

const ConfigFileName = "pgdbapi.yaml"

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		Pool: PoolConfig{
			Size:           dbapi.DefaultPoolSize,
			AcquireTimeout: dbapi.DefaultAcquireTimeout.String(),
		},
		Retry: RetryConfig{Delay: dbapi.DefaultRetryDelay.String()},
		Schema: SchemaConfig{
			RefreshInterval: dbapi.DefaultSchemaRefreshInterval.String(),
			Schemas:         []string{dbapi.DefaultSchemaName},
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads ConfigFileName from dir over Defaults and validates the result.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return &cfg, nil
}

// LoadOrDefaults is Load, falling back to Defaults when the file is absent.
func LoadOrDefaults(dir string) (*Config, error) {
	cfg, err := Load(dir)
	if errors.Is(err, ErrConfigNotFound) {
		d := Defaults()
		return &d, nil
	}
	return cfg, err
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Connection.Port < 0 || c.Connection.Port > 65535 {
		errs = append(errs, fmt.Errorf("connection.port %d out of range", c.Connection.Port))
	}
	if _, err := dbapi.ParseAuthMethod(c.Connection.AuthMethod); err != nil {
		errs = append(errs, fmt.Errorf("connection.auth_method: %w", err))
	}
	if c.Pool.Size < 1 {
		errs = append(errs, fmt.Errorf("pool.size must be at least 1, got %d", c.Pool.Size))
	}
	checkDuration := func(field, value string) {
		if _, err := parsePositive(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}
	checkDuration("pool.acquire_timeout", c.Pool.AcquireTimeout)
	checkDuration("retry.delay", c.Retry.Delay)
	checkDuration("schema.refresh_interval", c.Schema.RefreshInterval)
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", dbapi.ErrInvalidConfig, errors.Join(errs...))
}

// AcquireTimeoutDuration returns the parsed pool acquire timeout.
func (p PoolConfig) AcquireTimeoutDuration() time.Duration {
	return durationOr(p.AcquireTimeout, dbapi.DefaultAcquireTimeout)
}

// DelayDuration returns the parsed retry delay.
func (r RetryConfig) DelayDuration() time.Duration {
	return durationOr(r.Delay, dbapi.DefaultRetryDelay)
}

// RefreshIntervalDuration returns the parsed schema refresh interval.
func (s SchemaConfig) RefreshIntervalDuration() time.Duration {
	return durationOr(s.RefreshInterval, dbapi.DefaultSchemaRefreshInterval)
}

func parsePositive(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", value)
	}
	return d, nil
}

// durationOr returns fallback for empty or invalid values; Validate reports the latter.
func durationOr(value string, fallback time.Duration) time.Duration {
	d, err := parsePositive(value)
	if err != nil || d == 0 {
		return fallback
	}
	return d
}
