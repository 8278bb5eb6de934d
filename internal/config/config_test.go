package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644))
	return dir
}

func TestLoad_AllFields(t *testing.T) {
	dir := writeConfig(t, `connection:
  host: myhost
  port: 5433
  username: myuser
  database: nova
  sslmode: require
  sslrootcert: /path/ca.crt
  auth_method: aws
  aws_region: eu-west-1

pool:
  size: 10
  acquire_timeout: 5s

retry:
  delay: 500ms

schema:
  refresh_interval: 1m
  schemas: [nova, public]

logging:
  level: debug
  format: json

metrics:
  addr: ":9187"
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "myhost", cfg.Connection.Host)
	assert.Equal(t, 5433, cfg.Connection.Port)
	assert.Equal(t, "nova", cfg.Connection.Database)
	assert.Equal(t, "/path/ca.crt", cfg.Connection.SSLRootCert)
	assert.Equal(t, "aws", cfg.Connection.AuthMethod)
	assert.Equal(t, "eu-west-1", cfg.Connection.AWSRegion)
	assert.Equal(t, 10, cfg.Pool.Size)
	assert.Equal(t, 5*time.Second, cfg.Pool.AcquireTimeoutDuration())
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.DelayDuration())
	assert.Equal(t, time.Minute, cfg.Schema.RefreshIntervalDuration())
	assert.Equal(t, []string{"nova", "public"}, cfg.Schema.Schemas)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ":9187", cfg.Metrics.Addr)
}

func TestLoad_MinimalYAMLKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "connection:\n  host: db\n"))
	require.NoError(t, err)

	assert.Equal(t, "db", cfg.Connection.Host)
	assert.Equal(t, dbapi.DefaultPoolSize, cfg.Pool.Size)
	assert.Equal(t, dbapi.DefaultRetryDelay, cfg.Retry.DelayDuration())
	assert.Equal(t, dbapi.DefaultSchemaRefreshInterval, cfg.Schema.RefreshIntervalDuration())
	assert.Equal(t, []string{"public"}, cfg.Schema.Schemas)
}

func TestLoad_EmptyFileIsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load(t.TempDir())
	assert.True(t, errors.Is(err, ErrConfigNotFound), "expected ErrConfigNotFound, got: %v", err)
	assert.Nil(t, cfg)
}

func TestLoadOrDefaults_FileNotFound(t *testing.T) {
	cfg, err := LoadOrDefaults(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}

func TestLoad_InvalidYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{{invalid"))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_ReportsEveryInvalidField(t *testing.T) {
	_, err := Load(writeConfig(t, `connection:
  port: 70000
  auth_method: kerberos
pool:
  size: 0
retry:
  delay: -2s
schema:
  refresh_interval: soon
logging:
  format: xml
`))

	require.ErrorIs(t, err, dbapi.ErrInvalidConfig)
	assert.ErrorIs(t, err, dbapi.ErrUnsupportedAuthMethod)
	for _, field := range []string{"connection.port", "pool.size", "retry.delay", "schema.refresh_interval", "logging.format"} {
		assert.ErrorContains(t, err, field)
	}
}

func TestDurations_FallBackOnEmpty(t *testing.T) {
	var c Config
	assert.Equal(t, dbapi.DefaultAcquireTimeout, c.Pool.AcquireTimeoutDuration())
	assert.Equal(t, dbapi.DefaultRetryDelay, c.Retry.DelayDuration())
	assert.Equal(t, dbapi.DefaultSchemaRefreshInterval, c.Schema.RefreshIntervalDuration())
}
