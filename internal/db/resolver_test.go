package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/pgdbapi/internal/config"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

func TestGranularConnFlags_IsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		flags *GranularConnFlags
		want  bool
	}{
		{"nil", nil, true},
		{"empty", &GranularConnFlags{}, true},
		{"host", &GranularConnFlags{Host: "localhost"}, false},
		{"port", &GranularConnFlags{Port: 5432}, false},
		{"username", &GranularConnFlags{Username: "nova"}, false},
		{"sslmode", &GranularConnFlags{SSLMode: "require"}, false},
		// -d may narrow a connection string
		{"database only", &GranularConnFlags{Database: "nova"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.flags.IsEmpty())
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PGHOST", "envhost")
	t.Setenv("PGPORT", "6543")
	t.Setenv("DATABASE_URL", "postgresql://url/db")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AZURE_CLIENT_SECRET", "s3cret")

	env := LoadFromEnvironment()
	assert.Equal(t, "envhost", env.PGHOST)
	assert.Equal(t, "6543", env.PGPORT)
	assert.Equal(t, "postgresql://url/db", env.DATABASE_URL)
	assert.Equal(t, "eu-west-1", env.AWS_REGION)
	assert.Equal(t, "s3cret", env.AZURE_CLIENT_SECRET)
}

func TestResolveConnectionParams_ConflictDetection(t *testing.T) {
	_, err := ResolveConnectionParams(ConnectionSources{
		ConnString: "postgresql://localhost/nova",
		Flags:      &GranularConnFlags{Host: "other"},
	})
	assert.ErrorIs(t, err, dbapi.ErrInvalidConfig)

	cfg, err := ResolveConnectionParams(ConnectionSources{
		ConnString: "postgresql://localhost/postgres",
		Flags:      &GranularConnFlags{Database: "nova"},
	})
	require.NoError(t, err)
	assert.Equal(t, "nova", cfg.Database)
}

func TestResolveConnectionParams_FromConnectionString(t *testing.T) {
	cfg, err := ResolveConnectionParams(ConnectionSources{
		ConnString: "postgresql://nova@db:5433/nova",
		Env:        &EnvVars{PGSSLMODE: "require", PGPASSWORD: "envpass", PGHOST: "ignored"},
	})
	require.NoError(t, err)

	assert.Equal(t, "db", cfg.Host)
	assert.Equal(t, 5433, cfg.Port)
	assert.Equal(t, "nova", cfg.Username)
	assert.Equal(t, "require", cfg.SSLMode, "PGSSLMODE fills an unset sslmode")
	assert.Equal(t, "envpass", cfg.Password, "PGPASSWORD fills an unset password")
	assert.Equal(t, dbapi.AuthMethodStandard, cfg.AuthMethod)
}

func TestResolveConnectionParams_ConnectionStringWinsOverEnv(t *testing.T) {
	cfg, err := ResolveConnectionParams(ConnectionSources{
		ConnString: "postgresql://u:inline@db/nova?sslmode=disable",
		Env:        &EnvVars{PGSSLMODE: "require", PGPASSWORD: "envpass"},
	})
	require.NoError(t, err)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, "inline", cfg.Password)
}

func TestResolveConnectionParams_InvalidConnectionString(t *testing.T) {
	_, err := ResolveConnectionParams(ConnectionSources{ConnString: "not a connection string"})
	assert.ErrorIs(t, err, dbapi.ErrInvalidConfig)
}

func TestResolveConnectionParams_DatabaseURL(t *testing.T) {
	env := &EnvVars{DATABASE_URL: "postgresql://heroku@urlhost:5555/app", PGHOST: "pghost"}

	cfg, err := ResolveConnectionParams(ConnectionSources{Env: env})
	require.NoError(t, err)
	assert.Equal(t, "urlhost", cfg.Host)
	assert.Equal(t, 5555, cfg.Port)

	cfg, err = ResolveConnectionParams(ConnectionSources{Env: env, Flags: &GranularConnFlags{Host: "flaghost"}})
	require.NoError(t, err)
	assert.Equal(t, "flaghost", cfg.Host, "granular flags bypass DATABASE_URL")
}

func TestResolveConnectionParams_FieldPrecedence(t *testing.T) {
	file := &config.ConnectionConfig{Host: "filehost", Port: 7000, Username: "fileuser", Database: "filedb", SSLMode: "verify-ca"}
	env := &EnvVars{PGHOST: "envhost", PGPORT: "6000", PGUSER: "envuser", PGDATABASE: "envdb", PGSSLMODE: "require"}
	flags := &GranularConnFlags{Host: "flaghost", Port: 5000, Username: "flaguser", Database: "flagdb", SSLMode: "disable"}

	tests := []struct {
		name  string
		src   ConnectionSources
		check func(t *testing.T, cfg *dbapi.ConnectionConfig)
	}{
		{
			name: "flags win",
			src:  ConnectionSources{Flags: flags, Env: env, File: file},
			check: func(t *testing.T, cfg *dbapi.ConnectionConfig) {
				assert.Equal(t, "flaghost", cfg.Host)
				assert.Equal(t, 5000, cfg.Port)
				assert.Equal(t, "flaguser", cfg.Username)
				assert.Equal(t, "flagdb", cfg.Database)
				assert.Equal(t, "disable", cfg.SSLMode)
			},
		},
		{
			name: "env over file",
			src:  ConnectionSources{Env: env, File: file},
			check: func(t *testing.T, cfg *dbapi.ConnectionConfig) {
				assert.Equal(t, "envhost", cfg.Host)
				assert.Equal(t, 6000, cfg.Port)
				assert.Equal(t, "envuser", cfg.Username)
				assert.Equal(t, "envdb", cfg.Database)
				assert.Equal(t, "require", cfg.SSLMode)
			},
		},
		{
			name: "file over defaults",
			src:  ConnectionSources{File: file},
			check: func(t *testing.T, cfg *dbapi.ConnectionConfig) {
				assert.Equal(t, "filehost", cfg.Host)
				assert.Equal(t, 7000, cfg.Port)
				assert.Equal(t, "fileuser", cfg.Username)
				assert.Equal(t, "filedb", cfg.Database)
				assert.Equal(t, "verify-ca", cfg.SSLMode)
			},
		},
		{
			name: "defaults",
			src:  ConnectionSources{},
			check: func(t *testing.T, cfg *dbapi.ConnectionConfig) {
				assert.Equal(t, "localhost", cfg.Host)
				assert.Equal(t, 5432, cfg.Port)
				assert.Equal(t, "postgres", cfg.Database)
				assert.Equal(t, "prefer", cfg.SSLMode)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ResolveConnectionParams(tt.src)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestResolveConnectionParams_PGPORTValidation(t *testing.T) {
	for _, port := range []string{"abc", "0", "70000", "-1"} {
		t.Run(port, func(t *testing.T) {
			_, err := ResolveConnectionParams(ConnectionSources{Env: &EnvVars{PGPORT: port}})
			assert.ErrorIs(t, err, dbapi.ErrInvalidConfig)
		})
	}
}

func TestResolveConnectionParams_FileTLSParams(t *testing.T) {
	cfg, err := ResolveConnectionParams(ConnectionSources{File: &config.ConnectionConfig{
		SSLRootCert: "/etc/ssl/ca.pem",
		SSLCert:     "/etc/ssl/client.pem",
	}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"sslrootcert": "/etc/ssl/ca.pem",
		"sslcert":     "/etc/ssl/client.pem",
	}, cfg.AdditionalParams)
}

func TestResolveConnectionParams_AuthMethod(t *testing.T) {
	tests := []struct {
		name string
		src  ConnectionSources
		want dbapi.AuthMethod
	}{
		{"default", ConnectionSources{}, dbapi.AuthMethodStandard},
		{"flag", ConnectionSources{Auth: &AuthFlags{Method: "aws", AWSRegion: "us-east-1"}}, dbapi.AuthMethodAWSIAM},
		{"file", ConnectionSources{File: &config.ConnectionConfig{AuthMethod: "google", GoogleInstance: "p:r:i"}}, dbapi.AuthMethodGoogleIAM},
		{"flag over file", ConnectionSources{
			Auth: &AuthFlags{Method: "standard"},
			File: &config.ConnectionConfig{AuthMethod: "google"},
		}, dbapi.AuthMethodStandard},
		{"azure inferred from env", ConnectionSources{Env: &EnvVars{AZURE_CLIENT_ID: "client"}}, dbapi.AuthMethodAzureEntraID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ResolveConnectionParams(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.AuthMethod)
		})
	}

	_, err := ResolveConnectionParams(ConnectionSources{Auth: &AuthFlags{Method: "kerberos"}})
	assert.ErrorIs(t, err, dbapi.ErrUnsupportedAuthMethod)
}

func TestResolveConnectionParams_CloudSettings(t *testing.T) {
	cfg, err := ResolveConnectionParams(ConnectionSources{
		Auth: &AuthFlags{AzureTenantID: "flag-tenant"},
		Env:  &EnvVars{AWS_REGION: "eu-west-1", AZURE_TENANT_ID: "env-tenant", AZURE_CLIENT_ID: "env-client", AZURE_CLIENT_SECRET: "secret"},
		File: &config.ConnectionConfig{AWSRegion: "us-east-1", GoogleInstance: "proj:region:inst"},
	})
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.AWSRegion)
	assert.Equal(t, "proj:region:inst", cfg.GoogleInstance)
	assert.Equal(t, "flag-tenant", cfg.AzureTenantID)
	assert.Equal(t, "env-client", cfg.AzureClientID)
	assert.Equal(t, "secret", cfg.AzureClientSecret)
}
