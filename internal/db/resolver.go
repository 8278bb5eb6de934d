package db

import (
	"fmt"
	"os"
	"strconv"

	"github.com/vvka-141/pgdbapi/internal/config"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// GranularConnFlags holds the libpq-style connection flags (-h, -p, -U, -d).
//
// There is no password flag. Use $PGPASSWORD or a connection string.
type GranularConnFlags struct {
	Host     string
	Port     int
	Username string
	Database string
	SSLMode  string
}

// IsEmpty reports whether no server-selecting flag was given. Database is
// excluded because it may narrow a connection string.
func (g *GranularConnFlags) IsEmpty() bool {
	return g == nil || (g.Host == "" && g.Port == 0 && g.Username == "" && g.SSLMode == "")
}

// AuthFlags selects a cloud authentication method from the command line.
// Secrets are only read from the environment.
type AuthFlags struct {
	Method         string
	AWSRegion      string
	GoogleInstance string
	AzureTenantID  string
	AzureClientID  string
}

// EnvVars holds the PostgreSQL and cloud SDK environment variables the
// resolver reads.
// See: https://www.postgresql.org/docs/current/libpq-envars.html
type EnvVars struct {
	PGHOST       string
	PGPORT       string
	PGUSER       string
	PGPASSWORD   string
	PGDATABASE   string
	PGSSLMODE    string
	DATABASE_URL string

	AWS_REGION string

	AZURE_TENANT_ID     string
	AZURE_CLIENT_ID     string
	AZURE_CLIENT_SECRET string
}

// LoadFromEnvironment reads EnvVars from the process environment.
func LoadFromEnvironment() *EnvVars {
	return &EnvVars{
		PGHOST:              os.Getenv("PGHOST"),
		PGPORT:              os.Getenv("PGPORT"),
		PGUSER:              os.Getenv("PGUSER"),
		PGPASSWORD:          os.Getenv("PGPASSWORD"),
		PGDATABASE:          os.Getenv("PGDATABASE"),
		PGSSLMODE:           os.Getenv("PGSSLMODE"),
		DATABASE_URL:        os.Getenv("DATABASE_URL"),
		AWS_REGION:          os.Getenv("AWS_REGION"),
		AZURE_TENANT_ID:     os.Getenv("AZURE_TENANT_ID"),
		AZURE_CLIENT_ID:     os.Getenv("AZURE_CLIENT_ID"),
		AZURE_CLIENT_SECRET: os.Getenv("AZURE_CLIENT_SECRET"),
	}
}

// ConnectionSources gathers every place connection settings can come from.
// Nil members are treated as empty.
type ConnectionSources struct {
	ConnString string
	Flags      *GranularConnFlags
	Auth       *AuthFlags
	Env        *EnvVars
	File       *config.ConnectionConfig
}

// ResolveConnectionParams resolves a ConnectionConfig with PostgreSQL-style
// precedence:
//
//  1. --connection, parsed as a whole
//  2. DATABASE_URL, when no granular flag is set
//  3. per field: granular flag, then PG* variable, then pgdbapi.yaml, then default
//
// --connection together with granular flags is rejected. -d still overrides
// the database of a connection string. The authentication method is resolved
// separately in resolveAuth.
func ResolveConnectionParams(src ConnectionSources) (*dbapi.ConnectionConfig, error) {
	flags := src.Flags
	if flags == nil {
		flags = &GranularConnFlags{}
	}
	env := src.Env
	if env == nil {
		env = &EnvVars{}
	}
	file := src.File
	if file == nil {
		file = &config.ConnectionConfig{}
	}

	if src.ConnString != "" && !flags.IsEmpty() {
		return nil, fmt.Errorf("%w: cannot specify both --connection and granular flags (-h, -p, -U, --sslmode)", dbapi.ErrInvalidConfig)
	}

	var cfg *dbapi.ConnectionConfig
	var err error
	switch {
	case src.ConnString != "":
		cfg, err = resolveFromConnectionString(src.ConnString, env)
	case flags.IsEmpty() && env.DATABASE_URL != "":
		cfg, err = resolveFromConnectionString(env.DATABASE_URL, env)
	default:
		cfg, err = resolveFromGranularParams(flags, env, file)
	}
	if err != nil {
		return nil, err
	}

	if flags.Database != "" {
		cfg.Database = flags.Database
	}
	if err := resolveAuth(cfg, src.Auth, env, file); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveFromConnectionString(connStr string, env *EnvVars) (*dbapi.ConnectionConfig, error) {
	cfg, err := ParseConnectionString(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}
	// libpq treats environment variables as fallbacks for unset parameters.
	if cfg.SSLMode == "" {
		cfg.SSLMode = firstNonEmpty(env.PGSSLMODE, "prefer")
	}
	if cfg.Password == "" {
		cfg.Password = env.PGPASSWORD
	}
	return cfg, nil
}

func resolveFromGranularParams(flags *GranularConnFlags, env *EnvVars, file *config.ConnectionConfig) (*dbapi.ConnectionConfig, error) {
	cfg := &dbapi.ConnectionConfig{
		Host:             firstNonEmpty(flags.Host, env.PGHOST, file.Host, "localhost"),
		Username:         firstNonEmpty(flags.Username, env.PGUSER, file.Username, os.Getenv("USER"), os.Getenv("USERNAME")),
		Password:         env.PGPASSWORD,
		Database:         firstNonEmpty(env.PGDATABASE, file.Database, "postgres"),
		SSLMode:          firstNonEmpty(flags.SSLMode, env.PGSSLMODE, file.SSLMode, "prefer"),
		AuthMethod:       dbapi.AuthMethodStandard,
		AdditionalParams: make(map[string]string),
	}

	switch {
	case flags.Port != 0:
		cfg.Port = flags.Port
	case env.PGPORT != "":
		port, err := strconv.Atoi(env.PGPORT)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("%w: invalid $PGPORT value %q", dbapi.ErrInvalidConfig, env.PGPORT)
		}
		cfg.Port = port
	case file.Port != 0:
		cfg.Port = file.Port
	default:
		cfg.Port = 5432
	}

	for key, value := range map[string]string{
		"sslcert":     file.SSLCert,
		"sslkey":      file.SSLKey,
		"sslrootcert": file.SSLRootCert,
	} {
		if value != "" {
			cfg.AdditionalParams[key] = value
		}
	}
	return cfg, nil
}

// resolveAuth picks the authentication method: --auth, then auth_method in
// pgdbapi.yaml, then Azure when AZURE_* identifiers are present.
func resolveAuth(cfg *dbapi.ConnectionConfig, flags *AuthFlags, env *EnvVars, file *config.ConnectionConfig) error {
	if flags == nil {
		flags = &AuthFlags{}
	}

	cfg.AWSRegion = firstNonEmpty(flags.AWSRegion, env.AWS_REGION, file.AWSRegion)
	cfg.GoogleInstance = firstNonEmpty(flags.GoogleInstance, file.GoogleInstance)
	cfg.AzureTenantID = firstNonEmpty(flags.AzureTenantID, env.AZURE_TENANT_ID, file.AzureTenantID)
	cfg.AzureClientID = firstNonEmpty(flags.AzureClientID, env.AZURE_CLIENT_ID, file.AzureClientID)
	cfg.AzureClientSecret = env.AZURE_CLIENT_SECRET

	method := firstNonEmpty(flags.Method, file.AuthMethod)
	if method == "" {
		if cfg.AzureTenantID != "" || cfg.AzureClientID != "" {
			cfg.AuthMethod = dbapi.AuthMethodAzureEntraID
		}
		return nil
	}

	parsed, err := dbapi.ParseAuthMethod(method)
	if err != nil {
		return err
	}
	cfg.AuthMethod = parsed
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
