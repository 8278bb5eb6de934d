package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/pgdbapi/internal/logging"
	"github.com/vvka-141/pgdbapi/internal/retry"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// configFunc produces the pgx configuration for one connection attempt.
type configFunc func(ctx context.Context) (*pgx.ConnConfig, error)

// newConnectExecutor retries connection establishment with exponential
// backoff. Data operations use their own fixed-delay policy on top.
func newConnectExecutor() *retry.Executor {
	return retry.NewExecutor(
		retry.NewPostgreSQLErrorClassifier(),
		retry.NewExponentialBackoff(dbapi.DefaultConnectRetryMaxAttempts,
			retry.WithInitialDelay(dbapi.DefaultConnectRetryInitialDelay),
			retry.WithMaxDelay(dbapi.DefaultConnectRetryMaxDelay),
		),
	)
}

// connect opens and pings one connection, retrying transient failures.
func connect(ctx context.Context, executor *retry.Executor, logger dbapi.Logger, config *dbapi.ConnectionConfig, configure configFunc) (dbapi.Conn, error) {
	var conn *pgx.Conn
	err := executor.Execute(ctx, func(ctx context.Context) error {
		connConfig, err := configure(ctx)
		if err != nil {
			return err
		}
		connConfig.OnNotice = func(_ *pgconn.PgConn, notice *pgconn.Notice) {
			logger.Verbose("Server notice", "severity", notice.Severity, "message", notice.Message)
		}

		c, err := pgx.ConnectConfig(ctx, connConfig)
		if err != nil {
			return wrapConnectionError(err, config.Host, config.Port, config.Database)
		}
		if err := c.Ping(ctx); err != nil {
			_ = c.Close(ctx)
			return wrapConnectionError(err, config.Host, config.Port, config.Database)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewConn(conn), nil
}

// StandardConnector implements dbapi.Connector for username/password
// authentication with automatic retry on transient failures.
type StandardConnector struct {
	config        *dbapi.ConnectionConfig
	retryExecutor *retry.Executor
	logger        dbapi.Logger
}

// NewStandardConnector creates a new StandardConnector with the given configuration.
// Retry behavior uses the dbapi connect-retry defaults.
func NewStandardConnector(config *dbapi.ConnectionConfig, logger dbapi.Logger) *StandardConnector {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &StandardConnector{
		config:        config,
		retryExecutor: newConnectExecutor(),
		logger:        logger,
	}
}

// Connect establishes one connection using standard authentication.
func (c *StandardConnector) Connect(ctx context.Context) (dbapi.Conn, error) {
	return connect(ctx, c.retryExecutor, c.logger, c.config, c.connConfig)
}

func (c *StandardConnector) connConfig(context.Context) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(BuildConnectionString(c.config))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse connection config: %w", dbapi.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// NewConnector is a factory function that creates the appropriate Connector
// based on the ConnectionConfig's AuthMethod. Connectors that hold resources
// also implement io.Closer.
func NewConnector(config *dbapi.ConnectionConfig, logger dbapi.Logger) (dbapi.Connector, error) {
	switch config.AuthMethod {
	case dbapi.AuthMethodStandard:
		return NewStandardConnector(config, logger), nil
	case dbapi.AuthMethodAWSIAM:
		return newAWSConnector(config, logger)
	case dbapi.AuthMethodGoogleIAM:
		return newGoogleConnector(config, logger)
	case dbapi.AuthMethodAzureEntraID:
		return newAzureConnector(config, logger)
	default:
		return nil, fmt.Errorf("unsupported auth method %v: %w", config.AuthMethod, dbapi.ErrUnsupportedAuthMethod)
	}
}

// wrapConnectionError wraps raw pgx connection errors with actionable guidance.
// The original error stays in the chain so it is still classified for retry.
func wrapConnectionError(err error, host string, port int, database string) error {
	errStr := strings.ToLower(err.Error())
	addr := fmt.Sprintf("%s:%d", host, port)

	switch {
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "actively refused"):
		return fmt.Errorf(`%w: connection refused to %s

Possible causes:
  - PostgreSQL is not running (check: pg_isready -h %s -p %d)
  - Wrong host or port
  - Firewall blocking the connection

Original error: %w`, dbapi.ErrConnectionFailed, addr, host, port, err)

	case strings.Contains(errStr, "no such host") || strings.Contains(errStr, "no host"):
		return fmt.Errorf(`%w: cannot resolve host "%s"

Possible causes:
  - Hostname is misspelled
  - DNS is not configured or reachable

Original error: %w`, dbapi.ErrConnectionFailed, host, err)

	case strings.Contains(errStr, "password authentication failed"):
		return fmt.Errorf(`%w: password authentication failed for database "%s"

Possible causes:
  - Wrong password (check $PGPASSWORD or ~/.pgpass)
  - Wrong username
  - Expired cloud IAM token

Original error: %w`, dbapi.ErrConnectionFailed, database, err)

	case strings.Contains(errStr, "does not exist"):
		return fmt.Errorf(`%w: database "%s" does not exist

Original error: %w`, dbapi.ErrConnectionFailed, database, err)

	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return fmt.Errorf(`%w: connection timed out to %s

Possible causes:
  - Server is overloaded or unresponsive
  - Firewall silently dropping packets
  - Wrong host/port (server not listening)

Original error: %w`, dbapi.ErrConnectionFailed, addr, err)

	case strings.Contains(errStr, "ssl") || strings.Contains(errStr, "tls"):
		return fmt.Errorf(`%w: SSL/TLS connection error

Possible causes:
  - Server requires SSL but --sslmode is wrong
  - Certificate verification failed (try --sslmode=require)

Original error: %w`, dbapi.ErrConnectionFailed, err)

	case strings.Contains(errStr, "too many connections"):
		return fmt.Errorf(`%w: too many connections to database "%s"

Possible causes:
  - max_connections limit reached in postgresql.conf
  - Pool size across all clients exceeds the server limit (lower --pool-size)

Original error: %w`, dbapi.ErrConnectionFailed, database, err)

	default:
		return fmt.Errorf("%w: failed to connect to database: %w", dbapi.ErrConnectionFailed, err)
	}
}

// newAWSConnector creates a token-based connector with the AWS IAM token provider.
func newAWSConnector(config *dbapi.ConnectionConfig, logger dbapi.Logger) (dbapi.Connector, error) {
	endpoint := fmt.Sprintf("%s:%d", config.Host, config.Port)

	tokenProvider, err := NewAWSIAMTokenProvider(endpoint, config.AWSRegion, config.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS IAM token provider: %w", err)
	}

	return NewTokenBasedConnector(config, tokenProvider, "AWS IAM", logger), nil
}

// newGoogleConnector creates a GoogleCloudSQLConnector for Google Cloud SQL IAM authentication.
func newGoogleConnector(config *dbapi.ConnectionConfig, logger dbapi.Logger) (dbapi.Connector, error) {
	if config.GoogleInstance == "" {
		return nil, fmt.Errorf("%w: Google Cloud SQL IAM auth requires --google-instance (project:region:instance)", dbapi.ErrInvalidConfig)
	}
	if config.Username == "" {
		return nil, fmt.Errorf("%w: Google Cloud SQL IAM auth requires username (-U)", dbapi.ErrInvalidConfig)
	}

	return NewGoogleCloudSQLConnector(config, config.GoogleInstance, logger), nil
}

// newAzureConnector creates a token-based connector with the Azure Entra ID token provider.
// If explicit credentials (tenant, client, secret) are provided, uses Service Principal auth.
// Otherwise, falls back to DefaultAzureCredential chain.
func newAzureConnector(config *dbapi.ConnectionConfig, logger dbapi.Logger) (dbapi.Connector, error) {
	var tokenProvider TokenProvider
	var err error

	if config.AzureTenantID != "" && config.AzureClientID != "" && config.AzureClientSecret != "" {
		tokenProvider, err = NewAzureServicePrincipalProvider(
			config.AzureTenantID,
			config.AzureClientID,
			config.AzureClientSecret,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure Service Principal provider: %w", err)
		}
	} else {
		tokenProvider, err = NewAzureDefaultCredentialProvider()
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure Default Credential provider: %w", err)
		}
	}

	return NewTokenBasedConnector(config, tokenProvider, "Azure", logger), nil
}
