package db

import (
	"context"
	"fmt"
	"net"
	"sync"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/pgdbapi/internal/logging"
	"github.com/vvka-141/pgdbapi/internal/retry"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// GoogleCloudSQLConnector implements dbapi.Connector for Google Cloud SQL
// using IAM database authentication via the Cloud SQL Go Connector.
//
// One dialer is shared by every connection the connector opens. It
// implements io.Closer: call Close after the pool is closed to release it.
type GoogleCloudSQLConnector struct {
	config        *dbapi.ConnectionConfig
	instance      string
	retryExecutor *retry.Executor
	logger        dbapi.Logger

	mu     sync.Mutex
	dialer *cloudsqlconn.Dialer
}

// NewGoogleCloudSQLConnector creates a connector for Google Cloud SQL IAM authentication.
// instance is the instance connection name in format: project:region:instance
func NewGoogleCloudSQLConnector(config *dbapi.ConnectionConfig, instance string, logger dbapi.Logger) *GoogleCloudSQLConnector {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &GoogleCloudSQLConnector{
		config:        config,
		instance:      instance,
		retryExecutor: newConnectExecutor(),
		logger:        logger,
	}
}

// Connect establishes one connection through the Cloud SQL dialer.
func (c *GoogleCloudSQLConnector) Connect(ctx context.Context) (dbapi.Conn, error) {
	return connect(ctx, c.retryExecutor, c.logger, c.config, c.connConfig)
}

func (c *GoogleCloudSQLConnector) connConfig(ctx context.Context) (*pgx.ConnConfig, error) {
	dialer, err := c.getDialer(ctx)
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf(
		"host=%s user=%s dbname=%s sslmode=disable",
		c.instance,
		c.config.Username,
		c.config.Database,
	)
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse connection config: %w", dbapi.ErrInvalidConfig, err)
	}
	cfg.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
		return dialer.Dial(ctx, c.instance)
	}
	return cfg, nil
}

func (c *GoogleCloudSQLConnector) getDialer(ctx context.Context) (*cloudsqlconn.Dialer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dialer != nil {
		return c.dialer, nil
	}
	dialer, err := cloudsqlconn.NewDialer(ctx, cloudsqlconn.WithIAMAuthN())
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud SQL dialer: %w", err)
	}
	c.dialer = dialer
	return dialer, nil
}

// Close releases the Cloud SQL dialer resources.
// Must be called after every connection returned by Connect is closed.
func (c *GoogleCloudSQLConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dialer != nil {
		err := c.dialer.Close()
		c.dialer = nil
		return err
	}
	return nil
}
