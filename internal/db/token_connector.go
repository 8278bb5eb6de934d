package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/pgdbapi/internal/logging"
	"github.com/vvka-141/pgdbapi/internal/retry"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// tokenExpiryWarning is the remaining token lifetime below which a warning is logged.
const tokenExpiryWarning = 5 * time.Minute

// TokenBasedConnector implements dbapi.Connector for cloud providers that
// authenticate via short-lived tokens (AWS IAM, Azure Entra ID).
// A fresh token is requested for every new connection and used as the password.
type TokenBasedConnector struct {
	config        *dbapi.ConnectionConfig
	tokenProvider TokenProvider
	retryExecutor *retry.Executor
	providerName  string
	logger        dbapi.Logger
}

// NewTokenBasedConnector creates a connector that uses a TokenProvider for authentication.
// providerName is used in error/warning messages (e.g., "AWS IAM", "Azure").
func NewTokenBasedConnector(config *dbapi.ConnectionConfig, tokenProvider TokenProvider, providerName string, logger dbapi.Logger) *TokenBasedConnector {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &TokenBasedConnector{
		config:        config,
		tokenProvider: tokenProvider,
		retryExecutor: newConnectExecutor(),
		providerName:  providerName,
		logger:        logger,
	}
}

// Connect establishes one connection authenticated with a fresh token.
func (c *TokenBasedConnector) Connect(ctx context.Context) (dbapi.Conn, error) {
	return connect(ctx, c.retryExecutor, c.logger, c.config, c.connConfig)
}

func (c *TokenBasedConnector) connConfig(ctx context.Context) (*pgx.ConnConfig, error) {
	token, expiresOn, err := c.tokenProvider.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %s token: %w", c.providerName, err)
	}

	if remaining := time.Until(expiresOn); remaining < tokenExpiryWarning {
		c.logger.Warn("Token expires soon", "provider", c.providerName, "remaining", remaining.Round(time.Second))
	}

	configWithToken := *c.config
	configWithToken.Password = token

	cfg, err := pgx.ParseConfig(BuildConnectionString(&configWithToken))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse connection config: %w", dbapi.ErrInvalidConfig, err)
	}
	return cfg, nil
}
