package db

import (
	"context"
	"time"
)

// TokenProvider issues short-lived database passwords for cloud IAM
// authentication. TokenBasedConnector asks for a new token per connection.
type TokenProvider interface {
	GetToken(ctx context.Context) (token string, expiresOn time.Time, err error)

	// String describes the provider for logs. It must not include secrets.
	String() string
}
