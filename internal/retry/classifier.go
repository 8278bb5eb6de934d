package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// Kind is the retry classification of an error.
type Kind int

const (
	// KindFatal errors propagate immediately.
	KindFatal Kind = iota
	// KindTimeout covers statement and network timeouts.
	KindTimeout
	// KindLockWait covers lock, deadlock and serialization conflicts.
	KindLockWait
	// KindConnectionLost covers dropped, refused and reset connections.
	KindConnectionLost
)

// String returns the kind name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindLockWait:
		return "lock_wait"
	case KindConnectionLost:
		return "connection_lost"
	default:
		return "fatal"
	}
}

// PostgreSQL error codes for transient conditions
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	// Class 40 - Transaction Rollback
	pgCodeSerializationFailure = "40001"
	pgCodeDeadlockDetected     = "40P01"

	// Class 55 - Object Not In Prerequisite State
	pgCodeLockNotAvailable = "55P03"

	// Class 57 - Operator Intervention
	pgCodeQueryCanceled    = "57014"
	pgCodeAdminShutdown    = "57P01"
	pgCodeCrashShutdown    = "57P02"
	pgCodeCannotConnectNow = "57P03"
)

// connectionLostPatterns match driver errors that carry no typed cause.
var connectionLostPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"server closed the connection",
	"unexpected eof",
	"conn closed",
	"network is unreachable",
}

// PostgreSQLErrorClassifier implements dbapi.ErrorClassifier for PostgreSQL errors.
// Only timeouts, lock waits and lost connections are transient.
type PostgreSQLErrorClassifier struct{}

// NewPostgreSQLErrorClassifier creates a new PostgreSQL error classifier.
func NewPostgreSQLErrorClassifier() *PostgreSQLErrorClassifier {
	return &PostgreSQLErrorClassifier{}
}

// IsTransient determines if an error is temporary and retryable.
func (c *PostgreSQLErrorClassifier) IsTransient(err error) bool {
	return c.Classify(err) != KindFatal
}

// Classify maps err onto the closed set of retryable kinds.
func (c *PostgreSQLErrorClassifier) Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}

	// Resource pressure and caller cancellation are never retried.
	if errors.Is(err, dbapi.ErrPoolExhausted) ||
		errors.Is(err, dbapi.ErrPoolClosed) ||
		errors.Is(err, context.Canceled) {
		return KindFatal
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPgCode(pgErr.Code)
	}

	if kind := classifyNetworkError(err); kind != KindFatal {
		return kind
	}

	if pgconn.Timeout(err) {
		return KindTimeout
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return KindConnectionLost
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range connectionLostPatterns {
		if strings.Contains(msg, pattern) {
			return KindConnectionLost
		}
	}
	if strings.Contains(msg, "i/o timeout") {
		return KindTimeout
	}

	return KindFatal
}

func classifyPgCode(code string) Kind {
	switch code {
	case pgCodeQueryCanceled:
		return KindTimeout
	case pgCodeLockNotAvailable, pgCodeDeadlockDetected, pgCodeSerializationFailure:
		return KindLockWait
	case pgCodeAdminShutdown, pgCodeCrashShutdown, pgCodeCannotConnectNow:
		return KindConnectionLost
	}

	// Class 08 - Connection Exception
	if strings.HasPrefix(code, "08") {
		return KindConnectionLost
	}
	return KindFatal
}

func classifyNetworkError(err error) Kind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.Timeout() {
			return KindTimeout
		}
		if dnsErr.Temporary() {
			return KindConnectionLost
		}
		return KindFatal
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return KindTimeout
		}
		if opErr.Err != nil {
			switch {
			case errors.Is(opErr.Err, syscall.ECONNREFUSED),
				errors.Is(opErr.Err, syscall.ECONNRESET),
				errors.Is(opErr.Err, syscall.ECONNABORTED),
				errors.Is(opErr.Err, syscall.EPIPE),
				errors.Is(opErr.Err, syscall.ENETUNREACH),
				errors.Is(opErr.Err, syscall.EHOSTUNREACH):
				return KindConnectionLost
			}
		}
	}

	return KindFatal
}
