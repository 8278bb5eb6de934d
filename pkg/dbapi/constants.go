package dbapi

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess         = 0  // Command completed successfully
	ExitGeneralError    = 1  // Unknown or unclassified error
	ExitUsageError      = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic           = 3  // Internal panic (unexpected crash)
	ExitConfigError     = 10 // Invalid configuration or parameters
	ExitConnectionError = 11 // Failed to connect or pool exhausted
	ExitUnauthorized    = 12 // Missing or insufficient caller context
	ExitNotImplemented  = 13 // Operation unknown to both backends
	ExitNotFound        = 14 // Record not found
)

const (
	// DefaultRetryDelay is the fixed pause between attempts of a retried data operation.
	DefaultRetryDelay = 2 * time.Second

	// DefaultSchemaRefreshInterval is the period of the background schema refresh.
	DefaultSchemaRefreshInterval = 5 * time.Second

	// DefaultPoolSize is the number of live connections a pool may hold.
	DefaultPoolSize = 5

	// DefaultAcquireTimeout bounds how long Acquire waits for a free connection.
	DefaultAcquireTimeout = 30 * time.Second

	// DefaultConnectRetryInitialDelay is the initial delay before retrying connection establishment.
	DefaultConnectRetryInitialDelay = 100 * time.Millisecond

	// DefaultConnectRetryMaxDelay is the maximum delay between connection establishment attempts.
	DefaultConnectRetryMaxDelay = 1 * time.Minute

	// DefaultConnectRetryMaxAttempts is the maximum number of connection establishment retries.
	DefaultConnectRetryMaxAttempts = 3

	// DefaultSchemaName is the schema introspected when none is configured.
	DefaultSchemaName = "public"

	// DefaultServiceName is attached to every structured log entry.
	DefaultServiceName = "pgdbapi"
)
