package dbapi

// Logger provides a pluggable structured logging interface.
// Each method takes a message followed by alternating key/value pairs.
// Implementations must be safe for concurrent use by multiple goroutines.
type Logger interface {
	// Verbose logs detailed diagnostic information.
	// Only logged when verbose mode is enabled.
	Verbose(msg string, keysAndValues ...any)

	// Info logs informational messages about normal operations.
	Info(msg string, keysAndValues ...any)

	// Warn logs recoverable problems such as retries, fallbacks and failed refreshes.
	Warn(msg string, keysAndValues ...any)

	// Error logs error messages.
	Error(msg string, keysAndValues ...any)
}
