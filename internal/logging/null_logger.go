package logging

// NullLogger is a no-op logger that discards all log messages.
// Safe for concurrent use by multiple goroutines.
type NullLogger struct{}

// NewNullLogger creates a new NullLogger.
func NewNullLogger() *NullLogger {
	return &NullLogger{}
}

// Verbose is a no-op.
func (l *NullLogger) Verbose(string, ...any) {}

// Info is a no-op.
func (l *NullLogger) Info(string, ...any) {}

// Warn is a no-op.
func (l *NullLogger) Warn(string, ...any) {}

// Error is a no-op.
func (l *NullLogger) Error(string, ...any) {}
