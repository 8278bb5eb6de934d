// Package logging provides concrete implementations of the dbapi.Logger interface.
//
// Available implementations:
//   - ZapLogger: structured zap output, JSON for services and console for the CLI
//   - NullLogger: discards all messages (useful for testing)
//
// All logger implementations are safe for concurrent use by multiple goroutines.
package logging
