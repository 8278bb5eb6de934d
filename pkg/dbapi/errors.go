package dbapi

import (
	"errors"
	"strings"
)

// Sentinel errors for common failure scenarios.
// These enable callers to distinguish error types using errors.Is().
//
// Example usage:
//
//	rec, err := api.InstanceGetByUUID(ctx, cc, id)
//	if errors.Is(err, dbapi.ErrNotFound) {
//	    // Handle missing instance
//	}
var (
	// ErrMissingContext indicates an operation requiring a caller context was invoked without one.
	ErrMissingContext = errors.New("missing caller context")

	// ErrUnauthorized indicates the caller context lacks the privilege the operation requires.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrPoolExhausted indicates no pooled connection became available within the wait bound.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrPoolClosed indicates the pool was closed before or during acquisition.
	ErrPoolClosed = errors.New("connection pool closed")

	// ErrNotImplemented indicates neither this layer nor the alternate backend provides an operation.
	ErrNotImplemented = errors.New("not implemented")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConstraintNotMet indicates a destroy constraint did not match the stored record.
	ErrConstraintNotMet = errors.New("constraint not met")

	// ErrInvalidArgument indicates an operation received arguments of the wrong shape.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSchemaMismatch indicates the current schema snapshot lacks a table the operation needs.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrSchemaUnavailable indicates no schema snapshot has been installed yet.
	ErrSchemaUnavailable = errors.New("schema unavailable")

	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupportedAuthMethod indicates the requested authentication method is not supported.
	ErrUnsupportedAuthMethod = errors.New("unsupported authentication method")

	// ErrConnectionFailed indicates database connection failed.
	ErrConnectionFailed = errors.New("connection failed")
)

// ExitCodeForError returns the appropriate exit code for an error.
// Returns ExitSuccess (0) for nil errors, semantic codes for known errors,
// and ExitGeneralError (1) for unclassified errors.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrUnsupportedAuthMethod):
		return ExitConfigError
	case errors.Is(err, ErrConnectionFailed), errors.Is(err, ErrPoolExhausted):
		return ExitConnectionError
	case errors.Is(err, ErrMissingContext), errors.Is(err, ErrUnauthorized):
		return ExitUnauthorized
	case errors.Is(err, ErrNotImplemented):
		return ExitNotImplemented
	case errors.Is(err, ErrNotFound):
		return ExitNotFound
	case errors.Is(err, ErrInvalidArgument):
		return ExitUsageError
	}

	errStr := err.Error()
	for _, prefix := range []string{"unknown flag", "unknown shorthand flag", "accepts ", "requires at least", "required flag", "invalid argument"} {
		if strings.HasPrefix(errStr, prefix) {
			return ExitUsageError
		}
	}

	if strings.Contains(errStr, "failed to connect") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") {
		return ExitConnectionError
	}

	return ExitGeneralError
}
