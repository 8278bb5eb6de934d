package dbapi_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, dbapi.ExitSuccess},
		{"general error", errors.New("something went wrong"), dbapi.ExitGeneralError},
		{"unknown flag", errors.New("unknown flag --foo"), dbapi.ExitUsageError},
		{"accepts args", errors.New("accepts 1 arg(s), received 0"), dbapi.ExitUsageError},
		{"invalid config", fmt.Errorf("pool.size: %w", dbapi.ErrInvalidConfig), dbapi.ExitConfigError},
		{"unsupported auth", dbapi.ErrUnsupportedAuthMethod, dbapi.ExitConfigError},
		{"connection failed", dbapi.ErrConnectionFailed, dbapi.ExitConnectionError},
		{"pool exhausted", fmt.Errorf("acquire: %w", dbapi.ErrPoolExhausted), dbapi.ExitConnectionError},
		{"raw connection refused", errors.New("dial tcp: connection refused"), dbapi.ExitConnectionError},
		{"missing context", dbapi.ErrMissingContext, dbapi.ExitUnauthorized},
		{"unauthorized", dbapi.ErrUnauthorized, dbapi.ExitUnauthorized},
		{"not implemented", fmt.Errorf("foo: %w", dbapi.ErrNotImplemented), dbapi.ExitNotImplemented},
		{"not found", dbapi.ErrNotFound, dbapi.ExitNotFound},
		{"bad argument", fmt.Errorf("arg 0: %w", dbapi.ErrInvalidArgument), dbapi.ExitUsageError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dbapi.ExitCodeForError(tt.err); got != tt.want {
				t.Errorf("ExitCodeForError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
