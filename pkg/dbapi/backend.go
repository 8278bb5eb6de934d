package dbapi

import "context"

// Operation is the uniform calling convention of every named data operation.
// The caller context is the first argument after ctx; remaining arguments are
// operation-specific and passed positionally.
type Operation func(ctx context.Context, cc *CallerContext, args ...any) (any, error)

// Backend resolves named operations. The alternate backend used for fallback
// delegation implements this interface with the same names and call signatures
// as the facade.
type Backend interface {
	// Resolve returns the operation registered under name, or an error
	// (typically wrapping ErrNotImplemented) when the backend lacks it.
	Resolve(name string) (Operation, error)
}

// Authorizer answers authorization questions about a caller context.
// Implementations must be safe for concurrent use.
type Authorizer interface {
	// IsValid reports whether cc is present and identifies a caller.
	IsValid(cc *CallerContext) bool

	// IsAdmin reports whether cc carries administrative privilege.
	IsAdmin(cc *CallerContext) bool
}
