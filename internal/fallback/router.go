// Package fallback forwards operations this layer does not implement to an
// alternate backend that exposes the same names and call signatures.
package fallback

import (
	"github.com/vvka-141/pgdbapi/internal/logging"
	"github.com/vvka-141/pgdbapi/internal/metrics"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the sink for fallback warnings.
func WithLogger(l dbapi.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMetrics counts fallback resolutions per operation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// Router resolves names on the alternate backend. It is consulted only after
// direct lookup on the data API misses.
type Router struct {
	backend dbapi.Backend
	logger  dbapi.Logger
	metrics *metrics.Metrics
}

// NewRouter creates a Router over backend. A nil backend resolves nothing.
func NewRouter(backend dbapi.Backend, opts ...Option) *Router {
	if backend == nil {
		backend = NewTable()
	}
	r := &Router{
		backend: backend,
		logger:  logging.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve logs the fallback and returns the backend's operation, or the
// backend's own error when it lacks name too. Only resolved names become
// metric labels.
func (r *Router) Resolve(name string) (dbapi.Operation, error) {
	r.logger.Warn("Falling back to alternate backend", "operation", name)
	op, err := r.backend.Resolve(name)
	if err != nil {
		r.metrics.IncFallback(metrics.UnresolvedOperation)
		return nil, err
	}
	r.metrics.IncFallback(name)
	return op, nil
}

var _ dbapi.Backend = (*Router)(nil)
