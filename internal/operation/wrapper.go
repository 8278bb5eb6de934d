// Package operation applies authorization and retry policy around data operations.
//
// Every data operation runs through a Wrapper with a small Options record.
// The wrapper checks the caller context, re-runs the body after transient
// database errors at a fixed delay, and yields the scheduler once after a
// successful call.
package operation

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/vvka-141/pgdbapi/internal/logging"
	"github.com/vvka-141/pgdbapi/internal/metrics"
	"github.com/vvka-141/pgdbapi/internal/retry"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// Options declares the policy of one operation.
type Options struct {
	Name                string
	RequireContext      bool
	RequireAdminContext bool
	Retry               bool
}

// Defaults requires a caller context and enables retry.
func Defaults(name string) Options {
	return Options{Name: name, RequireContext: true, Retry: true}
}

// Admin is Defaults plus administrative privilege.
func Admin(name string) Options {
	o := Defaults(name)
	o.RequireAdminContext = true
	return o
}

// Classifier decides which errors are retried and labels them for metrics.
type Classifier interface {
	dbapi.ErrorClassifier
	Classify(err error) retry.Kind
}

// WrapperOption configures a Wrapper.
type WrapperOption func(*Wrapper)

// WithLogger sets the sink for retry warnings.
func WithLogger(l dbapi.Logger) WrapperOption {
	return func(w *Wrapper) { w.logger = l }
}

// WithClassifier replaces the PostgreSQL error classifier.
func WithClassifier(c Classifier) WrapperOption {
	return func(w *Wrapper) { w.classifier = c }
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) WrapperOption {
	return func(w *Wrapper) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithYield replaces the post-success scheduler yield.
func WithYield(yield func()) WrapperOption {
	return func(w *Wrapper) { w.yield = yield }
}

// WithMetrics records calls and retries.
func WithMetrics(m *metrics.Metrics) WrapperOption {
	return func(w *Wrapper) { w.metrics = m }
}

// Wrapper is shared by all operations of a data API. Safe for concurrent use.
type Wrapper struct {
	authorizer dbapi.Authorizer
	logger     dbapi.Logger
	classifier Classifier
	delay      time.Duration
	yield      func()
	metrics    *metrics.Metrics
	executor   *retry.Executor
}

// NewWrapper creates a Wrapper. Panics if authorizer is nil.
func NewWrapper(authorizer dbapi.Authorizer, opts ...WrapperOption) *Wrapper {
	if authorizer == nil {
		panic("authorizer cannot be nil")
	}
	w := &Wrapper{
		authorizer: authorizer,
		logger:     logging.NewNullLogger(),
		classifier: retry.NewPostgreSQLErrorClassifier(),
		delay:      dbapi.DefaultRetryDelay,
		yield:      runtime.Gosched,
	}
	for _, opt := range opts {
		opt(w)
	}
	// Unlimited attempts: the caller's context is the only bound.
	w.executor = retry.NewExecutor(w.classifier, retry.NewConstantBackoff(w.delay, -1))
	return w
}

// RetryDelay returns the pause between attempts.
func (w *Wrapper) RetryDelay() time.Duration {
	return w.delay
}

func (w *Wrapper) authorize(opts Options, cc *dbapi.CallerContext) error {
	if opts.RequireContext && !w.authorizer.IsValid(cc) {
		return fmt.Errorf("%w: %s requires a caller context", dbapi.ErrMissingContext, opts.Name)
	}
	if opts.RequireAdminContext && !w.authorizer.IsAdmin(cc) {
		return fmt.Errorf("%w: %s requires an admin context", dbapi.ErrUnauthorized, opts.Name)
	}
	return nil
}

// Call runs body under opts on behalf of cc.
//
// Authorization failures return before body runs. Errors from body are
// returned unchanged; transient ones are retried first when opts.Retry is set.
func Call[T any](ctx context.Context, w *Wrapper, opts Options, cc *dbapi.CallerContext, body func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := w.authorize(opts, cc); err != nil {
		w.logger.Verbose("DB API call rejected", "operation", opts.Name, "error", err)
		return zero, err
	}

	var result T
	attempt := func(ctx context.Context) error {
		r, err := body(ctx)
		if err != nil {
			return err
		}
		result = r
		return nil
	}

	start := time.Now()
	var err error
	if opts.Retry {
		err = w.executor.WithOnRetry(w.onRetry(ctx, opts.Name, cc)).Execute(ctx, attempt)
	} else {
		err = attempt(ctx)
	}
	w.metrics.ObserveCall(opts.Name, err, time.Since(start))
	if err != nil {
		return zero, err
	}

	w.yield()
	return result, nil
}

func (w *Wrapper) onRetry(ctx context.Context, name string, cc *dbapi.CallerContext) retry.RetryFunc {
	return func(attempt int, err error, delay time.Duration) {
		kind := w.classifier.Classify(err)
		w.metrics.IncRetry(name, kind.String())

		kv := []any{
			"operation", name,
			"error", err,
			"kind", kind.String(),
			"attempt", attempt + 1,
			"delay", delay,
		}
		if cc != nil {
			kv = append(kv, "request_id", cc.RequestID.String())
		}
		kv = append(kv, logging.TraceFields(ctx)...)
		w.logger.Warn("Will retry DB API call", kv...)
	}
}

// Wrap returns op guarded by opts, for registration in a name-dispatch table.
func (w *Wrapper) Wrap(opts Options, op dbapi.Operation) dbapi.Operation {
	return func(ctx context.Context, cc *dbapi.CallerContext, args ...any) (any, error) {
		return Call(ctx, w, opts, cc, func(ctx context.Context) (any, error) {
			return op(ctx, cc, args...)
		})
	}
}
