// Package retry provides error classification, backoff strategies and a
// context-aware executor for transient database failures.
//
// # Example Usage
//
//	classifier := retry.NewPostgreSQLErrorClassifier()
//	strategy := retry.NewConstantBackoff(2*time.Second, -1)
//	executor := retry.NewExecutor(classifier, strategy)
//
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    return updateRow(ctx)
//	})
//
// # Error Classification
//
// The classifier recognises a closed set of transient kinds: timeouts, lock
// waits (including deadlocks and serialization failures) and lost connections.
// Every other error, including pool exhaustion, is fatal.
//
// # Backoff Strategies
//
// ConstantBackoff serves data operations (fixed delay, optionally unlimited).
// ExponentialBackoff serves connection establishment.
//
// # Thread Safety
//
// Executor instances are safe for concurrent use. Use WithOnRetry() to create
// independent configurations per call.
package retry
