package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TraceFields returns trace_id/span_id key-value pairs for the span in ctx,
// or nil when ctx carries no valid span context.
func TraceFields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []any{
		"trace_id", sc.TraceID().String(),
		"span_id", sc.SpanID().String(),
	}
}
