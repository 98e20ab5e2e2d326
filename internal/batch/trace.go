package batch

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("graphorm/batch")

// StartSpan opens the span covering one batch execution.
func StartSpan(ctx context.Context, system, database string, n int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "batch.execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.name", database),
			attribute.Int("db.batch.size", n),
		),
	)
}

// EndSpan records err on span and closes it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
