// Package usecase contains application use cases.
package usecase

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer resolves against the global provider, so spans follow whatever
// provider the application installs at startup.
var tracer = otel.Tracer("github.com/runoshun/crew-agent/internal/usecase")

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
