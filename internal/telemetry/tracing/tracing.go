package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// GlobalTracer resolves against the globally registered tracer provider;
// with no provider registered all spans are no-ops
var GlobalTracer trace.Tracer = otel.Tracer("business-tracker")
