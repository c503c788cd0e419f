package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used by docrag spans.
const TracerName = "github.com/kart-io/docrag"

// StartSpan starts a span on the global tracer.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError marks the span failed. A nil error is a no-op.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceIDFromContext extracts the trace ID, or "" if no trace is active.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// Attribute keys attached to docrag spans.
const (
	AttrDocumentID = attribute.Key("docrag.document_id")
	AttrTopK       = attribute.Key("docrag.top_k")
	AttrChunks     = attribute.Key("docrag.chunks")
	AttrPages      = attribute.Key("docrag.pages")
	AttrModel      = attribute.Key("docrag.model")
	AttrStep       = attribute.Key("docrag.step")
	AttrTool       = attribute.Key("docrag.tool")
)
