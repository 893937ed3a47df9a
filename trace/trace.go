// Package trace provides tracing instrumentation tailored for browserbench.
package trace

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/browserbench/browserbench/log"
)

const tracerName = "browserbench"

// liveSpan represents an active span associated with a tab navigation.
type liveSpan struct {
	ctx  context.Context
	span trace.Span
}

// Tracer generates the spans of a benchmark run. Spans of the calls made on a
// tab are children of the span of the tab's last navigation.
type Tracer struct {
	logger *log.Logger

	trace.Tracer

	metadata []attribute.KeyValue

	liveSpansMu sync.Mutex
	liveSpans   map[string]*liveSpan
}

// NewTracer creates a new Tracer from the given TracerProvider.
func NewTracer(logger *log.Logger, tp trace.TracerProvider, metadata map[string]string, options ...trace.TracerOption) *Tracer {
	return &Tracer{
		logger:    logger,
		Tracer:    tp.Tracer(tracerName, options...),
		metadata:  buildMetadataAttributes(metadata),
		liveSpans: make(map[string]*liveSpan),
	}
}

// NewNoopTracer returns a tracer whose spans are never recorded.
func NewNoopTracer() *Tracer {
	return NewTracer(nil, noop.NewTracerProvider(), nil)
}

// Start overrides the underlying OTEL tracer method to include the tracer metadata.
func (t *Tracer) Start(
	ctx context.Context, spanName string, opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	opts = append(opts, trace.WithAttributes(t.metadata...))
	sCtx, span := t.Tracer.Start(ctx, spanName, opts...)

	return sCtx, &SpanLogger{Span: span, logger: t.logger, spanName: spanName}
}

// GetTraceID returns the trace ID of the span context, or an empty string.
func GetTraceID(spanCtx trace.SpanContext) string {
	if spanCtx.HasTraceID() {
		traceID := spanCtx.TraceID()
		return traceID.String()
	}
	return ""
}

// TraceAPICall adds a new span to the current liveSpan for the given targetID and returns it. It
// is the caller's responsibility to close the generated span.
// If there is not a liveSpan for the given targetID, the new span is created based on the given
// context.
func (t *Tracer) TraceAPICall(
	ctx context.Context, targetID string, spanName string, opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	t.liveSpansMu.Lock()
	ls := t.liveSpans[targetID]
	t.liveSpansMu.Unlock()

	if ls == nil {
		return t.Start(ctx, spanName, opts...)
	}
	return t.Start(ls.ctx, spanName, opts...)
}

// TraceNavigation is only to be used when a tab navigates. It records a new
// liveSpan for targetID, ending the previous one.
func (t *Tracer) TraceNavigation(
	ctx context.Context, targetID string, url string, opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	t.liveSpansMu.Lock()
	defer t.liveSpansMu.Unlock()

	if ls := t.liveSpans[targetID]; ls != nil {
		ls.span.End()
	}

	opts = append(opts, trace.WithAttributes(attribute.String("url", url)))
	ls := &liveSpan{}
	ls.ctx, ls.span = t.Start(ctx, "navigation", opts...)
	t.liveSpans[targetID] = ls

	return ls.ctx, ls.span
}

// EndTarget ends the live span of targetID, if any. It is called when the
// tab is closed.
func (t *Tracer) EndTarget(targetID string) {
	t.liveSpansMu.Lock()
	defer t.liveSpansMu.Unlock()

	if ls := t.liveSpans[targetID]; ls != nil {
		ls.span.End()
		delete(t.liveSpans, targetID)
	}
}

func buildMetadataAttributes(metadata map[string]string) []attribute.KeyValue {
	meta := make([]attribute.KeyValue, 0, len(metadata))
	for mk, mv := range metadata {
		meta = append(meta, attribute.String(mk, mv))
	}

	return meta
}

// RecordError marks the span as failed with err, when err is not nil.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SpanLogger is a Span that will log the method calls.
type SpanLogger struct {
	trace.Span
	logger   *log.Logger
	spanName string
}

// SetStatus will log some info before calling the underlying SetStatus.
func (i *SpanLogger) SetStatus(code codes.Code, description string) {
	traceID := GetTraceID(i.SpanContext())
	i.logger.Debugf("trace", "SetStatus: spanName: %q traceID: %q code: %q description: %q", i.spanName, traceID, code, description)

	i.Span.SetStatus(code, description)
}

// End will log some info before calling the underlying End.
func (i *SpanLogger) End(options ...trace.SpanEndOption) {
	traceID := GetTraceID(i.SpanContext())
	i.logger.Debugf("trace", "End: spanName: %q traceID: %q", i.spanName, traceID)

	i.Span.End(options...)
}

// RecordError will log some info before calling the underlying RecordError.
func (i *SpanLogger) RecordError(err error, options ...trace.EventOption) {
	traceID := GetTraceID(i.SpanContext())
	i.logger.Debugf("trace", "RecordError: spanName: %q traceID: %q err: %q", i.spanName, traceID, err)

	i.Span.RecordError(err, options...)
}
