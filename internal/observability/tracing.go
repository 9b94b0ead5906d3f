// Package observability wires OpenTelemetry spans and Prometheus counters
// around event dispatch.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/syncops/eventhooks"

// Tracer starts dispatch and delivery spans. Without a registered
// TracerProvider the global no-op provider is used.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return NewTracerFrom(otel.GetTracerProvider())
}

// NewTracerFrom creates a tracer from tp.
func NewTracerFrom(tp trace.TracerProvider) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(tracerName),
	}
}

// StartDispatchSpan starts the span covering one Dispatch call.
func (t *Tracer) StartDispatchSpan(ctx context.Context, eventID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "eventhooks.dispatch",
		trace.WithAttributes(
			attribute.String("eventhooks.event_id", eventID),
		),
	)
}

// EndDispatchSpan records the fan-out tally and ends the span.
func (t *Tracer) EndDispatchSpan(span trace.Span, attempted, failed int, err error) {
	span.SetAttributes(
		attribute.Int("eventhooks.attempted", attempted),
		attribute.Int("eventhooks.failed", failed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartDeliverySpan starts a child span for one webhook POST.
func (t *Tracer) StartDeliverySpan(ctx context.Context, eventID, webhookID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "eventhooks.delivery",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("eventhooks.event_id", eventID),
			attribute.String("eventhooks.webhook_id", webhookID),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes. A zero
// status code means no response was received.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode int, errMsg string) {
	if statusCode != 0 {
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
	if errMsg != "" {
		span.SetAttributes(attribute.String("eventhooks.error", errMsg))
		span.SetStatus(codes.Error, errMsg)
	}
	span.End()
}
