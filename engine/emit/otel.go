package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter maps each Event to an OpenTelemetry span: the span name is
// event.Msg, attributes carry session/wave/check identity plus every Meta
// entry, and the span is closed immediately since an Event represents a
// point in time rather than a duration.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter returns an OTelEmitter using tracer (e.g.
// otel.Tracer("checkrun")).
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) attrs(event Event) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("session_id", event.SessionID),
		attribute.Int("wave", event.Wave),
		attribute.String("check_id", event.CheckID),
	}
	for k, v := range event.Meta {
		attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", v)))
	}
	return attrs
}

// Emit creates and immediately ends a span for event.
func (o *OTelEmitter) Emit(event Event) {
	ctx := context.Background()
	_, span := o.tracer.Start(ctx, event.Msg)
	defer span.End()
	span.SetAttributes(o.attrs(event)...)
	if errMsg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg))
	}
}

// EmitBatch creates one span per event, in order.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Msg)
		span.SetAttributes(o.attrs(event)...)
		if errMsg, ok := event.Meta["error"].(string); ok {
			span.SetStatus(codes.Error, errMsg)
			span.RecordError(fmt.Errorf("%s", errMsg))
		}
		span.End()
	}
	return nil
}

// Flush is a no-op: span export is owned by the configured
// sdktrace.TracerProvider/SpanProcessor, not the emitter. Callers should
// call TracerProvider.ForceFlush directly during shutdown.
func (o *OTelEmitter) Flush(_ context.Context) error {
	return nil
}
