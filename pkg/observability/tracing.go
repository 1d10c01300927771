package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Span batches attributes and sets them when the span ends.
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// NewSpan starts a span named operationName.
func NewSpan(ctx context.Context, operationName string) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, operationName)
	return ctx, &Span{
		span:      span,
		startTime: time.Now(),
	}
}

// SetAttribute adds an attribute to the span
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetStatus sets the span status
func (s *Span) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// Duration returns the time since the span started.
func (s *Span) Duration() time.Duration { return time.Since(s.startTime) }

// End sets the batched attributes and ends the span.
func (s *Span) End() {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	s.span.End()
}

// PoolTracer wraps dispatch-level work of one pool in spans and counts it
// on the package meter.
type PoolTracer struct {
	owner      string
	dispatches metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewPoolTracer creates a tracer for the pool owned by owner.
func NewPoolTracer(owner string) *PoolTracer {
	m := Meter()
	// The no-op meter never fails; an SDK meter only fails on invalid names.
	dispatches, _ := m.Int64Counter("multicore.dispatches",
		metric.WithDescription("Dispatches traced by the CLI"))
	duration, _ := m.Float64Histogram("multicore.dispatch.duration",
		metric.WithDescription("Traced dispatch duration"),
		metric.WithUnit("s"))
	return &PoolTracer{
		owner:      owner,
		dispatches: dispatches,
		duration:   duration,
	}
}

// StartSpan starts a span named pool.<operation> carrying the owner.
func (pt *PoolTracer) StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	ctx, span := NewSpan(ctx, "pool."+operation)
	span.SetAttribute("pool.owner", pt.owner)
	span.SetAttribute("pool.operation", operation)
	return ctx, span
}

// TraceDispatch runs fn inside a span and records its outcome.
func (pt *PoolTracer) TraceDispatch(ctx context.Context, operation string, items int, fn func(ctx context.Context) error) error {
	ctx, span := pt.StartSpan(ctx, operation)
	defer span.End()
	span.SetAttribute("dispatch.items", items)

	err := fn(ctx)
	elapsed := span.Duration()

	attrs := metric.WithAttributes(
		attribute.String("owner", pt.owner),
		attribute.String("operation", operation),
		attribute.String("status", getStatus(err)),
	)
	pt.dispatches.Add(ctx, 1, attrs)
	pt.duration.Record(ctx, elapsed.Seconds(), attrs)

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttribute("error", true)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// LoggerWithSpan adds the trace and span ids of ctx to l.
func LoggerWithSpan(ctx context.Context, l *zap.Logger) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

func getStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
