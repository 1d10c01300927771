// Package observability sets up OpenTelemetry tracing for the multicore CLI
// and wraps pool dispatches in spans.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/multicore/pkg/config"
	"github.com/ajitpratap0/multicore/pkg/errors"
)

const instrumentationName = "github.com/ajitpratap0/multicore"

var (
	mu       sync.RWMutex
	tracer   trace.Tracer = otel.Tracer(instrumentationName)
	meter    metric.Meter = otel.Meter(instrumentationName)
	provider *sdktrace.TracerProvider
)

// Initialize installs a tracer provider exporting spans to w (stdout when
// nil). A disabled configuration leaves the no-op provider in place.
func Initialize(cfg config.TracingConfig, w io.Writer) error {
	if !cfg.Enabled {
		return nil
	}
	if w == nil {
		w = os.Stdout
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "create trace resource")
	}

	opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "create stdout exporter")
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(time.Second)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	mu.Lock()
	old := provider
	provider = tp
	tracer = tp.Tracer(instrumentationName)
	mu.Unlock()

	if old != nil {
		return old.Shutdown(context.Background())
	}
	return nil
}

// Tracer returns the package tracer.
func Tracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	return tracer
}

// Meter returns the package meter. Without a configured meter provider it
// is a no-op.
func Meter() metric.Meter {
	mu.RLock()
	defer mu.RUnlock()
	return meter
}

// Shutdown flushes and stops the tracer provider installed by Initialize.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := provider
	provider = nil
	tracer = otel.Tracer(instrumentationName)
	mu.Unlock()

	if tp == nil {
		return nil
	}
	if err := tp.Shutdown(ctx); err != nil && !strings.Contains(err.Error(), "already shutdown") {
		return fmt.Errorf("failed to shutdown tracer: %w", err)
	}
	return nil
}
