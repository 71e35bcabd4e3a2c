// Package telemetry wraps OpenTelemetry tracing and metrics for dispatches.
// Every dispatch gets one span and contributes to a duration histogram and
// an outcome counter. Without configured providers the otel globals are
// used, which are no-ops until an application installs real ones.
package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope for spans and instruments.
const ScopeName = "github.com/hupe1980/actionregister"

// Options configures Instrumentation.
type Options struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Instrumentation records dispatch spans and metrics. It is safe for
// concurrent use.
type Instrumentation struct {
	tracer     trace.Tracer
	duration   metric.Float64Histogram
	dispatches metric.Int64Counter
	handlers   metric.Int64Histogram
}

// New creates Instrumentation from the given providers, falling back to the
// otel global providers.
func New(optFns ...func(o *Options)) *Instrumentation {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}

	meter := opts.MeterProvider.Meter(ScopeName)

	// On error the API hands back noop instruments.
	duration, _ := meter.Float64Histogram(
		"actionregister.dispatch.duration",
		metric.WithDescription("Duration of action dispatches in seconds"),
		metric.WithUnit("s"),
	)
	dispatches, _ := meter.Int64Counter(
		"actionregister.dispatch.count",
		metric.WithDescription("Total number of action dispatches"),
		metric.WithUnit("{dispatch}"),
	)
	handlers, _ := meter.Int64Histogram(
		"actionregister.dispatch.handlers",
		metric.WithDescription("Handlers invoked per dispatch"),
		metric.WithUnit("{handler}"),
	)

	return &Instrumentation{
		tracer:     opts.TracerProvider.Tracer(ScopeName),
		duration:   duration,
		dispatches: dispatches,
		handlers:   handlers,
	}
}

// Dispatch describes one dispatch for span and metric attributes.
type Dispatch struct {
	ID       string
	Action   string
	Mode     string
	Handlers int
}

// StartDispatch opens the dispatch span. The returned context carries the
// span and is handed to every handler.
func (i *Instrumentation) StartDispatch(ctx context.Context, d Dispatch) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, "actionregister.dispatch",
		trace.WithAttributes(
			attribute.String("actionregister.dispatch.id", d.ID),
			attribute.String("actionregister.action", d.Action),
			attribute.String("actionregister.mode", d.Mode),
			attribute.Int("actionregister.handler_count", d.Handlers),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndDispatch records the outcome on span, updates the instruments and ends
// the span.
func (i *Instrumentation) EndDispatch(ctx context.Context, span trace.Span, d Dispatch, outcome string, invoked int, elapsed time.Duration, err error) {
	span.SetAttributes(
		attribute.String("actionregister.outcome", outcome),
		attribute.Int("actionregister.invoked_count", invoked),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	attrs := metric.WithAttributes(
		attribute.String("action", d.Action),
		attribute.String("mode", d.Mode),
		attribute.String("outcome", outcome),
	)
	i.duration.Record(ctx, elapsed.Seconds(), attrs)
	i.dispatches.Add(ctx, 1, attrs)
	i.handlers.Record(ctx, int64(invoked), attrs)
}

// NewStdoutTracerProvider builds a TracerProvider exporting spans as JSON
// to w (os.Stdout when nil). Callers own shutdown.
func NewStdoutTracerProvider(serviceName, serviceVersion string, w io.Writer) (*sdktrace.TracerProvider, error) {
	if w == nil {
		w = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	), nil
}
