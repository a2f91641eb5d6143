// Package telemetry reports flow executions to OpenTelemetry: one span per
// request and counters for requests, sessions, states, pauses and
// exceptions.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/petrijr/flowstate/pkg/api"
)

// ScopeName is the instrumentation scope of the listener's tracer and
// meter.
const ScopeName = "github.com/petrijr/flowstate"

// Shutdown flushes and stops the providers installed by Init.
type Shutdown func(ctx context.Context) error

// Init installs global OTLP/HTTP trace and metric providers exporting to
// endpoint. With an empty endpoint it installs nothing.
func Init(ctx context.Context, endpoint, serviceName, version string, insecure bool) (Shutdown, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}
	traceExp, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if insecure {
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}
	metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		var firstErr error
		if err := tp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := mp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}, nil
}

// Config selects the providers a Listener reports to. Nil providers mean
// the otel globals.
type Config struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Listener is an api.Listener that traces each request and counts
// execution lifecycle events.
type Listener struct {
	api.NoopListener

	tracer trace.Tracer

	requests        metric.Int64Counter
	sessionsStarted metric.Int64Counter
	sessionsEnded   metric.Int64Counter
	statesEntered   metric.Int64Counter
	pauses          metric.Int64Counter
	exceptions      metric.Int64Counter

	mu    sync.Mutex
	spans map[api.RequestContext]trace.Span
}

var _ api.Listener = (*Listener)(nil)

func NewListener(cfg Config) (*Listener, error) {
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(ScopeName)

	l := &Listener{
		tracer: tp.Tracer(ScopeName),
		spans:  make(map[api.RequestContext]trace.Span),
	}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&l.requests, "flowstate.requests", "Requests processed by flow executions"},
		{&l.sessionsStarted, "flowstate.sessions.started", "Flow sessions started"},
		{&l.sessionsEnded, "flowstate.sessions.ended", "Flow sessions ended"},
		{&l.statesEntered, "flowstate.states.entered", "States entered"},
		{&l.pauses, "flowstate.pauses", "Executions paused at a view state"},
		{&l.exceptions, "flowstate.exceptions", "Exceptions thrown while processing requests"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("telemetry: create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return l, nil
}

func (l *Listener) RequestSubmitted(ctx context.Context, rc api.RequestContext) {
	exec := rc.FlowExecution()
	attrs := []attribute.KeyValue{attribute.String("flow.id", exec.Definition().ID)}
	if k := exec.Key(); k != nil {
		attrs = append(attrs, attribute.String("flow.key", k.String()))
	}
	_, span := l.tracer.Start(ctx, "flowstate.request", trace.WithAttributes(attrs...))

	l.mu.Lock()
	l.spans[rc] = span
	l.mu.Unlock()
}

func (l *Listener) RequestProcessed(ctx context.Context, rc api.RequestContext) {
	l.mu.Lock()
	span := l.spans[rc]
	delete(l.spans, rc)
	l.mu.Unlock()

	exec := rc.FlowExecution()
	flowID := attribute.String("flow.id", exec.Definition().ID)
	l.requests.Add(ctx, 1, metric.WithAttributes(flowID))
	if span == nil {
		return
	}
	span.SetAttributes(attribute.Bool("flow.active", exec.IsActive()))
	if o := exec.Outcome(); o != "" {
		span.SetAttributes(attribute.String("flow.outcome", o))
	}
	span.End()
}

func (l *Listener) SessionStarted(ctx context.Context, rc api.RequestContext, session api.FlowSession) {
	l.sessionsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow.id", session.Definition().ID),
		attribute.Bool("flow.root", session.IsRoot()),
	))
}

func (l *Listener) SessionEnded(ctx context.Context, rc api.RequestContext, session api.FlowSession, _ *api.AttributeMap) {
	l.sessionsEnded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow.id", session.Definition().ID),
		attribute.Bool("flow.root", session.IsRoot()),
	))
}

func (l *Listener) EventSignaled(_ context.Context, rc api.RequestContext, ev *api.Event) {
	if span := l.span(rc); span != nil {
		span.AddEvent("event_signaled", trace.WithAttributes(attribute.String("event.id", ev.ID)))
	}
}

func (l *Listener) StateEntered(ctx context.Context, rc api.RequestContext, _, state *api.State) {
	l.statesEntered.Add(ctx, 1, metric.WithAttributes(attribute.String("state.kind", state.Kind.String())))
	if span := l.span(rc); span != nil {
		span.AddEvent("state_entered", trace.WithAttributes(
			attribute.String("state.id", state.ID),
			attribute.String("state.kind", state.Kind.String()),
		))
	}
}

func (l *Listener) Paused(ctx context.Context, rc api.RequestContext) {
	l.pauses.Add(ctx, 1)
	if span := l.span(rc); span != nil {
		if k := rc.FlowExecution().Key(); k != nil {
			span.SetAttributes(attribute.String("flow.next_key", k.String()))
		}
	}
}

func (l *Listener) ExceptionThrown(ctx context.Context, rc api.RequestContext, err error) {
	l.exceptions.Add(ctx, 1)
	if span := l.span(rc); span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (l *Listener) span(rc api.RequestContext) trace.Span {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spans[rc]
}
