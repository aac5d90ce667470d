package chainz

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName is the otel scope name for chainz spans and instruments.
const instrumentationName = "github.com/zoobzio/chainz"

// telemetry wraps fire and listener execution in spans and records
// per-listener instruments. With no providers configured globally the
// otel API hands out noop implementations.
type telemetry struct {
	tracer        trace.Tracer
	duration      metric.Float64Histogram
	listenerCalls metric.Int64Counter
	fireCalls     metric.Int64Counter
}

func newTelemetry(tracer trace.Tracer, meter metric.Meter) *telemetry {
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	// On error the otel API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"chainz.listener.duration",
		metric.WithDescription("Duration of listener invocations including hooks"),
		metric.WithUnit("s"),
	)
	listenerCalls, _ := meter.Int64Counter(
		"chainz.listener.invocations",
		metric.WithDescription("Total number of listener invocations"),
		metric.WithUnit("{invocation}"),
	)
	fireCalls, _ := meter.Int64Counter(
		"chainz.fire.invocations",
		metric.WithDescription("Total number of fire calls"),
		metric.WithUnit("{fire}"),
	)

	return &telemetry{
		tracer:        tracer,
		duration:      duration,
		listenerCalls: listenerCalls,
		fireCalls:     fireCalls,
	}
}

func (t *telemetry) startFire(ctx context.Context, chain string, listeners int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "chainz.fire",
		trace.WithAttributes(
			attribute.String("chainz.chain", chain),
			attribute.Int("chainz.listeners", listeners),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *telemetry) endFire(ctx context.Context, span trace.Span, chain string, err error) {
	defer span.End()
	setStatus(span, err)
	t.fireCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("chain", chain),
		attribute.String("status", status(err)),
	))
}

func (t *telemetry) startListener(ctx context.Context, chain string, key Key, index int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "chainz.listener",
		trace.WithAttributes(
			attribute.String("chainz.chain", chain),
			attribute.String("chainz.listener.key", key),
			attribute.Int("chainz.listener.index", index),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *telemetry) endListener(ctx context.Context, span trace.Span, chain string, key Key, elapsed time.Duration, err error) {
	defer span.End()
	setStatus(span, err)

	attrs := metric.WithAttributes(
		attribute.String("chain", chain),
		attribute.String("key", key),
		attribute.String("status", status(err)),
	)
	t.duration.Record(ctx, elapsed.Seconds(), attrs)
	t.listenerCalls.Add(ctx, 1, attrs)
}

func setStatus(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
