package tracing

import (
	"context"
	"time"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/hindsightlabs/hindsight/pkg/util/log"
)

// InstallOpenTelemetryTracer configures the global tracer provider with an
// OTLP HTTP exporter. Endpoint selection follows the standard
// OTEL_EXPORTER_OTLP_* environment variables. The returned function flushes
// and shuts the provider down.
func InstallOpenTelemetryTracer(serviceName string) (func(), error) {
	exporter, err := otlptracehttp.New(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize otlp exporter")
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
		resource.WithHost(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize trace resource")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			level.Error(log.Logger).Log("msg", "failed to shut down tracer provider", "err", err)
		}
	}
	return shutdown, nil
}
