// Package telemetry sets up a process-wide OpenTelemetry tracer used to
// diagnose the "defect scenario" named in spec §5/§7: a stalled
// control-point round trip. Spans are started around BLE connect and each
// control-point write. No exporter is configured, and spans are not
// written to the structured logger either.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/szymek156/velomania-go"

// Init installs a TracerProvider with no exporter attached (spans are
// held in-process only). It is enough to make Tracer() usable without
// requiring an OTLP collector — the spec's observability component is
// scoped to "spans for diagnosis," not shipping telemetry externally.
func Init() func(context.Context) error {
	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// Tracer returns the package-wide tracer.
func Tracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan is a small convenience wrapper so call sites don't each need
// the tracer name.
func StartSpan(ctx context.Context, name string) (context.Context, oteltrace.Span) {
	return Tracer().Start(ctx, name)
}
