package bserve

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/advdv/bssr"
	"github.com/aws-observability/aws-otel-go/exporters/xrayudp"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/detectors/aws/lambda"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
)

// Tracing
//
// Every request except the health and metrics endpoints gets a server span. The bridge records on it
// how the request was finalized (attribute bssr.outcome), and the resource names the entry the
// stacks are built from (attribute bssr.entry). BSSR_OTEL_EXPORTER selects where spans go:
//
//	stdout   pretty printed on stdout (default)
//	xrayudp  the X-Ray daemon over UDP, with X-Ray trace ids and propagation
//	none     nothing is recorded

const tracingInitTimeout = 5 * time.Second

const (
	attrEntry   = attribute.Key("bssr.entry")
	attrOutcome = attribute.Key("bssr.outcome")
)

// tracingBackend describes how spans are exported for one BSSR_OTEL_EXPORTER value.
type tracingBackend struct {
	exporter  func(ctx context.Context) (sdktrace.SpanExporter, error)
	detectors []resource.Detector
	xray      bool
}

var tracingBackends = map[string]tracingBackend{
	"stdout": {
		exporter: func(context.Context) (sdktrace.SpanExporter, error) {
			return stdouttrace.New(stdouttrace.WithPrettyPrint())
		},
	},
	"xrayudp": {
		exporter: func(ctx context.Context) (sdktrace.SpanExporter, error) {
			return xrayudp.NewSpanExporter(ctx)
		},
		detectors: []resource.Detector{lambda.NewResourceDetector()},
		xray:      true,
	},
	"none": {},
}

func lookupBackend(exporterType string) (tracingBackend, error) {
	if exporterType == "" {
		exporterType = "stdout"
	}

	backend, ok := tracingBackends[exporterType]
	if !ok {
		names := lo.Keys(tracingBackends)
		slices.Sort(names)

		return backend, fmt.Errorf("unsupported BSSR_OTEL_EXPORTER: %q (supported: %s)", //nolint:goerr113
			exporterType, strings.Join(names, ", "))
	}

	return backend, nil
}

// NewTracerProvider creates the TracerProvider for the configured exporter. It is shut down, flushing
// pending spans, when the app stops.
func NewTracerProvider(lc fx.Lifecycle, env Environment) (trace.TracerProvider, error) {
	backend, err := lookupBackend(env.otelExporter())
	if err != nil {
		return nil, err
	}

	if backend.exporter == nil {
		return noop.NewTracerProvider(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), tracingInitTimeout)
	defer cancel()

	exporter, err := backend.exporter(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create span exporter")
	}

	res, err := newResource(ctx, backend, env.serviceName(), env.entry())
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	}
	if backend.xray {
		opts = append(opts, sdktrace.WithIDGenerator(xray.NewIDGenerator()))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	lc.Append(fx.Hook{OnStop: tp.Shutdown})

	return tp, nil
}

// NewPropagator returns the X-Ray propagator when spans go to X-Ray, W3C trace context and baggage
// otherwise.
func NewPropagator(env Environment) propagation.TextMapPropagator {
	if backend, err := lookupBackend(env.otelExporter()); err == nil && backend.xray {
		return xray.Propagator{}
	}

	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// newResource describes this server. Detectors that do not apply where the server runs, such as the
// Lambda detector outside of Lambda, contribute nothing.
func newResource(ctx context.Context, backend tracingBackend, serviceName, entry string) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithDetectors(backend.detectors...),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			attrEntry.String(entry),
		))
	if err != nil && !errors.Is(err, resource.ErrPartialResource) {
		return nil, errors.Wrap(err, "failed to detect resource")
	}

	return res, nil
}

// traceOutcome records the bridge outcome on the request's server span.
func traceOutcome(r *http.Request, o bssr.Outcome) {
	trace.SpanFromContext(r.Context()).SetAttributes(attrOutcome.String(o.String()))
}

// withTracing wraps the handler with otelhttp for automatic span creation.
// Requests to excludePaths are not traced.
func withTracing(tp trace.TracerProvider, prop propagation.TextMapPropagator, serviceName string, excludePaths ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithPropagators(prop),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithFilter(func(r *http.Request) bool {
				return !slices.Contains(excludePaths, r.URL.Path)
			}),
		)
	}
}
