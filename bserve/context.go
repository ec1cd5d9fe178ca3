package bserve

import (
	"context"
	"net/http"

	"github.com/advdv/bssr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ctxKey is the key type for context values.
type ctxKey int

const ctxKeyRequestDep ctxKey = iota

const (
	// HeaderRequestID is the header that carries the request id, in both directions.
	HeaderRequestID = "X-Request-Id"
	// LocalRequestID is the locals key under which the request id is stored, so the renderer can
	// read it as well.
	LocalRequestID = "requestId"
)

const maxRequestIDLen = 128

// requestDep holds request-scoped dependencies available via context.
// App-scoped dependencies (env, stacks, awsClients) are accessed via Runtime instead.
type requestDep struct {
	logger    *zap.Logger
	requestID string
}

// withRequestID stamps the locals on the request and stores the request id in them. The id is taken
// from the incoming header when present, a new one is generated otherwise. It wraps the bridge so
// that declined requests carry the id as well.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}

		r, locals := bssr.WithLocals(r)
		locals.Set(LocalRequestID, id)
		w.Header().Set(HeaderRequestID, id)

		next.ServeHTTP(w, r)
	})
}

// withRequestDep injects dependencies into the request context.
func withRequestDep(logger *zap.Logger) bssr.Middleware {
	return func(next bssr.BareHandler) bssr.BareHandler {
		return bssr.BareHandlerFunc(func(w bssr.ResponseWriter, r *http.Request) error {
			id, _ := bssr.Local[string](w.Locals(), LocalRequestID)

			d := &requestDep{logger: logger, requestID: id}
			if id != "" {
				d.logger = logger.With(zap.String("request_id", id))
			}

			return next.ServeBareBHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestDep, d)))
		})
	}
}

func requestDepFromContext(ctx context.Context) *requestDep {
	d, ok := ctx.Value(ctxKeyRequestDep).(*requestDep)
	if !ok {
		panic("bserve: requestDep not found in context; is the middleware configured?")
	}

	return d
}

// Log returns a trace-correlated zap logger from the context.
func Log(ctx context.Context) *zap.Logger {
	d := requestDepFromContext(ctx)
	return d.logger.With(traceFields(ctx)...)
}

// RequestID returns the id of the request that is being served.
func RequestID(ctx context.Context) string {
	return requestDepFromContext(ctx).requestID
}

// Span returns the current trace span from the context.
func Span(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// traceFields extracts trace_id and span_id from the context for log correlation.
func traceFields(ctx context.Context) []zap.Field {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}

	sc := span.SpanContext()

	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
