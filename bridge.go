package bssr

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
)

// Outcome describes how a request was finalized by the bridge.
type Outcome int

const (
	// OutcomeHandled means the middleware stack answered the request.
	OutcomeHandled Outcome = iota
	// OutcomeDeclined means the stack left the status at [StatusUnhandled] and the fallback answered.
	OutcomeDeclined
	// OutcomeErrored means the stack failed and the error handler answered the request.
	OutcomeErrored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHandled:
		return "handled"
	case OutcomeDeclined:
		return "declined"
	case OutcomeErrored:
		return "errored"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Observer is informed exactly once per request about the outcome.
type Observer func(r *http.Request, o Outcome)

// Source provides the middleware stack requests are dispatched against. Load is called once per
// request, a nil result declines the request.
type Source interface {
	Load() BareHandler
}

// SourceFunc allows casting a function to a [Source].
type SourceFunc func() BareHandler

// Load implements [Source].
func (f SourceFunc) Load() BareHandler { return f() }

// BridgeOption configures a [Bridge].
type BridgeOption func(*Bridge)

// WithErrorHandler sets the handler for errors returned by the stack and for transport errors.
func WithErrorHandler(h ErrorHandler) BridgeOption {
	return func(b *Bridge) { b.errh = h }
}

// WithBufferLimit limits how many bytes the stack may buffer per response.
func WithBufferLimit(n int) BridgeOption {
	return func(b *Bridge) { b.bufLimit = n }
}

// WithAmbientScope controls whether the stack runs with the response writer reachable through
// [FromContext]. It is enabled by default.
func WithAmbientScope(enabled bool) BridgeOption {
	return func(b *Bridge) { b.ambient = enabled }
}

// WithObserver registers a function that is called with the outcome of every request.
func WithObserver(o Observer) BridgeOption {
	return func(b *Bridge) { b.observe = o }
}

// WithRequestTimeout bounds the context of requests served by the stack. The deadline covers writing
// the response, so streamed bodies that depend on the context stay readable until the response ended.
// Declined requests are not bound by it.
func WithRequestTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l Logger) BridgeOption {
	return func(b *Bridge) { b.logs = l }
}

// Bridge dispatches each request to the current middleware stack first. When the stack leaves the
// response status at [StatusUnhandled] the request is handed to the fallback, otherwise the buffered
// response is sent as the stack left it.
type Bridge struct {
	src      Source
	fallback http.Handler

	errh     ErrorHandler
	bufLimit int
	timeout  time.Duration
	ambient  bool
	observe  Observer
	logs     Logger
}

// NewBridge inits a bridge between the stacks provided by src and the fallback handler.
func NewBridge(src Source, fallback http.Handler, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		src:      src,
		fallback: fallback,
		errh:     DefaultErrorHandler,
		bufLimit: -1,
		ambient:  true,
		observe:  func(*http.Request, Outcome) {},
		logs:     NewStdLogger(nil),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// ServeHTTP implements http.Handler.
func (b *Bridge) ServeHTTP(resp http.ResponseWriter, req *http.Request) {
	req, locals := WithLocals(req)

	stack := b.src.Load()
	if stack == nil {
		b.decline(resp, req)
		return
	}

	bresp := newBufferResponse(resp, b.bufLimit)
	defer bresp.Free()

	sreq := req
	if b.timeout > 0 {
		ctx, cancel := context.WithTimeout(req.Context(), b.timeout)
		defer cancel()

		sreq = req.WithContext(ctx)
	}

	if b.ambient {
		sreq = sreq.WithContext(withWriter(sreq.Context(), bresp))
	}

	bresp.bind(sreq, locals)
	bresp.g.onDone = func(err error) {
		if err == nil {
			return
		}

		b.logs.LogTransportError(err)
		b.errh(bresp, sreq, err)
	}

	if err := b.run(stack, bresp, sreq); err != nil {
		b.logs.LogUnhandledServeError(err)
		b.errh(bresp, sreq, err)
		b.finish(bresp, sreq, OutcomeErrored)

		return
	}

	if bresp.Status() == StatusUnhandled && !bresp.HeadersSent() {
		bresp.replaceBody(nil)
		carryHeaders(resp.Header(), bresp.Header())
		b.decline(resp, req)

		return
	}

	b.finish(bresp, sreq, OutcomeHandled)
}

func (b *Bridge) decline(resp http.ResponseWriter, req *http.Request) {
	b.observe(req, OutcomeDeclined)
	b.fallback.ServeHTTP(resp, req)
}

// run serves the stack, a panic is turned into an error.
func (b *Bridge) run(stack BareHandler, w *ResponseBuffer, r *http.Request) (err error) {
	defer func() {
		if v := recover(); v != nil {
			if v == http.ErrAbortHandler { //nolint:errorlint
				panic(v)
			}

			if perr, ok := v.(error); ok {
				err = errors.Wrap(perr, "panic while serving stack")
			} else {
				err = errors.Newf("panic while serving stack: %v", v)
			}
		}
	}()

	return stack.ServeBareBHTTP(w, r)
}

// finish translates the buffered response. Transport errors reach the error handler through the
// guard, an error from the translation itself gets a second chance when nothing was sent yet. A body
// that fails after the head was sent aborts the connection.
func (b *Bridge) finish(w *ResponseBuffer, r *http.Request, o Outcome) {
	b.observe(r, o)

	if err := w.FlushBuffer(); err != nil && w.g.writable() {
		b.logs.LogImplicitFlushError(err)
		b.errh(w, r, err)

		if err := w.FlushBuffer(); err != nil {
			b.logs.LogImplicitFlushError(err)
		}
	}

	if w.g.aborted {
		panic(http.ErrAbortHandler)
	}
}

// bodyHeaders describe the body the stack would have sent, they do not apply to the fallback's.
var bodyHeaders = []string{"Content-Type", "Content-Length", "Content-Encoding", "Transfer-Encoding"}

// carryHeaders adds the headers a declining stack set, such as cookies, to the fallback's response.
func carryHeaders(dst, src http.Header) {
	for k, vs := range src {
		if slices.Contains(bodyHeaders, http.CanonicalHeaderKey(k)) {
			continue
		}

		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
