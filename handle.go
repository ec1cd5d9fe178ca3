package bssr

import (
	"context"
	"net/http"
)

// ResponseWriter implements the http.ResponseWriter but the response is buffered: status, headers and
// body are only sent when the buffer is flushed. This allows middleware to reset the writer and
// formulate a completely new response, and it allows the bridge to observe whether the response was
// touched at all.
type ResponseWriter interface {
	http.ResponseWriter
	Reset()
	Free()
	FlushBuffer() error
	Status() int
	SetBody(b Body)
	SetNoBody()
	Body() Body
	HeadersSent() bool
	Locals() *Locals
}

// Handler mirrors http.Handler but it is served with a buffered response and may return an error.
type Handler interface {
	ServeBHTTP(ctx context.Context, w ResponseWriter, r *http.Request) error
}

// HandlerFunc allow casting a function to imple [Handler].
type HandlerFunc func(context.Context, ResponseWriter, *http.Request) error

// ServeBHTTP implements the [Handler] interface.
func (f HandlerFunc) ServeBHTTP(ctx context.Context, w ResponseWriter, r *http.Request) error {
	return f(ctx, w, r)
}

// BareHandler describes how middleware servers HTTP requests. In this library the signature for
// handling middleware [BareHandler] is different from the signature of "leaf" handlers: [Handler].
type BareHandler interface {
	ServeBareBHTTP(w ResponseWriter, r *http.Request) error
}

// BareHandlerFunc allow casting a function to an implementation of [BareHandler].
type BareHandlerFunc func(ResponseWriter, *http.Request) error

// ServeBareBHTTP implements the [BareHandler] interface.
func (f BareHandlerFunc) ServeBareBHTTP(w ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// ToBare converts a leaf handler 'h' into a bare buffered handler.
func ToBare(h Handler) BareHandler {
	return BareHandlerFunc(func(w ResponseWriter, r *http.Request) error {
		return h.ServeBHTTP(r.Context(), w, r)
	})
}

// ToStd converts a bare handler into a standard library http.Handler. A response that the handler
// leaves untouched is answered with a plain 404.
func ToStd(h BareHandler, bufLimit int, logs Logger) http.Handler {
	return NewBridge(
		SourceFunc(func() BareHandler { return h }),
		http.NotFoundHandler(),
		WithBufferLimit(bufLimit),
		WithLogger(logs))
}
