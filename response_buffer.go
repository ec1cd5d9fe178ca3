package bssr

import (
	"bytes"
	"errors"
	"net/http"
	"sync"
)

// StatusUnhandled is the status every buffered response starts with. A middleware stack that leaves it
// untouched declines the request.
const StatusUnhandled = http.StatusNotFound

// ErrBufferFull is returned when the write limit of the buffer was reached.
var ErrBufferFull = errors.New("buffer is full")

var bufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// ResponseBuffer is the state of a response that is still being formulated: status, headers and body
// are held until the response is flushed. It implements [ResponseWriter].
type ResponseBuffer struct {
	resp   http.ResponseWriter
	g      *guard
	req    *http.Request
	locals *Locals

	limit       int
	buf         *bytes.Buffer
	header      http.Header
	status      int
	wroteHeader bool
	wroteBody   bool
	body        Body
	noBody      bool
}

func newBufferResponse(resp http.ResponseWriter, limit int) *ResponseBuffer {
	buf, _ := bufPool.Get().(*bytes.Buffer)
	buf.Reset()

	return &ResponseBuffer{
		resp:   resp,
		g:      newGuard(resp),
		locals: NewLocals(),
		limit:  limit,
		buf:    buf,
		header: http.Header{},
		status: StatusUnhandled,
	}
}

// NewResponseWriter returns a buffered response writer for resp. Writes beyond limit bytes fail with
// [ErrBufferFull], a limit of zero or less means no limit.
func NewResponseWriter(resp http.ResponseWriter, limit int) ResponseWriter {
	return newBufferResponse(resp, limit)
}

func (w *ResponseBuffer) bind(r *http.Request, l *Locals) {
	w.req, w.locals = r, l
}

// Header returns the buffered header map.
func (w *ResponseBuffer) Header() http.Header { return w.header }

// WriteHeader sets the status. Only the first call has effect until the buffer is reset.
func (w *ResponseBuffer) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}

	w.status, w.wroteHeader = statusCode, true
}

// Write appends to the buffered body. It implies a 200 status when none was written yet.
func (w *ResponseBuffer) Write(p []byte) (int, error) {
	if w.limit > 0 && w.buf.Len()+len(p) > w.limit {
		return 0, ErrBufferFull
	}

	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	if w.body != nil {
		closeBody(w.body)
		w.body = nil
	}

	w.wroteBody, w.noBody = true, false

	return w.buf.Write(p)
}

// SetBody replaces the body. A non-nil body implies a 200 status when none was written yet, a nil body
// is the same as calling [ResponseBuffer.SetNoBody].
func (w *ResponseBuffer) SetBody(b Body) {
	if b == nil {
		w.SetNoBody()
		return
	}

	w.replaceBody(b)

	if !w.wroteHeader {
		w.status = http.StatusOK
	}
}

// SetNoBody marks the body as explicitly empty. It implies a 204 status when none was written yet.
func (w *ResponseBuffer) SetNoBody() {
	w.replaceBody(nil)
	w.noBody = true

	if !w.wroteHeader {
		w.status = http.StatusNoContent
	}
}

func (w *ResponseBuffer) replaceBody(b Body) {
	if w.body != nil {
		closeBody(w.body)
	}

	w.buf.Reset()
	w.body, w.wroteBody, w.noBody = b, false, false
}

// Body returns the current body: bytes written through Write or whatever was set with SetBody.
func (w *ResponseBuffer) Body() Body {
	if w.wroteBody {
		return Bytes(w.buf.Bytes())
	}

	return w.body
}

// Status returns the status the response will be sent with.
func (w *ResponseBuffer) Status() int { return w.status }

// HeadersSent reports whether the head was already written to the client.
func (w *ResponseBuffer) HeadersSent() bool { return w.g.headSent }

// Locals returns the request-scoped locals.
func (w *ResponseBuffer) Locals() *Locals { return w.locals }

// Reset discards the status, headers and body so a completely new response can be formulated. It
// panics when part of the response was already flushed to the client.
func (w *ResponseBuffer) Reset() {
	if w.g.headSent {
		panic("bssr: cannot reset, response already flushed")
	}

	w.replaceBody(nil)
	w.header = http.Header{}
	w.status, w.wroteHeader = StatusUnhandled, false
}

// Free returns the underlying buffer to the pool. The response buffer must not be used afterwards.
func (w *ResponseBuffer) Free() {
	if w.buf == nil {
		return
	}

	w.buf.Reset()
	bufPool.Put(w.buf)
	w.buf = nil
}

// FlushError writes the head and any buffered bytes to the client and flushes the connection. It is
// called by [http.ResponseController.Flush].
func (w *ResponseBuffer) FlushError() error {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	w.writeHead()
	w.g.write(w.buf.Bytes())
	w.buf.Reset()
	w.g.flush()

	return w.g.err
}

// Flush implements http.Flusher.
func (w *ResponseBuffer) Flush() { _ = w.FlushError() }

// Unwrap returns the response writer that is being buffered.
func (w *ResponseBuffer) Unwrap() http.ResponseWriter { return w.resp }

func (w *ResponseBuffer) writeHead() {
	if w.g.headSent {
		return
	}

	dst := w.g.w.Header()
	for k, v := range w.header {
		dst[k] = v
	}

	w.g.writeHead(w.status)
}

func (w *ResponseBuffer) request() *http.Request {
	if w.req == nil {
		w.req = &http.Request{Method: http.MethodGet, ProtoMajor: 1, ProtoMinor: 1}
	}

	return w.req
}

var _ ResponseWriter = (*ResponseBuffer)(nil)
