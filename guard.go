package bssr

import (
	"errors"
	"net/http"
	"sync"
)

// guard wraps the raw response writer so that exactly one terminal action happens on it. Writes after
// the response ended, or after the transport failed, are silently dropped.
type guard struct {
	w        http.ResponseWriter
	headSent bool
	ended    bool
	aborted  bool
	err      error

	doneOnce sync.Once
	onDone   func(err error)
}

func newGuard(w http.ResponseWriter) *guard {
	return &guard{w: w}
}

func (g *guard) writable() bool { return !g.ended && g.err == nil }

func (g *guard) writeHead(status int) {
	if g.headSent || !g.writable() {
		return
	}

	g.headSent = true
	g.w.WriteHeader(status)
}

func (g *guard) write(p []byte) {
	if !g.writable() || len(p) == 0 {
		return
	}

	if !g.headSent {
		g.writeHead(http.StatusOK)
	}

	if _, err := g.w.Write(p); err != nil {
		g.fail(err)
	}
}

func (g *guard) flush() {
	if !g.writable() {
		return
	}

	if err := http.NewResponseController(g.w).Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		g.fail(err)
	}
}

// fail records the first transport error and terminates the response.
func (g *guard) fail(err error) {
	if g.err == nil {
		g.err = err
	}

	g.end()
}

// abort terminates a response whose body could not be completed. The client must not mistake it for a
// complete response, so the caller tears down the connection once the error was handled.
func (g *guard) abort(err error) {
	g.aborted = true
	g.fail(err)
}

// end terminates the response. Calling it more than once is a no-op.
func (g *guard) end() {
	if !g.ended && g.err == nil && !g.headSent {
		g.writeHead(http.StatusOK)
	}

	g.ended = true
	g.doneOnce.Do(func() {
		if g.onDone != nil {
			g.onDone(g.err)
		}
	})
}
