package bssr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrBodyAborted marks errors that cut a response body short after its head was sent.
var ErrBodyAborted = errors.New("response body aborted")

// bodyless reports whether responses with the given status must not carry a body.
func bodyless(status int) bool {
	return (status >= 100 && status < 200) ||
		status == http.StatusNoContent ||
		status == http.StatusResetContent ||
		status == http.StatusNotModified
}

// FlushBuffer translates the buffered response into writes on the underlying response writer and
// ends it. Calling it on a response that already ended does nothing.
func (w *ResponseBuffer) FlushBuffer() error {
	g, r, body := w.g, w.request(), w.Body()

	switch {
	case !g.writable():
		closeBody(body)
		return g.err
	case bodyless(w.status):
		closeBody(body)
		w.header.Del("Content-Type")
		w.header.Del("Content-Length")
		w.header.Del("Transfer-Encoding")
		w.writeHead()
		g.end()

		return g.err
	case r.Method == http.MethodHead:
		closeBody(body)

		if !g.headSent && w.header.Get("Content-Length") == "" {
			if n, ok, err := bodyLength(body); err == nil && ok {
				w.header.Set("Content-Length", strconv.FormatInt(n, 10))
			}
		}

		w.writeHead()
		g.end()

		return g.err
	case body == nil:
		return w.respondEmpty(r)
	default:
		return w.respondBody(r, body)
	}
}

func (w *ResponseBuffer) respondEmpty(r *http.Request) error {
	if w.noBody {
		w.header.Del("Content-Type")
		w.header.Del("Transfer-Encoding")
		w.header.Set("Content-Length", "0")
		w.writeHead()
		w.g.end()

		return w.g.err
	}

	msg := strconv.Itoa(w.status)
	if r.ProtoMajor < 2 {
		if txt := http.StatusText(w.status); txt != "" {
			msg = txt
		}
	}

	w.setLength(int64(len(msg)))
	w.header.Set("Content-Type", "text/plain; charset=utf-8")
	w.writeHead()
	w.g.write([]byte(msg))
	w.g.end()

	return w.g.err
}

func (w *ResponseBuffer) respondBody(r *http.Request, body Body) error {
	switch b := body.(type) {
	case Bytes:
		w.setLength(int64(len(b)))
		w.writeHead()
		w.g.write(b)
	case Text:
		if w.header.Get("Content-Type") == "" {
			w.header.Set("Content-Type", textContentType(string(b)))
		}

		w.setLength(int64(len(b)))
		w.writeHead()
		w.g.write([]byte(b))
	case Value:
		data, err := json.Marshal(b.V)
		if err != nil {
			return errors.Wrap(err, "failed to encode body")
		}

		if w.header.Get("Content-Type") == "" {
			w.header.Set("Content-Type", "application/json; charset=utf-8")
		}

		w.setLength(int64(len(data)))
		w.writeHead()
		w.g.write(data)
	case Stream:
		defer closeBody(b)

		if err := w.pipe(r, readerChunks(b.Reader)); err != nil {
			return err
		}
	case Chunks:
		if err := w.pipe(r, b); err != nil {
			return err
		}
	default:
		panic(fmt.Sprintf("bssr: unsupported body type %T", body))
	}

	w.g.end()

	return w.g.err
}

// pipe writes each chunk as soon as it is produced. It stops quietly when the client went away, a
// failing producer or an expired deadline aborts the response.
func (w *ResponseBuffer) pipe(r *http.Request, chunks Chunks) error {
	w.writeHead()

	return pipeChunks(r.Context(), w.g, chunks)
}

func pipeChunks(ctx context.Context, g *guard, chunks Chunks) error {
	for chunk, err := range chunks {
		if err != nil {
			g.abort(err)
			return errors.Mark(errors.Wrap(err, "failed to produce body chunk"), ErrBodyAborted)
		}

		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				g.abort(err)
				return errors.Mark(errors.Wrap(err, "deadline exceeded while writing body"), ErrBodyAborted)
			}

			break
		}

		if !g.writable() {
			break
		}

		g.write(chunk)
		g.flush()
	}

	return nil
}

func (w *ResponseBuffer) setLength(n int64) {
	if w.g.headSent || w.header.Get("Content-Length") != "" {
		return
	}

	w.header.Set("Content-Length", strconv.FormatInt(n, 10))
}

func textContentType(s string) string {
	if strings.HasPrefix(strings.TrimSpace(s), "<") {
		return "text/html; charset=utf-8"
	}

	return "text/plain; charset=utf-8"
}
