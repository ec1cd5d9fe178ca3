package bssr

import (
	"context"
	"mime"
	"net/http"
	"slices"
	"strconv"

	"github.com/cockroachdb/errors"
)

// RouteData is whatever a [Renderer] needs to render a matched route.
type RouteData any

// MatchOptions configures how a renderer matches requests.
type MatchOptions struct {
	// MatchNotFound asks the renderer to match its not-found route when nothing else matches.
	MatchNotFound bool
}

// Response is a complete response produced by a renderer. It is consumed exactly once.
type Response struct {
	Status int
	Header http.Header
	Body   Chunks
}

// NewResponse returns a response with a body of the given bytes.
func NewResponse(status int, header http.Header, body []byte) *Response {
	if header == nil {
		header = http.Header{}
	}

	res := &Response{Status: status, Header: header}
	if len(body) > 0 {
		res.Body = ChunksOf(body)
	}

	return res
}

// Renderer renders the requests that the middleware stack declined.
type Renderer interface {
	Match(r *http.Request, opts MatchOptions) (RouteData, bool)
	Render(ctx context.Context, r *http.Request, route RouteData) (*Response, error)
}

// CookieSetter can be implemented by a [Renderer] to emit Set-Cookie headers for a response.
type CookieSetter interface {
	SetCookieHeaders(res *Response) []string
}

// Fallback is the handler for requests that the middleware stack declined: it matches and renders
// them with a [Renderer] and writes the rendered response.
type Fallback struct {
	renderer Renderer
	logs     Logger
}

// NewFallback inits the fallback handler.
func NewFallback(renderer Renderer, logs Logger) *Fallback {
	return &Fallback{renderer: renderer, logs: logs}
}

// ServeHTTP implements http.Handler. A render error is logged and answered with a 500 when nothing
// was sent yet. A body that fails halfway aborts the connection.
func (f *Fallback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g := newGuard(w)
	if err := f.serve(g, r); err != nil {
		f.logs.LogRenderError(err)

		if g.writable() && !g.headSent {
			http.Error(w,
				http.StatusText(http.StatusInternalServerError),
				http.StatusInternalServerError)
		}
	}

	if g.aborted {
		panic(http.ErrAbortHandler)
	}
}

// ServeFallback matches, renders and writes the response for r. Render errors are returned as-is to
// the caller. Errors marked with [ErrBodyAborted] mean the head was sent but the body is incomplete,
// the caller should abort the connection.
func (f *Fallback) ServeFallback(w http.ResponseWriter, r *http.Request) error {
	return f.serve(newGuard(w), r)
}

func (f *Fallback) serve(g *guard, r *http.Request) error {
	route, ok := f.renderer.Match(r, MatchOptions{MatchNotFound: true})
	if !ok {
		nf := newBufferResponse(g.w, -1)
		defer nf.Free()

		nf.g = g
		nf.bind(r, LocalsFrom(r.Context()))
		nf.WriteHeader(http.StatusNotFound)

		return nf.FlushBuffer()
	}

	res, err := f.renderer.Render(r.Context(), r, route)
	if err != nil {
		return errors.Wrap(err, "failed to render")
	}

	var cookies []string
	if cs, ok := f.renderer.(CookieSetter); ok {
		cookies = cs.SetCookieHeaders(res)
	}

	return writeResponse(g, r, res, cookies)
}

// writeResponse writes a rendered response. All headers, including the merged cookies, are final
// before the head is written. Rendered headers replace headers of the same name that are already on w,
// except for cookies which accumulate. When the renderer reports cookies, they replace the Set-Cookie
// values of the rendered response.
func writeResponse(g *guard, r *http.Request, res *Response, cookies []string) error {
	if !g.writable() {
		return g.err
	}

	hdr := g.w.Header()
	for k, vs := range res.Header {
		switch {
		case http.CanonicalHeaderKey(k) != "Set-Cookie":
			hdr[k] = slices.Clone(vs)
		case len(cookies) == 0:
			hdr[k] = append(hdr[k], vs...)
		}
	}

	for _, c := range cookies {
		hdr.Add("Set-Cookie", c)
	}

	if mt, _, _ := mime.ParseMediaType(hdr.Get("Content-Type")); mt == "text/html" && hdr.Get("Content-Encoding") == "" {
		hdr.Set("Content-Encoding", "none")
	}

	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}

	if res.Body == nil || bodyless(status) || r.Method == http.MethodHead {
		if res.Body == nil && !bodyless(status) && hdr.Get("Content-Length") == "" {
			hdr.Set("Content-Length", strconv.Itoa(0))
		}

		g.writeHead(status)
		g.end()

		return g.err
	}

	g.writeHead(status)

	if err := pipeChunks(r.Context(), g, res.Body); err != nil {
		return errors.Wrap(err, "failed to write rendered body")
	}

	g.end()

	return g.err
}
