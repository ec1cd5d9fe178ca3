// Package upstream implements a renderer that forwards declined requests to an out-of-process SSR
// server, such as a node server running the page framework.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"

	"github.com/advdv/bssr"
	"github.com/carlmjohnson/requests"
	"github.com/cockroachdb/errors"
)

const (
	// HeaderLocals carries the request locals, JSON encoded, to the upstream.
	HeaderLocals = "X-Bssr-Locals"
	// HeaderSetCookie is the header in which the upstream returns cookies that were set through its
	// cookie API. They are added to the response's own cookies before the head is written.
	HeaderSetCookie = "X-Bssr-Set-Cookie"
)

// hop-by-hop headers are never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Route is the route data produced by [Renderer.Match].
type Route struct {
	Path     string
	Query    url.Values
	NotFound bool
}

// Option configures the renderer.
type Option func(*Renderer)

// WithTransport sets the round tripper used for upstream requests.
func WithTransport(rt http.RoundTripper) Option {
	return func(r *Renderer) { r.transport = rt }
}

// WithMethods sets the request methods the upstream renders. Defaults to GET, HEAD and POST.
func WithMethods(methods ...string) Option {
	return func(r *Renderer) { r.methods = methods }
}

// Renderer renders requests by forwarding them to the upstream at base.
type Renderer struct {
	base      string
	transport http.RoundTripper
	methods   []string
}

// New inits a renderer for the upstream at baseURL.
func New(baseURL string, opts ...Option) (*Renderer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse renderer url %q", baseURL)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("renderer url %q must be absolute", baseURL)
	}

	r := &Renderer{
		base:      baseURL,
		transport: http.DefaultTransport,
		methods:   []string{http.MethodGet, http.MethodHead, http.MethodPost},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Match implements [bssr.Renderer]. Every request with a supported method matches: the upstream
// renders its own not-found page.
func (rn *Renderer) Match(r *http.Request, opts bssr.MatchOptions) (bssr.RouteData, bool) {
	if !slices.Contains(rn.methods, r.Method) {
		return nil, false
	}

	return Route{Path: r.URL.Path, Query: r.URL.Query(), NotFound: opts.MatchNotFound}, true
}

// Render implements [bssr.Renderer].
func (rn *Renderer) Render(ctx context.Context, r *http.Request, data bssr.RouteData) (*bssr.Response, error) {
	route, ok := data.(Route)
	if !ok {
		return nil, errors.Newf("unexpected route data %T", data)
	}

	locals, err := encodeLocals(bssr.LocalsFrom(r.Context()))
	if err != nil {
		return nil, err
	}

	rb := requests.New().
		Transport(rn.transport).
		BaseURL(rn.base).
		Path(route.Path).
		Method(r.Method).
		CheckRedirect(requests.NoFollow).
		AddValidator(nil)

	for k, vs := range route.Query {
		rb.Param(k, vs...)
	}

	for k, vs := range r.Header {
		if slices.Contains(hopHeaders, http.CanonicalHeaderKey(k)) || k == HeaderLocals {
			continue
		}

		rb.Header(k, vs...)
	}

	rb.Header(HeaderLocals, locals)

	if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
		rb.BodyReader(r.Body)
	}

	var (
		res  *bssr.Response
		body bytes.Buffer
	)

	if err := rb.Handle(func(hres *http.Response) error {
		if _, err := body.ReadFrom(hres.Body); err != nil {
			return errors.Wrap(err, "failed to read upstream body")
		}

		hdr := hres.Header.Clone()
		for _, h := range hopHeaders {
			hdr.Del(h)
		}

		res = bssr.NewResponse(hres.StatusCode, hdr, body.Bytes())

		return nil
	}).Fetch(ctx); err != nil {
		return nil, errors.Wrapf(err, "failed to render %q upstream", route.Path)
	}

	return res, nil
}

// SetCookieHeaders implements [bssr.CookieSetter]. It reports the cookies the upstream set directly
// followed by those set through its cookie API.
func (rn *Renderer) SetCookieHeaders(res *bssr.Response) []string {
	vals := append(res.Header.Values("Set-Cookie"), res.Header.Values(HeaderSetCookie)...)
	res.Header.Del(HeaderSetCookie)

	return vals
}

func encodeLocals(l *bssr.Locals) (string, error) {
	vals := map[string]any{}
	if l != nil {
		for k, v := range l.All() {
			vals[k] = v
		}
	}

	data, err := json.Marshal(vals)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode locals")
	}

	return string(data), nil
}

var (
	_ bssr.Renderer     = (*Renderer)(nil)
	_ bssr.CookieSetter = (*Renderer)(nil)
)
