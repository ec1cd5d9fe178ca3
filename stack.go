package bssr

import (
	"context"
	"net/http"
	"sync"
)

// Stack is the middleware stack a request is dispatched against: an ordered chain of middleware that
// runs for every request, in front of a router for named route patterns. A request for which no route
// matches, and that no middleware answered, is left untouched so the bridge falls back to the renderer.
type Stack struct {
	logs        Logger
	bufLimit    int
	reverser    *Reverser
	mux         *http.ServeMux
	middlewares struct {
		captured bool
		buffered []Middleware
	}

	chainOnce sync.Once
	chain     BareHandler
}

// NewStack creates a new Stack with default settings.
func NewStack() *Stack {
	return NewStackWith(-1, NewStdLogger(nil), http.NewServeMux(), NewReverser())
}

// NewStackWith creates a Stack with custom settings. The buffer limit and logger only apply when the
// stack is served on its own through [Stack.ServeHTTP].
func NewStackWith(bufLimit int, logger Logger, baseMux *http.ServeMux, reverser *Reverser) *Stack {
	return &Stack{
		bufLimit: bufLimit,
		logs:     logger,
		reverser: reverser,
		mux:      baseMux,
	}
}

// Reverse returns the url based on the name and parameter values.
func (s *Stack) Reverse(name string, vals ...string) (string, error) {
	return s.reverser.Reverse(name, vals...)
}

// Use allows providing of middleware. Middleware runs for every request, also for those that end up
// being declined.
func (s *Stack) Use(mw ...Middleware) {
	s.ensureNoUseAfterHandle()
	s.middlewares.buffered = append(s.middlewares.buffered, mw...)
}

// HandleFunc handles the request given the pattern using a function.
func (s *Stack) HandleFunc(pattern string, handler HandlerFunc, name ...string) {
	s.Handle(pattern, handler, name...)
}

// HandleStd registers a standard library [http.Handler] for the given pattern. The handler writes into
// the buffered response, so it can still be reset by middleware.
func (s *Stack) HandleStd(pattern string, handler http.Handler, name ...string) {
	s.handle(pattern, BareHandlerFunc(func(w ResponseWriter, r *http.Request) error {
		handler.ServeHTTP(w, r)
		return nil
	}), name...)
}

// Handle handles the request given a handler.
func (s *Stack) Handle(pattern string, handler Handler, name ...string) {
	s.handle(pattern, ToBare(handler), name...)
}

// ServeBareBHTTP runs the middleware chain followed by the router.
func (s *Stack) ServeBareBHTTP(w ResponseWriter, r *http.Request) error {
	s.chainOnce.Do(func() {
		s.middlewares.captured = true
		s.chain = wrapBare(BareHandlerFunc(s.route), s.middlewares.buffered...)
	})

	return s.chain.ServeBareBHTTP(w, r)
}

// ServeHTTP serves the stack on its own, requests it declines are answered with a plain 404.
func (s *Stack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ToStd(s, s.bufLimit, s.logs).ServeHTTP(w, r)
}

type routeKey struct{}

// routeResult carries the error of a route handler back through the standard library mux.
type routeResult struct{ err error }

func (s *Stack) route(w ResponseWriter, r *http.Request) error {
	if _, pattern := s.mux.Handler(r); pattern == "" {
		return nil
	}

	res := &routeResult{}
	s.mux.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), routeKey{}, res)))

	return res.err
}

func (s *Stack) handle(pattern string, handler BareHandler, name ...string) {
	s.middlewares.captured = true

	if len(name) > 0 {
		pattern = s.reverser.Named(name[0], pattern)
	}

	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, _ := r.Context().Value(routeKey{}).(*routeResult)
		bw, ok := w.(ResponseWriter)

		if !ok || res == nil {
			panic("bssr: route served outside of its stack")
		}

		res.err = handler.ServeBareBHTTP(bw, r)
	}))
}

func (s *Stack) ensureNoUseAfterHandle() {
	if s.middlewares.captured {
		panic("bssr: cannot call Use() after calling Handle")
	}
}
