package bssr

import (
	"context"
	"iter"
	"maps"
	"net/http"
	"sync"
)

// ctxKey scopes the values this package stores on a request context.
type ctxKey int

const (
	ctxKeyLocals ctxKey = iota
	ctxKeyWriter
)

// Locals is a request-scoped bag of values shared by the middleware stack and the fallback renderer.
// It is safe for concurrent use.
type Locals struct {
	mu   sync.RWMutex
	vals map[string]any
}

// NewLocals returns an empty bag.
func NewLocals() *Locals {
	return &Locals{vals: map[string]any{}}
}

// Get returns the value stored under key.
func (l *Locals) Get(key string) (any, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	v, ok := l.vals[key]

	return v, ok
}

// Set stores v under key, replacing any previous value.
func (l *Locals) Set(key string, v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.vals[key] = v
}

// Delete removes key from the bag.
func (l *Locals) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.vals, key)
}

// Len returns the number of values in the bag.
func (l *Locals) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.vals)
}

// All iterates over a snapshot of the bag.
func (l *Locals) All() iter.Seq2[string, any] {
	l.mu.RLock()
	snap := maps.Clone(l.vals)
	l.mu.RUnlock()

	return maps.All(snap)
}

// Local returns the value stored under key if it has type T.
func Local[T any](l *Locals, key string) (v T, ok bool) {
	if l == nil {
		return v, false
	}

	raw, ok := l.Get(key)
	if !ok {
		return v, false
	}

	v, ok = raw.(T)

	return v, ok
}

// WithLocals stamps an empty locals bag on the request unless one is already present. It returns the
// (possibly new) request together with the bag.
func WithLocals(r *http.Request) (*http.Request, *Locals) {
	if l := LocalsFrom(r.Context()); l != nil {
		return r, l
	}

	l := NewLocals()

	return r.WithContext(context.WithValue(r.Context(), ctxKeyLocals, l)), l
}

// LocalsFrom returns the locals bag stamped on the context, or nil.
func LocalsFrom(ctx context.Context) *Locals {
	l, _ := ctx.Value(ctxKeyLocals).(*Locals)
	return l
}

func withWriter(ctx context.Context, w ResponseWriter) context.Context {
	return context.WithValue(ctx, ctxKeyWriter, w)
}

// FromContext returns the response writer of the request that is currently being served by the
// middleware stack. It is only available when the bridge runs with the ambient scope enabled.
func FromContext(ctx context.Context) (ResponseWriter, bool) {
	w, ok := ctx.Value(ctxKeyWriter).(ResponseWriter)
	return w, ok
}
