// Package example implements example middleware in an outside package.
package example

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/advdv/bssr"
)

// LocalMethod is the locals key under which the middleware stores the request method.
const LocalMethod = "example.method"

// ctxKey type scopes middlware values.
type ctxKey string

// Middleware provides an example for middleware that adds a logger to the context and shares the
// request method with the renderer through the locals.
func Middleware(logs *slog.Logger) bssr.Middleware {
	return func(n bssr.BareHandler) bssr.BareHandler {
		return bssr.BareHandlerFunc(func(w bssr.ResponseWriter, r *http.Request) error {
			logs := logs.With(slog.String("method", r.Method))
			w.Locals().Set(LocalMethod, r.Method)

			return n.ServeBareBHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey("slog"), logs)))
		})
	}
}

// Log returns the logger the middleware stored on the context.
func Log(ctx context.Context) *slog.Logger {
	v, _ := ctx.Value(ctxKey("slog")).(*slog.Logger)

	return v
}
