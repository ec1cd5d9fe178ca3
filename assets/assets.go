// Package assets serves the client build output, fingerprinted and therefore immutable, under a URL
// prefix. Requests for assets that do not exist fall through to the next handler.
package assets

import (
	"context"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// CacheControl is sent with every asset.
const CacheControl = "public,max-age=31536000,immutable"

// ErrNotFound is returned by a [Source] that has no asset with the requested name.
var ErrNotFound = errors.New("asset not found")

// ErrAborted marks errors that happened after the response head was written.
var ErrAborted = errors.New("asset response aborted")

// Source serves assets by name, the name never starts with a slash.
type Source interface {
	ServeAsset(ctx context.Context, w http.ResponseWriter, r *http.Request, name string) error
}

// Handler serves assets below prefix from src and hands every other request to next.
func Handler(prefix string, src Source, logs *zap.Logger, next http.Handler) http.Handler {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, ok := assetName(prefix, r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Cache-Control", CacheControl)

		err := src.ServeAsset(r.Context(), w, r, name)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			w.Header().Del("Cache-Control")
			next.ServeHTTP(w, r)
		case errors.Is(err, ErrAborted):
			logs.Warn("asset response aborted", zap.String("name", name), zap.Error(err))
		default:
			logs.Error("failed to serve asset", zap.String("name", name), zap.Error(err))
			w.Header().Del("Cache-Control")
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		}
	})
}

func assetName(prefix string, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return "", false
	}

	rest, ok := strings.CutPrefix(r.URL.Path, prefix)
	if !ok || rest == "" || slices.Contains(strings.Split(rest, "/"), "..") {
		return "", false
	}

	name := strings.TrimPrefix(path.Clean("/"+rest), "/")
	if name == "" || strings.HasSuffix(rest, "/") {
		return "", false
	}

	return name, true
}
