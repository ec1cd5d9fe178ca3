package bssr_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/advdv/bssr"
	"github.com/stretchr/testify/require"
)

func serveBlogPost(ctx context.Context, w bssr.ResponseWriter, r *http.Request) error {
	fmt.Fprintf(w, `hello %v, %s`, r.Context().Value("foo"), r.PathValue("slug"))
	return nil
}

func middleware1(next bssr.BareHandler) bssr.BareHandler {
	return bssr.BareHandlerFunc(func(w bssr.ResponseWriter, r *http.Request) error {
		return next.ServeBareBHTTP(w, r.WithContext(context.WithValue(r.Context(), "foo", "bar"))) //nolint:staticcheck
	})
}

func TestStack(t *testing.T) {
	stack := bssr.NewStack()
	stack.Use(middleware1)
	stack.HandleFunc("GET /blog/{slug}", serveBlogPost, "blog_post")

	loc, err := stack.Reverse("blog_post", "foo")
	require.NoError(t, err)
	require.Equal(t, `/blog/foo`, loc)

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/blog/111", nil)
	stack.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `hello bar, 111`, rec.Body.String())
}

func TestHandleStd(t *testing.T) {
	stdHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "std:%s", r.URL.Path)
	})

	stack := bssr.NewStack()
	stack.HandleStd("GET /std", stdHandler)

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/std", nil)
	stack.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "std:/std", rec.Body.String())
}

func TestHandleStdErrorOwnership(t *testing.T) {
	stdHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "custom error", http.StatusTeapot)
	})

	stack := bssr.NewStack()
	stack.HandleStd("GET /teapot", stdHandler)

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil)
	stack.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, "custom error\n", rec.Body.String())
}

func TestHandleStdMiddlewareApplied(t *testing.T) {
	stack := bssr.NewStack()
	stack.Use(middleware1)
	stack.HandleStd("GET /std", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "val:%v", r.Context().Value("foo")) //nolint:staticcheck
	}))

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/std", nil)
	stack.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "val:bar", rec.Body.String())
}

func TestHandleStdNamed(t *testing.T) {
	stack := bssr.NewStack()
	stack.HandleStd("GET /metrics", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "metrics")
	}), "metrics")

	loc, err := stack.Reverse("metrics")
	require.NoError(t, err)
	require.Equal(t, "/metrics", loc)

	rec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil)
	stack.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "metrics", rec.Body.String())
}

func TestUseAfterHandle(t *testing.T) {
	stack := bssr.NewStack()
	stack.HandleFunc("GET /blog/{slug}", serveBlogPost, "blog_post")
	require.PanicsWithValue(t, "bssr: cannot call Use() after calling Handle", func() {
		stack.Use(middleware1)
	})
}
