package bserve_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/advdv/bssr"
	"github.com/advdv/bssr/bserve"
	"github.com/stretchr/testify/require"
)

// TestEnv is a test environment with app-specific fields beyond BaseEnvironment.
type TestEnv struct {
	bserve.BaseEnvironment
	MainTableName string `env:"MAIN_TABLE_NAME,required"`
}

// pageRenderer renders every path as a small html page that includes the request id from the
// locals.
type pageRenderer struct{}

func (pageRenderer) Match(r *http.Request, _ bssr.MatchOptions) (bssr.RouteData, bool) {
	return r.URL.Path, !strings.HasPrefix(r.URL.Path, "/missing")
}

func (pageRenderer) Render(_ context.Context, r *http.Request, route bssr.RouteData) (*bssr.Response, error) {
	id, _ := bssr.Local[string](bssr.LocalsFrom(r.Context()), bserve.LocalRequestID)

	return bssr.NewResponse(http.StatusOK,
		http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		[]byte("<html>"+route.(string)+" "+id+"</html>")), nil
}

// get performs an HTTP GET and returns the response with its body read.
func get(t *testing.T, url string, header ...string) (*http.Response, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)

	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}
