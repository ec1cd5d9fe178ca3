package bssr_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/advdv/bssr"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func versioned(v int) bssr.SetupFunc {
	return func(s *bssr.Stack) error {
		s.HandleFunc("GET /version", func(_ context.Context, w bssr.ResponseWriter, _ *http.Request) error {
			w.SetBody(bssr.Text(fmt.Sprintf("v%d", v)))
			return nil
		})

		return nil
	}
}

func serveVersion(t *testing.T, h http.Handler) string {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	return rec.Body.String()
}

func TestStacksEntryRequired(t *testing.T) {
	stacks := bssr.NewStacks("", bssr.EntryLoaderFunc(func(context.Context, string) (bssr.SetupFunc, error) {
		t.Fatal("loader must not be called")
		return nil, nil
	}))

	_, err := stacks.Build(t.Context())
	require.ErrorIs(t, err, bssr.ErrEntryRequired)
	assert.Nil(t, stacks.Current())
	assert.Nil(t, stacks.Load())
}

func TestStacksBuildAndReload(t *testing.T) {
	logs := bssr.NewTestLogger(t)

	var (
		next    = 1
		entries []string
	)

	stacks := bssr.NewStacks("app", bssr.EntryLoaderFunc(func(_ context.Context, entry string) (bssr.SetupFunc, error) {
		entries = append(entries, entry)
		return versioned(next), nil
	}), bssr.WithStacksLogger(logs))

	bridge := bssr.NewBridge(stacks, http.NotFoundHandler(), bssr.WithLogger(logs))

	first, err := stacks.Build(t.Context())
	require.NoError(t, err)
	assert.Same(t, first, stacks.Current())
	assert.Equal(t, "v1", serveVersion(t, bridge))

	next = 2
	second, err := stacks.Build(t.Context())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, "v2", serveVersion(t, bridge))

	assert.Equal(t, uint64(2), stacks.Generation())
	assert.Equal(t, []string{"app", "app"}, entries)
	assert.Equal(t, int64(2), logs.NumLogStackReloaded)
	assert.Equal(t, "app", stacks.Entry())
}

func TestStacksFailedBuildKeepsCurrent(t *testing.T) {
	for _, tt := range []struct {
		name   string
		loader bssr.EntryLoaderFunc
		expErr string
	}{
		{
			name: "load error",
			loader: func(context.Context, string) (bssr.SetupFunc, error) {
				return nil, errors.New("no such entry")
			},
			expErr: `failed to load entry "app": no such entry`,
		},
		{
			name: "setup error",
			loader: func(context.Context, string) (bssr.SetupFunc, error) {
				return func(*bssr.Stack) error { return errors.New("bad config") }, nil
			},
			expErr: `failed to set up stack from entry "app": bad config`,
		},
		{
			name: "setup panic",
			loader: func(context.Context, string) (bssr.SetupFunc, error) {
				return func(s *bssr.Stack) error {
					s.HandleFunc("GET /a", nil)
					s.Use(func(n bssr.BareHandler) bssr.BareHandler { return n })

					return nil
				}, nil
			},
			expErr: `failed to set up stack from entry "app": panic during setup: bssr: cannot call Use() after calling Handle`,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ok := true
			stacks := bssr.NewStacks("app", bssr.EntryLoaderFunc(func(ctx context.Context, entry string) (bssr.SetupFunc, error) {
				if ok {
					return versioned(1), nil
				}

				return tt.loader(ctx, entry)
			}), bssr.WithStacksLogger(bssr.NewTestLogger(t)))

			first, err := stacks.Build(t.Context())
			require.NoError(t, err)

			ok = false
			_, err = stacks.Build(t.Context())
			require.EqualError(t, err, tt.expErr)

			assert.Same(t, first, stacks.Current())
			assert.Equal(t, uint64(1), stacks.Generation())
			assert.Equal(t, "v1", serveVersion(t, bssr.NewBridge(stacks, http.NotFoundHandler())))
		})
	}
}

func TestStacksCustomFactory(t *testing.T) {
	var made int

	stacks := bssr.NewStacks("app",
		bssr.EntryLoaderFunc(func(context.Context, string) (bssr.SetupFunc, error) { return versioned(1), nil }),
		bssr.WithStacksLogger(bssr.NewTestLogger(t)),
		bssr.WithStackFactory(func() *bssr.Stack {
			made++
			return bssr.NewStackWith(16, bssr.NewTestLogger(t), http.NewServeMux(), bssr.NewReverser())
		}))

	_, err := stacks.Build(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, made)
}
