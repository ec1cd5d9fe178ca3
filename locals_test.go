package bssr_test

import (
	"maps"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/advdv/bssr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocals(t *testing.T) {
	l := bssr.NewLocals()
	l.Set("user", "alice")
	l.Set("n", 3)

	v, ok := bssr.Local[string](l, "user")
	require.True(t, ok)
	assert.Equal(t, "alice", v)

	_, ok = bssr.Local[string](l, "n")
	assert.False(t, ok)

	_, ok = bssr.Local[int](nil, "n")
	assert.False(t, ok)

	snap := maps.Collect(l.All())
	l.Delete("user")

	assert.Equal(t, map[string]any{"user": "alice", "n": 3}, snap)
	assert.Equal(t, 1, l.Len())
}

func TestLocalsConcurrentWrites(t *testing.T) {
	l := bssr.NewLocals()

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			l.Set(string(rune('a'+i%26)), i)
			_, _ = l.Get("a")
		}()
	}

	wg.Wait()
	assert.Equal(t, 26, l.Len())
}

func TestWithLocals(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, bssr.LocalsFrom(r.Context()))

	r1, l1 := bssr.WithLocals(r)
	assert.NotSame(t, r, r1)
	assert.Same(t, l1, bssr.LocalsFrom(r1.Context()))

	r2, l2 := bssr.WithLocals(r1)
	assert.Same(t, r1, r2)
	assert.Same(t, l1, l2)
}
