package bserve

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/advdv/bssr"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics()
	observe := m.Observer()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	withStart(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		observe(r, bssr.OutcomeHandled)
		observe(r, bssr.OutcomeHandled)
		observe(r, bssr.OutcomeDeclined)
	})).ServeHTTP(httptest.NewRecorder(), req)

	observe(req, bssr.OutcomeErrored)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Dispatches.WithLabelValues(bssr.OutcomeHandled.String())), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Dispatches.WithLabelValues(bssr.OutcomeDeclined.String())), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Dispatches.WithLabelValues(bssr.OutcomeErrored.String())), 0)

	// the errored request never passed withStart
	assert.Equal(t, 2, testutil.CollectAndCount(m.Duration))
}

func TestMetricsObserveBuild(t *testing.T) {
	m := NewMetrics()

	m.observeBuild(1, nil)
	m.observeBuild(1, errors.New("bad config"))
	m.observeBuild(2, nil)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Reloads.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Reloads.WithLabelValues("failed")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Generation), 0)
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.observeBuild(4, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bssr_stack_generation 4")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
