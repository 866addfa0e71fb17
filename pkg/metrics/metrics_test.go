package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/faceswap/pkg/metrics"
)

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.MeteredDecision(true, "free", "")
		m.PaymentInitiated("card", "monthly")
		m.Reconciled("card", "succeeded")
	})
}

func TestCounters(t *testing.T) {
	t.Parallel()

	m := metrics.New("test")
	m.MeteredDecision(false, "none", "free_limit_reached")
	m.MeteredDecision(false, "none", "free_limit_reached")
	m.PaymentInitiated("crypto_transfer", "one_time")

	expected := `
# HELP test_metered_decisions_total Entitlement decisions for the metered action.
# TYPE test_metered_decisions_total counter
test_metered_decisions_total{consumption="none",decision="deny",reason="free_limit_reached"} 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "test_metered_decisions_total"))
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	m := metrics.New("test")
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/users/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/42", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `test_http_requests_total{code="418",method="GET",route="/users/{id}"} 1`)
}
