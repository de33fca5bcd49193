package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/attempts/{id}", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	before := testutil.ToFloat64(RequestCounter.WithLabelValues("GET", "/attempts/{id}", "418"))
	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/attempts/"+id, nil))
	}
	after := testutil.ToFloat64(RequestCounter.WithLabelValues("GET", "/attempts/{id}", "418"))
	assert.Equal(t, 2.0, after-before)
}

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { Register(reg) })
	CheckpointsSaved.WithLabelValues("beacon", "delta").Inc()
	n, err := testutil.GatherAndCount(reg, "checkpoints_saved_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
