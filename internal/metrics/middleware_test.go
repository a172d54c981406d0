package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	Init()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/articles/{id}/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/v1/articles/{id}/analysis", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	})

	tests := []struct {
		method string
		path   string
		route  string
		code   string
	}{
		{http.MethodGet, "/v1/articles/a1/", "/v1/articles/{id}/", "200"},
		{http.MethodGet, "/v1/articles/b2/", "/v1/articles/{id}/", "200"},
		{http.MethodPost, "/v1/articles/a1/analysis", "/v1/articles/{id}/analysis", "400"},
	}

	before := map[string]float64{}
	for _, tt := range tests {
		key := tt.method + tt.code
		before[key] = testutil.ToFloat64(httpRequestsTotal.WithLabelValues(tt.method, tt.code))
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
	}

	require.InDelta(t, before[http.MethodGet+"200"]+2,
		testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200")), 0)
	require.InDelta(t, before[http.MethodPost+"400"]+1,
		testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "400")), 0)
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}

func TestStatusRecorderDefaultsToOK(t *testing.T) {
	t.Parallel()

	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	_, err := rec.Write([]byte("ok"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.statusCode)

	rec.WriteHeader(http.StatusTeapot)
	require.Equal(t, http.StatusTeapot, rec.statusCode)
}
