package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func serve(t *testing.T, ready ReadinessCheck, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	newMux(ready, zap.NewNop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzAlwaysOK(t *testing.T) {
	rec := serve(t, func() error { return errors.New("stage model not loaded") }, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReadyzReflectsBackend(t *testing.T) {
	rec := serve(t, func() error { return nil }, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, func() error { return errors.New("stage model not loaded") }, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "stage model not loaded")
}

func TestReadyzWithoutCheck(t *testing.T) {
	assert.Equal(t, http.StatusOK, serve(t, nil, "/readyz").Code)
}

func TestMetricsEndpointExposesCollectors(t *testing.T) {
	ModelLoaded.WithLabelValues("stage").Set(1)
	rec := serve(t, nil, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `embryo_model_loaded{model="stage"} 1`)
}
