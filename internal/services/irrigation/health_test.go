package irrigation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type downStore struct{ *flakyStore }

func (downStore) Ping(context.Context) error { return errBoom }

type fixedAge time.Duration

func (a fixedAge) LastErrorAge() time.Duration { return time.Duration(a) }

func TestOpsMux(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := newFlakyStore(newClock())
	svc := NewService(s, nil, WithMetrics(m))
	_, err := svc.PushReading(context.Background(), reading("d1", 20, 80, false))
	require.NoError(t, err)

	mux := NewOpsMux(s, fixedAge(time.Hour), svc.States(), reg)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["cached_devices"])

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "irrigation_core_readings_total 1")
	assert.Contains(t, rec.Body.String(), `irrigation_core_decisions_total{mode="AUTO",pump_cmd="true"} 1`)
}

func TestHealth_Degraded(t *testing.T) {
	s := newFlakyStore(newClock())

	rec := httptest.NewRecorder()
	NewHealthHandler(s, fixedAge(time.Second), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)

	rec = httptest.NewRecorder()
	NewReadyHandler(downStore{s}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready":false`)
}
