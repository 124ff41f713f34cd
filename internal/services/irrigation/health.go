package irrigation

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/store"
)

// ErrorAger reports how long ago a background writer last failed.
type ErrorAger interface {
	LastErrorAge() time.Duration
}

type healthHandler struct {
	store  store.Store
	events ErrorAger
	states *StateCache
}

func NewHealthHandler(s store.Store, events ErrorAger, states *StateCache) http.Handler {
	return &healthHandler{store: s, events: events, states: states}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type status struct {
		Status          string  `json:"status"`
		StoreOK         bool    `json:"store_ok"`
		CachedDevices   int     `json:"cached_devices"`
		LastWriteErrorS float64 `json:"last_event_write_error_age_sec,omitempty"`
	}
	st := status{StoreOK: pingStore(r.Context(), h.store)}
	if h.states != nil {
		st.CachedDevices = h.states.Len()
	}
	eventsOK := true
	if h.events != nil {
		age := h.events.LastErrorAge()
		st.LastWriteErrorS = age.Seconds()
		eventsOK = age > 30*time.Second
	}

	// il core resta "degraded" se solo l'event log fallisce
	switch {
	case st.StoreOK && eventsOK:
		st.Status = "ok"
	case st.StoreOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

// Handler /readyz: 200 solo se lo store risponde.
type readyHandler struct {
	store store.Store
}

func NewReadyHandler(s store.Store) http.Handler {
	return &readyHandler{store: s}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ready := pingStore(r.Context(), h.store)
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	type resp struct {
		Ready bool `json:"ready"`
	}
	_ = json.NewEncoder(w).Encode(resp{Ready: ready})
}

func pingStore(ctx context.Context, s store.Store) bool {
	if s == nil {
		return false
	}
	p, ok := s.(store.Pinger)
	if !ok {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.Ping(ctx) == nil
}

// NewOpsMux serves /healthz, /readyz and /metrics.
func NewOpsMux(s store.Store, events ErrorAger, states *StateCache, g prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/healthz", NewHealthHandler(s, events, states))
	mux.Handle("/readyz", NewReadyHandler(s))
	if g != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}
	return mux
}
