package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
)

const maxBody = 64 << 10

type readingResponse struct {
	Status  string `json:"status"`
	PumpCmd bool   `json:"pump_cmd"`
}

// Router exposes POST /api/readings plus health and metrics. ready reports
// whether the MQTT side is up; nil means HTTP only.
func (g *Gateway) Router(gatherer prometheus.Gatherer, ready func() bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)

	r.Post("/api/readings", g.handleReading)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("mqtt disconnected"))
			return
		}
		_, _ = w.Write([]byte("ready"))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (g *Gateway) handleReading(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot read body"})
		return
	}
	var rd messages.Reading
	if err := json.Unmarshal(body, &rd); err != nil {
		g.metrics.rejected()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid reading json"})
		return
	}

	cmd := g.Ingest(r.Context(), "http", rd)
	writeJSON(w, http.StatusOK, readingResponse{Status: "ok", PumpCmd: cmd.PumpCmd})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
