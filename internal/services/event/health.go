package event

import (
	"encoding/json"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type healthHandler struct {
	mqtt   mqtt.Client
	writer *Writer
}

func NewHealthHandler(m mqtt.Client, w *Writer) http.Handler {
	return &healthHandler{mqtt: m, writer: w}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status          string  `json:"status"`
		MQTTConnected   bool    `json:"mqtt_connected"`
		LastWriteErrorS float64 `json:"last_write_error_age_sec"`
		PumpCommands    int64   `json:"pump_commands"`
	}
	st := status{
		MQTTConnected:   h.mqtt != nil && h.mqtt.IsConnectionOpen(),
		LastWriteErrorS: h.writer.LastErrorAge().Seconds(),
		PumpCommands:    h.writer.Count(EventPumpCommand),
	}

	// ok se mqtt ok e nessun errore recente di scrittura
	writesOK := h.writer.LastErrorAge() > 30*time.Second
	switch {
	case st.MQTTConnected && writesOK:
		st.Status = "ok"
	case st.MQTTConnected || writesOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

// Handler /readyz: 200 solo se tutte le dipendenze sono ok.
type readyHandler struct {
	mqtt     mqtt.Client
	writer   *Writer
	minError time.Duration
}

func NewReadyHandler(m mqtt.Client, w *Writer, minOkErrorAge time.Duration) http.Handler {
	return &readyHandler{mqtt: m, writer: w, minError: minOkErrorAge}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	ready := h.mqtt != nil && h.mqtt.IsConnectionOpen() && h.writer.LastErrorAge() > h.minError
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	type resp struct {
		Ready bool `json:"ready"`
	}
	_ = json.NewEncoder(w).Encode(resp{Ready: ready})
}
