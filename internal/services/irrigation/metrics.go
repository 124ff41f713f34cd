package irrigation

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics of the core. A nil *Metrics is valid and records nothing.
type Metrics struct {
	readings     prometheus.Counter
	decisions    *prometheus.CounterVec
	alerts       *prometheus.CounterVec
	storeErrors  *prometheus.CounterVec
	controlCalls *prometheus.CounterVec
	eventDrops   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		readings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "core",
			Name:      "readings_total",
			Help:      "Readings pushed to the core",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "core",
			Name:      "decisions_total",
			Help:      "Pump decisions by mode and command",
		}, []string{"mode", "pump_cmd"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "core",
			Name:      "alerts_total",
			Help:      "Alerts stored by type",
		}, []string{"type"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "core",
			Name:      "store_errors_total",
			Help:      "Swallowed persistence failures by operation",
		}, []string{"op"}),
		controlCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "core",
			Name:      "control_changes_total",
			Help:      "Operator control changes by type",
		}, []string{"type"}),
		eventDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "eventlog",
			Name:      "dropped_total",
			Help:      "Event log points dropped (queue full or breaker open)",
		}),
	}
	reg.MustRegister(m.readings, m.decisions, m.alerts, m.storeErrors, m.controlCalls, m.eventDrops)
	return m
}

func (m *Metrics) reading() {
	if m != nil {
		m.readings.Inc()
	}
}

func (m *Metrics) decision(mode string, cmd bool) {
	if m != nil {
		m.decisions.WithLabelValues(mode, strconv.FormatBool(cmd)).Inc()
	}
}

func (m *Metrics) alert(typ string) {
	if m != nil {
		m.alerts.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) storeError(op string) {
	if m != nil {
		m.storeErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) control(typ string) {
	if m != nil {
		m.controlCalls.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) eventDropped() {
	if m != nil {
		m.eventDrops.Inc()
	}
}
