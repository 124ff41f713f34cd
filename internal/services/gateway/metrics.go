package gateway

import "github.com/prometheus/client_golang/prometheus"

// Metrics of the gateway. A nil *Metrics records nothing.
type Metrics struct {
	readings   *prometheus.CounterVec
	failSafes  prometheus.Counter
	rejects    prometheus.Counter
	reconnects prometheus.Counter
	retries    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "gateway",
			Name:      "readings_total",
			Help:      "Readings received by source",
		}, []string{"source"}),
		failSafes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "gateway",
			Name:      "failsafe_total",
			Help:      "Readings answered with pump off because the core failed",
		}),
		rejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "gateway",
			Name:      "rejected_total",
			Help:      "Payloads that could not be decoded",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "gateway",
			Name:      "rpc_reconnects_total",
			Help:      "Reconnects to the core",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "gateway",
			Name:      "rpc_retries_total",
			Help:      "Calls retried after a reconnect",
		}),
	}
	reg.MustRegister(m.readings, m.failSafes, m.rejects, m.reconnects, m.retries)
	return m
}

func (m *Metrics) reading(source string) {
	if m != nil {
		m.readings.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) failSafe() {
	if m != nil {
		m.failSafes.Inc()
	}
}

func (m *Metrics) rejected() {
	if m != nil {
		m.rejects.Inc()
	}
}

// OnReconnect and OnRetry plug into the RPC client hooks.
func (m *Metrics) OnReconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) OnRetry() {
	if m != nil {
		m.retries.Inc()
	}
}
