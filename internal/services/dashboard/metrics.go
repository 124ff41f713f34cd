package dashboard

import "github.com/prometheus/client_golang/prometheus"

// Metrics of the dashboard API. A nil *Metrics records nothing.
type Metrics struct {
	subs       prometheus.Gauge
	deliveries prometheus.Counter
	drops      prometheus.Counter
	pollErrors prometheus.Counter
	reconnects prometheus.Counter
	retries    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: "irrigation", Subsystem: "dashboard", Name: name, Help: help}
	}
	m := &Metrics{
		subs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "irrigation",
			Subsystem: "dashboard",
			Name:      "alert_subscribers",
			Help:      "Live alert stream subscribers",
		}),
		deliveries: prometheus.NewCounter(opts("alert_deliveries_total", "Alerts delivered to subscribers")),
		drops:      prometheus.NewCounter(opts("alert_subscriber_drops_total", "Subscribers dropped after a failed send")),
		pollErrors: prometheus.NewCounter(opts("alert_poll_errors_total", "Failed alert polls")),
		reconnects: prometheus.NewCounter(opts("rpc_reconnects_total", "Reconnects to the core")),
		retries:    prometheus.NewCounter(opts("rpc_retries_total", "Calls retried after a reconnect")),
	}
	reg.MustRegister(m.subs, m.deliveries, m.drops, m.pollErrors, m.reconnects, m.retries)
	return m
}

func (m *Metrics) subscribers(n int) {
	if m != nil {
		m.subs.Set(float64(n))
	}
}

func (m *Metrics) delivered() {
	if m != nil {
		m.deliveries.Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.drops.Inc()
	}
}

func (m *Metrics) pollError() {
	if m != nil {
		m.pollErrors.Inc()
	}
}

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
