package irrigation

import (
	"context"
	"errors"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
)

// EventLog receives a copy of everything the core does, for dashboards
// outside the relational store. Implementations must not block.
type EventLog interface {
	Reading(messages.Reading)
	Decision(messages.PumpDecision)
	Alert(entities.Alert)
	Control(entities.ControlEvent)
}

type NopEventLog struct{}

func (NopEventLog) Reading(messages.Reading)       {}
func (NopEventLog) Decision(messages.PumpDecision) {}
func (NopEventLog) Alert(entities.Alert)           {}
func (NopEventLog) Control(entities.ControlEvent)  {}

// PointWriter is satisfied by api.WriteAPIBlocking.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type EventLogConfig struct {
	QueueSize    int
	WriteTimeout time.Duration
	// breaker
	MaxFailures  int
	OpenFor      time.Duration
	FailInterval time.Duration
	Source       string
}

// InfluxEventLog queues points and writes them from a single worker through
// a circuit breaker, so a slow or dead InfluxDB never stalls ingestion.
type InfluxEventLog struct {
	w       PointWriter
	cb      *gobreaker.CircuitBreaker
	cfg     EventLogConfig
	logger  *zap.Logger
	metrics *Metrics
	queue   chan *write.Point

	mu      sync.RWMutex
	lastErr time.Time
	written int64
}

func NewInfluxEventLog(w PointWriter, cfg EventLogConfig, logger *zap.Logger, m *Metrics) *InfluxEventLog {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 3 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 15 * time.Second
	}
	if cfg.Source == "" {
		cfg.Source = "irrigation-core"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &InfluxEventLog{
		w:       w,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		queue:   make(chan *write.Point, cfg.QueueSize),
		lastErr: time.Now().Add(-24 * time.Hour),
	}
	l.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "influx-eventlog",
		Interval: cfg.FailInterval,
		Timeout:  cfg.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(cfg.MaxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("breaker state change", zap.String("breaker", name),
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return l
}

// Run drains the queue until ctx is done.
func (l *InfluxEventLog) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-l.queue:
			l.write(ctx, p)
		}
	}
}

func (l *InfluxEventLog) write(ctx context.Context, p *write.Point) {
	_, err := l.cb.Execute(func() (any, error) {
		wctx, cancel := context.WithTimeout(ctx, l.cfg.WriteTimeout)
		defer cancel()
		return nil, l.w.WritePoint(wctx, p)
	})
	if err == nil {
		l.mu.Lock()
		l.written++
		l.mu.Unlock()
		return
	}
	l.metrics.eventDropped()
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return
	}
	l.mu.Lock()
	l.lastErr = time.Now()
	l.mu.Unlock()
	l.logger.Warn("influx write error", zap.String("measurement", p.Name()), zap.Error(err))
}

func (l *InfluxEventLog) enqueue(p *write.Point) {
	select {
	case l.queue <- p:
	default:
		l.metrics.eventDropped()
	}
}

// LastErrorAge is how long ago the last write failed.
func (l *InfluxEventLog) LastErrorAge() time.Duration {
	if l == nil {
		return 99999 * time.Hour
	}
	l.mu.RLock()
	t := l.lastErr
	l.mu.RUnlock()
	return time.Since(t)
}

func (l *InfluxEventLog) Written() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.written
}

func (l *InfluxEventLog) BreakerState() gobreaker.State { return l.cb.State() }

func (l *InfluxEventLog) Reading(r messages.Reading) {
	l.enqueue(ReadingToPoint(r))
}

func (l *InfluxEventLog) Decision(d messages.PumpDecision) {
	l.enqueue(l.eventPoint("PUMP_DECISION", d.Device, string(entities.SeverityInfo), d.DecidedAt, map[string]any{
		"pump_cmd": d.PumpCmd,
		"mode":     string(d.Mode),
		"reason":   d.Reason,
	}))
}

func (l *InfluxEventLog) Alert(a entities.Alert) {
	l.enqueue(l.eventPoint("ALERT", a.Device, string(a.Severity), a.CreatedAt, map[string]any{
		"alert_id":   a.ID,
		"alert_type": string(a.Type),
		"message":    a.Message,
	}))
}

func (l *InfluxEventLog) Control(ev entities.ControlEvent) {
	fields := map[string]any{"control_type": string(ev.Type), "source": ev.Source}
	if ev.Mode != nil {
		fields["mode"] = string(*ev.Mode)
	}
	if ev.ManualPump != nil {
		fields["manual_pump"] = *ev.ManualPump
	}
	l.enqueue(l.eventPoint("CONTROL", ev.Device, string(entities.SeverityInfo), time.Time{}, fields))
}

func (l *InfluxEventLog) eventPoint(eventType, device, severity string, ts time.Time, fields map[string]any) *write.Point {
	return EventToPoint(eventType, l.cfg.Source, device, severity, ts, fields)
}

// EventToPoint builds a "system_event" point.
func EventToPoint(eventType, source, device, severity string, ts time.Time, fields map[string]any) *write.Point {
	tags := map[string]string{
		"event_type":     eventType,
		"source_service": source,
		"severity":       severity,
	}
	if device != "" {
		tags["device"] = device
	}
	f := map[string]any{}
	for k, v := range fields {
		f[k] = v
	}
	// at least one field
	if _, ok := f["count"]; !ok {
		f["count"] = int64(1)
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return influxdb2.NewPoint("system_event", tags, f, ts)
}

// ReadingToPoint builds a "reading" point with only the reported sensors.
func ReadingToPoint(r messages.Reading) *write.Point {
	f := map[string]any{"count": int64(1)}
	if r.Soil != nil {
		f["soil"] = int64(*r.Soil)
	}
	if r.WaterTank != nil {
		f["water_tank"] = int64(*r.WaterTank)
	}
	if r.Raining != nil {
		f["raining"] = *r.Raining
	}
	if r.Pump != nil {
		f["pump"] = *r.Pump
	}
	if r.TempC != nil {
		f["temp_c"] = *r.TempC
	}
	if r.Humidity != nil {
		f["humidity"] = *r.Humidity
	}
	ts := r.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return influxdb2.NewPoint("reading", map[string]string{"device": r.Device}, f, ts)
}
