package irrigation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/store"
)

var ErrInvalidArgument = errors.New("invalid argument")

const (
	DefaultSummaryAlertLimit = 10
	summaryCountLimit        = 1000
	summaryWorkers           = 8
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

type Option func(*Service)

func WithEventLog(l EventLog) Option {
	return func(s *Service) {
		if l != nil {
			s.events = l
		}
	}
}

func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service is the single entry point of the core: telemetry ingest, control
// and the read queries used by the gateway and the dashboard.
type Service struct {
	store   store.Store
	logger  *zap.Logger
	metrics *Metrics
	events  EventLog
	now     func() time.Time

	states *StateCache
	alerts *AlertEngine
}

func NewService(s store.Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &Service{
		store:  s,
		logger: logger,
		events: NopEventLog{},
		now:    time.Now,
	}
	for _, o := range opts {
		o(svc)
	}
	svc.states = NewStateCache(s, logger.Named("state"), svc.metrics)
	svc.alerts = NewAlertEngine(s, logger.Named("alerts"), svc.metrics, svc.now)
	return svc
}

func (s *Service) States() *StateCache  { return s.states }
func (s *Service) Alerts() *AlertEngine { return s.alerts }

// PushReading ingests one sample and returns the pump command for it.
func (s *Service) PushReading(ctx context.Context, r messages.Reading) (messages.PumpDecision, error) {
	r.Device = strings.TrimSpace(r.Device)
	r.CreatedAt = s.now().UTC()
	s.metrics.reading()

	if r.Device == "" {
		// fail closed, nothing to persist against
		d := messages.PumpDecision{
			Mode:      entities.ModeAuto,
			Reason:    "AUTO mode -> decided pump_cmd=false (missing device id)",
			DecidedAt: r.CreatedAt,
		}
		s.logger.Warn("reading without device id")
		return d, nil
	}

	if err := s.store.InsertReading(ctx, r); err != nil {
		s.logger.Warn("insert reading failed", zap.String("device", r.Device), zap.Error(err))
		s.metrics.storeError("insert_reading")
	}
	if err := s.store.TouchLastSeen(ctx, r.Device); err != nil {
		s.logger.Warn("touch last seen failed", zap.String("device", r.Device), zap.Error(err))
		s.metrics.storeError("touch_last_seen")
	}
	s.events.Reading(r)

	for _, a := range s.alerts.Evaluate(ctx, r) {
		s.events.Alert(a)
	}

	var d messages.PumpDecision
	s.states.Update(ctx, r.Device, func(st *entities.ControlState) bool {
		var next entities.ControlState
		d, next = Decide(r, *st)
		*st = next
		// AUTO salva sempre, anche se il comando non cambia: riallinea lo
		// store dopo un upsert fallito
		return next.Mode == entities.ModeAuto
	})
	d.DecidedAt = r.CreatedAt

	if err := s.store.InsertDecision(ctx, d); err != nil {
		s.logger.Warn("insert decision failed", zap.String("device", r.Device), zap.Error(err))
		s.metrics.storeError("insert_decision")
	}
	s.events.Decision(d)
	s.metrics.decision(string(d.Mode), d.PumpCmd)
	s.logger.Debug("decision",
		zap.String("device", d.Device), zap.Bool("pump_cmd", d.PumpCmd), zap.String("reason", d.Reason))
	return d, nil
}

func (s *Service) GetMode(ctx context.Context, device string) (entities.Mode, error) {
	device, err := requireDevice(device)
	if err != nil {
		return "", err
	}
	return s.states.Get(ctx, device).Mode, nil
}

func (s *Service) SetMode(ctx context.Context, device, mode string) (entities.Mode, error) {
	device, err := requireDevice(device)
	if err != nil {
		return "", err
	}
	m, err := entities.ParseMode(mode)
	if err != nil {
		return "", invalid("mode %q", mode)
	}
	st := s.states.Update(ctx, device, func(st *entities.ControlState) bool {
		st.Mode = m
		return true
	})
	s.control(ctx, entities.ControlEvent{Device: device, Type: entities.ControlSetMode, Mode: &m})
	return st.Mode, nil
}

func (s *Service) GetManualPump(ctx context.Context, device string) (bool, error) {
	device, err := requireDevice(device)
	if err != nil {
		return false, err
	}
	return s.states.Get(ctx, device).ManualPumpCmd, nil
}

func (s *Service) SetManualPump(ctx context.Context, device string, on bool) (bool, error) {
	device, err := requireDevice(device)
	if err != nil {
		return false, err
	}
	st := s.states.Update(ctx, device, func(st *entities.ControlState) bool {
		st.ManualPumpCmd = on
		return true
	})
	s.control(ctx, entities.ControlEvent{Device: device, Type: entities.ControlSetManualPump, ManualPump: &on})
	return st.ManualPumpCmd, nil
}

func (s *Service) control(ctx context.Context, ev entities.ControlEvent) {
	if ev.Source == "" {
		ev.Source = entities.DefaultControlSource
	}
	if err := s.store.InsertControlEvent(ctx, ev); err != nil {
		s.logger.Warn("insert control event failed", zap.String("device", ev.Device), zap.Error(err))
		s.metrics.storeError("insert_control_event")
	}
	s.events.Control(ev)
	s.metrics.control(string(ev.Type))
	s.logger.Info("control change", zap.String("device", ev.Device), zap.String("type", string(ev.Type)))
}

func (s *Service) GetLatest(ctx context.Context, device string) (*messages.Reading, error) {
	device, err := requireDevice(device)
	if err != nil {
		return nil, err
	}
	r, err := s.store.LatestReading(ctx, device)
	if err != nil {
		return nil, fmt.Errorf("latest reading: %w", err)
	}
	return r, nil
}

func (s *Service) GetHistory(ctx context.Context, device string, from, to time.Time, limit int) ([]messages.Reading, error) {
	device, err := requireDevice(device)
	if err != nil {
		return nil, err
	}
	if from.IsZero() || to.IsZero() {
		return nil, invalid("from and to are required")
	}
	if from.After(to) {
		return nil, invalid("from after to")
	}
	rs, err := s.store.History(ctx, device, from.UTC(), to.UTC(), store.ClampHistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return rs, nil
}

// GetAlerts returns alerts created strictly after since, oldest first.
func (s *Service) GetAlerts(ctx context.Context, device string, since time.Time, limit int) ([]entities.Alert, error) {
	device, err := requireDevice(device)
	if err != nil {
		return nil, err
	}
	as, err := s.store.GetAlerts(ctx, device, since.UTC(), store.ClampAlertLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("alerts: %w", err)
	}
	return as, nil
}

func (s *Service) ListDevices(ctx context.Context) ([]string, error) {
	ds, err := s.store.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return ds, nil
}

func (s *Service) GetStatus(ctx context.Context, device string, offlineSec int) (entities.DeviceStatus, error) {
	device, err := requireDevice(device)
	if err != nil {
		return entities.DeviceStatus{}, err
	}
	st, err := s.store.GetStatus(ctx, device, store.OfflineThreshold(offlineSec))
	if errors.Is(err, store.ErrNotFound) {
		return entities.UnknownStatus(device), nil
	}
	if err != nil {
		return entities.DeviceStatus{}, fmt.Errorf("status: %w", err)
	}
	return st, nil
}

func (s *Service) ListStatus(ctx context.Context, offlineSec int) ([]entities.DeviceStatus, error) {
	sts, err := s.store.ListStatus(ctx, store.OfflineThreshold(offlineSec))
	if err != nil {
		return nil, fmt.Errorf("list status: %w", err)
	}
	return sts, nil
}

func (s *Service) GetSummary(ctx context.Context, device string, offlineSec int, since time.Time, alertLimit int) (messages.DeviceSummary, error) {
	device, err := requireDevice(device)
	if err != nil {
		return messages.DeviceSummary{}, err
	}
	if alertLimit <= 0 {
		alertLimit = DefaultSummaryAlertLimit
	}
	latest, err := s.GetLatest(ctx, device)
	if err != nil {
		return messages.DeviceSummary{}, err
	}
	st, err := s.GetStatus(ctx, device, offlineSec)
	if err != nil {
		return messages.DeviceSummary{}, err
	}
	alerts, err := s.GetAlerts(ctx, device, since, alertLimit)
	if err != nil {
		return messages.DeviceSummary{}, err
	}
	cs := s.states.Get(ctx, device)
	return messages.DeviceSummary{
		Device:     device,
		Latest:     latest,
		Mode:       cs.Mode,
		ManualPump: cs.ManualPumpCmd,
		Status:     st,
		Alerts:     alerts,
	}, nil
}

// ListSummaries builds one row per known device, in ListStatus order.
func (s *Service) ListSummaries(ctx context.Context, offlineSec int, since time.Time) ([]messages.SummaryRow, error) {
	sts, err := s.ListStatus(ctx, offlineSec)
	if err != nil {
		return nil, err
	}
	rows := make([]messages.SummaryRow, len(sts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryWorkers)
	for i, st := range sts {
		g.Go(func() error {
			latest, err := s.store.LatestReading(gctx, st.Device)
			if err != nil {
				return fmt.Errorf("latest reading %s: %w", st.Device, err)
			}
			alerts, err := s.store.GetAlerts(gctx, st.Device, since.UTC(), summaryCountLimit)
			if err != nil {
				return fmt.Errorf("alerts %s: %w", st.Device, err)
			}
			rows[i] = messages.NewSummaryRow(st, latest, s.states.Get(gctx, st.Device), len(alerts))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

func requireDevice(device string) (string, error) {
	device = strings.TrimSpace(device)
	if device == "" {
		return "", invalid("device is required")
	}
	return device, nil
}
