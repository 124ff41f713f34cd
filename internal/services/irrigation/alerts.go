package irrigation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/dedup"
)

const (
	SensorMissingCooldown = 60 * time.Second
	RainingCooldown       = 30 * time.Second
)

// AlertWriter is the slice of the store the alert engine needs.
type AlertWriter interface {
	InsertAlert(ctx context.Context, device string, typ entities.AlertType, sev entities.Severity, msg string) (entities.Alert, error)
}

type tankLatch struct {
	latched bool
	last    *int
}

// AlertEngine turns reading conditions into stored alerts. Cooldowns and
// latches live in memory only and start empty after a restart.
type AlertEngine struct {
	store   AlertWriter
	logger  *zap.Logger
	metrics *Metrics

	missing *dedup.Deduper
	raining *dedup.Deduper

	mu    sync.Mutex
	tanks map[string]*tankLatch
}

func NewAlertEngine(w AlertWriter, logger *zap.Logger, m *Metrics, now func() time.Time) *AlertEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertEngine{
		store:   w,
		logger:  logger,
		metrics: m,
		missing: dedup.NewWithClock(SensorMissingCooldown, 0, now),
		raining: dedup.NewWithClock(RainingCooldown, 0, now),
		tanks:   make(map[string]*tankLatch),
	}
}

// Evaluate runs the three rules for one reading and returns the alerts that
// were stored. Each rule is independent: a failed insert only loses that alert.
func (e *AlertEngine) Evaluate(ctx context.Context, r messages.Reading) []entities.Alert {
	if strings.TrimSpace(r.Device) == "" {
		return nil
	}
	var out []entities.Alert

	if missing := r.MissingCritical(); len(missing) > 0 {
		if e.missing.ShouldProcess(dedup.Key(r.Device, string(entities.AlertSensorMissing))) {
			msg := "Missing critical sensor field(s): " + strings.Join(missing, "/")
			out = e.emit(ctx, out, r.Device, entities.AlertSensorMissing, entities.SeverityWarn, msg)
		}
	}

	if r.WaterTank != nil && e.tankCrossedLow(r.Device, *r.WaterTank) {
		msg := fmt.Sprintf("Water tank is low: %d%%", *r.WaterTank)
		out = e.emit(ctx, out, r.Device, entities.AlertTankLow, entities.SeverityWarn, msg)
	}

	if r.Raining != nil && *r.Raining {
		if e.raining.ShouldProcess(dedup.Key(r.Device, string(entities.AlertRaining))) {
			out = e.emit(ctx, out, r.Device, entities.AlertRaining, entities.SeverityInfo, "Rain detected")
		}
	}
	return out
}

// tankCrossedLow updates the latch for device and reports whether this
// level starts a new low-tank episode.
func (e *AlertEngine) tankCrossedLow(device string, level int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tanks[device]
	if !ok {
		t = &tankLatch{}
		e.tanks[device] = t
	}
	prev := t.last

	if level >= TankRecover {
		t.latched = false
	}
	fire := false
	if !t.latched && level <= TankLow {
		// unknown previous level counts as a transition
		fire = prev == nil || *prev > TankLow
		t.latched = true
	}
	lv := level
	t.last = &lv
	return fire
}

func (e *AlertEngine) emit(ctx context.Context, out []entities.Alert, device string, typ entities.AlertType, sev entities.Severity, msg string) []entities.Alert {
	a, err := e.store.InsertAlert(ctx, device, typ, sev, msg)
	if err != nil {
		e.logger.Warn("insert alert failed",
			zap.String("device", device), zap.String("type", string(typ)), zap.Error(err))
		e.metrics.storeError("insert_alert")
		return out
	}
	e.metrics.alert(string(typ))
	e.logger.Info("alert raised",
		zap.String("device", device), zap.String("type", string(typ)),
		zap.String("severity", string(sev)), zap.Int64("id", a.ID))
	return append(out, a)
}

// Latched reports the low-tank latch of device.
func (e *AlertEngine) Latched(device string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tanks[device]
	return ok && t.latched
}
