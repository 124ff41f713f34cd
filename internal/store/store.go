// Package store defines the durable store gateway used by the irrigation core.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
)

var ErrNotFound = errors.New("not found")

const (
	DefaultHistoryLimit = 200
	MaxHistoryLimit     = 5000
	DefaultAlertLimit   = 200
	MaxAlertLimit       = 2000
	DefaultOfflineSec   = 20
)

// Store is the persistence contract of the core. Alerts and readings are
// returned in ascending creation order.
type Store interface {
	EnsureDevice(ctx context.Context, device string) error
	TouchLastSeen(ctx context.Context, device string) error

	LoadOrCreateState(ctx context.Context, device string) (entities.ControlState, error)
	UpsertState(ctx context.Context, device string, st entities.ControlState) error

	InsertReading(ctx context.Context, r messages.Reading) error
	LatestReading(ctx context.Context, device string) (*messages.Reading, error)
	History(ctx context.Context, device string, from, to time.Time, limit int) ([]messages.Reading, error)

	InsertAlert(ctx context.Context, device string, typ entities.AlertType, sev entities.Severity, msg string) (entities.Alert, error)
	GetAlerts(ctx context.Context, device string, since time.Time, limit int) ([]entities.Alert, error)

	ListDevices(ctx context.Context) ([]string, error)
	GetStatus(ctx context.Context, device string, offlineSec int) (entities.DeviceStatus, error)
	ListStatus(ctx context.Context, offlineSec int) ([]entities.DeviceStatus, error)

	InsertDecision(ctx context.Context, d messages.PumpDecision) error
	InsertControlEvent(ctx context.Context, ev entities.ControlEvent) error
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

func ClampHistoryLimit(n int) int { return clamp(n, DefaultHistoryLimit, MaxHistoryLimit) }
func ClampAlertLimit(n int) int   { return clamp(n, DefaultAlertLimit, MaxAlertLimit) }

func OfflineThreshold(sec int) int {
	if sec <= 0 {
		return DefaultOfflineSec
	}
	return sec
}

func clamp(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
