// Package memory is an in-process Store used by tests and by the core when
// no database is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/store"
)

type device struct {
	lastSeen *time.Time
	state    *entities.ControlState
}

type Store struct {
	mu        sync.RWMutex
	now       func() time.Time
	devices   map[string]*device
	readings  map[string][]messages.Reading
	alerts    map[string][]entities.Alert
	nextAlert int64
	decisions []messages.PumpDecision
	controls  []entities.ControlEvent
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return NewWithClock(time.Now)
}

func NewWithClock(now func() time.Time) *Store {
	return &Store{
		now:      now,
		devices:  make(map[string]*device),
		readings: make(map[string][]messages.Reading),
		alerts:   make(map[string][]entities.Alert),
	}
}

func (m *Store) ensure(id string) *device {
	d, ok := m.devices[id]
	if !ok {
		d = &device{}
		m.devices[id] = d
	}
	return d
}

func (m *Store) EnsureDevice(_ context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(id)
	return nil
}

func (m *Store) TouchLastSeen(_ context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	m.ensure(id).lastSeen = &now
	return nil
}

func (m *Store) LoadOrCreateState(_ context.Context, id string) (entities.ControlState, error) {
	if strings.TrimSpace(id) == "" {
		return entities.DefaultControlState(), nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.ensure(id)
	if d.state == nil {
		st := entities.DefaultControlState()
		d.state = &st
	}
	return *d.state, nil
}

func (m *Store) UpsertState(_ context.Context, id string, st entities.ControlState) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	if !st.Mode.Valid() {
		st.Mode = entities.ModeAuto
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(id).state = &st
	return nil
}

func (m *Store) InsertReading(_ context.Context, r messages.Reading) error {
	if strings.TrimSpace(r.Device) == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(r.Device)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now().UTC()
	}
	m.readings[r.Device] = append(m.readings[r.Device], r)
	return nil
}

func (m *Store) LatestReading(_ context.Context, id string) (*messages.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs := m.readings[id]
	if len(rs) == 0 {
		return nil, nil
	}
	latest := rs[0]
	for _, r := range rs[1:] {
		if !r.CreatedAt.Before(latest.CreatedAt) {
			latest = r
		}
	}
	return &latest, nil
}

func (m *Store) History(_ context.Context, id string, from, to time.Time, limit int) ([]messages.Reading, error) {
	limit = store.ClampHistoryLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]messages.Reading, 0)
	for _, r := range m.readings[id] {
		if r.CreatedAt.Before(from) || r.CreatedAt.After(to) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Store) InsertAlert(_ context.Context, id string, typ entities.AlertType, sev entities.Severity, msg string) (entities.Alert, error) {
	if sev == "" {
		sev = entities.SeverityInfo
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(id)
	m.nextAlert++
	a := entities.Alert{
		ID:        m.nextAlert,
		Device:    id,
		Type:      typ,
		Severity:  sev,
		Message:   msg,
		CreatedAt: m.now().UTC(),
	}
	m.alerts[id] = append(m.alerts[id], a)
	return a, nil
}

func (m *Store) GetAlerts(_ context.Context, id string, since time.Time, limit int) ([]entities.Alert, error) {
	limit = store.ClampAlertLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]entities.Alert, 0)
	for _, a := range m.alerts[id] {
		if a.CreatedAt.After(since) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Store) ListDevices(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.devices))
	for id := range m.devices {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Store) GetStatus(_ context.Context, id string, offlineSec int) (entities.DeviceStatus, error) {
	offlineSec = store.OfflineThreshold(offlineSec)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked(id, offlineSec), nil
}

func (m *Store) ListStatus(_ context.Context, offlineSec int) ([]entities.DeviceStatus, error) {
	offlineSec = store.OfflineThreshold(offlineSec)
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]entities.DeviceStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.statusLocked(id, offlineSec))
	}
	return out, nil
}

func (m *Store) statusLocked(id string, offlineSec int) entities.DeviceStatus {
	d, ok := m.devices[id]
	if !ok || d.lastSeen == nil {
		return entities.UnknownStatus(id)
	}
	elapsed := int64(m.now().Sub(*d.lastSeen) / time.Second)
	return entities.StatusFrom(id, *d.lastSeen, elapsed, offlineSec)
}

func (m *Store) InsertDecision(_ context.Context, d messages.PumpDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, d)
	return nil
}

func (m *Store) InsertControlEvent(_ context.Context, ev entities.ControlEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controls = append(m.controls, ev)
	return nil
}

// Decisions returns a copy of the decision log.
func (m *Store) Decisions() []messages.PumpDecision {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]messages.PumpDecision(nil), m.decisions...)
}

// ControlEvents returns a copy of the control audit log.
func (m *Store) ControlEvents() []entities.ControlEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]entities.ControlEvent(nil), m.controls...)
}

func (m *Store) Ping(context.Context) error { return nil }
