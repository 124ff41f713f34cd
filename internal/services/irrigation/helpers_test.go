package irrigation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/store/memory"
)

var errBoom = errors.New("boom")

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// flakyStore wraps the memory store and can fail selected operations.
type flakyStore struct {
	*memory.Store

	loads       atomic.Int32
	upserts     atomic.Int32
	loadDelay   time.Duration
	failLoad    bool
	failUpsert  bool
	failAlert   map[entities.AlertType]bool
	failReading bool
}

func newFlakyStore(c *clock) *flakyStore {
	return &flakyStore{Store: memory.NewWithClock(c.now), failAlert: map[entities.AlertType]bool{}}
}

func (f *flakyStore) LoadOrCreateState(ctx context.Context, id string) (entities.ControlState, error) {
	f.loads.Add(1)
	if f.loadDelay > 0 {
		time.Sleep(f.loadDelay)
	}
	if f.failLoad {
		return entities.ControlState{}, errBoom
	}
	return f.Store.LoadOrCreateState(ctx, id)
}

func (f *flakyStore) UpsertState(ctx context.Context, id string, st entities.ControlState) error {
	f.upserts.Add(1)
	if f.failUpsert {
		return errBoom
	}
	return f.Store.UpsertState(ctx, id, st)
}

func (f *flakyStore) InsertAlert(ctx context.Context, id string, typ entities.AlertType, sev entities.Severity, msg string) (entities.Alert, error) {
	if f.failAlert[typ] {
		return entities.Alert{}, errBoom
	}
	return f.Store.InsertAlert(ctx, id, typ, sev, msg)
}

func (f *flakyStore) InsertReading(ctx context.Context, r messages.Reading) error {
	if f.failReading {
		return errBoom
	}
	return f.Store.InsertReading(ctx, r)
}

func reading(device string, soil, tank int, raining bool) messages.Reading {
	return messages.Reading{
		Device:    device,
		Soil:      messages.IntPtr(soil),
		WaterTank: messages.IntPtr(tank),
		Raining:   messages.BoolPtr(raining),
	}
}

// recordingEvents collects what the service sends to the event log.
type recordingEvents struct {
	mu        sync.Mutex
	readings  int
	decisions []messages.PumpDecision
	alerts    []entities.Alert
	controls  []entities.ControlEvent
}

func (r *recordingEvents) Reading(messages.Reading) {
	r.mu.Lock()
	r.readings++
	r.mu.Unlock()
}

func (r *recordingEvents) Decision(d messages.PumpDecision) {
	r.mu.Lock()
	r.decisions = append(r.decisions, d)
	r.mu.Unlock()
}

func (r *recordingEvents) Alert(a entities.Alert) {
	r.mu.Lock()
	r.alerts = append(r.alerts, a)
	r.mu.Unlock()
}

func (r *recordingEvents) Control(ev entities.ControlEvent) {
	r.mu.Lock()
	r.controls = append(r.controls, ev)
	r.mu.Unlock()
}
