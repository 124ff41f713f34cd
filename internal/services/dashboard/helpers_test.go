package dashboard

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
)

var (
	t0      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	errBoom = errors.New("boom")
)

func alertAt(id int64, device string, sec int) entities.Alert {
	return entities.Alert{
		ID:        id,
		Device:    device,
		Type:      entities.AlertRaining,
		Severity:  entities.SeverityInfo,
		Message:   "Rain detected",
		CreatedAt: t0.Add(time.Duration(sec) * time.Second),
	}
}

// fakeAlerts answers GetAlerts like the store: created strictly after since,
// oldest first, up to limit.
type fakeAlerts struct {
	mu     sync.Mutex
	alerts []entities.Alert
	err    error
	sinces []time.Time
}

func (f *fakeAlerts) add(as ...entities.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, as...)
}

func (f *fakeAlerts) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeAlerts) calls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.sinces...)
}

func (f *fakeAlerts) GetAlerts(_ context.Context, device string, since time.Time, limit int) ([]entities.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinces = append(f.sinces, since)
	if f.err != nil {
		return nil, f.err
	}
	var out []entities.Alert
	for _, a := range f.alerts {
		if a.Device == device && a.CreatedAt.After(since) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type recordingSub struct {
	id string

	mu     sync.Mutex
	got    []int64
	fail   error
	closed bool
}

func (s *recordingSub) ID() string { return s.id }

func (s *recordingSub) Send(a entities.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.got = append(s.got, a.ID)
	return nil
}

func (s *recordingSub) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *recordingSub) ids() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.got...)
}

func (s *recordingSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// gatedAlerts parks the first call made after arm until release is closed.
// The answer is computed before parking, as a slow network reply would be.
type gatedAlerts struct {
	*fakeAlerts
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedAlerts() *gatedAlerts {
	return &gatedAlerts{
		fakeAlerts: &fakeAlerts{},
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (g *gatedAlerts) arm() { g.armed.Store(true) }

func (g *gatedAlerts) GetAlerts(ctx context.Context, device string, since time.Time, limit int) ([]entities.Alert, error) {
	out, err := g.fakeAlerts.GetAlerts(ctx, device, since, limit)
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return out, err
}
