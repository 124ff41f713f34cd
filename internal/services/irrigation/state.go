package irrigation

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/store"
)

type stateEntry struct {
	mu     sync.Mutex
	loaded bool
	st     entities.ControlState
}

// StateCache owns one ControlState per device. All mutations go through
// Update, which holds the device lock across read, modify and persist.
type StateCache struct {
	store       store.Store
	logger      *zap.Logger
	loadTimeout time.Duration
	metrics     *Metrics

	mu      sync.Mutex
	entries map[string]*stateEntry
}

func NewStateCache(s store.Store, logger *zap.Logger, m *Metrics) *StateCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateCache{
		store:       s,
		logger:      logger,
		loadTimeout: 5 * time.Second,
		metrics:     m,
		entries:     make(map[string]*stateEntry),
	}
}

func (c *StateCache) entry(device string) *stateEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[device]
	if !ok {
		e = &stateEntry{}
		c.entries[device] = e
	}
	return e
}

// hydrate loads the state once. A failed load caches the default, so the
// store is asked at most once per device. Caller holds e.mu.
func (c *StateCache) hydrate(ctx context.Context, device string, e *stateEntry) {
	if e.loaded {
		return
	}
	// a caller going away must not leave the entry half-loaded
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
	defer cancel()

	st, err := c.store.LoadOrCreateState(lctx, device)
	if err != nil {
		c.logger.Warn("load state failed, using default", zap.String("device", device), zap.Error(err))
		c.metrics.storeError("load_state")
		st = entities.DefaultControlState()
	}
	e.st = st
	e.loaded = true
}

// Get returns a snapshot of the device state.
func (c *StateCache) Get(ctx context.Context, device string) entities.ControlState {
	if strings.TrimSpace(device) == "" {
		return entities.DefaultControlState()
	}
	e := c.entry(device)
	e.mu.Lock()
	defer e.mu.Unlock()
	c.hydrate(ctx, device, e)
	return e.st
}

// Update runs fn on the cached state and persists it when fn reports a
// change. A failed persist is logged; the cached value stays authoritative.
// A blank device gets a throwaway default that is never cached.
func (c *StateCache) Update(ctx context.Context, device string, fn func(*entities.ControlState) bool) entities.ControlState {
	if strings.TrimSpace(device) == "" {
		st := entities.DefaultControlState()
		fn(&st)
		return st
	}
	e := c.entry(device)
	e.mu.Lock()
	defer e.mu.Unlock()
	c.hydrate(ctx, device, e)

	next := e.st
	if !fn(&next) {
		return e.st
	}
	e.st = next
	if err := c.store.UpsertState(ctx, device, next); err != nil {
		c.logger.Warn("persist state failed", zap.String("device", device), zap.Error(err))
		c.metrics.storeError("upsert_state")
	}
	return next
}

// Len is the number of cached devices.
func (c *StateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
