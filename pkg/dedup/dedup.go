package dedup

import (
	"strings"
	"sync"
	"time"
)

// Deduper lets a key through at most once per ttl window.
// Used both for QoS1 redelivery suppression and for per-key alert cooldowns.
type Deduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	now  func() time.Time
	seen map[string]time.Time
}

func New(ttl time.Duration, max int) *Deduper {
	return NewWithClock(ttl, max, time.Now)
}

// NewWithClock is New with an injectable clock.
func NewWithClock(ttl time.Duration, max int, now func() time.Time) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	if now == nil {
		now = time.Now
	}
	return &Deduper{ttl: ttl, max: max, now: now, seen: make(map[string]time.Time)}
}

// ShouldProcess reports whether id is outside its window and, if so, opens
// a new window starting now.
func (d *Deduper) ShouldProcess(id string) bool {
	if id == "" {
		return true
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if exp, ok := d.seen[id]; ok && now.Before(exp) {
		return false
	}
	d.seen[id] = now.Add(d.ttl)
	if len(d.seen) > d.max {
		for k, v := range d.seen {
			if now.After(v) {
				delete(d.seen, k)
			}
			if len(d.seen) <= d.max {
				break
			}
		}
	}
	return true
}

// Key joins parts into a composite key, e.g. device and alert type.
func Key(parts ...string) string {
	return strings.Join(parts, "|")
}

func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
