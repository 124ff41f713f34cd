package dashboard

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
)

const (
	DefaultPollInterval = 2 * time.Second
	pollBatch           = 50
	watermarkBatch      = 2000
	maxPagesPerTick     = 20
)

var ErrBlankDevice = errors.New("device is required")

// AlertSource is the slice of the core the alert feeds read from.
type AlertSource interface {
	GetAlerts(ctx context.Context, device string, since time.Time, limit int) ([]entities.Alert, error)
}

// Subscriber receives alerts for one device. Send must not block; an error
// drops the subscriber.
type Subscriber interface {
	ID() string
	Send(a entities.Alert) error
	Close()
}

type subscription struct {
	sub       Subscriber
	watermark int64 // last delivered id
	dead      atomic.Bool
}

type feed struct {
	device string
	subs   map[string]*subscription
	since  time.Time // alerts created after this are fetched
}

// Broadcaster fans new alerts out to live subscribers with a single poll
// loop shared by every watched device. The loop runs only while at least
// one subscriber exists.
type Broadcaster struct {
	src      AlertSource
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *Metrics

	// deliverMu serializes ticks with subscriber registration. Watermark
	// scans run outside it.
	deliverMu sync.Mutex

	mu     sync.Mutex
	feeds  map[string]*feed
	count  int
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBroadcaster(src AlertSource, interval time.Duration, logger *zap.Logger, m *Metrics) *Broadcaster {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		src:      src,
		interval: interval,
		timeout:  5 * time.Second,
		logger:   logger,
		metrics:  m,
		feeds:    make(map[string]*feed),
	}
}

// Subscribe registers sub for device. With a cursor, alerts with a larger id
// are delivered; without one, only alerts created after the call are. The
// returned cancel removes the subscriber.
func (b *Broadcaster) Subscribe(ctx context.Context, device string, cursor *int64, sub Subscriber) (func(), error) {
	device = strings.TrimSpace(device)
	if device == "" {
		return nil, ErrBlankDevice
	}

	b.mu.Lock()
	var from time.Time
	if f, ok := b.feeds[device]; ok {
		from = f.since
	}
	b.mu.Unlock()

	s := &subscription{sub: sub}
	// start is the feed position: zero rewinds, since ids above a cursor
	// may be older than where the feed stands
	var start time.Time
	if cursor != nil {
		s.watermark = *cursor
	} else {
		// scan outside deliverMu, ticks keep running meanwhile
		maxID, last, err := b.scanMax(ctx, device, from)
		if err != nil {
			return nil, err
		}
		s.watermark = maxID
		start = last
	}

	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	// a tick may have moved the feed past start during the scan: rewinding
	// it refetches that window, ids at or below each watermark are skipped
	b.mu.Lock()
	f, ok := b.feeds[device]
	if !ok {
		f = &feed{device: device, subs: make(map[string]*subscription), since: start}
		b.feeds[device] = f
	} else if start.Before(f.since) {
		f.since = start
	}
	f.subs[sub.ID()] = s
	b.count++
	b.metrics.subscribers(b.count)
	if b.cancel == nil {
		b.startLocked()
	}
	b.mu.Unlock()

	b.logger.Info("alert subscriber added",
		zap.String("device", device), zap.String("subscriber", sub.ID()), zap.Int64("watermark", s.watermark))
	return func() { b.remove(device, sub.ID()) }, nil
}

// scanMax pages forward from since and returns the highest id seen and the
// scan position after the last page.
func (b *Broadcaster) scanMax(ctx context.Context, device string, since time.Time) (int64, time.Time, error) {
	var maxID int64
	for page := 0; page < maxPagesPerTick; page++ {
		cctx, cancel := context.WithTimeout(ctx, b.timeout)
		batch, err := b.src.GetAlerts(cctx, device, since, watermarkBatch)
		cancel()
		if err != nil {
			return 0, since, err
		}
		for _, a := range batch {
			if a.ID > maxID {
				maxID = a.ID
			}
		}
		since = advance(since, batch)
		if len(batch) < watermarkBatch {
			break
		}
	}
	return maxID, since, nil
}

// advance moves a scan position past batch, keeping a 1 ms overlap so
// alerts sharing the last timestamp are seen again and filtered by id.
func advance(since time.Time, batch []entities.Alert) time.Time {
	if len(batch) == 0 {
		return since
	}
	maxT := batch[0].CreatedAt
	for _, a := range batch[1:] {
		if a.CreatedAt.After(maxT) {
			maxT = a.CreatedAt
		}
	}
	next := maxT.Add(-time.Millisecond)
	if !next.After(since) {
		next = maxT
	}
	return next
}

func (b *Broadcaster) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.loop(ctx)
	}()
	b.logger.Debug("alert poll loop started")
}

func (b *Broadcaster) loop(ctx context.Context) {
	t := time.NewTicker(b.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.Tick(ctx)
		}
	}
}

// Tick polls every watched device once and delivers what is new.
func (b *Broadcaster) Tick(ctx context.Context) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	feeds := make([]*feed, 0, len(b.feeds))
	for _, f := range b.feeds {
		feeds = append(feeds, f)
	}
	b.mu.Unlock()

	for _, f := range feeds {
		if ctx.Err() != nil {
			return
		}
		b.pollFeed(ctx, f)
	}
}

func (b *Broadcaster) pollFeed(ctx context.Context, f *feed) {
	b.mu.Lock()
	since := f.since
	b.mu.Unlock()

	for page := 0; page < maxPagesPerTick; page++ {
		cctx, cancel := context.WithTimeout(ctx, b.timeout)
		batch, err := b.src.GetAlerts(cctx, f.device, since, pollBatch)
		cancel()
		if err != nil {
			b.metrics.pollError()
			b.logger.Warn("alert poll failed", zap.String("device", f.device), zap.Error(err))
			break
		}
		sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })
		b.deliver(f, batch)
		since = advance(since, batch)
		if len(batch) < pollBatch {
			break
		}
	}

	b.mu.Lock()
	if since.After(f.since) {
		f.since = since
	}
	b.mu.Unlock()
}

func (b *Broadcaster) deliver(f *feed, batch []entities.Alert) {
	if len(batch) == 0 {
		return
	}
	b.mu.Lock()
	subs := make([]*subscription, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, a := range batch {
		for _, s := range subs {
			if s.dead.Load() || a.ID <= s.watermark {
				continue
			}
			if err := s.sub.Send(a); err != nil {
				s.dead.Store(true)
				b.metrics.dropped()
				b.logger.Info("alert subscriber dropped",
					zap.String("device", f.device), zap.String("subscriber", s.sub.ID()), zap.Error(err))
				b.remove(f.device, s.sub.ID())
				continue
			}
			s.watermark = a.ID
			b.metrics.delivered()
		}
	}
}

// remove drops one subscriber and closes it. The poll loop stops with the
// last subscriber.
func (b *Broadcaster) remove(device, id string) {
	b.mu.Lock()
	f, ok := b.feeds[device]
	if !ok {
		b.mu.Unlock()
		return
	}
	s, ok := f.subs[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(f.subs, id)
	s.dead.Store(true)
	if len(f.subs) == 0 {
		delete(b.feeds, device)
	}
	b.count--
	b.metrics.subscribers(b.count)
	if b.count == 0 && b.cancel != nil {
		b.cancel()
		b.cancel = nil
		b.logger.Debug("alert poll loop stopped")
	}
	b.mu.Unlock()

	s.sub.Close()
}

// Subscribers is the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Running reports whether the poll loop is active.
func (b *Broadcaster) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel != nil
}

// Close drops every subscriber and waits for the poll loop to exit.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	var all [][2]string
	for dev, f := range b.feeds {
		for id := range f.subs {
			all = append(all, [2]string{dev, id})
		}
	}
	b.mu.Unlock()
	for _, k := range all {
		b.remove(k[0], k[1])
	}
	b.wg.Wait()
}
