package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
)

const (
	heartbeatInterval = 15 * time.Second
	subscriberBuffer  = 64
)

var (
	errSlowSubscriber   = errors.New("subscriber buffer full")
	errClosedSubscriber = errors.New("subscriber closed")
)

// sseWriter serializes frames on one response.
type sseWriter struct {
	mu sync.Mutex
	w  http.ResponseWriter
	f  http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, f: f}, true
}

func (s *sseWriter) event(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

func (s *sseWriter) alert(a entities.Alert) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.event("alert", b)
}

func (s *sseWriter) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// sseSubscriber buffers alerts for the connection goroutine. A full buffer
// means the client is not keeping up and gets dropped.
type sseSubscriber struct {
	id   string
	ch   chan entities.Alert
	done chan struct{}
	once sync.Once
}

func newSSESubscriber() *sseSubscriber {
	return &sseSubscriber{
		id:   uuid.NewString(),
		ch:   make(chan entities.Alert, subscriberBuffer),
		done: make(chan struct{}),
	}
}

func (s *sseSubscriber) ID() string { return s.id }

func (s *sseSubscriber) Send(a entities.Alert) error {
	select {
	case <-s.done:
		return errClosedSubscriber
	default:
	}
	select {
	case s.ch <- a:
		return nil
	default:
		return errSlowSubscriber
	}
}

func (s *sseSubscriber) Close() { s.once.Do(func() { close(s.done) }) }

// GET /api/devices/{device}/alerts/stream[?sinceId=N]
func (a *API) streamAlerts(w http.ResponseWriter, r *http.Request) {
	device := strings.TrimSpace(chi.URLParam(r, "device"))
	if device == "" {
		writeError(w, http.StatusBadRequest, "missing device")
		return
	}
	var cursor *int64
	if v := strings.TrimSpace(r.URL.Query().Get("sinceId")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid sinceId")
			return
		}
		if n > 0 {
			cursor = &n
		}
	}

	sub := newSSESubscriber()
	cancel, err := a.broadcaster.Subscribe(r.Context(), device, cursor, sub)
	if err != nil {
		a.fail(w, err)
		return
	}
	defer cancel()

	sw, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if err := sw.event("connected", []byte("ok")); err != nil {
		return
	}

	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.done:
			return
		case al := <-sub.ch:
			if err := sw.alert(al); err != nil {
				a.logger.Debug("sse write failed", zap.String("subscriber", sub.id), zap.Error(err))
				return
			}
		case <-hb.C:
			if err := sw.ping(); err != nil {
				return
			}
		}
	}
}

// GET /alerts/stream?device=D[&since=RFC3339]
func (a *API) streamAlertsByCursor(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	device := strings.TrimSpace(q.Get("device"))
	if device == "" {
		writeError(w, http.StatusBadRequest, "missing device")
		return
	}
	since, err := parseTime(q.Get("since"), epoch)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid since")
		return
	}

	sw, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if err := sw.event("connected", []byte("ok")); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(heartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if sw.ping() != nil {
					return
				}
			}
		}
	}()

	if err := a.cursor.Run(ctx, device, since, sw.alert); err != nil {
		a.logger.Debug("cursor stream ended", zap.String("device", device), zap.Error(err))
	}
}
