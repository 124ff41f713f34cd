package event

import (
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/services/irrigation"
)

// PointSink is the non-blocking half of api.WriteAPI.
type PointSink interface {
	WritePoint(point *write.Point)
	Errors() <-chan error
}

// Writer incapsula WriteAPI e traccia l'ultimo errore di scrittura per
// /healthz e /readyz.
type Writer struct {
	api    PointSink
	logger *zap.Logger

	mu      sync.RWMutex
	lastErr time.Time
	counts  map[string]int64
}

func NewWriter(w PointSink, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	ww := &Writer{
		api:     w,
		logger:  logger,
		lastErr: time.Now().Add(-24 * time.Hour),
		counts:  make(map[string]int64),
	}
	go func() {
		for err := range w.Errors() {
			if err == nil {
				continue
			}
			ww.mu.Lock()
			ww.lastErr = time.Now()
			ww.mu.Unlock()
			logger.Warn("influx write error", zap.Error(err))
		}
	}()
	return ww
}

// Write queues evt on the async write API.
func (w *Writer) Write(evt CommonEvent) {
	w.api.WritePoint(irrigation.EventToPoint(evt.EventType, evt.SourceService, evt.Device, evt.Severity, evt.Timestamp, evt.Fields))
	w.mu.Lock()
	w.counts[evt.EventType]++
	w.mu.Unlock()
}

// LastErrorAge ritorna da quanto tempo non si verificano errori di scrittura.
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return time.Since(t)
}

func (w *Writer) Count(eventType string) int64 {
	if w == nil {
		return 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.counts[eventType]
}
