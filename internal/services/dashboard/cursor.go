package dashboard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
)

const (
	cursorBatch           = 200
	DefaultCursorInterval = time.Second
)

// CursorStream is the per-connection feed: it polls with a timestamp cursor
// instead of sharing the broadcaster loop.
type CursorStream struct {
	src      AlertSource
	interval time.Duration
	logger   *zap.Logger
}

func NewCursorStream(src AlertSource, interval time.Duration, logger *zap.Logger) *CursorStream {
	if interval <= 0 {
		interval = DefaultCursorInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CursorStream{src: src, interval: interval, logger: logger}
}

// Run emits alerts created after since until ctx is done or emit fails.
// After a non-empty batch the cursor moves to the last timestamp + 1 ms;
// an empty or failed poll keeps it.
func (c *CursorStream) Run(ctx context.Context, device string, since time.Time, emit func(entities.Alert) error) error {
	cursor := since
	for {
		batch, err := c.src.GetAlerts(ctx, device, cursor, cursorBatch)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("cursor poll failed", zap.String("device", device), zap.Error(err))
		}
		var last time.Time
		for _, a := range batch {
			if err := emit(a); err != nil {
				return err
			}
			if a.CreatedAt.After(last) {
				last = a.CreatedAt
			}
		}
		if !last.IsZero() {
			cursor = last.Add(time.Millisecond)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.interval):
		}
	}
}
