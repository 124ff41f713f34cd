package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
)

type emitted struct {
	mu  sync.Mutex
	ids []int64
}

func (e *emitted) emit(a entities.Alert) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, a.ID)
	return nil
}

func (e *emitted) get() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int64(nil), e.ids...)
}

func runCursor(t *testing.T, src *fakeAlerts, since time.Time, out *emitted, minCalls int) {
	t.Helper()
	c := NewCursorStream(src, 5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, "d1", since, out.emit) }()

	require.Eventually(t, func() bool { return len(src.calls()) >= minCalls }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("cursor stream did not stop")
	}
}

func TestCursorAdvancesPastLastTimestamp(t *testing.T) {
	src := &fakeAlerts{}
	src.add(alertAt(1, "d1", 1), alertAt(2, "d1", 2))
	out := &emitted{}

	runCursor(t, src, epoch, out, 3)

	assert.Equal(t, []int64{1, 2}, out.get())
	calls := src.calls()
	assert.Equal(t, epoch, calls[0])
	assert.Equal(t, t0.Add(2*time.Second+time.Millisecond), calls[1])
	assert.Equal(t, calls[1], calls[2])
}

func TestCursorKeptOnEmptyPoll(t *testing.T) {
	src := &fakeAlerts{}
	out := &emitted{}

	runCursor(t, src, t0, out, 3)

	assert.Empty(t, out.get())
	for _, s := range src.calls() {
		assert.Equal(t, t0, s)
	}
}

func TestCursorKeptOnPollError(t *testing.T) {
	src := &fakeAlerts{}
	src.add(alertAt(1, "d1", 1))
	src.setErr(errBoom)
	out := &emitted{}

	runCursor(t, src, epoch, out, 2)

	assert.Empty(t, out.get())
	for _, s := range src.calls() {
		assert.Equal(t, epoch, s)
	}
}

func TestCursorStopsOnEmitError(t *testing.T) {
	src := &fakeAlerts{}
	src.add(alertAt(1, "d1", 1))
	c := NewCursorStream(src, time.Millisecond, nil)

	err := c.Run(context.Background(), "d1", epoch, func(entities.Alert) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
}
