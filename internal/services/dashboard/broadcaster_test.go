package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
)

// the loop never fires during a test; ticks are driven by hand
func newTestBroadcaster(t *testing.T, src AlertSource) *Broadcaster {
	t.Helper()
	b := NewBroadcaster(src, time.Hour, nil, nil)
	t.Cleanup(b.Close)
	return b
}

func TestSubscribeWithoutCursorSkipsHistory(t *testing.T) {
	src := &fakeAlerts{}
	src.add(alertAt(1, "d1", 1), alertAt(2, "d1", 2), alertAt(3, "d1", 3))
	b := newTestBroadcaster(t, src)

	sub := &recordingSub{id: "s1"}
	_, err := b.Subscribe(context.Background(), "d1", nil, sub)
	require.NoError(t, err)

	b.Tick(context.Background())
	assert.Empty(t, sub.ids())

	src.add(alertAt(4, "d1", 4))
	b.Tick(context.Background())
	assert.Equal(t, []int64{4}, sub.ids())

	// nothing new, nothing redelivered
	b.Tick(context.Background())
	assert.Equal(t, []int64{4}, sub.ids())
}

func TestSubscribeWithCursorReplaysNewerIDs(t *testing.T) {
	src := &fakeAlerts{}
	src.add(alertAt(1, "d1", 1), alertAt(2, "d1", 2), alertAt(3, "d1", 3))
	b := newTestBroadcaster(t, src)

	cursor := int64(1)
	sub := &recordingSub{id: "s1"}
	_, err := b.Subscribe(context.Background(), "d1", &cursor, sub)
	require.NoError(t, err)

	b.Tick(context.Background())
	assert.Equal(t, []int64{2, 3}, sub.ids())
}

func TestCursorSubscriberJoiningLiveFeed(t *testing.T) {
	src := &fakeAlerts{}
	src.add(alertAt(1, "d1", 1), alertAt(2, "d1", 2))
	b := newTestBroadcaster(t, src)

	live := &recordingSub{id: "live"}
	_, err := b.Subscribe(context.Background(), "d1", nil, live)
	require.NoError(t, err)
	src.add(alertAt(3, "d1", 3))
	b.Tick(context.Background())

	cursor := int64(1)
	late := &recordingSub{id: "late"}
	_, err = b.Subscribe(context.Background(), "d1", &cursor, late)
	require.NoError(t, err)
	b.Tick(context.Background())

	assert.Equal(t, []int64{3}, live.ids())
	assert.Equal(t, []int64{2, 3}, late.ids())
}

func TestSlowWatermarkScanDoesNotStallTicks(t *testing.T) {
	src := newGatedAlerts()
	src.add(alertAt(1, "d1", 1))
	b := newTestBroadcaster(t, src)
	ctx := context.Background()

	live := &recordingSub{id: "live"}
	_, err := b.Subscribe(ctx, "d1", nil, live)
	require.NoError(t, err)

	src.arm()
	subErr := make(chan error, 1)
	go func() {
		_, err := b.Subscribe(ctx, "d2", nil, &recordingSub{id: "slow"})
		subErr <- err
	}()
	<-src.entered

	src.add(alertAt(2, "d1", 2))
	ticked := make(chan struct{})
	go func() {
		b.Tick(ctx)
		close(ticked)
	}()
	select {
	case <-ticked:
	case <-time.After(time.Second):
		t.Fatal("tick blocked behind a pending subscribe")
	}
	assert.Equal(t, []int64{2}, live.ids())

	close(src.release)
	require.NoError(t, <-subErr)
	assert.Equal(t, 2, b.Subscribers())
}

func TestFeedMovedDuringScanIsRewound(t *testing.T) {
	src := newGatedAlerts()
	src.add(alertAt(1, "d1", 1), alertAt(2, "d1", 2), alertAt(3, "d1", 3))
	b := newTestBroadcaster(t, src)
	ctx := context.Background()

	live := &recordingSub{id: "live"}
	_, err := b.Subscribe(ctx, "d1", nil, live)
	require.NoError(t, err)

	// the late scan answers with ids up to 3
	src.arm()
	late := &recordingSub{id: "late"}
	subErr := make(chan error, 1)
	go func() {
		_, err := b.Subscribe(ctx, "d1", nil, late)
		subErr <- err
	}()
	<-src.entered

	// meanwhile alert 4 arrives and the feed moves past it
	src.add(alertAt(4, "d1", 4))
	b.Tick(ctx)
	assert.Equal(t, []int64{4}, live.ids())

	close(src.release)
	require.NoError(t, <-subErr)

	b.Tick(ctx)
	assert.Equal(t, []int64{4}, late.ids())
	assert.Equal(t, []int64{4}, live.ids())
}

func TestDevicesAreIsolated(t *testing.T) {
	src := &fakeAlerts{}
	b := newTestBroadcaster(t, src)

	s1 := &recordingSub{id: "s1"}
	s2 := &recordingSub{id: "s2"}
	_, err := b.Subscribe(context.Background(), "d1", nil, s1)
	require.NoError(t, err)
	_, err = b.Subscribe(context.Background(), "d2", nil, s2)
	require.NoError(t, err)

	src.add(alertAt(1, "d1", 1), alertAt(2, "d2", 2), alertAt(3, "d1", 3))
	b.Tick(context.Background())

	assert.Equal(t, []int64{1, 3}, s1.ids())
	assert.Equal(t, []int64{2}, s2.ids())
}

func TestFailedSendDropsOnlyThatSubscriber(t *testing.T) {
	src := &fakeAlerts{}
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	b := NewBroadcaster(src, time.Hour, nil, m)
	t.Cleanup(b.Close)

	good := &recordingSub{id: "good"}
	bad := &recordingSub{id: "bad", fail: errSlowSubscriber}
	_, err := b.Subscribe(context.Background(), "d1", nil, good)
	require.NoError(t, err)
	_, err = b.Subscribe(context.Background(), "d1", nil, bad)
	require.NoError(t, err)
	require.Equal(t, 2, b.Subscribers())

	src.add(alertAt(1, "d1", 1), alertAt(2, "d1", 2))
	b.Tick(context.Background())

	assert.Equal(t, []int64{1, 2}, good.ids())
	assert.True(t, bad.isClosed())
	assert.False(t, good.isClosed())
	assert.Equal(t, 1, b.Subscribers())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.drops))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.deliveries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.subs))
}

func TestLoopStopsWithLastSubscriber(t *testing.T) {
	b := newTestBroadcaster(t, &fakeAlerts{})
	assert.False(t, b.Running())

	s1 := &recordingSub{id: "s1"}
	s2 := &recordingSub{id: "s2"}
	cancel1, err := b.Subscribe(context.Background(), "d1", nil, s1)
	require.NoError(t, err)
	cancel2, err := b.Subscribe(context.Background(), "d2", nil, s2)
	require.NoError(t, err)
	assert.True(t, b.Running())

	cancel1()
	assert.True(t, b.Running())
	assert.True(t, s1.isClosed())

	cancel2()
	assert.False(t, b.Running())
	assert.Zero(t, b.Subscribers())

	// cancelling twice is harmless
	cancel2()
	assert.Zero(t, b.Subscribers())
}

func TestPollErrorKeepsSubscribers(t *testing.T) {
	src := &fakeAlerts{}
	b := newTestBroadcaster(t, src)

	sub := &recordingSub{id: "s1"}
	_, err := b.Subscribe(context.Background(), "d1", nil, sub)
	require.NoError(t, err)

	src.add(alertAt(1, "d1", 1))
	src.setErr(errBoom)
	b.Tick(context.Background())
	assert.Empty(t, sub.ids())
	assert.Equal(t, 1, b.Subscribers())

	src.setErr(nil)
	b.Tick(context.Background())
	assert.Equal(t, []int64{1}, sub.ids())
}

func TestSubscribeErrors(t *testing.T) {
	src := &fakeAlerts{}
	b := newTestBroadcaster(t, src)

	_, err := b.Subscribe(context.Background(), "  ", nil, &recordingSub{id: "x"})
	assert.ErrorIs(t, err, ErrBlankDevice)

	src.setErr(errBoom)
	_, err = b.Subscribe(context.Background(), "d1", nil, &recordingSub{id: "y"})
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, b.Subscribers())
	assert.False(t, b.Running())

	// a cursor needs no initial fetch
	cursor := int64(5)
	_, err = b.Subscribe(context.Background(), "d1", &cursor, &recordingSub{id: "z"})
	assert.NoError(t, err)
}

func TestPagingDeliversMoreThanOneBatch(t *testing.T) {
	src := &fakeAlerts{}
	b := newTestBroadcaster(t, src)

	sub := &recordingSub{id: "s1"}
	_, err := b.Subscribe(context.Background(), "d1", nil, sub)
	require.NoError(t, err)

	n := pollBatch*2 + 7
	for i := 1; i <= n; i++ {
		src.add(alertAt(int64(i), "d1", i))
	}
	b.Tick(context.Background())

	got := sub.ids()
	require.Len(t, got, n)
	for i, id := range got {
		assert.Equal(t, int64(i+1), id)
	}
}

func TestLoopPollsOnItsOwn(t *testing.T) {
	src := &fakeAlerts{}
	b := NewBroadcaster(src, 10*time.Millisecond, nil, nil)
	t.Cleanup(b.Close)

	sub := &recordingSub{id: "s1"}
	_, err := b.Subscribe(context.Background(), "d1", nil, sub)
	require.NoError(t, err)
	src.add(alertAt(7, "d1", 1))

	require.Eventually(t, func() bool { return len(sub.ids()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestAdvance(t *testing.T) {
	since := t0
	assert.Equal(t, since, advance(since, nil))

	batch := []entities.Alert{alertAt(1, "d", 5), alertAt(2, "d", 3)}
	assert.Equal(t, t0.Add(5*time.Second-time.Millisecond), advance(since, batch))

	// overlap would not move forward
	same := []entities.Alert{{ID: 9, CreatedAt: t0.Add(time.Millisecond / 2)}}
	assert.Equal(t, t0.Add(time.Millisecond/2), advance(t0, same))
}
