package irrigation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
)

func newTestService() (*Service, *flakyStore, *clock, *recordingEvents) {
	c := newClock()
	s := newFlakyStore(c)
	ev := &recordingEvents{}
	return NewService(s, nil, WithClock(c.now), WithEventLog(ev)), s, c, ev
}

func TestService_PushReadingAutoFlow(t *testing.T) {
	svc, s, c, ev := newTestService()
	ctx := context.Background()

	d, err := svc.PushReading(ctx, reading("d1", 20, 80, false))
	require.NoError(t, err)
	assert.True(t, d.PumpCmd)
	assert.Equal(t, "d1", d.Device)
	assert.Equal(t, entities.ModeAuto, d.Mode)
	assert.Equal(t, c.now(), d.DecidedAt)

	latest, err := svc.GetLatest(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 20, *latest.Soil)
	assert.Equal(t, c.now(), latest.CreatedAt)

	st, err := svc.GetStatus(ctx, "d1", 0)
	require.NoError(t, err)
	assert.True(t, st.Online)
	assert.EqualValues(t, 0, st.SecondsSinceLastSeen)

	// hysteresis state was persisted
	stored, err := s.Store.LoadOrCreateState(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, stored.LastAutoCmd)

	require.Len(t, s.Decisions(), 1)
	assert.Equal(t, 1, ev.readings)
	assert.Len(t, ev.decisions, 1)
}

func TestService_PushReadingBlankDevice(t *testing.T) {
	svc, s, _, _ := newTestService()
	ctx := context.Background()

	d, err := svc.PushReading(ctx, reading("   ", 5, 80, false))
	require.NoError(t, err)
	assert.False(t, d.PumpCmd)

	ds, err := svc.ListDevices(ctx)
	require.NoError(t, err)
	assert.Empty(t, ds)
	assert.Empty(t, s.Decisions())
	assert.Zero(t, svc.States().Len())
}

func TestService_PushReadingStoreFailureStillDecides(t *testing.T) {
	svc, s, _, _ := newTestService()
	s.failReading = true

	d, err := svc.PushReading(context.Background(), reading("d1", 20, 80, false))
	require.NoError(t, err)
	assert.True(t, d.PumpCmd)
}

func TestService_AutoDecisionResyncsStoreAfterFailedPersist(t *testing.T) {
	svc, s, _, _ := newTestService()
	ctx := context.Background()

	s.failUpsert = true
	d, err := svc.PushReading(ctx, reading("d1", 20, 80, false))
	require.NoError(t, err)
	assert.True(t, d.PumpCmd)

	stored, err := s.Store.LoadOrCreateState(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, stored.LastAutoCmd)

	// soil 35 holds the pump on: same state, still written
	s.failUpsert = false
	before := s.upserts.Load()
	d, err = svc.PushReading(ctx, reading("d1", 35, 80, false))
	require.NoError(t, err)
	assert.True(t, d.PumpCmd)
	assert.EqualValues(t, before+1, s.upserts.Load())

	stored, err = s.Store.LoadOrCreateState(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, stored.LastAutoCmd)
	assert.True(t, svc.States().Get(ctx, "d1").LastAutoCmd)
}

func TestService_ManualDecisionDoesNotPersist(t *testing.T) {
	svc, s, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.SetMode(ctx, "d1", "MANUAL")
	require.NoError(t, err)
	before := s.upserts.Load()

	_, err = svc.PushReading(ctx, reading("d1", 20, 80, false))
	require.NoError(t, err)
	assert.Equal(t, before, s.upserts.Load())
}

func TestService_PushReadingRaisesAlerts(t *testing.T) {
	svc, _, _, ev := newTestService()
	ctx := context.Background()

	_, err := svc.PushReading(ctx, reading("d1", 50, 5, true))
	require.NoError(t, err)

	as, err := svc.GetAlerts(ctx, "d1", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, as, 2)
	assert.Equal(t, entities.AlertTankLow, as[0].Type)
	assert.Equal(t, entities.AlertRaining, as[1].Type)
	assert.Len(t, ev.alerts, 2)
}

func TestService_ManualModeOverridesPolicy(t *testing.T) {
	svc, s, _, ev := newTestService()
	ctx := context.Background()

	m, err := svc.SetMode(ctx, "d1", "manual")
	require.NoError(t, err)
	assert.Equal(t, entities.ModeManual, m)

	on, err := svc.SetManualPump(ctx, "d1", true)
	require.NoError(t, err)
	assert.True(t, on)

	d, err := svc.PushReading(ctx, reading("d1", 90, 0, true))
	require.NoError(t, err)
	assert.True(t, d.PumpCmd)
	assert.Equal(t, "MANUAL mode -> manualPumpCmd=true", d.Reason)

	got, err := svc.GetMode(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, entities.ModeManual, got)
	pump, err := svc.GetManualPump(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, pump)

	events := s.ControlEvents()
	require.Len(t, events, 2)
	assert.Equal(t, entities.ControlSetMode, events[0].Type)
	assert.Equal(t, entities.DefaultControlSource, events[0].Source)
	assert.Equal(t, entities.ControlSetManualPump, events[1].Type)
	require.NotNil(t, events[1].ManualPump)
	assert.True(t, *events[1].ManualPump)
	assert.Len(t, ev.controls, 2)
}

func TestService_GetModeIsIdempotent(t *testing.T) {
	svc, s, _, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m, err := svc.GetMode(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, entities.ModeAuto, m)
	}
	assert.EqualValues(t, 1, s.loads.Load())
	assert.Zero(t, s.upserts.Load())
}

func TestService_InvalidArguments(t *testing.T) {
	svc, _, c, _ := newTestService()
	ctx := context.Background()
	now := c.now()

	_, err := svc.SetMode(ctx, "d1", "TURBO")
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = svc.SetMode(ctx, "", "AUTO")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.SetManualPump(ctx, " ", true)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.GetHistory(ctx, "d1", time.Time{}, now, 10)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.GetHistory(ctx, "d1", now, now.Add(-time.Hour), 10)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.GetAlerts(ctx, "", now, 10)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestService_GetHistoryRange(t *testing.T) {
	svc, _, c, _ := newTestService()
	ctx := context.Background()
	start := c.now()

	for i := 0; i < 5; i++ {
		_, err := svc.PushReading(ctx, reading("d1", 40+i, 80, false))
		require.NoError(t, err)
		c.advance(time.Minute)
	}

	rs, err := svc.GetHistory(ctx, "d1", start.Add(time.Minute), start.Add(3*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, rs, 3)
	assert.Equal(t, 41, *rs[0].Soil)
	assert.Equal(t, 43, *rs[2].Soil)

	rs, err = svc.GetHistory(ctx, "d1", start, c.now(), 2)
	require.NoError(t, err)
	assert.Len(t, rs, 2)
}

func TestService_StatusOfflineAndUnknown(t *testing.T) {
	svc, _, c, _ := newTestService()
	ctx := context.Background()

	st, err := svc.GetStatus(ctx, "ghost", 20)
	require.NoError(t, err)
	assert.False(t, st.Online)
	assert.Nil(t, st.LastSeen)
	assert.Equal(t, entities.NoData, st.SecondsSinceLastSeen)

	_, err = svc.PushReading(ctx, reading("d1", 50, 80, false))
	require.NoError(t, err)
	c.advance(25 * time.Second)

	st, err = svc.GetStatus(ctx, "d1", 0)
	require.NoError(t, err)
	assert.False(t, st.Online)
	assert.EqualValues(t, 25, st.SecondsSinceLastSeen)

	st, err = svc.GetStatus(ctx, "d1", 30)
	require.NoError(t, err)
	assert.True(t, st.Online)
}

func TestService_Summaries(t *testing.T) {
	svc, _, c, _ := newTestService()
	ctx := context.Background()
	since := c.now().Add(-time.Hour)

	for _, dev := range []string{"c", "a", "b"} {
		_, err := svc.PushReading(ctx, reading(dev, 50, 80, dev == "b"))
		require.NoError(t, err)
	}
	_, err := svc.SetMode(ctx, "a", "MANUAL")
	require.NoError(t, err)

	sum, err := svc.GetSummary(ctx, "b", 0, since, 0)
	require.NoError(t, err)
	assert.Equal(t, "b", sum.Device)
	require.NotNil(t, sum.Latest)
	assert.Len(t, sum.Alerts, 1)
	assert.True(t, sum.Status.Online)

	rows, err := svc.ListSummaries(ctx, 0, since)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{rows[0].Device, rows[1].Device, rows[2].Device})
	assert.Equal(t, entities.ModeManual, rows[0].Mode)
	assert.Equal(t, 1, rows[1].RecentAlertCount)
	assert.Equal(t, 0, rows[2].RecentAlertCount)
	require.NotNil(t, rows[2].Soil)
	assert.Equal(t, 50, *rows[2].Soil)
}

func TestService_ConcurrentDevices(t *testing.T) {
	svc, s, _, _ := newTestService()
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, dev := range []string{"d1", "d2", "d3", "d4"} {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.PushReading(ctx, reading(dev, 20+i, 80, false))
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	assert.Len(t, s.Decisions(), 100)
	assert.EqualValues(t, 4, s.loads.Load())
	ds, err := svc.ListDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2", "d3", "d4"}, ds)
}
