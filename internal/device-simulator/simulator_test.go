package device_simulator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/rabbitmq"
)

type fakePublisher struct {
	mu     sync.Mutex
	msgs   []any
	closed bool
}

func (p *fakePublisher) PublishMessage(m any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, m)
	return nil
}

func (p *fakePublisher) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

type fakeConsumer struct {
	handler rabbitmq.Handler
	started chan struct{}
}

func (c *fakeConsumer) SetHandler(h rabbitmq.Handler) { c.handler = h }

func (c *fakeConsumer) ConsumeMessage(ctx context.Context) error {
	close(c.started)
	<-ctx.Done()
	return nil
}

type fakeMessage struct {
	mqtt.Message
	payload []byte
}

func (m fakeMessage) Payload() []byte { return m.payload }

func pumpMsg(t *testing.T, cmd model.PumpCommand) mqtt.Message {
	t.Helper()
	b, err := json.Marshal(cmd)
	require.NoError(t, err)
	return fakeMessage{payload: b}
}

func newTestSimulator(t *testing.T) (*DeviceSimulator, *fakePublisher) {
	t.Helper()
	g, _ := newTestGenerator(GeneratorConfig{})
	pub := &fakePublisher{}
	return NewDeviceSimulator("d1", nil, pub, g, nil), pub
}

func TestTickPublishesReading(t *testing.T) {
	sim, pub := newTestSimulator(t)
	require.NoError(t, sim.Tick())

	require.Equal(t, 1, pub.count())
	r, ok := pub.msgs[0].(model.Reading)
	require.True(t, ok)
	assert.Equal(t, "d1", r.Device)
	assert.False(t, *r.Pump)
}

func TestPumpCommandApplied(t *testing.T) {
	sim, pub := newTestSimulator(t)
	ts := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, sim.handleMessage("devices/d1/pump", pumpMsg(t, model.PumpCommand{Device: "d1", PumpCmd: true, Timestamp: ts})))
	assert.True(t, sim.Pump())

	require.NoError(t, sim.Tick())
	assert.True(t, *pub.msgs[0].(model.Reading).Pump)

	// older command arriving late is ignored
	require.NoError(t, sim.handleMessage("devices/d1/pump", pumpMsg(t, model.PumpCommand{Device: "d1", PumpCmd: false, Timestamp: ts.Add(-time.Second)})))
	assert.True(t, sim.Pump())

	require.NoError(t, sim.handleMessage("devices/d1/pump", pumpMsg(t, model.PumpCommand{Device: "d1", PumpCmd: false, Timestamp: ts.Add(time.Second)})))
	assert.False(t, sim.Pump())
}

func TestPumpCommandFiltering(t *testing.T) {
	sim, _ := newTestSimulator(t)
	ts := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, sim.handleMessage("devices/d2/pump", pumpMsg(t, model.PumpCommand{Device: "d2", PumpCmd: true, Timestamp: ts})))
	assert.False(t, sim.Pump())

	assert.Error(t, sim.handleMessage("devices/d1/pump", fakeMessage{payload: []byte("{")}))

	on := pumpMsg(t, model.PumpCommand{Device: "d1", PumpCmd: true, Timestamp: ts})
	require.NoError(t, sim.handleMessage("devices/d1/pump", on))
	sim.apply(model.PumpCommand{Device: "d1", PumpCmd: false, Timestamp: ts.Add(time.Second)})
	// redelivery of the same payload is dropped
	require.NoError(t, sim.handleMessage("devices/d1/pump", on))
	assert.False(t, sim.Pump())
}

func TestStartWiresConsumerAndClosesPublisher(t *testing.T) {
	g, _ := newTestGenerator(GeneratorConfig{})
	pub := &fakePublisher{}
	cons := &fakeConsumer{started: make(chan struct{})}
	sim := NewDeviceSimulator("d1", cons, pub, g, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Start(ctx, 5*time.Millisecond) }()

	<-cons.started
	require.NotNil(t, cons.handler)
	require.Eventually(t, func() bool { return pub.count() >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	pub.mu.Lock()
	assert.True(t, pub.closed)
	pub.mu.Unlock()
}
