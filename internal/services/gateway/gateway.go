// Package gateway ingests device telemetry over HTTP and MQTT, forwards it to
// the irrigation core and hands the resulting pump command back to the device.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/rabbitmq"
)

// Ingestor is the part of the core the gateway talks to.
type Ingestor interface {
	PushReading(ctx context.Context, r messages.Reading) (messages.PumpDecision, error)
}

type PublisherFactory func(topic string) rabbitmq.IPublisher

const failSafeReason = "core unavailable -> pump_cmd=false"

type Gateway struct {
	core          Ingestor
	makePublisher PublisherFactory
	callTimeout   time.Duration
	logger        *zap.Logger
	metrics       *Metrics
	now           func() time.Time
}

func New(core Ingestor, factory PublisherFactory, callTimeout time.Duration, logger *zap.Logger, m *Metrics) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	return &Gateway{
		core:          core,
		makePublisher: factory,
		callTimeout:   callTimeout,
		logger:        logger,
		metrics:       m,
		now:           time.Now,
	}
}

// Ingest forwards one reading. Any failure of the core yields pump off.
func (g *Gateway) Ingest(ctx context.Context, source string, r messages.Reading) messages.PumpCommand {
	reqID := uuid.NewString()
	r.Device = strings.TrimSpace(r.Device)
	g.metrics.reading(source)

	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	cmd := messages.PumpCommand{Device: r.Device, Timestamp: g.now().UTC()}
	d, err := g.core.PushReading(ctx, r)
	if err != nil {
		g.metrics.failSafe()
		g.logger.Warn("core call failed, fail-safe pump off",
			zap.String("request_id", reqID), zap.String("device", r.Device), zap.Error(err))
		cmd.Reason = failSafeReason
		return cmd
	}
	cmd.PumpCmd = d.PumpCmd
	cmd.Reason = d.Reason
	g.logger.Info("reading forwarded",
		zap.String("request_id", reqID), zap.String("source", source),
		zap.String("device", r.Device), zap.Bool("pump_cmd", d.PumpCmd), zap.String("reason", d.Reason))
	return cmd
}

// HandleTelemetry is the MQTT handler for devices/+/telemetry. The device id
// in the topic fills a payload that has none.
func (g *Gateway) HandleTelemetry(topic string, msg mqtt.Message) error {
	var r messages.Reading
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		g.metrics.rejected()
		return fmt.Errorf("decode telemetry on %s: %w", topic, err)
	}
	if strings.TrimSpace(r.Device) == "" {
		if dev, ok := rabbitmq.DeviceFromTopic(topic); ok {
			r.Device = dev
		}
	}

	cmd := g.Ingest(context.Background(), "mqtt", r)
	if cmd.Device == "" || g.makePublisher == nil {
		return nil
	}
	if err := g.makePublisher(rabbitmq.PumpTopic(cmd.Device)).PublishMessage(cmd); err != nil {
		return fmt.Errorf("publish pump command for %s: %w", cmd.Device, err)
	}
	return nil
}
