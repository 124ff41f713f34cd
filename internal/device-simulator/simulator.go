package device_simulator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/dedup"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/rabbitmq"
)

// DeviceSimulator publishes telemetry for one device and follows the pump
// commands sent back by the gateway.
type DeviceSimulator struct {
	mu        sync.Mutex
	device    string
	pump      bool
	lastCmdAt time.Time
	generator *DataGenerator
	publisher rabbitmq.IPublisher
	consumer  rabbitmq.IConsumer
	deduper   *dedup.Deduper
	logger    *zap.Logger
}

func NewDeviceSimulator(device string, consumer rabbitmq.IConsumer, publisher rabbitmq.IPublisher,
	gen *DataGenerator, logger *zap.Logger) *DeviceSimulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceSimulator{
		device:    device,
		generator: gen,
		publisher: publisher,
		consumer:  consumer,
		deduper:   dedup.New(2*time.Minute, 10000), // TTL e cap
		logger:    logger.With(zap.String("device", device)),
	}
}

// Start publishes a sample every interval until ctx is done.
func (s *DeviceSimulator) Start(ctx context.Context, interval time.Duration) error {
	if s.consumer != nil {
		s.consumer.SetHandler(s.handleMessage)
		go func() {
			if err := s.consumer.ConsumeMessage(ctx); err != nil {
				s.logger.Error("pump command consumer stopped", zap.Error(err))
			}
		}()
	}
	defer s.publisher.Close()

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := s.Tick(); err != nil {
				s.logger.Warn("publish error", zap.Error(err))
			}
		}
	}
}

// Tick publishes one sample.
func (s *DeviceSimulator) Tick() error {
	r := s.generator.Next(s.device, s.Pump())
	s.logger.Debug("pub telemetry",
		zap.Intp("soil", r.Soil), zap.Intp("water_tank", r.WaterTank), zap.Boolp("raining", r.Raining))
	return s.publisher.PublishMessage(r)
}

// Pump is the current pump state.
func (s *DeviceSimulator) Pump() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pump
}

func (s *DeviceSimulator) handleMessage(_ string, msg mqtt.Message) error {
	// redelivery QoS1 ha lo stesso payload → stesso hash
	h := sha256.Sum256(msg.Payload())
	if s.deduper != nil && !s.deduper.ShouldProcess(hex.EncodeToString(h[:])) {
		return nil
	}

	var cmd model.PumpCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		return fmt.Errorf("invalid PumpCommand: %w", err)
	}
	if strings.TrimSpace(cmd.Device) != "" && cmd.Device != s.device {
		return nil
	}
	s.apply(cmd)
	return nil
}

func (s *DeviceSimulator) apply(cmd model.PumpCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// comandi fuori ordine: vince il più recente
	if !cmd.Timestamp.IsZero() && cmd.Timestamp.Before(s.lastCmdAt) {
		return
	}
	s.lastCmdAt = cmd.Timestamp
	if s.pump != cmd.PumpCmd {
		s.logger.Info("pump switched", zap.Bool("on", cmd.PumpCmd), zap.String("reason", cmd.Reason))
	}
	s.pump = cmd.PumpCmd
}
