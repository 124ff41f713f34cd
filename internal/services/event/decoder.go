package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/dedup"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/rabbitmq"
)

const (
	EventPumpCommand = "PUMP_COMMAND"
	sourceGateway    = "irrigation-gateway"
	failSafePrefix   = "core unavailable"
)

type CommonEvent struct {
	EventType     string
	SourceService string
	Device        string
	Severity      string
	Fields        map[string]any
	Timestamp     time.Time
}

// MQTTHandler trasforma i comandi pompa pubblicati sul bus in CommonEvent e
// li passa al sink.
type MQTTHandler struct {
	sink  func(CommonEvent)
	dedup *dedup.Deduper
}

func NewMQTTHandler(sink func(CommonEvent)) *MQTTHandler {
	return &MQTTHandler{sink: sink, dedup: dedup.New(10*time.Minute, 20000)}
}

func (h *MQTTHandler) Handle(topic string, m mqtt.Message) error {
	if !strings.HasSuffix(topic, "/pump") {
		return nil // ignora altri topic
	}
	// QoS1 → possibili redelivery con lo stesso payload
	sum := sha256.Sum256(m.Payload())
	if !h.dedup.ShouldProcess(hex.EncodeToString(sum[:])) {
		return nil
	}
	evt, err := decodePumpCommand(topic, m.Payload())
	if err != nil {
		return err
	}
	if h.sink != nil {
		h.sink(evt)
	}
	return nil
}

func decodePumpCommand(topic string, payload []byte) (CommonEvent, error) {
	var c messages.PumpCommand
	if err := json.Unmarshal(payload, &c); err != nil {
		return CommonEvent{}, err
	}
	device := strings.TrimSpace(c.Device)
	if device == "" {
		device, _ = rabbitmq.DeviceFromTopic(topic)
	}
	if device == "" {
		return CommonEvent{}, errors.New("pump command: missing device")
	}
	sev := entities.SeverityInfo
	if strings.HasPrefix(c.Reason, failSafePrefix) {
		sev = entities.SeverityWarn
	}
	return CommonEvent{
		EventType:     EventPumpCommand,
		SourceService: sourceGateway,
		Device:        device,
		Severity:      string(sev),
		Fields: map[string]any{
			"pump_cmd": c.PumpCmd,
			"reason":   c.Reason,
		},
		Timestamp: c.Timestamp,
	}, nil
}
