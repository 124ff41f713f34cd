package rabbitmq

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// IPublisher interface defines the method to publish a message
type IPublisher interface {
	PublishMessage(message any) error
	Close()
}

// Publisher sends messages to one topic over the shared MQTT client.
type Publisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger *zap.Logger
}

func NewPublisher(client mqtt.Client, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, topic: topic, qos: qosFor(topic), logger: logger}
}

func (p *Publisher) Topic() string { return p.topic }

// PublishMessage sends strings and byte slices as they are and anything
// else as JSON.
func (p *Publisher) PublishMessage(message any) error {
	var payload []byte
	switch m := message.(type) {
	case string:
		payload = []byte(m)
	case []byte:
		payload = m
	default:
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message for %s: %w", p.topic, err)
		}
		payload = b
	}

	token := p.client.Publish(p.topic, p.qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	p.logger.Debug("message published", zap.String("topic", p.topic), zap.Int("bytes", len(payload)))
	return nil
}

// Close is a no-op: the client is shared and closed by its owner.
func (p *Publisher) Close() {}
