package rabbitmq

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type Handler func(topic string, message mqtt.Message) error

// IConsumer subscribes and dispatches until the context is cancelled.
type IConsumer interface {
	ConsumeMessage(ctx context.Context) error
	SetHandler(handler Handler)
}

// MultiConsumer subscribes a single handler to several topic filters.
type MultiConsumer struct {
	client  mqtt.Client
	topics  []string
	handler Handler
	logger  *zap.Logger
}

func NewMultiConsumer(client mqtt.Client, topics []string, handler Handler, logger *zap.Logger) *MultiConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiConsumer{client: client, topics: topics, handler: handler, logger: logger}
}

func NewConsumer(client mqtt.Client, topic string, handler Handler, logger *zap.Logger) *MultiConsumer {
	return NewMultiConsumer(client, []string{topic}, handler, logger)
}

func (m *MultiConsumer) SetHandler(handler Handler) {
	m.handler = handler
}

func (m *MultiConsumer) dispatch(filter string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if m.handler == nil {
			m.logger.Warn("no handler set", zap.String("topic", filter))
			return
		}
		if err := m.handler(msg.Topic(), msg); err != nil {
			m.logger.Warn("error handling message", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	}
}

// ConsumeMessage blocks until ctx is done, then unsubscribes. It fails only
// when no subscription succeeded.
func (m *MultiConsumer) ConsumeMessage(ctx context.Context) error {
	var subscribed []string
	var lastErr error
	for _, topic := range m.topics {
		token := m.client.Subscribe(topic, qosFor(topic), m.dispatch(topic))
		token.Wait()
		if err := token.Error(); err != nil {
			m.logger.Error("error subscribing", zap.String("topic", topic), zap.Error(err))
			lastErr = err
			continue
		}
		m.logger.Info("subscribed", zap.String("topic", topic))
		subscribed = append(subscribed, topic)
	}
	if len(subscribed) == 0 && lastErr != nil {
		return lastErr
	}

	<-ctx.Done()

	if len(subscribed) > 0 {
		m.client.Unsubscribe(subscribed...).Wait()
	}
	return nil
}
