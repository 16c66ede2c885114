package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher publishes to one topic exchange over a dedicated channel.
// amqp.Channel is not safe for concurrent publishing, so calls are
// serialized.
type Publisher struct {
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger

	mu sync.Mutex
}

// NewPublisher opens a channel on conn and declares exchange as a durable
// topic exchange.
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// Publish sends body with routingKey. Transient messages are not written to
// disk and, since mandatory is off, unroutable ones are discarded by the
// broker.
func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte, persistent bool) error {
	mode := amqp.Transient
	if persistent {
		mode = amqp.Persistent
	}

	p.mu.Lock()
	err := p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: mode,
			Timestamp:    time.Now().UTC(),
		},
	)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.exchange, err)
	}

	p.logger.Debug("published message",
		zap.String("exchange", p.exchange),
		zap.String("routing_key", routingKey),
		zap.Int("body_size", len(body)),
	)
	return nil
}

// PublishJSON marshals v and publishes it persistently.
func (p *Publisher) PublishJSON(ctx context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return p.Publish(ctx, routingKey, body, true)
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
