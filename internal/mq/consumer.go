package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/metrics"
)

// MessageHandler is a function that processes a message
type MessageHandler func(ctx context.Context, body []byte) error

// Consumer handles message consumption from RabbitMQ
type Consumer struct {
	channel          *amqp.Channel
	queue            string
	prefetchCount    int
	logger           *zap.Logger
	messageProcessor MessageHandler
	permanent        func(error) bool
}

// ConsumerConfig holds consumer configuration. Queue is bound to Exchange
// with RoutingKey and dead-letters into DLQQueue.
//
// Permanent classifies handler errors. A permanent failure is dead-lettered
// at once; any other failure is requeued once and dead-lettered if it fails
// again on redelivery. A nil Permanent treats every error as permanent.
type ConsumerConfig struct {
	Connection       *Connection
	Queue            string
	DLQQueue         string
	Exchange         string
	RoutingKey       string
	PrefetchCount    int
	Logger           *zap.Logger
	MessageProcessor MessageHandler
	Permanent        func(error) bool
}

// NewConsumer creates a new RabbitMQ consumer and declares its topology
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	ch, err := cfg.Connection.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		return nil, err
	}

	return &Consumer{
		channel:          ch,
		queue:            cfg.Queue,
		prefetchCount:    cfg.PrefetchCount,
		logger:           cfg.Logger,
		messageProcessor: cfg.MessageProcessor,
		permanent:        cfg.Permanent,
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	err := ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// DLQ first so the dead-letter route exists before anything is rejected.
	if _, err := ch.QueueDeclare(cfg.DLQQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.DLQQueue,
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args); err != nil {
		// A queue declared earlier without DLX arguments fails the
		// precondition check and closes the channel.
		return fmt.Errorf("failed to declare queue %s with dead-lettering: %w", cfg.Queue, err)
	}

	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Start starts consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consumer started",
		zap.String("queue", c.queue),
		zap.Int("prefetch", c.prefetchCount),
	)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("consumer context cancelled, stopping")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn("message channel closed")
					return
				}
				c.processMessage(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *Consumer) processMessage(ctx context.Context, msg amqp.Delivery) {
	logger := c.logger.With(
		zap.String("queue", c.queue),
		zap.String("routing_key", msg.RoutingKey),
		zap.String("message_id", msg.MessageId),
		zap.Bool("redelivered", msg.Redelivered),
	)
	logger.Debug("received message from queue", zap.Int("body_size", len(msg.Body)))

	err := c.messageProcessor(ctx, msg.Body)
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			logger.Error("failed to ACK message", zap.Error(ackErr))
			return
		}
		metrics.IngestMessages.WithLabelValues(metrics.IngestAccepted).Inc()
		logger.Debug("message processed and acknowledged")
		return
	}

	outcome := metrics.IngestFailed
	requeue := false
	switch {
	case c.permanent == nil || c.permanent(err):
		outcome = metrics.IngestRejected
		logger.Warn("message rejected", zap.Error(err))
	case !msg.Redelivered:
		outcome = metrics.IngestRetried
		requeue = true
		logger.Warn("message failed, requeueing once", zap.Error(err))
	default:
		logger.Error("message failed after redelivery", zap.Error(err))
	}

	// NACK with requeue=false sends to DLQ
	if nackErr := msg.Nack(false, requeue); nackErr != nil {
		logger.Error("failed to NACK message", zap.Error(nackErr))
		return
	}
	metrics.IngestMessages.WithLabelValues(outcome).Inc()
}

// Close closes the consumer channel
func (c *Consumer) Close() error {
	if c.channel != nil {
		return c.channel.Close()
	}
	return nil
}
