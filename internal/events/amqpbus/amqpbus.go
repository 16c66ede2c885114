// Package amqpbus carries events over a RabbitMQ topic exchange. The routing
// key is the channel name. Each subscription binds its own exclusive,
// auto-deleted queue, so a channel has a queue only while someone listens;
// messages published with no bound queue are discarded by the broker.
package amqpbus

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/events"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/metrics"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/mq"
)

// DefaultExchange is the events exchange used when none is configured.
const DefaultExchange = "vitals.events"

// Bus is an events.Transport backed by RabbitMQ.
type Bus struct {
	conn      *mq.Connection
	publisher *mq.Publisher
	exchange  string
	buffer    int
	logger    *zap.Logger
}

// New declares exchange on conn and returns a transport using it.
func New(conn *mq.Connection, exchange string, buffer int, logger *zap.Logger) (*Bus, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if buffer <= 0 {
		buffer = 64
	}
	pub, err := mq.NewPublisher(conn, exchange, logger)
	if err != nil {
		return nil, fmt.Errorf("amqp events publisher: %w", err)
	}
	return &Bus{
		conn:      conn,
		publisher: pub,
		exchange:  exchange,
		buffer:    buffer,
		logger:    logger,
	}, nil
}

// Publish sends msg as a transient message routed by channel.
func (b *Bus) Publish(ctx context.Context, channel string, msg []byte) error {
	return b.publisher.Publish(ctx, channel, msg, false)
}

// Subscribe binds a private queue to channel and starts consuming it.
func (b *Bus) Subscribe(_ context.Context, channel string) (events.Subscription, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare subscriber queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, channel, b.exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to bind subscriber queue: %w", err)
	}

	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumer tag
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	s := &subscription{
		ch:      ch,
		channel: channel,
		out:     make(chan []byte, b.buffer),
		logger:  b.logger,
	}
	go s.pump(deliveries)
	return s, nil
}

// Close closes the publishing channel.
func (b *Bus) Close() error {
	return b.publisher.Close()
}

type subscription struct {
	ch      *amqp.Channel
	channel string
	out     chan []byte
	logger  *zap.Logger
	once    sync.Once
}

func (s *subscription) pump(in <-chan amqp.Delivery) {
	defer close(s.out)
	for d := range in {
		select {
		case s.out <- d.Body:
		default:
			s.logger.Warn("subscriber buffer full, disconnecting",
				zap.String("channel", s.channel))
			metrics.EventsDropped.WithLabelValues(metrics.DropSlowPeer).Inc()
			s.Close() //nolint:errcheck
			return
		}
	}
}

func (s *subscription) C() <-chan []byte { return s.out }

// Close cancels the consumer; the broker then deletes the queue.
func (s *subscription) Close() error {
	var err error
	s.once.Do(func() { err = s.ch.Close() })
	return err
}
