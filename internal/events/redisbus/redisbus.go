// Package redisbus carries events over Redis Pub/Sub, so every server
// instance sharing one Redis can deliver to any connected client. Pub/Sub
// has no retention: messages for a channel nobody subscribes to are lost.
package redisbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/events"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/metrics"
)

// NewClient creates a Redis client.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Bus is an events.Transport backed by Redis Pub/Sub.
type Bus struct {
	client *redis.Client
	buffer int
	logger *zap.Logger
}

// New wraps client. buffer bounds each subscription's pending messages.
func New(client *redis.Client, buffer int, logger *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{client: client, buffer: buffer, logger: logger}
}

// Publish sends msg to channel.
func (b *Bus) Publish(ctx context.Context, channel string, msg []byte) error {
	if err := b.client.Publish(ctx, channel, msg).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so nothing
// published afterwards is missed.
func (b *Bus) Subscribe(ctx context.Context, channel string) (events.Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	s := &subscription{
		ps:      ps,
		channel: channel,
		out:     make(chan []byte, b.buffer),
		logger:  b.logger,
	}
	go s.pump(ps.Channel())
	return s, nil
}

// Ping checks the connection.
func (b *Bus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

type subscription struct {
	ps      *redis.PubSub
	channel string
	out     chan []byte
	logger  *zap.Logger
	once    sync.Once
}

func (s *subscription) pump(in <-chan *redis.Message) {
	defer close(s.out)
	for msg := range in {
		select {
		case s.out <- []byte(msg.Payload):
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

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() { err = s.ps.Close() })
	return err
}
