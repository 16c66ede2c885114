package events

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/metrics"
)

// PublisherConfig sizes the delivery workers.
type PublisherConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

type job struct {
	channel string
	event   string
	msg     []byte
}

// Publisher delivers envelopes through a Transport on background workers.
// Each channel hashes to exactly one worker queue, which keeps delivery
// FIFO per channel.
type Publisher struct {
	transport Transport
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
	queues []chan job
	wg     sync.WaitGroup
}

// NewPublisher starts cfg.Workers delivery goroutines.
func NewPublisher(transport Transport, cfg PublisherConfig, logger *zap.Logger) *Publisher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	p := &Publisher{
		transport: transport,
		timeout:   cfg.Timeout,
		logger:    logger,
		now:       time.Now,
		queues:    make([]chan job, cfg.Workers),
	}
	for i := range p.queues {
		q := make(chan job, cfg.QueueSize)
		p.queues[i] = q
		p.wg.Add(1)
		go p.work(q)
	}
	return p
}

// Publish queues event for userID's channel and returns immediately. The
// event is dropped, logged and counted if it cannot be queued.
func (p *Publisher) Publish(userID, event string, payload any) {
	if userID == "" {
		p.drop(metrics.DropEncode, "", event, errors.New("empty user id"))
		return
	}
	channel := ChannelFor(userID)

	env, err := NewEnvelope(channel, event, payload, p.now())
	if err != nil {
		p.drop(metrics.DropEncode, channel, event, err)
		return
	}
	msg, err := json.Marshal(env)
	if err != nil {
		p.drop(metrics.DropEncode, channel, event, err)
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.drop(metrics.DropClosed, channel, event, nil)
		return
	}
	select {
	case p.queues[shard(channel, len(p.queues))] <- job{channel: channel, event: event, msg: msg}:
	default:
		p.drop(metrics.DropQueueFull, channel, event, nil)
	}
}

// Close stops accepting events and waits for queued ones to be delivered or
// for ctx to end.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) work(q <-chan job) {
	defer p.wg.Done()
	for j := range q {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.transport.Publish(ctx, j.channel, j.msg)
		cancel()
		if err != nil {
			derr := &domain.DeliveryError{Channel: j.channel, Event: j.event, Err: err}
			p.logger.Warn("event delivery failed", zap.Error(derr))
			metrics.EventsDropped.WithLabelValues(metrics.DropDelivery).Inc()
			continue
		}
		metrics.EventsPublished.WithLabelValues(j.event).Inc()
		p.logger.Debug("event published",
			zap.String("channel", j.channel),
			zap.String("event", j.event))
	}
}

func (p *Publisher) drop(reason, channel, event string, err error) {
	fields := []zap.Field{
		zap.String("reason", reason),
		zap.String("channel", channel),
		zap.String("event", event),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	p.logger.Warn("event dropped", fields...)
	metrics.EventsDropped.WithLabelValues(reason).Inc()
}

func shard(channel string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(channel)) //nolint:errcheck
	return int(h.Sum32() % uint32(n))
}
