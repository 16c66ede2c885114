package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/metrics"
)

// Memory is an in-process Transport for single-instance deployments and
// tests. A channel exists only while it has at least one subscriber.
type Memory struct {
	buffer int
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]map[*memorySub]struct{}
}

type memorySub struct {
	m       *Memory
	channel string
	ch      chan []byte
	closed  bool
}

// NewMemory creates a transport whose subscribers buffer up to buffer
// messages before they are cut off.
func NewMemory(buffer int, logger *zap.Logger) *Memory {
	if buffer <= 0 {
		buffer = 64
	}
	return &Memory{
		buffer: buffer,
		logger: logger,
		subs:   make(map[string]map[*memorySub]struct{}),
	}
}

// Publish hands msg to every current subscriber of channel without waiting.
// A subscriber with a full buffer is disconnected.
func (m *Memory) Publish(_ context.Context, channel string, msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for s := range m.subs[channel] {
		select {
		case s.ch <- msg:
		default:
			m.logger.Warn("subscriber buffer full, disconnecting",
				zap.String("channel", channel),
				zap.Int("buffer", m.buffer))
			metrics.EventsDropped.WithLabelValues(metrics.DropSlowPeer).Inc()
			m.removeLocked(s)
		}
	}
	return nil
}

// Subscribe registers a new subscriber on channel.
func (m *Memory) Subscribe(_ context.Context, channel string) (Subscription, error) {
	s := &memorySub{m: m, channel: channel, ch: make(chan []byte, m.buffer)}

	m.mu.Lock()
	set, ok := m.subs[channel]
	if !ok {
		set = make(map[*memorySub]struct{})
		m.subs[channel] = set
	}
	set[s] = struct{}{}
	m.mu.Unlock()

	return s, nil
}

// Subscribers reports how many subscribers channel currently has.
func (m *Memory) Subscribers(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[channel])
}

func (m *Memory) removeLocked(s *memorySub) {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	if set, ok := m.subs[s.channel]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(m.subs, s.channel)
		}
	}
}

func (s *memorySub) C() <-chan []byte { return s.ch }

func (s *memorySub) Close() error {
	s.m.mu.Lock()
	s.m.removeLocked(s)
	s.m.mu.Unlock()
	return nil
}
