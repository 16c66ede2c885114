package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/identity"
)

const maxReconnectDelay = 30 * time.Second

// WSConfig locates the event stream.
type WSConfig struct {
	URL            string // e.g. ws://localhost:8080/ws
	IdentityHeader string
	UserID         string

	HandshakeTimeout time.Duration
	ReconnectDelay   time.Duration
}

// WSSubscriber streams events from the WebSocket gateway and reconnects with
// exponential backoff whenever the connection drops.
type WSSubscriber struct {
	cfg    WSConfig
	dialer *websocket.Dialer
	logger *zap.Logger

	onConnect func()
	onEvent   func([]byte)

	mu       sync.Mutex
	conn     *websocket.Conn
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWSSubscriber creates a subscriber. Nothing is dialed until Connect.
func NewWSSubscriber(cfg WSConfig, logger *zap.Logger) *WSSubscriber {
	if cfg.IdentityHeader == "" {
		cfg.IdentityHeader = identity.DefaultHeader
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	return &WSSubscriber{
		cfg:       cfg,
		dialer:    &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger:    logger.With(zap.String("url", cfg.URL)),
		onConnect: func() {},
		onEvent:   func([]byte) {},
		stop:      make(chan struct{}),
	}
}

func (w *WSSubscriber) OnConnect(fn func())         { w.onConnect = fn }
func (w *WSSubscriber) OnEvent(fn func(msg []byte)) { w.onEvent = fn }

// Connect dials once and fails if that dial fails. Later drops are retried
// in the background until Disconnect.
func (w *WSSubscriber) Connect(ctx context.Context) error {
	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}
	w.wg.Add(1)
	go w.run(conn)
	return nil
}

// Disconnect closes the connection and stops reconnecting.
func (w *WSSubscriber) Disconnect() error {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.mu.Lock()
		if w.conn != nil {
			w.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout"),
				time.Now().Add(time.Second))
			w.conn.Close()
		}
		w.mu.Unlock()
	})
	w.wg.Wait()
	return nil
}

func (w *WSSubscriber) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set(w.cfg.IdentityHeader, w.cfg.UserID)

	conn, resp, err := w.dialer.DialContext(ctx, w.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", w.cfg.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", w.cfg.URL, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stop:
		conn.Close()
		return nil, ErrClosed
	default:
	}
	w.conn = conn
	return conn, nil
}

func (w *WSSubscriber) run(conn *websocket.Conn) {
	defer w.wg.Done()
	for conn != nil {
		w.logger.Info("stream connected")
		w.onConnect()
		w.read(conn)
		conn = w.redial()
	}
}

func (w *WSSubscriber) read(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.stop:
			default:
				if websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
					w.logger.Info("server requested resync")
				} else {
					w.logger.Warn("stream dropped", zap.Error(err))
				}
			}
			return
		}
		w.onEvent(msg)
	}
}

// redial returns nil once Disconnect has been called.
func (w *WSSubscriber) redial() *websocket.Conn {
	delay := w.cfg.ReconnectDelay
	for {
		select {
		case <-w.stop:
			return nil
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.HandshakeTimeout)
		conn, err := w.dial(ctx)
		cancel()
		if err == nil {
			return conn
		}
		if errors.Is(err, ErrClosed) {
			return nil
		}
		delay = min(delay*2, maxReconnectDelay)
		w.logger.Warn("reconnect failed", zap.Error(err), zap.Duration("retry_in", delay))
	}
}
