// Package ws serves the real-time event stream over WebSocket.
//
// A client connects to /ws, optionally naming a channel with ?channel=; the
// default is the caller's own channel. The gateway checks channel ownership
// before upgrading, subscribes to the transport, and forwards every
// envelope as one text frame in delivery order. Cross-user subscription
// attempts get 403 and no connection.
package ws

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/events"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/identity"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/metrics"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the connection
	// as dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Gateway upgrades authorized requests and streams one channel per
// connection.
type Gateway struct {
	transport events.Transport
	header    string
	logger    *zap.Logger
	upgrader  websocket.Upgrader
	active    atomic.Int64
}

// NewGateway creates a gateway reading the actor id from identityHeader.
func NewGateway(transport events.Transport, identityHeader string, logger *zap.Logger) *Gateway {
	return &Gateway{
		transport: transport,
		header:    identityHeader,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origin checks belong to the reverse proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Count returns the number of open connections.
func (g *Gateway) Count() int {
	return int(g.active.Load())
}

// ServeHTTP authorizes, subscribes and then blocks serving the connection
// until either side closes it.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.FromRequest(r, g.header)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = events.ChannelFor(actor)
	}
	if err := events.Authorize(channel, actor); err != nil {
		g.logger.Warn("subscription denied",
			zap.String("actor_id", actor),
			zap.String("channel", channel))
		writeError(w, http.StatusForbidden, "forbidden", "channel not owned by caller")
		return
	}

	// Subscribe before upgrading so nothing published after the handshake
	// completes is missed.
	sub, err := g.transport.Subscribe(r.Context(), channel)
	if err != nil {
		g.logger.Error("subscribe failed", zap.String("channel", channel), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "unavailable", "event transport unavailable")
		return
	}
	defer sub.Close()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	g.active.Add(1)
	metrics.WSConnections.Inc()
	defer func() {
		g.active.Add(-1)
		metrics.WSConnections.Dec()
	}()

	logger := g.logger.With(zap.String("actor_id", actor), zap.String("channel", channel))
	logger.Debug("websocket connected")

	done := make(chan struct{})
	go writePump(conn, sub, done, logger)
	readPump(conn)
	close(done)
	logger.Debug("websocket disconnected")
}

// writePump forwards subscription messages and sends pings. When the
// transport ends the subscription the client is sent a close frame so it
// reconnects and resyncs.
func writePump(conn *websocket.Conn, sub events.Subscription, done <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.C():
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				logger.Info("subscription ended by transport")
				conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "resync required"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

// readPump only processes control frames. Blocks until the connection
// closes.
func readPump(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"code": code, "message": msg}) //nolint:errcheck
}
