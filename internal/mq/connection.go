package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Connection wraps RabbitMQ connection
type Connection struct {
	conn *amqp.Connection
}

// Dial connects to RabbitMQ without lifecycle management. Callers close the
// connection themselves.
func Dial(url string) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("[RABBITMQ CONNECTION FAILED] cannot connect to RabbitMQ. Please check: 1) RabbitMQ is running, 2) RABBITMQ_URL is correct, 3) Credentials are valid. Error: %w", err)
	}
	return &Connection{conn: conn}, nil
}

// NewConnection creates a new RabbitMQ connection closed by the fx lifecycle
func NewConnection(lc fx.Lifecycle, logger *zap.Logger, url string) (*Connection, error) {
	logger.Info("attempting to connect to RabbitMQ...")

	mqConn, err := Dial(url)
	if err != nil {
		logger.Error("rabbitmq connection failed", zap.Error(err))
		return nil, err
	}

	// A broker-side close stops both the ingest consumer and the amqp event
	// transport; the process has to be restarted to recover.
	lost := mqConn.conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if amqpErr, ok := <-lost; ok && amqpErr != nil {
			logger.Error("rabbitmq connection lost",
				zap.Int("code", amqpErr.Code),
				zap.String("reason", amqpErr.Reason))
		}
	}()

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("rabbitmq connection established successfully")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := mqConn.Close(); err != nil {
				logger.Error("failed to close rabbitmq connection", zap.Error(err))
				return err
			}
			logger.Info("rabbitmq connection closed")
			return nil
		},
	})

	return mqConn, nil
}

// Channel creates a new RabbitMQ channel
func (c *Connection) Channel() (*amqp.Channel, error) {
	return c.conn.Channel()
}

// Close closes the underlying connection and every channel opened on it.
func (c *Connection) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}
