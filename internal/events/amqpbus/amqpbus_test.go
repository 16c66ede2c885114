package amqpbus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/events"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/mq"
)

func TestBus_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_RABBITMQ_URL")
	if url == "" {
		t.Skip("TEST_RABBITMQ_URL not set")
	}
	conn, err := mq.Dial(url)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	bus, err := New(conn, "vitals.events.test", 8, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })

	ctx := context.Background()
	sub, err := bus.Subscribe(ctx, events.ChannelFor("u1"))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, bus.Publish(ctx, events.ChannelFor("u2"), []byte("other")))
	require.NoError(t, bus.Publish(ctx, events.ChannelFor("u1"), []byte("1")))
	require.NoError(t, bus.Publish(ctx, events.ChannelFor("u1"), []byte("2")))

	for _, want := range []string{"1", "2"} {
		select {
		case msg := <-sub.C():
			assert.Equal(t, want, string(msg))
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}
