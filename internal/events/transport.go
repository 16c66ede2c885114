package events

import "context"

// Transport moves encoded envelopes between publishers and subscribers.
// Publishing to a channel with no subscriber drops the message.
type Transport interface {
	Publish(ctx context.Context, channel string, msg []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription delivers one channel's messages in publish order. C is
// closed when the subscription ends, either through Close or because the
// transport gave up on a slow reader.
type Subscription interface {
	C() <-chan []byte
	Close() error
}
