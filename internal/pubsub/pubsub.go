package pubsub

import "context"

// Channel names shared with the transport.
const (
	ChannelIn  = "game:events:in"
	ChannelOut = "game:events:out"
)

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type Subscriber interface {
	// Subscribe returns a channel of raw payloads. The channel closes when
	// ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

type Broker interface {
	Publisher
	Subscriber
}
