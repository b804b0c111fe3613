package consume

import (
	"context"

	"github.com/aleksandr-gorokhov/komprender/internal/decode"
)

type Message = decode.Message

// ConsumerHandle is one throwaway consumer group member. It is owned by a
// single session and closed when the session ends.
type ConsumerHandle interface {
	// Subscribe fails synchronously when the topic cannot be subscribed to.
	Subscribe(ctx context.Context, topic string) error
	// WaitAssignment blocks until the broker has answered with the partitions
	// assigned to this member. No message is delivered before Seek.
	WaitAssignment(ctx context.Context) ([]int32, error)
	Seek(ctx context.Context, plan OffsetPlan) error
	// Messages is closed when the stream ends.
	Messages() <-chan *Message
	// Errors carries unrecoverable poll errors only.
	Errors() <-chan error
	Close() error
}

type MetadataHandle interface {
	Watermarks(ctx context.Context, topic string, partition int32) (Watermark, error)
	Close() error
}

// BrokerProvider creates broker handles for an established connection.
type BrokerProvider interface {
	NewConsumer(groupID string) (ConsumerHandle, error)
	NewMetadataClient() (MetadataHandle, error)
}

// ProviderSource returns the provider of the current connection, or an error
// wrapping ErrConnectionNotEstablished.
type ProviderSource interface {
	Provider() (BrokerProvider, error)
}
