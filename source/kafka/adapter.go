package kafka

import (
	"context"

	"github.com/aleksandr-gorokhov/komprender/internal/consume"
)

// Adapter is one broker connection. It hands out per-session consumer and
// metadata handles plus long-lived admin and producer clients.
type Adapter interface {
	consume.BrokerProvider

	Configure(Config) error
	// Ping fetches cluster metadata once to prove the brokers are reachable.
	Ping(ctx context.Context) error
	NewAdmin() (TopicAdmin, error)
	NewProducer() (MessageProducer, error)
	Close() error
}

type TopicAdmin interface {
	ListTopics(ctx context.Context, filter string) ([]TopicSummary, error)
	DescribeTopic(ctx context.Context, name string) (TopicDetail, error)
	CreateTopic(ctx context.Context, spec TopicSpec) error
	DeleteTopics(ctx context.Context, names []string) error
	Close() error
}

type MessageProducer interface {
	Send(ctx context.Context, topic string, key, value []byte) (partition int32, offset int64, err error)
	Close() error
}
