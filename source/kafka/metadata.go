package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"

	"github.com/aleksandr-gorokhov/komprender/internal/consume"
)

// MetadataClient answers partition and watermark queries over a dedicated
// sarama client.
type MetadataClient struct {
	client  sarama.Client
	timeout time.Duration
}

func newMetadataClient(client sarama.Client, timeout time.Duration) *MetadataClient {
	if timeout <= 0 {
		timeout = DefaultMetadataTimeout
	}
	return &MetadataClient{client: client, timeout: timeout}
}

func (m *MetadataClient) Partitions(ctx context.Context, topic string) ([]int32, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	parts, err := callCtx(ctx, func() ([]int32, error) {
		return m.client.Partitions(topic)
	})
	return parts, metadataErr(err)
}

func (m *MetadataClient) Watermarks(ctx context.Context, topic string, partition int32) (consume.Watermark, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	wm, err := callCtx(ctx, func() (consume.Watermark, error) {
		return watermarks(m.client, topic, partition)
	})
	return wm, metadataErr(err)
}

func (m *MetadataClient) Close() error { return m.client.Close() }

func watermarks(client sarama.Client, topic string, partition int32) (consume.Watermark, error) {
	low, err := client.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return consume.Watermark{}, err
	}
	high, err := client.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return consume.Watermark{}, err
	}
	return consume.Watermark{Low: low, High: high}, nil
}
