package kafka

import (
	"context"

	"github.com/IBM/sarama"
)

// Producer sends single messages synchronously.
type Producer struct {
	producer sarama.SyncProducer
	client   sarama.Client
}

func newProducer(p sarama.SyncProducer, client sarama.Client) *Producer {
	return &Producer{producer: p, client: client}
}

func (p *Producer) Send(ctx context.Context, topic string, key, value []byte) (int32, int64, error) {
	msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.ByteEncoder(value)}
	if len(key) > 0 {
		msg.Key = sarama.ByteEncoder(key)
	}
	type delivery struct {
		partition int32
		offset    int64
	}
	d, err := callCtx(ctx, func() (delivery, error) {
		part, off, err := p.producer.SendMessage(msg)
		return delivery{part, off}, err
	})
	return d.partition, d.offset, err
}

func (p *Producer) Close() error {
	err := p.producer.Close()
	if p.client != nil {
		if cerr := p.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
