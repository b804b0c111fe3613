package kafka

import (
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	jsoniter "github.com/json-iterator/go"

	"github.com/aleksandr-gorokhov/komprender/internal/decode"
	"github.com/aleksandr-gorokhov/komprender/internal/logging"
	"github.com/aleksandr-gorokhov/komprender/sink"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config mirrors decoded records into Topic on Brokers.
type Config struct {
	Brokers []string `koanf:"brokers" yaml:"brokers"`
	Topic   string   `koanf:"topic" yaml:"topic"`
	Acks    int16    `koanf:"required_acks" yaml:"required_acks"` // 0,1,-1
}

type driver struct {
	cfg Config
	p   sarama.AsyncProducer

	once sync.Once
	done chan struct{}
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: want Config, got %T", c)
	}
	if cfg.Topic == "" || len(cfg.Brokers) == 0 {
		return errors.New("kafka-sink: brokers and topic are required")
	}

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Errors = true
	p, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return err
	}
	d.start(cfg, p)
	return nil
}

func (d *driver) start(cfg Config, p sarama.AsyncProducer) {
	d.cfg, d.p = cfg, p
	d.done = make(chan struct{})
	go d.drain()
}

// drain logs delivery failures; they never reach the session.
func (d *driver) drain() {
	defer close(d.done)
	for perr := range d.p.Errors() {
		logging.Component("sink.kafka").Warn("mirror delivery failed", "topic", d.cfg.Topic, "err", perr.Err)
	}
}

func (d *driver) Emit(_ string, rec decode.Record) error {
	if d.p == nil {
		return errors.New("kafka-sink: not configured")
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{Topic: d.cfg.Topic, Value: sarama.ByteEncoder(body)}
	if rec.Key != "" {
		msg.Key = sarama.StringEncoder(rec.Key)
	}
	d.p.Input() <- msg
	return nil
}

func (d *driver) Close() error {
	var err error
	d.once.Do(func() {
		if d.p == nil {
			return
		}
		err = d.p.Close()
		<-d.done
	})
	return err
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
