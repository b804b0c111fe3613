// Package produce publishes operator supplied messages, either as JSON text
// or encoded with a schema registry subject.
package produce

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/aleksandr-gorokhov/komprender/internal/logging"
	"github.com/aleksandr-gorokhov/komprender/source/kafka"
)

var ErrInvalidPayload = errors.New("invalid payload")

type AdapterSource interface {
	Adapter() (kafka.Adapter, error)
}

// Encoder frames a JSON object with a subject's schema.
type Encoder interface {
	Encode(ctx context.Context, subject string, payload []byte) ([]byte, error)
}

type Result struct {
	Partition int32 `json:"partition"`
	Offset    int64 `json:"offset"`
}

type Service struct {
	adapters AdapterSource
	encoder  Encoder
}

func NewService(adapters AdapterSource, encoder Encoder) *Service {
	return &Service{adapters: adapters, encoder: encoder}
}

// ProduceJSON sends payload unchanged after checking it is valid JSON.
func (s *Service) ProduceJSON(ctx context.Context, topic, key string, payload []byte) (Result, error) {
	if !jsoniter.Valid(payload) {
		return Result{}, fmt.Errorf("%w: not valid JSON", ErrInvalidPayload)
	}
	return s.send(ctx, topic, key, payload)
}

// ProduceAvro encodes a JSON object with the latest schema of subject.
func (s *Service) ProduceAvro(ctx context.Context, topic, key string, payload []byte, subject string) (Result, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' || !jsoniter.Valid(trimmed) {
		return Result{}, fmt.Errorf("%w: payload must be a JSON object", ErrInvalidPayload)
	}
	if s.encoder == nil {
		return Result{}, errors.New("schema registry not configured")
	}
	encoded, err := s.encoder.Encode(ctx, subject, trimmed)
	if err != nil {
		return Result{}, err
	}
	return s.send(ctx, topic, key, encoded)
}

func (s *Service) send(ctx context.Context, topic, key string, value []byte) (Result, error) {
	adapter, err := s.adapters.Adapter()
	if err != nil {
		return Result{}, err
	}
	p, err := adapter.NewProducer()
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logging.Component("produce").Warn("producer close", "err", err)
		}
	}()

	part, off, err := p.Send(ctx, topic, []byte(key), value)
	if err != nil {
		return Result{}, fmt.Errorf("produce to %s: %w", topic, err)
	}
	logging.Component("produce").Info("message sent", "topic", topic, "partition", part, "offset", off)
	return Result{Partition: part, Offset: off}, nil
}
