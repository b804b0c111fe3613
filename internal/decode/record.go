// Package decode turns raw broker payloads into structured records. A
// Pipeline evaluates an ordered list of strategies (schema registry Avro,
// JSON, plain text); the first strategy that accepts a payload wins.
package decode

import (
	"errors"
	"fmt"
	"time"
)

// Message is a raw record as delivered by the broker.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Record is one decoded message. Value is a JSON-like tree: nil, bool,
// int64, uint64 (above the int64 range), float64, string, []any or
// map[string]any.
type Record struct {
	Key       string `json:"key"`
	Value     any    `json:"value"`
	Partition int32  `json:"partition"`
	Offset    int64  `json:"offset"`
}

var ErrPayloadDecode = errors.New("payload decode error")

// PayloadError reports a message that was dropped. It is never fatal to the
// stream that produced it.
type PayloadError struct {
	Partition int32
	Offset    int64
	Reason    string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("partition %d offset %d: %s", e.Partition, e.Offset, e.Reason)
}

func (e *PayloadError) Unwrap() error { return ErrPayloadDecode }
