package decode

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/aleksandr-gorokhov/komprender/internal/logging"
	"github.com/aleksandr-gorokhov/komprender/internal/telemetry"
)

// Outcome is the tri-state result of a single strategy.
type Outcome int

const (
	// Decoded means the strategy produced a value.
	Decoded Outcome = iota
	// Skipped hands the payload to the next strategy.
	Skipped
	// Failed stops the chain; the message is dropped.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Decoded:
		return "decoded"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

type Strategy interface {
	Name() string
	Decode(ctx context.Context, payload []byte) (any, Outcome, error)
}

// Pipeline holds no mutable state and is safe for concurrent use.
type Pipeline struct {
	strategies []Strategy
}

func NewPipeline(strategies ...Strategy) *Pipeline {
	return &Pipeline{strategies: strategies}
}

// Default builds the schema registry → JSON → text chain.
func Default(src DecoderSource) *Pipeline {
	return NewPipeline(Registry(src), JSON(), Text())
}

// Decode never panics. A non-nil error is always a *PayloadError and means
// the message produced no record.
func (p *Pipeline) Decode(ctx context.Context, m Message) (Record, error) {
	for _, s := range p.strategies {
		v, outcome, err := safeDecode(ctx, s, m.Value)
		switch outcome {
		case Decoded:
			telemetry.DecodeTotal.WithLabelValues(s.Name()).Inc()
			return Record{Key: keyString(m.Key), Value: v, Partition: m.Partition, Offset: m.Offset}, nil
		case Failed:
			telemetry.DecodeDropped.Inc()
			return Record{}, &PayloadError{Partition: m.Partition, Offset: m.Offset, Reason: reason(s, err)}
		default:
			if err != nil {
				logging.L().Debug("decode strategy skipped payload",
					"strategy", s.Name(), "partition", m.Partition, "offset", m.Offset, "err", err)
			}
		}
	}
	telemetry.DecodeDropped.Inc()
	return Record{}, &PayloadError{Partition: m.Partition, Offset: m.Offset, Reason: "no strategy accepted the payload"}
}

func safeDecode(ctx context.Context, s Strategy, payload []byte) (v any, outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, outcome, err = nil, Skipped, fmt.Errorf("%s strategy panicked: %v", s.Name(), r)
		}
	}()
	return s.Decode(ctx, payload)
}

func reason(s Strategy, err error) string {
	if err == nil {
		return s.Name() + " rejected the payload"
	}
	return fmt.Sprintf("%s: %v", s.Name(), err)
}

// keyString decodes the key as UTF-8; anything else yields "".
func keyString(key []byte) string {
	if len(key) == 0 || !utf8.Valid(key) {
		return ""
	}
	return string(key)
}
