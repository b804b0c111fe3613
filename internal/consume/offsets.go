package consume

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aleksandr-gorokhov/komprender/internal/logging"
	"github.com/aleksandr-gorokhov/komprender/internal/telemetry"
)

type OffsetKind int

const (
	OffsetBeginning OffsetKind = iota
	OffsetEnd
	OffsetExact
)

// Offset is either a symbolic position or a concrete offset.
type Offset struct {
	Kind  OffsetKind
	Value int64
}

func Beginning() Offset     { return Offset{Kind: OffsetBeginning} }
func End() Offset           { return Offset{Kind: OffsetEnd} }
func At(value int64) Offset { return Offset{Kind: OffsetExact, Value: value} }

func (o Offset) String() string {
	switch o.Kind {
	case OffsetBeginning:
		return "beginning"
	case OffsetEnd:
		return "end"
	default:
		return fmt.Sprintf("%d", o.Value)
	}
}

// OffsetPlan maps partition id to starting offset. It is applied once.
type OffsetPlan map[int32]Offset

// Watermark holds the earliest retained offset and the next offset to be
// written.
type Watermark struct {
	Low  int64
	High int64
}

const (
	DefaultLastN           = 100
	DefaultMetadataTimeout = 5 * time.Second
)

// Resolver computes per-partition starting offsets.
type Resolver struct {
	// LastN is the message budget shared across partitions in LastN mode.
	LastN int
	// Timeout bounds each watermark request.
	Timeout time.Duration
}

func (r Resolver) Resolve(ctx context.Context, mode Mode, topic string, partitions []int32, meta MetadataHandle) (OffsetPlan, error) {
	if len(partitions) == 0 {
		return nil, ErrEmptyAssignment
	}
	plan := make(OffsetPlan, len(partitions))
	switch mode {
	case FromNow:
		for _, p := range partitions {
			plan[p] = End()
		}
		return plan, nil
	case LastN:
		return r.lastN(ctx, topic, partitions, meta)
	default:
		for _, p := range partitions {
			plan[p] = Beginning()
		}
		return plan, nil
	}
}

// LastNOffset spreads n evenly over count partitions and never goes below
// the low watermark.
func LastNOffset(wm Watermark, n, count int) int64 {
	// ceil(high - n/count) == high - floor(n/count) for integer high.
	target := wm.High - int64(n/count)
	return max(target, wm.Low)
}

type watermarkResult struct {
	partition int32
	wm        Watermark
	err       error
}

func (r Resolver) lastN(ctx context.Context, topic string, partitions []int32, meta MetadataHandle) (OffsetPlan, error) {
	if meta == nil {
		return nil, ErrConnectionNotEstablished
	}
	n := r.LastN
	if n <= 0 {
		n = DefaultLastN
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultMetadataTimeout
	}

	results := make([]watermarkResult, len(partitions))
	var wg sync.WaitGroup
	for i, p := range partitions {
		wg.Add(1)
		go func(i int, p int32) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			wm, err := meta.Watermarks(cctx, topic, p)
			results[i] = watermarkResult{partition: p, wm: wm, err: err}
		}(i, p)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plan := make(OffsetPlan, len(partitions))
	var failed int
	var firstErr, timeoutErr error
	for _, res := range results {
		if res.err != nil {
			failed++
			if timeoutErr == nil && isTimeout(res.err) {
				timeoutErr = res.err
			}
			if firstErr == nil {
				firstErr = res.err
			}
			telemetry.WatermarkErrors.Inc()
			logging.L().Warn("watermark query failed; reading partition from beginning",
				"topic", topic, "partition", res.partition, "err", res.err)
			plan[res.partition] = Beginning()
			continue
		}
		plan[res.partition] = At(LastNOffset(res.wm, n, len(partitions)))
	}

	if failed == len(partitions) {
		if timeoutErr != nil {
			return nil, asKind(ErrMetadataTimeout, timeoutErr)
		}
		return nil, asKind(ErrBrokerUnavailable, firstErr)
	}
	return plan, nil
}

func asKind(kind, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrMetadataTimeout)
}
