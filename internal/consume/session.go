package consume

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aleksandr-gorokhov/komprender/internal/decode"
	"github.com/aleksandr-gorokhov/komprender/internal/telemetry"
)

type State int32

const (
	StateCreated State = iota
	StateSubscribed
	StateSeeking
	StateStreaming
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSubscribed:
		return "subscribed"
	case StateSeeking:
		return "seeking"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

const (
	DefaultMaxMessages       = 100
	DefaultAssignmentTimeout = 9 * time.Second
)

// Session runs one consumption from subscribe to a terminal state. It is
// single use.
type Session struct {
	ID    string
	Topic string
	Mode  Mode

	token    *Token
	consumer ConsumerHandle
	meta     MetadataHandle
	pipeline *decode.Pipeline
	sink     Sink
	resolver Resolver

	maxMessages       int
	assignmentTimeout time.Duration

	started atomic.Bool
	state   atomic.Int32
	emitted atomic.Int64
	log     *slog.Logger
}

func (s *Session) State() State   { return State(s.state.Load()) }
func (s *Session) Emitted() int64 { return s.emitted.Load() }

// Run blocks until the session reaches Completed, Cancelled or Failed.
// Cancellation, by token or by ctx, is not an error.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSessionRan
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.token.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	if s.token.Cancelled() {
		return s.finish(StateCancelled, nil)
	}
	if err := s.consumer.Subscribe(ctx, s.Topic); err != nil {
		if s.stopped(ctx) {
			return s.finish(StateCancelled, nil)
		}
		return s.finish(StateFailed, stageErr(StageSubscribe, ErrSubscription, err))
	}
	s.state.Store(int32(StateSubscribed))

	actx, acancel := context.WithTimeout(ctx, s.assignmentTimeout)
	partitions, err := s.consumer.WaitAssignment(actx)
	acancel()
	if err != nil {
		if s.stopped(ctx) {
			return s.finish(StateCancelled, nil)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return s.finish(StateFailed, stageErr(StageMetadata, ErrMetadataTimeout, err))
		}
		return s.finish(StateFailed, stageErr(StageMetadata, ErrBrokerUnavailable, err))
	}

	s.state.Store(int32(StateSeeking))
	plan, err := s.resolver.Resolve(ctx, s.Mode, s.Topic, partitions, s.meta)
	if err != nil {
		if s.stopped(ctx) {
			return s.finish(StateCancelled, nil)
		}
		return s.finish(StateFailed, &StageError{Stage: StageMetadata, Err: err})
	}
	if err := s.consumer.Seek(ctx, plan); err != nil {
		if s.stopped(ctx) {
			return s.finish(StateCancelled, nil)
		}
		return s.finish(StateFailed, stageErr(StageSeek, ErrSeek, err))
	}
	s.log.Info("session streaming", "partitions", len(partitions))

	s.state.Store(int32(StateStreaming))
	return s.stream(ctx)
}

func (s *Session) stream(ctx context.Context) error {
	msgs, errs := s.consumer.Messages(), s.consumer.Errors()
	for {
		select {
		case <-s.token.Done():
			return s.finish(StateCancelled, nil)
		case <-ctx.Done():
			return s.finish(StateCancelled, nil)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return s.finish(StateFailed, &StageError{Stage: StagePoll, Err: err})
		case m, ok := <-msgs:
			if !ok {
				// The handle reports a fatal error before closing the stream.
				select {
				case err, ok := <-errs:
					if ok && err != nil {
						return s.finish(StateFailed, &StageError{Stage: StagePoll, Err: err})
					}
				default:
				}
				return s.finish(StateCompleted, nil)
			}
			// A message that raced with cancellation is not emitted.
			if s.stopped(ctx) {
				return s.finish(StateCancelled, nil)
			}
			if m == nil {
				continue
			}
			if s.handle(ctx, m) {
				return s.finish(StateCompleted, nil)
			}
		}
	}
}

// handle decodes and emits one message and reports whether the count cap
// was reached.
func (s *Session) handle(ctx context.Context, m *Message) bool {
	rec, err := s.pipeline.Decode(ctx, *m)
	if err != nil {
		s.log.Warn("message dropped", "partition", m.Partition, "offset", m.Offset, "err", err)
		return false
	}
	if err := s.sink.Emit(EventMessageReceived, rec); err != nil {
		s.log.Warn("sink emit failed", "partition", m.Partition, "offset", m.Offset, "err", err)
	}
	telemetry.RecordsEmitted.Inc()
	n := s.emitted.Add(1)
	return s.Mode.capped() && s.maxMessages > 0 && n >= int64(s.maxMessages)
}

func (s *Session) stopped(ctx context.Context) bool {
	return s.token.Cancelled() || ctx.Err() != nil
}

func (s *Session) finish(state State, err error) error {
	s.state.Store(int32(state))
	if err != nil {
		s.log.Error("session failed", "emitted", s.Emitted(), "err", err)
		return err
	}
	s.log.Info("session ended", "state", state.String(), "emitted", s.Emitted())
	return nil
}
