package consume

import (
	"errors"
	"fmt"

	"github.com/aleksandr-gorokhov/komprender/internal/decode"
)

var (
	ErrConnectionNotEstablished = errors.New("connection not established")
	ErrSubscription             = errors.New("subscription failed")
	ErrMetadataTimeout          = errors.New("metadata request timed out")
	ErrBrokerUnavailable        = errors.New("broker unavailable")
	ErrEmptyAssignment          = errors.New("no partitions assigned")
	ErrSeek                     = errors.New("seek failed")
	ErrSessionRan               = errors.New("session already ran")

	// ErrPayloadDecode is never returned by a session; per-message decode
	// failures are logged and the stream continues.
	ErrPayloadDecode = decode.ErrPayloadDecode
)

// Stage names the step of a session that failed.
type Stage string

const (
	StageSubscribe Stage = "subscribe"
	StageMetadata  Stage = "metadata"
	StageSeek      Stage = "seek"
	StagePoll      Stage = "poll"
)

type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("consume %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// stageErr tags cause with kind unless it already carries it.
func stageErr(stage Stage, kind, cause error) error {
	err := kind
	switch {
	case cause == nil:
	case errors.Is(cause, kind):
		err = cause
	default:
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	return &StageError{Stage: stage, Err: err}
}
