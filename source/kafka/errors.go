package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/aleksandr-gorokhov/komprender/internal/consume"
)

var fatalErrors = []error{
	sarama.ErrClosedConsumerGroup,
	sarama.ErrClosedClient,
	sarama.ErrOutOfBrokers,
	sarama.ErrUnknownTopicOrPartition,
	sarama.ErrTopicAuthorizationFailed,
	sarama.ErrGroupAuthorizationFailed,
	sarama.ErrClusterAuthorizationFailed,
	sarama.ErrSASLAuthenticationFailed,
}

// IsFatal reports whether a consumer error ends the stream. Everything else
// (request timeouts, leader moves, rebalances) is retried by sarama.
func IsFatal(err error) bool {
	for _, target := range fatalErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// metadataErr maps a failed metadata call onto the consume error kinds.
func metadataErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", consume.ErrMetadataTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", consume.ErrBrokerUnavailable, err)
	}
}

// callCtx runs a blocking sarama call and gives up when ctx is done. The call
// itself keeps running in the background until sarama returns.
func callCtx[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
