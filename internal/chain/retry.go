package chain

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
)

const (
	defaultRetryDelay = 100 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
)

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if baseDelay <= 0 {
		baseDelay = defaultRetryDelay
	}

	var err error
	for attempt, delay := 0, baseDelay; ; attempt, delay = attempt+1, min(delay*2, maxRetryDelay) {
		if err = fn(ctx); err == nil || permanent(err) || attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// a missing receipt is an answer, not an RPC failure
func permanent(err error) bool {
	return errors.Is(err, ethereum.NotFound) || errors.Is(err, context.Canceled)
}
