package contract

import (
	"context"
	"errors"
	"time"

	"stakedesk/internal/provider"
)

const (
	readRetries    = 2
	readRetryDelay = 100 * time.Millisecond
)

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = readRetryDelay
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !retryable(err) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}

// retryable reports whether a read failure is worth repeating. Coded wallet
// errors (rejections, reverts) are final; transport faults are not.
func retryable(err error) bool {
	var rpcErr *provider.RPCError
	return !errors.As(err, &rpcErr)
}
