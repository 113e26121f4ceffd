package coordinator

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/ziplend/loancoord-go/domain"
)

const (
	maxMutationAttempts = 2
	retryBaseDelay      = 10 * time.Millisecond
)

// retryOnTransientConflict runs a mutating store operation and retries it
// once when the database reported a serialization failure or deadlock.
// Lifecycle conflicts (state guards, constraint violations) are terminal
// and never retried.
func (c *Coordinator) retryOnTransientConflict(ctx context.Context, operation string, fn func() error) error {
	var err error

	for attempt := 1; attempt <= maxMutationAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, domain.ErrTransientConflict) {
			return err
		}

		if attempt == maxMutationAttempts {
			break
		}

		delay := retryBaseDelay + time.Duration(rand.Int63n(int64(retryBaseDelay)))
		c.logWarn(ctx, "retrying after transient conflict",
			"operation", operation, "attempt", attempt, "delay_ms", delay.Milliseconds())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return err
}
