// Package retry wraps avast/retry-go with the backoff policy used for
// outbound gateway and store calls: exponential backoff bounded by a max
// delay, aborting on non-retryable errors via a caller-supplied predicate.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/voxbridge/callengine/internal/logging"
)

// Policy configures Do's backoff shape.
type Policy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultPolicy mirrors spec §6.5's retryCount/retryDelayMs defaults.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, InitialDelay: time.Second, MaxDelay: 4 * time.Second}
}

// Do runs op under exponential backoff, retrying only while retryable
// returns true. log, if non-nil, receives a line per retry attempt.
func Do(ctx context.Context, log logging.Logger, policy Policy, retryable func(error) bool, op func() error) error {
	if policy.Attempts == 0 {
		return op()
	}
	var attempts []error
	err := retry.Do(
		func() error {
			err := op()
			if err != nil {
				attempts = append(attempts, err)
			}
			return err
		},
		retry.RetryIf(retryable),
		retry.Attempts(uint(policy.Attempts)),
		retry.Delay(policy.InitialDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(policy.MaxDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			if log != nil {
				log.Warnw("retrying operation", "attempt", n+1, "max_attempts", policy.Attempts, "error", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("retry: all %d attempts failed (last: %v): %w", len(attempts), lastOf(attempts), err)
	}
	return nil
}

func lastOf(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errs[len(errs)-1]
}
