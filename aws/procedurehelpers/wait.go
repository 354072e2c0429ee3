package procedurehelpers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrDeletionTimedOut Returned when a resource did not reach a terminal state
// within the time or attempts allowed by the WaitConfig
var ErrDeletionTimedOut = errors.New("deletion timed out")

// errStillPresent is returned by a poll that found the resource still there,
// it is the only error that gets retried
var errStillPresent = errors.New("resource still present")

// The SDK waiters get a deadline slightly beyond ours so that the context we
// control is always the one that expires first
const waiterDeadlineSlack = time.Minute

// WaitConfig Bounds every wait for a terminal state
type WaitConfig struct {
	// Total time allowed for a single resource to reach a terminal state
	Timeout time.Duration
	// Delay before the first re-check
	InitialInterval time.Duration
	// Upper limit on the delay between checks
	MaxInterval time.Duration
	// Maximum number of checks, zero means only Timeout applies
	MaxAttempts uint
}

func DefaultWaitConfig() WaitConfig {
	return WaitConfig{
		Timeout:         30 * time.Minute,
		InitialInterval: 5 * time.Second,
		MaxInterval:     time.Minute,
		MaxAttempts:     120,
	}
}

// Validate Checks that the config can be used by both the backoff polls and
// the SDK waiters
func (c WaitConfig) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("wait timeout must be greater than zero")
	}

	if c.InitialInterval <= 0 {
		return errors.New("wait initial interval must be greater than zero")
	}

	if c.MaxInterval < c.InitialInterval {
		return fmt.Errorf("wait max interval (%v) must not be less than the initial interval (%v)", c.MaxInterval, c.InitialInterval)
	}

	return nil
}

func (c WaitConfig) backOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.InitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         c.MaxInterval,
	}
	b.Reset()

	return b
}

// PollUntilGone Calls check with exponential backoff until it reports that the
// resource is gone. An error from check is treated as permanent and returned
// as-is, running out of time or attempts returns ErrDeletionTimedOut
func PollUntilGone(ctx context.Context, cfg WaitConfig, check func(ctx context.Context) (bool, error)) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		gone, err := check(ctx)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}

		if !gone {
			return struct{}{}, errStillPresent
		}

		return struct{}{}, nil
	},
		backoff.WithBackOff(cfg.backOff()),
		backoff.WithMaxTries(cfg.MaxAttempts),
		backoff.WithMaxElapsedTime(cfg.Timeout),
	)

	if err == nil {
		return nil
	}

	if errors.Is(err, errStillPresent) {
		return fmt.Errorf("%w after %v", ErrDeletionTimedOut, cfg.Timeout)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}

	return err
}

// AwaitWaiter Runs one of the SDK's native waiters within the bounds of the
// config. The waiter is given a deadline just past our own so that a timeout
// is reported as ErrDeletionTimedOut
func AwaitWaiter(ctx context.Context, cfg WaitConfig, wait func(ctx context.Context, maxWaitDur time.Duration) error) error {
	waitCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	err := wait(waitCtx, cfg.Timeout+waiterDeadlineSlack)
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v: %w", ErrDeletionTimedOut, cfg.Timeout, err)
	}

	return err
}

// LimitAttempts Wraps the Retryable func of an SDK waiter so that it gives up
// with ErrDeletionTimedOut after the given number of attempts. Zero means no
// limit
func LimitAttempts[Input any, Output any](maxAttempts uint, retryable func(context.Context, Input, Output, error) (bool, error)) func(context.Context, Input, Output, error) (bool, error) {
	var attempts uint

	return func(ctx context.Context, input Input, output Output, err error) (bool, error) {
		retry, err := retryable(ctx, input, output, err)
		if err != nil || !retry {
			return retry, err
		}

		attempts++
		if maxAttempts > 0 && attempts >= maxAttempts {
			return false, fmt.Errorf("%w after %d attempts", ErrDeletionTimedOut, attempts)
		}

		return true, nil
	}
}
