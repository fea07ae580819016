package coordinator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nebula-analytics/nebula/errs"
)

// withRetry retries fn under exponential backoff, per spec.md §7:
// NODE_UNREACHABLE and TIMEOUT are retried; every other error (including
// CANCELED) is permanent. maxElapsed bounds total retry time.
func withRetry(ctx context.Context, maxElapsed time.Duration, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed

	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if errs.NodeUnreachable.Is(err) || errs.Timeout.Is(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
