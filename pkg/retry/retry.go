package retry

import (
	"context"
	"time"

	sretry "github.com/sethvargo/go-retry"

	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
)

// Policy parameterizes the shared supplier retry loop. Order creation and
// cancellation both run through it so backoff behavior lives in one place.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Classify reports whether the error is worth retrying. Defaults to the
	// error-code metadata: dependency and internal failures retry, business
	// rejections and validation failures fail fast.
	Classify func(error) bool
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 2 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 8 * time.Second
	}
	if p.Classify == nil {
		p.Classify = pkgerrors.IsRetryable
	}
	return p
}

// Do runs op under the policy's bounded exponential backoff. The context
// bounds the whole loop, so a stuck supplier cannot hold the caller past its
// deadline. Non-retryable errors are returned immediately.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	p := policy.normalized()

	backoff := sretry.NewExponential(p.BaseDelay)
	backoff = sretry.WithCappedDuration(p.MaxDelay, backoff)
	backoff = sretry.WithMaxRetries(uint64(p.MaxAttempts-1), backoff)

	return sretry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.Classify(err) {
			return sretry.RetryableError(err)
		}
		return err
	})
}
