package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return pkgerrors.New(pkgerrors.CodeDependency, "supplier 503")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return pkgerrors.New(pkgerrors.CodeDependency, "supplier down")
	})

	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestDoFailsFastOnBusinessRejection(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return pkgerrors.New(pkgerrors.CodeBusinessRejection, "offer no longer available")
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, pkgerrors.CodeBusinessRejection, pkgerrors.As(err).Code())
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		cancel()
		return pkgerrors.New(pkgerrors.CodeDependency, "timeout")
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDoCustomClassifier(t *testing.T) {
	calls := 0
	policy := fastPolicy(3)
	policy.Classify = func(error) bool { return false }

	err := Do(context.Background(), policy, func(ctx context.Context) error {
		calls++
		return pkgerrors.New(pkgerrors.CodeDependency, "would normally retry")
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
}
