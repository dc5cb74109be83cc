package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errThrottled = errors.New("ThrottlingException: rate exceeded")
	errDenied    = errors.New("AccessDenied: not authorized to perform eks:CreateCluster")
)

func fast(maxRetries int) []Option {
	return []Option{WithMaxRetries(maxRetries), WithInitialDelay(time.Millisecond), WithMaxDelay(5 * time.Millisecond)}
}

func TestWithExponentialBackoff_ThrottledRequestEventuallySucceeds(t *testing.T) {
	t.Parallel()
	requests := 0
	err := WithExponentialBackoff(context.Background(), func() error {
		requests++
		if requests < 3 {
			return errThrottled
		}
		return nil
	}, fast(5)...)

	require.NoError(t, err)
	assert.Equal(t, 3, requests)
}

func TestWithExponentialBackoff_RejectionIsNotRetried(t *testing.T) {
	t.Parallel()
	requests := 0
	err := WithExponentialBackoff(context.Background(), func() error {
		requests++
		return Fatal(errDenied)
	}, fast(5)...)

	require.Error(t, err)
	assert.Equal(t, 1, requests)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, errDenied)
	assert.False(t, IsExhausted(err))
}

func TestWithExponentialBackoff_ExhaustedKeepsLastError(t *testing.T) {
	t.Parallel()
	requests := 0
	err := WithExponentialBackoff(context.Background(), func() error {
		requests++
		return errThrottled
	}, fast(2)...)

	require.Error(t, err)
	// the first request plus two retries
	assert.Equal(t, 3, requests)
	assert.True(t, IsExhausted(err))
	assert.ErrorIs(t, err, errThrottled)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestWithExponentialBackoff_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	requests := 0
	err := WithExponentialBackoff(ctx, func() error {
		requests++
		cancel()
		return errThrottled
	}, WithMaxRetries(5), WithInitialDelay(time.Hour))

	require.Error(t, err)
	assert.Equal(t, 1, requests)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsExhausted(err))
}

func TestWithExponentialBackoff_DelayIsCapped(t *testing.T) {
	t.Parallel()
	var stamps []time.Time
	start := time.Now()
	_ = WithExponentialBackoff(context.Background(), func() error {
		stamps = append(stamps, time.Now())
		return errThrottled
	}, WithMaxRetries(4), WithInitialDelay(2*time.Millisecond), WithMultiplier(10), WithMaxDelay(5*time.Millisecond))

	require.Len(t, stamps, 5)
	// 2ms, then capped at 5ms three times; far below an uncapped 2s.
	assert.Less(t, time.Since(start), time.Second)
}

func TestPoll_IssuerAppearsAfterAFewDescribes(t *testing.T) {
	t.Parallel()
	describes := 0
	var issuer string
	err := Poll(context.Background(), func(context.Context) (bool, error) {
		describes++
		if describes == 3 {
			issuer = "https://oidc.eks.eu-west-1.amazonaws.com/id/EXAMPLE"
		}
		return issuer != "", nil
	}, fast(5)...)

	require.NoError(t, err)
	assert.Equal(t, 3, describes)
	assert.NotEmpty(t, issuer)
}

func TestPoll_ExhaustionWrapsNotReady(t *testing.T) {
	t.Parallel()
	describes := 0
	err := Poll(context.Background(), func(context.Context) (bool, error) {
		describes++
		return false, nil
	}, fast(3)...)

	require.Error(t, err)
	assert.Equal(t, 4, describes)
	assert.True(t, IsExhausted(err))
	assert.ErrorIs(t, err, ErrNotReady)
	assert.False(t, IsFatal(err))
}

func TestPoll_TransientErrorsAreRetried(t *testing.T) {
	t.Parallel()
	describes := 0
	err := Poll(context.Background(), func(context.Context) (bool, error) {
		describes++
		if describes == 1 {
			return false, errThrottled
		}
		return true, nil
	}, fast(3)...)

	require.NoError(t, err)
	assert.Equal(t, 2, describes)
}

func TestPoll_FatalStopsImmediately(t *testing.T) {
	t.Parallel()
	describes := 0
	err := Poll(context.Background(), func(context.Context) (bool, error) {
		describes++
		return false, Fatal(errDenied)
	}, fast(3)...)

	require.Error(t, err)
	assert.Equal(t, 1, describes)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, errDenied)
}

func TestPoll_PassesContextToCondition(t *testing.T) {
	t.Parallel()
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "cluster/demo")

	var seen any
	require.NoError(t, Poll(ctx, func(c context.Context) (bool, error) {
		seen = c.Value(key{})
		return true, nil
	}))
	assert.Equal(t, "cluster/demo", seen)
}

func TestFatal(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Fatal(nil))
	assert.False(t, IsFatal(errThrottled))

	err := Fatal(errDenied)
	assert.Equal(t, errDenied.Error(), err.Error())
	assert.True(t, IsFatal(err))
	assert.True(t, IsFatal(errors.Join(errors.New("create cluster"), err)))
}
