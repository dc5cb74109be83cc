package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// subnetTasks builds one tagging task per subnet; tag runs for each.
func subnetTasks(names []string, tag func(ctx context.Context, name string) error) []Task {
	tasks := make([]Task, 0, len(names))
	for _, n := range names {
		tasks = append(tasks, Task{
			Name: "subnet " + n,
			Func: func(ctx context.Context) error { return tag(ctx, n) },
		})
	}
	return tasks
}

var subnets = []string{
	"vpc-PublicSubnet-1-eu-west-1a",
	"vpc-PublicSubnet-1-eu-west-1b",
	"vpc-PrivateSubnet-1-eu-west-1a",
	"vpc-PrivateSubnet-1-eu-west-1b",
}

func TestRunParallel_TagsEverySubnet(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	tagged := map[string]bool{}

	err := RunParallel(context.Background(), subnetTasks(subnets, func(_ context.Context, name string) error {
		mu.Lock()
		defer mu.Unlock()
		tagged[name] = true
		return nil
	}), 0)

	require.NoError(t, err)
	assert.Len(t, tagged, len(subnets))
}

func TestRunParallel_NoSubnets(t *testing.T) {
	t.Parallel()
	assert.NoError(t, RunParallel(context.Background(), nil, 4))
	assert.NoError(t, RunParallel(context.Background(), []Task{}, 4))
}

func TestRunParallel_FailureDoesNotStopSiblings(t *testing.T) {
	t.Parallel()
	limitExceeded := errors.New("TagLimitExceeded")
	var done atomic.Int32

	err := RunParallel(context.Background(), subnetTasks(subnets, func(_ context.Context, name string) error {
		if name == subnets[1] {
			return limitExceeded
		}
		time.Sleep(5 * time.Millisecond)
		done.Add(1)
		return nil
	}), 0)

	require.Error(t, err)
	assert.ErrorIs(t, err, limitExceeded)
	assert.Contains(t, err.Error(), "subnet "+subnets[1])
	assert.Equal(t, int32(len(subnets)-1), done.Load())
}

func TestRunParallel_ErrorsJoinedInTaskOrder(t *testing.T) {
	t.Parallel()
	err := RunParallel(context.Background(), subnetTasks(subnets, func(_ context.Context, name string) error {
		if name == subnets[0] {
			// finishes last but is reported first
			time.Sleep(10 * time.Millisecond)
		}
		return fmt.Errorf("InvalidSubnetID.NotFound: %s", name)
	}), 0)

	require.Error(t, err)
	var joined interface{ Unwrap() []error }
	require.ErrorAs(t, err, &joined)
	errs := joined.Unwrap()
	require.Len(t, errs, len(subnets))
	for i, name := range subnets {
		assert.Contains(t, errs[i].Error(), "subnet "+name)
	}
}

func TestRunParallel_LimitBoundsConcurrentRequests(t *testing.T) {
	t.Parallel()
	var inFlight, peak atomic.Int32

	err := RunParallel(context.Background(), subnetTasks(subnets, func(context.Context, string) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}), 2)

	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Positive(t, peak.Load())
}

func TestRunParallel_CancelledContextReachesTasks(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunParallel(ctx, subnetTasks(subnets[:2], func(ctx context.Context, _ string) error {
		return ctx.Err()
	}), 0)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
