package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/eksforge/internal/util/retry"
)

// call runs one provider request through the rate limiter and retries it
// while the error is transient. Other errors are returned unchanged.
func call[T any](ctx context.Context, c *RealClient, operation string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := retry.WithExponentialBackoff(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Fatal(err)
		}
		res, err := fn(ctx)
		if err != nil {
			if IsRetryable(err) {
				return err
			}
			return retry.Fatal(err)
		}
		out = res
		return nil
	},
		retry.WithMaxRetries(c.timeouts.RetryMaxAttempts),
		retry.WithInitialDelay(c.timeouts.RetryInitialDelay))
	if err != nil {
		return out, fmt.Errorf("%s: %w", operation, unwrapFatal(err))
	}
	return out, nil
}

func unwrapFatal(err error) error {
	var fatal *retry.FatalError
	if errors.As(err, &fatal) {
		return fatal.Err
	}
	return err
}

// EnsureOperation encapsulates get-or-create logic for any provider
// resource. It supports an optional update for existing resources.
//
// Usage example:
//
//	return (&EnsureOperation[*Role]{
//	    Name:         spec.Name,
//	    ResourceType: "role",
//	    Get:          func(ctx context.Context) (*Role, error) { return c.getRole(ctx, spec.Name) },
//	    Create:       func(ctx context.Context) (*Role, error) { return c.createRole(ctx, spec) },
//	    Update:       func(ctx context.Context, r *Role) (*Role, error) { return c.updateTrust(ctx, r, spec) },
//	}).Execute(ctx)
type EnsureOperation[T comparable] struct {
	Name         string
	ResourceType string

	// Get returns the existing resource or the zero value when it does
	// not exist.
	Get func(ctx context.Context) (T, error)

	// Create creates the resource.
	Create func(ctx context.Context) (T, error)

	// Update reconciles an existing resource (optional).
	Update func(ctx context.Context, existing T) (T, error)
}

// Execute gets the resource, updates it if it exists, or creates it. A
// create that races with a concurrent create falls back to Get.
func (op *EnsureOperation[T]) Execute(ctx context.Context) (T, error) {
	var zero T

	existing, err := op.Get(ctx)
	if err != nil {
		return zero, fmt.Errorf("failed to get %s %s: %w", op.ResourceType, op.Name, err)
	}
	if existing != zero {
		if op.Update == nil {
			return existing, nil
		}
		updated, err := op.Update(ctx, existing)
		if err != nil {
			return zero, fmt.Errorf("failed to update %s %s: %w", op.ResourceType, op.Name, err)
		}
		return updated, nil
	}

	created, err := op.Create(ctx)
	if err != nil {
		if IsAlreadyExists(err) {
			existing, getErr := op.Get(ctx)
			if getErr == nil && existing != zero {
				return existing, nil
			}
		}
		return zero, fmt.Errorf("failed to create %s %s: %w", op.ResourceType, op.Name, err)
	}
	return created, nil
}
