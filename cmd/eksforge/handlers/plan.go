package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/eksforge/internal/deploy"
	"github.com/imamik/eksforge/internal/ui/tui"
)

// Plan validates the descriptor, builds the resource graph and prints the
// apply order with each resource's drift against the last applied state.
// It makes no calls to cloud resource APIs.
func Plan(ctx context.Context, opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	desc, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	env, err := resolveEnvironment(opts)
	if err != nil {
		return err
	}

	store, err := openState(ctx, desc.State, env)
	if err != nil {
		return fmt.Errorf("failed to open state: %w", err)
	}
	prev, err := store.Load(ctx)
	if err != nil {
		return err
	}

	plan, err := deploy.Plan(desc, env, prev)
	if err != nil {
		return err
	}

	if opts.Output == OutputJSON {
		return writeJSON(plan)
	}
	_, err = fmt.Fprint(stdout, tui.RenderPlan(plan))
	return err
}
