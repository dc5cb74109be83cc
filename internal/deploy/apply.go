package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/imamik/eksforge/internal/provisioning"
	"github.com/imamik/eksforge/internal/state"
)

// Apply validates ctx.Descriptor, applies its graph and saves the merged
// state to store.
//
// Configuration problems and account mismatches fail before any resource
// is touched and return no result. Otherwise the result lists every
// resource's terminal status; when some resources did not become ready
// the error is a *provisioning.PartialDeploymentError and ready resources
// are left in place.
func Apply(ctx *provisioning.Context, store state.Store) (*Result, error) {
	start := time.Now()
	if err := provisioning.RunPhases(ctx, []provisioning.Phase{provisioning.NewValidationPhase()}); err != nil {
		return nil, err
	}

	// The graph is built before the account check so cycles and dangling
	// references are rejected without a provider call.
	desc := ctx.Descriptor
	d, err := Build(desc, ctx.State)
	if err != nil {
		return nil, err
	}

	if err := provisioning.RunPhases(ctx, []provisioning.Phase{provisioning.NewAccountPhase()}); err != nil {
		return nil, err
	}

	prev, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	changes := state.Classify(prev, d.Desired())
	reportDrift(ctx.Observer, changes)

	runCtx, cancel := context.WithTimeout(ctx, ctx.Timeouts.Deployment)
	defer cancel()
	report, err := d.Pipeline.Run(ctx.WithContext(runCtx))
	if err != nil {
		return nil, err
	}
	ctx.Metrics.ObserveReport(desc.Cluster.Name, report)

	result := newResult(desc.Cluster.Name, report, ctx.State, changes)
	result.StateLocation = store.Location()
	result.Duration = time.Since(start)

	// State is saved even when the run was cancelled, so the ready part of
	// a partial deployment is remembered.
	if err := store.Save(context.WithoutCancel(ctx), record(prev, desc.Cluster.Name, d.Desired(), result, time.Now().UTC())); err != nil {
		return result, fmt.Errorf("failed to save state to %s: %w", store.Location(), err)
	}

	if partial := provisioning.NewPartialDeploymentError(report); partial != nil {
		return result, partial
	}
	return result, nil
}

func reportDrift(observer provisioning.Observer, changes []state.Change) {
	for _, c := range changes {
		observer.Event(provisioning.Event{
			Type:     provisioning.EventResourceDrift,
			Phase:    c.Kind,
			Resource: c.ID,
			Message:  string(c.Action),
		})
	}
	observer.Printf("Plan: %d to create, %d to update, %d unchanged, %d orphaned",
		state.Count(changes, state.ActionCreate), state.Count(changes, state.ActionUpdate),
		state.Count(changes, state.ActionUnchanged), state.Count(changes, state.ActionOrphaned))
}
