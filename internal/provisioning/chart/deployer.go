package chart

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/imamik/eksforge/internal/config"
	"github.com/imamik/eksforge/internal/provisioning"
)

const phase = "chart"

// ResourceID returns the graph identity of a chart release.
func ResourceID(namespace, release string) string {
	return "chart/" + namespace + "/" + release
}

// Deployer installs one chart release.
type Deployer struct {
	id   string
	spec config.ChartRelease
}

// NewDeployer creates the deployer of one release.
func NewDeployer(spec config.ChartRelease) *Deployer {
	return &Deployer{id: ResourceID(spec.Namespace, spec.Release), spec: spec}
}

// Name implements the provisioning.Phase interface.
func (d *Deployer) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface.
func (d *Deployer) Provision(ctx *provisioning.Context) error {
	return d.Deploy(ctx)
}

// Deploy waits for the release's prerequisites and installs or upgrades
// it. A release already deployed with the same chart and values is left
// alone. An expired release timeout is a TimeoutError; a cancelled deployment
// returns the context error and leaves the release untouched.
func (d *Deployer) Deploy(ctx *provisioning.Context) error {
	cluster, err := ctx.State.Cluster.Wait(ctx)
	if err != nil {
		return &provisioning.PrerequisiteNotReadyError{Resource: d.id, Prerequisite: "cluster", Err: err}
	}
	if _, err := cluster.Federation.Wait(ctx); err != nil {
		return &provisioning.PrerequisiteNotReadyError{Resource: d.id, Prerequisite: "federation", Err: err}
	}
	if d.spec.ServiceAccount != "" {
		binding, ok := ctx.State.Binding(d.spec.ServiceAccount)
		if !ok {
			return config.NewConfigurationError("charts."+d.spec.Release+".serviceAccount",
				"workload identity %s is not declared", d.spec.ServiceAccount)
		}
		if _, err := binding.Role.Wait(ctx); err != nil {
			return &provisioning.PrerequisiteNotReadyError{Resource: d.id, Prerequisite: "identity/" + d.spec.ServiceAccount, Err: err}
		}
	}

	installer, err := ctx.Kube.Charts(ctx, cluster, d.spec.Namespace)
	if err != nil {
		return provisioning.ProviderError(d.id, "connect chart client", err)
	}

	req := provisioning.ChartRequest{
		Release:    d.spec.Release,
		Chart:      d.spec.Chart,
		Repository: d.spec.Repository,
		Version:    d.spec.Version,
		Namespace:  d.spec.Namespace,
		Wait:       d.spec.Wait,
		Timeout:    d.spec.Timeout.Duration,
		Values:     Values(d.spec, cluster.Name),
	}

	current, err := installer.UpToDate(ctx, req)
	if err != nil {
		return provisioning.ProviderError(d.id, "read release", err)
	}
	if current {
		provisioning.LogResourceExists(ctx.Observer, phase, "release", d.spec.Release, d.spec.Namespace+"/"+d.spec.Release)
		ctx.State.SetProviderID(d.id, d.spec.Namespace+"/"+d.spec.Release)
		return nil
	}

	installCtx := context.Context(ctx)
	if req.Wait && req.Timeout > 0 {
		var cancel context.CancelFunc
		installCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
		provisioning.LogResourceWaiting(ctx.Observer, phase, d.spec.Release, req.Timeout)
	}

	provisioning.LogResourceCreating(ctx.Observer, phase, "release", d.spec.Release)
	start := time.Now()
	if err := installer.InstallOrUpgrade(installCtx, req); err != nil {
		if ctx.Err() != nil {
			ctx.Observer.Printf("[%s] Deployment cancelled while applying %s, leaving release as is", phase, d.spec.Release)
			return ctx.Err()
		}
		if req.Wait && isTimeout(installCtx, err) {
			return &provisioning.TimeoutError{Resource: d.id, Timeout: req.Timeout, Err: err}
		}
		return provisioning.ProviderError(d.id, "install release", err)
	}
	ctx.Observer.Printf("[%s] Release %s ready after %s", phase, d.spec.Release, time.Since(start).Round(time.Second))

	ctx.State.SetProviderID(d.id, d.spec.Namespace+"/"+d.spec.Release)
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		ctx.Err() == context.DeadlineExceeded ||
		strings.Contains(err.Error(), "timed out waiting for the condition")
}
