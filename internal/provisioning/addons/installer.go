package addons

import (
	"context"
	"fmt"

	"github.com/imamik/eksforge/internal/config"
	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
	"github.com/imamik/eksforge/internal/provisioning"
)

const phase = "addon"

// ResourceID returns the graph identity of an add-on.
func ResourceID(name string) string {
	return "addon/" + name
}

// ConflictMode maps a conflict policy to the provider's resolution mode.
// overwrite replaces a drifted instance; fail leaves it and reports the
// conflict.
func ConflictMode(policy config.ConflictPolicy) (string, error) {
	switch policy {
	case config.ConflictOverwrite:
		return awsplatform.ResolveConflictsOverwrite, nil
	case config.ConflictFail, "":
		return awsplatform.ResolveConflictsNone, nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q", policy)
	}
}

// Installer installs one add-on.
type Installer struct {
	id   string
	spec config.AddonSpec
}

// NewInstaller creates the installer of one add-on.
func NewInstaller(spec config.AddonSpec) *Installer {
	return &Installer{id: ResourceID(spec.Name), spec: spec}
}

// Name implements the provisioning.Phase interface.
func (i *Installer) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface.
func (i *Installer) Provision(ctx *provisioning.Context) error {
	return i.Install(ctx)
}

// Install creates or updates the add-on and waits until it is active.
func (i *Installer) Install(ctx *provisioning.Context) error {
	mode, err := ConflictMode(i.spec.ResolveConflicts)
	if err != nil {
		return config.NewConfigurationError("addons."+i.spec.Name+".resolveConflicts", "%v", err)
	}

	cluster, err := ctx.State.Cluster.Wait(ctx)
	if err != nil {
		return &provisioning.PrerequisiteNotReadyError{Resource: i.id, Prerequisite: "cluster", Err: err}
	}

	roleARN, err := i.roleARN(ctx)
	if err != nil {
		return err
	}

	provisioning.LogResourceCreating(ctx.Observer, phase, "add-on", i.spec.Name)
	addon, err := ctx.Cloud.EnsureAddon(ctx, awsplatform.AddonSpec{
		Cluster:               cluster.Name,
		Name:                  i.spec.Name,
		Version:               i.spec.Version,
		ResolveConflicts:      mode,
		ServiceAccountRoleARN: roleARN,
		Tags:                  awsplatform.ManagedTags(cluster.Name, nil),
	})
	if err != nil {
		return provisioning.ProviderError(i.id, "install add-on", err)
	}

	timeout := ctx.Timeouts.Addon
	provisioning.LogResourceWaiting(ctx.Observer, phase, i.spec.Name, timeout)
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ctx.Cloud.WaitAddonActive(waitCtx, cluster.Name, i.spec.Name, timeout); err != nil {
		if waitCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return &provisioning.TimeoutError{Resource: i.id, Timeout: timeout, Err: err}
		}
		return provisioning.ProviderError(i.id, "wait for add-on", err)
	}
	provisioning.LogResourceCreated(ctx.Observer, phase, "add-on", i.spec.Name, addon.ARN)

	ctx.State.SetProviderID(i.id, addon.ARN)
	return nil
}

// roleARN resolves the role of the add-on's workload identity, or "" when
// the add-on runs with the node role.
func (i *Installer) roleARN(ctx *provisioning.Context) (string, error) {
	if i.spec.ServiceAccount == "" {
		return "", nil
	}
	binding, ok := ctx.State.Binding(i.spec.ServiceAccount)
	if !ok {
		return "", config.NewConfigurationError("addons."+i.spec.Name+".serviceAccount",
			"workload identity %s is not declared", i.spec.ServiceAccount)
	}
	arn, err := binding.Role.Wait(ctx)
	if err != nil {
		return "", &provisioning.PrerequisiteNotReadyError{Resource: i.id, Prerequisite: "identity/" + i.spec.ServiceAccount, Err: err}
	}
	return arn, nil
}
