package identity

import (
	"fmt"

	"github.com/imamik/eksforge/internal/config"
	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
	"github.com/imamik/eksforge/internal/provisioning"
	"github.com/imamik/eksforge/internal/provisioning/graph"
	"github.com/imamik/eksforge/internal/util/naming"
)

const phase = "identity"

// RoleARNAnnotation is the service account annotation naming the role a
// workload assumes.
const RoleARNAnnotation = "eks.amazonaws.com/role-arn"

// ResourceID returns the graph identity of a workload identity binding.
func ResourceID(ref string) string {
	return "identity/" + ref
}

// DeclareBinding reserves the role shape of a workload identity and
// registers it in state. A second binding with the same subject claim is a
// configuration error.
func DeclareBinding(state *provisioning.State, cluster string, spec config.WorkloadIdentitySpec) (*provisioning.TrustBinding, error) {
	roleName := spec.RoleName
	if roleName == "" {
		roleName = naming.IdentityRole(cluster, spec.Namespace, spec.Name)
	}
	b := &provisioning.TrustBinding{
		Spec:     spec,
		RoleName: roleName,
		Role:     graph.NewPromise[string](ResourceID(spec.Ref())),
	}
	if err := state.RegisterBinding(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Finalize derives the trust document of b from the federation endpoint.
func Finalize(b *provisioning.TrustBinding, fed provisioning.Federation) error {
	if fed.Issuer == "" || fed.ProviderARN == "" {
		return fmt.Errorf("federation endpoint of %s is not published", b.Ref())
	}
	doc, err := WebIdentityTrust(fed.ProviderARN, fed.IssuerHost(), b.Spec.Audience, b.Subject())
	if err != nil {
		return err
	}
	b.Issuer = fed.Issuer
	b.TrustPolicy = doc
	return nil
}

// Binder applies one trust binding.
type Binder struct {
	id      string
	binding *provisioning.TrustBinding
}

// NewBinder creates the binder for a declared binding.
func NewBinder(binding *provisioning.TrustBinding) *Binder {
	return &Binder{id: ResourceID(binding.Ref()), binding: binding}
}

// Name implements the provisioning.Phase interface.
func (b *Binder) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface. The binding's
// role promise is settled either way.
func (b *Binder) Provision(ctx *provisioning.Context) error {
	arn, err := b.Bind(ctx)
	if err != nil {
		b.binding.Role.Fail(err)
		return err
	}
	b.binding.Role.Resolve(arn)
	return nil
}

// Bind waits for the federation endpoint, finalizes the trust document and
// creates the role with its permissions. It returns the role ARN.
func (b *Binder) Bind(ctx *provisioning.Context) (string, error) {
	cluster, err := ctx.State.Cluster.Wait(ctx)
	if err != nil {
		return "", &provisioning.PrerequisiteNotReadyError{Resource: b.id, Prerequisite: "cluster", Err: err}
	}
	fed, err := cluster.Federation.Wait(ctx)
	if err != nil {
		return "", &provisioning.PrerequisiteNotReadyError{Resource: b.id, Prerequisite: "federation", Err: err}
	}
	if err := Finalize(b.binding, fed); err != nil {
		return "", &provisioning.PrerequisiteNotReadyError{Resource: b.id, Prerequisite: "federation", Err: err}
	}

	spec := b.binding.Spec
	provisioning.LogResourceCreating(ctx.Observer, phase, "role", b.binding.RoleName)
	role, err := ctx.Cloud.EnsureRole(ctx, awsplatform.RoleSpec{
		Name:        b.binding.RoleName,
		Description: fmt.Sprintf("Workload identity %s of cluster %s", spec.Ref(), cluster.Name),
		TrustPolicy: b.binding.TrustPolicy,
		Tags:        awsplatform.ManagedTags(cluster.Name, nil),
	})
	if err != nil {
		return "", provisioning.ProviderError(b.id, "ensure role", err)
	}

	for _, name := range spec.ManagedPolicies {
		if err := ctx.Cloud.AttachManagedPolicy(ctx, role.Name, ctx.Env.ManagedPolicyARN(name)); err != nil {
			return "", provisioning.ProviderError(b.id, "attach policy "+name, err)
		}
	}
	for _, p := range spec.InlinePolicies {
		doc, err := config.LoadPolicyDocument(p.File)
		if err != nil {
			return "", config.NewConfigurationError("identities."+spec.Ref()+".inlinePolicies", "%s: %v", p.Name, err)
		}
		body, err := doc.JSON()
		if err != nil {
			return "", err
		}
		if err := ctx.Cloud.PutInlinePolicy(ctx, role.Name, p.Name, body); err != nil {
			return "", provisioning.ProviderError(b.id, "put policy "+p.Name, err)
		}
	}
	provisioning.LogResourceCreated(ctx.Observer, phase, "role", role.Name, role.ARN)

	if spec.ManagesServiceAccount() {
		if cluster.Access == nil {
			return "", fmt.Errorf("%s: cluster %s is not connected", b.id, cluster.Name)
		}
		err := cluster.Access.EnsureServiceAccount(ctx, spec.Namespace, spec.Name, map[string]string{
			RoleARNAnnotation: role.ARN,
		})
		if err != nil {
			return "", provisioning.ProviderError(b.id, "record service account", err)
		}
		ctx.Observer.Printf("[%s] Service account %s annotated with role %s", phase, spec.Ref(), role.Name)
	}

	ctx.State.SetProviderID(b.id, role.ARN)
	return role.ARN, nil
}
