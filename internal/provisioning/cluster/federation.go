package cluster

import (
	"context"
	"errors"
	"slices"

	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
	"github.com/imamik/eksforge/internal/provisioning"
	"github.com/imamik/eksforge/internal/util/retry"
)

// FederationID returns the graph identity of a cluster's federation node.
func FederationID(cluster string) string {
	return "federation/" + cluster
}

var errIssuerPending = errors.New("federation issuer not yet published")

// Federation waits for the provider to publish the cluster's federation
// issuer and registers it as an identity provider.
type Federation struct {
	id string
}

// NewFederation creates the federation phase for a cluster.
func NewFederation(cluster string) *Federation {
	return &Federation{id: FederationID(cluster)}
}

// Name implements the provisioning.Phase interface.
func (f *Federation) Name() string {
	return "federation"
}

// Provision implements the provisioning.Phase interface. It settles the
// cluster handle's Federation promise.
func (f *Federation) Provision(ctx *provisioning.Context) error {
	cluster, err := ctx.State.Cluster.Wait(ctx)
	if err != nil {
		return &provisioning.PrerequisiteNotReadyError{Resource: f.id, Prerequisite: "cluster", Err: err}
	}

	fed, err := f.publish(ctx, cluster)
	if err != nil {
		cluster.Federation.Fail(err)
		return err
	}
	cluster.Federation.Resolve(fed)
	return nil
}

func (f *Federation) publish(ctx *provisioning.Context, cluster *provisioning.ClusterHandle) (provisioning.Federation, error) {
	issuer, err := f.waitIssuer(ctx, cluster.Name)
	if err != nil {
		return provisioning.Federation{}, err
	}
	ctx.Observer.Printf("[%s] Federation issuer of %s is %s", phase, cluster.Name, issuer)

	providerARN, err := ctx.Cloud.EnsureOIDCProvider(ctx, issuer, audiences(ctx.State),
		awsplatform.ManagedTags(cluster.Name, nil))
	if err != nil {
		return provisioning.Federation{}, provisioning.ProviderError(f.id, "register identity provider", err)
	}

	ctx.State.SetProviderID(f.id, providerARN)
	ctx.State.SetOutput(provisioning.OutputOIDCIssuer, issuer)
	return provisioning.Federation{Issuer: issuer, ProviderARN: providerARN}, nil
}

// waitIssuer polls the control plane until the issuer URL is set. Running
// out of attempts is a PrerequisiteNotReadyError.
func (f *Federation) waitIssuer(ctx *provisioning.Context, name string) (string, error) {
	var issuer string
	err := retry.Poll(ctx, func(c context.Context) (bool, error) {
		cl, err := ctx.Cloud.DescribeCluster(c, name)
		if err != nil {
			if awsplatform.IsRejection(err) {
				return false, retry.Fatal(err)
			}
			return false, err
		}
		issuer = cl.Issuer
		return issuer != "", nil
	},
		retry.WithMaxRetries(ctx.Timeouts.RetryMaxAttempts),
		retry.WithInitialDelay(ctx.Timeouts.RetryInitialDelay),
	)
	if err == nil {
		return issuer, nil
	}
	if retry.IsFatal(err) {
		return "", provisioning.ProviderError(f.id, "describe control plane", err)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return "", &provisioning.PrerequisiteNotReadyError{
		Resource:     f.id,
		Prerequisite: "federation issuer",
		Err:          errors.Join(errIssuerPending, err),
	}
}

// audiences collects the audience claims of every declared binding.
func audiences(state *provisioning.State) []string {
	var out []string
	for _, b := range state.Bindings() {
		if !slices.Contains(out, b.Spec.Audience) {
			out = append(out, b.Spec.Audience)
		}
	}
	if len(out) == 0 {
		out = []string{"sts.amazonaws.com"}
	}
	slices.Sort(out)
	return out
}
