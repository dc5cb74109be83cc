package testing

import (
	"context"
	"fmt"

	"github.com/imamik/eksforge/internal/config"
	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
	"github.com/imamik/eksforge/internal/platform/aws/fake"
	"github.com/imamik/eksforge/internal/provisioning"
	"github.com/imamik/eksforge/internal/provisioning/graph"
)

// T is the part of testing.T a fixture needs. GinkgoT() satisfies it.
type T interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Fixture bundles an in-memory cloud, an in-memory cluster and an observer.
type Fixture struct {
	t T

	Cloud    *fake.Cloud
	Kube     *FakeKube
	Observer *RecordingObserver
	Env      config.Environment
}

// NewFixture creates a fixture whose environment matches the fake cloud.
func NewFixture(t T) *Fixture {
	t.Helper()
	cloud := fake.New()
	return &Fixture{
		t:        t,
		Cloud:    cloud,
		Kube:     NewFakeKube(),
		Observer: NewRecordingObserver(),
		Env: config.Environment{
			AccountID: cloud.Account,
			Region:    cloud.Region,
			Partition: "aws",
		},
	}
}

// Context returns a provisioning context over the fixture with fast
// timeouts and a fresh state.
func (f *Fixture) Context(desc *config.Descriptor) *provisioning.Context {
	return f.ContextWith(context.Background(), desc)
}

// ContextWith is like Context but binds ctx.
func (f *Fixture) ContextWith(ctx context.Context, desc *config.Descriptor) *provisioning.Context {
	pctx := provisioning.NewContext(ctx, f.Env, desc, f.Cloud, f.Kube)
	pctx.Observer = f.Observer
	pctx.Timeouts = config.FastTimeouts()
	return pctx
}

// ReadyNetwork creates a two-zone network with one public and one private
// subnet per zone directly in the fake cloud and publishes it in state.
func (f *Fixture) ReadyNetwork(ctx *provisioning.Context) *provisioning.NetworkHandle {
	f.t.Helper()
	vpc, err := f.Cloud.EnsureVPC(ctx, "vpc", "10.2.0.0/16", nil)
	f.must(err)

	handle := &provisioning.NetworkHandle{Name: "vpc", VPCID: vpc.ID, CIDR: vpc.CIDR, Zones: []string{"eu-west-1a", "eu-west-1b"}}
	for i, zone := range handle.Zones {
		for j, public := range []bool{true, false} {
			partition := "vpc-PrivateSubnet-1"
			if public {
				partition = "vpc-PublicSubnet-1"
			}
			s, err := f.Cloud.EnsureSubnet(ctx, vpc.ID, awsplatform.SubnetSpec{
				LogicalID: fmt.Sprintf("%sSubnet%d", partition, i+1),
				Partition: partition,
				CIDR:      fmt.Sprintf("10.2.%d.0/20", (j*len(handle.Zones)+i)*16),
				Zone:      zone,
				Public:    public,
			})
			f.must(err)
			handle.Subnets = append(handle.Subnets, *s)
		}
	}
	ctx.State.Network.Resolve(handle)
	return handle
}

// ReadyCluster creates an active control plane in the fake cloud, connects
// it to the fake cluster API and publishes it in state. The federation
// promise is left unsettled.
func (f *Fixture) ReadyCluster(ctx *provisioning.Context, name string) *provisioning.ClusterHandle {
	f.t.Helper()
	network := f.ReadyNetwork(ctx)
	_, err := f.Cloud.EnsureCluster(ctx, awsplatform.ClusterSpec{
		Name:      name,
		Version:   "1.29",
		RoleARN:   "arn:aws:iam::" + f.Cloud.Account + ":role/" + name + "-cluster-role",
		SubnetIDs: network.SubnetIDs(config.SubnetPublic),
	})
	f.must(err)
	active, err := f.Cloud.WaitClusterActive(ctx, name, 0)
	f.must(err)

	handle := &provisioning.ClusterHandle{
		Name:                 active.Name,
		ARN:                  active.ARN,
		Version:              active.Version,
		Endpoint:             active.Endpoint,
		CertificateAuthority: active.CertificateAuthority,
		Federation:           graph.NewPromise[provisioning.Federation]("federation/" + name),
		Access:               f.Kube,
	}
	ctx.State.Cluster.Resolve(handle)
	return handle
}

// PublishFederation registers the cluster's issuer and settles its
// federation promise.
func (f *Fixture) PublishFederation(ctx *provisioning.Context, cluster *provisioning.ClusterHandle) provisioning.Federation {
	f.t.Helper()
	cl, err := f.Cloud.DescribeCluster(ctx, cluster.Name)
	f.must(err)
	if cl.Issuer == "" {
		f.t.Fatalf("cluster %s has no issuer yet", cluster.Name)
	}
	arn, err := f.Cloud.EnsureOIDCProvider(ctx, cl.Issuer, []string{config.DefaultAudience}, nil)
	f.must(err)
	fed := provisioning.Federation{Issuer: cl.Issuer, ProviderARN: arn}
	cluster.Federation.Resolve(fed)
	return fed
}

func (f *Fixture) must(err error) {
	f.t.Helper()
	if err != nil {
		f.t.Fatalf("fixture: %v", err)
	}
}
