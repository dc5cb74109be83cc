package deploy_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/imamik/eksforge/internal/config"
	"github.com/imamik/eksforge/internal/deploy"
	"github.com/imamik/eksforge/internal/platform/aws/fake"
	"github.com/imamik/eksforge/internal/provisioning"
	"github.com/imamik/eksforge/internal/provisioning/graph"
	"github.com/imamik/eksforge/internal/state"
	testutil "github.com/imamik/eksforge/internal/testing"
)

const (
	chartID    = "chart/kube-system/aws-load-balancer-controller"
	identityID = "identity/kube-system/aws-load-balancer-controller"
)

// referenceDeployment is the reference descriptor with one public and one
// private pool and a long chart wait.
func referenceDeployment() *config.Descriptor {
	desc := testutil.NewDescriptorBuilder().
		WithCluster("demo", "1.29").
		WithNetwork("vpc", "10.2.0.0/16", 2).
		WithNodePool("public", config.SubnetPublic, 1).
		WithNodePool("private", config.SubnetPrivateNAT, 1).
		WithIdentity("kube-system", "aws-node", "AmazonEKS_CNI_Policy").
		WithIdentity("kube-system", "aws-load-balancer-controller").
		WithAddon("vpc-cni", config.ConflictOverwrite, "kube-system/aws-node").
		WithChart("aws-load-balancer-controller", "eks/aws-load-balancer-controller", "kube-system",
			"kube-system/aws-load-balancer-controller").
		Build()
	desc.NodePools[0].InstanceTypes = []string{"t3.small"}
	desc.NodePools[1].InstanceTypes = []string{"t3.medium"}
	desc.Charts[0].Timeout = config.Duration{Duration: 15 * time.Minute}
	return desc
}

var _ = Describe("Reference deployment", func() {
	var (
		fx    *testutil.Fixture
		store state.Store
		desc  *config.Descriptor
	)

	BeforeEach(func() {
		fx = testutil.NewFixture(GinkgoT())
		store = state.NewFileStore(filepath.Join(GinkgoT().TempDir(), "state.json"))
		desc = referenceDeployment()
	})

	It("brings every resource to ready", func() {
		result, err := deploy.Apply(fx.Context(desc), store)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Succeeded()).To(BeTrue())

		By("allocating subnets in two zones")
		net, ok := result.Status("network/vpc")
		Expect(ok).To(BeTrue())
		Expect(net.ProviderID).NotTo(BeEmpty())
		Expect(fx.Cloud.CallCount("AvailabilityZones", fx.Cloud.Region)).To(Equal(1))

		By("creating both node pools with their instance types")
		public, ok := fx.Cloud.Nodegroup("demo", "public")
		Expect(ok).To(BeTrue())
		Expect(public.InstanceTypes).To(Equal([]string{"t3.small"}))
		private, ok := fx.Cloud.Nodegroup("demo", "private")
		Expect(ok).To(BeTrue())
		Expect(private.InstanceTypes).To(Equal([]string{"t3.medium"}))

		By("binding the node networking add-on to its role")
		role, ok := fx.Cloud.Role("demo-kube-system-aws-node")
		Expect(ok).To(BeTrue())
		addon, ok := fx.Cloud.Addon("demo", "vpc-cni")
		Expect(ok).To(BeTrue())
		Expect(addon.ServiceAccountRoleARN).To(Equal(role.ARN))
		Expect(addon.ResolveConflicts).To(Equal("OVERWRITE"))

		By("installing the chart with a waited release")
		release, ok := fx.Kube.Release("kube-system", "aws-load-balancer-controller")
		Expect(ok).To(BeTrue())
		Expect(release.Wait).To(BeTrue())
		Expect(release.Timeout).To(Equal(15 * time.Minute))

		By("publishing the cluster outputs")
		Expect(result.MastersRoleARN).To(HavePrefix("arn:aws:iam::"))
		Expect(result.FederationIssuer).To(HavePrefix("https://oidc.eks."))
	})

	It("installs the chart only after federation and its identity are ready", func() {
		fx.Cloud.IssuerPolls = 3

		var (
			mu       sync.Mutex
			oidcSeen bool
			saSeen   bool
		)
		fx.Kube.OnInstall = func(req provisioning.ChartRequest) {
			defer GinkgoRecover()
			calls := fx.Cloud.Calls()
			mu.Lock()
			defer mu.Unlock()
			oidcSeen = slices.ContainsFunc(calls, func(c fake.Call) bool { return c.Op == "EnsureOIDCProvider" })
			_, saSeen = fx.Kube.ServiceAccount("kube-system", "aws-load-balancer-controller")
		}

		result, err := deploy.Apply(fx.Context(desc), store)
		Expect(err).NotTo(HaveOccurred())

		mu.Lock()
		defer mu.Unlock()
		Expect(oidcSeen).To(BeTrue(), "chart installed before the federation provider existed")
		Expect(saSeen).To(BeTrue(), "chart installed before its service account existed")

		identity, _ := result.Status(identityID)
		chart, _ := result.Status(chartID)
		Expect(identity.Status).To(Equal(graph.StatusReady))
		Expect(chart.Status).To(Equal(graph.StatusReady))
	})

	It("reports a release that outlives its timeout and keeps the rest", func() {
		desc.Charts[0].Timeout = config.Duration{Duration: 50 * time.Millisecond}
		fx.Kube.ReleaseDelay = 2 * time.Second

		result, err := deploy.Apply(fx.Context(desc), store)
		Expect(err).To(HaveOccurred())

		var partial *provisioning.PartialDeploymentError
		Expect(errors.As(err, &partial)).To(BeTrue())
		Expect(partial.Failed).To(HaveKey(chartID))

		chart, ok := result.Status(chartID)
		Expect(ok).To(BeTrue())
		Expect(chart.Status).To(Equal(graph.StatusFailed))
		Expect(chart.Reason).To(Equal("TimeoutFailure"))

		for _, r := range result.Resources {
			if r.ID == chartID {
				continue
			}
			Expect(r.Status).To(Equal(graph.StatusReady), r.ID)
		}

		By("remembering the ready part of the deployment")
		rec, err := store.Load(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Resources).NotTo(HaveKey(chartID))
		Expect(rec.Resources).To(HaveKey("nodepool/private"))

		By("retrying only the release on the next apply")
		fx.Kube.ReleaseDelay = 0
		result, err = deploy.Apply(fx.Context(desc), store)
		Expect(err).NotTo(HaveOccurred())
		chart, _ = result.Status(chartID)
		Expect(chart.Action).To(Equal(state.ActionCreate))
		pool, _ := result.Status("nodepool/private")
		Expect(pool.Action).To(Equal(state.ActionUnchanged))
	})
})
