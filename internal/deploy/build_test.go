package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/eksforge/internal/config"
	"github.com/imamik/eksforge/internal/provisioning"
	testutil "github.com/imamik/eksforge/internal/testing"
)

func dependencies(t *testing.T, d *Deployment, id string) []string {
	t.Helper()
	n, ok := d.Pipeline.Graph().Node(id)
	require.True(t, ok, "node %s", id)
	return n.DependsOn
}

func TestBuild(t *testing.T) {
	t.Parallel()

	t.Run("reference edges", func(t *testing.T) {
		t.Parallel()
		d, err := Build(testutil.ReferenceDescriptor(), provisioning.NewState())
		require.NoError(t, err)

		assert.Empty(t, dependencies(t, d, "network/vpc"))
		assert.Equal(t, []string{"network/vpc"}, dependencies(t, d, "cluster/demo"))
		assert.Equal(t, []string{"cluster/demo"}, dependencies(t, d, "federation/demo"))
		assert.Equal(t, []string{"cluster/demo"}, dependencies(t, d, "nodepool/general"))
		assert.ElementsMatch(t, []string{"cluster/demo", "federation/demo"},
			dependencies(t, d, "identity/kube-system/aws-node"))
		assert.ElementsMatch(t, []string{"cluster/demo", "identity/kube-system/aws-node"},
			dependencies(t, d, "addon/vpc-cni"))
		assert.ElementsMatch(t,
			[]string{"cluster/demo", "federation/demo", "identity/kube-system/aws-load-balancer-controller"},
			dependencies(t, d, "chart/kube-system/aws-load-balancer-controller"))
	})

	t.Run("desired in declaration order", func(t *testing.T) {
		t.Parallel()
		d, err := Build(testutil.ReferenceDescriptor(), provisioning.NewState())
		require.NoError(t, err)

		var ids []string
		for _, r := range d.Desired() {
			assert.NotEmpty(t, r.Fingerprint, r.ID)
			ids = append(ids, r.ID)
		}
		assert.Equal(t, []string{
			"network/vpc",
			"cluster/demo",
			"federation/demo",
			"nodepool/general",
			"identity/kube-system/aws-node",
			"identity/kube-system/aws-load-balancer-controller",
			"addon/vpc-cni",
			"chart/kube-system/aws-load-balancer-controller",
		}, ids)
	})

	t.Run("identities registered in state", func(t *testing.T) {
		t.Parallel()
		st := provisioning.NewState()
		_, err := Build(testutil.ReferenceDescriptor(), st)
		require.NoError(t, err)

		b, ok := st.Binding("kube-system/aws-node")
		require.True(t, ok)
		assert.Equal(t, "system:serviceaccount:kube-system:aws-node", b.Subject())
		assert.Len(t, st.Bindings(), 2)
	})

	t.Run("explicit chart dependency", func(t *testing.T) {
		t.Parallel()
		desc := testutil.NewDescriptorBuilder().
			WithAddon("vpc-cni", config.ConflictOverwrite, "").
			WithChart("ingress", "ingress-nginx", "ingress", "", "addon/vpc-cni").
			Build()
		d, err := Build(desc, provisioning.NewState())
		require.NoError(t, err)

		assert.Contains(t, dependencies(t, d, "chart/ingress/ingress"), "addon/vpc-cni")
		order, err := d.Pipeline.Graph().TopologicalOrder()
		require.NoError(t, err)
		assert.Less(t, indexOf(order, "addon/vpc-cni"), indexOf(order, "chart/ingress/ingress"))
	})

	t.Run("missing dependency", func(t *testing.T) {
		t.Parallel()
		desc := testutil.NewDescriptorBuilder().
			WithChart("app", "app", "default", "", "chart/default/absent").
			Build()
		_, err := Build(desc, provisioning.NewState())
		require.Error(t, err)
		assert.True(t, provisioning.IsConfigurationError(err))
		assert.ErrorContains(t, err, "chart/default/absent")
	})

	t.Run("dependency cycle", func(t *testing.T) {
		t.Parallel()
		desc := testutil.NewDescriptorBuilder().
			WithChart("a", "a", "default", "", "chart/default/b").
			WithChart("b", "b", "default", "", "chart/default/a").
			Build()
		_, err := Build(desc, provisioning.NewState())
		require.Error(t, err)
		assert.True(t, provisioning.IsConfigurationError(err))
	})

	t.Run("undeclared service account", func(t *testing.T) {
		t.Parallel()
		desc := testutil.NewDescriptorBuilder().
			WithAddon("vpc-cni", config.ConflictOverwrite, "kube-system/aws-node").
			Build()
		_, err := Build(desc, provisioning.NewState())
		require.Error(t, err)
		assert.True(t, provisioning.IsConfigurationError(err))
	})

	t.Run("duplicate identity", func(t *testing.T) {
		t.Parallel()
		desc := testutil.NewDescriptorBuilder().
			WithIdentity("kube-system", "aws-node").
			WithIdentity("kube-system", "aws-node").
			Build()
		_, err := Build(desc, provisioning.NewState())
		assert.Error(t, err)
	})
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
