package provisioning

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/eksforge/internal/config"
	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
	"github.com/imamik/eksforge/internal/provisioning/graph"
)

func binding(namespace, name, role string) *TrustBinding {
	return &TrustBinding{
		Spec:     config.WorkloadIdentitySpec{Namespace: namespace, Name: name},
		RoleName: role,
		Role:     graph.NewPromise[string](role),
	}
}

func TestState_RegisterBindingRejectsDuplicateSubject(t *testing.T) {
	t.Parallel()
	s := NewState()

	require.NoError(t, s.RegisterBinding(binding("kube-system", "aws-node", "r1")))
	require.NoError(t, s.RegisterBinding(binding("kube-system", "lb-controller", "r2")))

	err := s.RegisterBinding(binding("kube-system", "aws-node", "r3"))
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "system:serviceaccount:kube-system:aws-node")

	got, ok := s.Binding("kube-system/aws-node")
	require.True(t, ok)
	assert.Equal(t, "r1", got.RoleName)

	_, ok = s.Binding("not-a-ref")
	assert.False(t, ok)

	all := s.Bindings()
	require.Len(t, all, 2)
	assert.Equal(t, "kube-system/aws-node", all[0].Ref())
}

func TestState_ConcurrentRegistrationKeepsSubjectsUnique(t *testing.T) {
	t.Parallel()
	s := NewState()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.RegisterBinding(binding("ns", fmt.Sprintf("sa-%d", i%5), fmt.Sprintf("role-%d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		if err != nil {
			failed++
		}
	}
	assert.Equal(t, 15, failed)
	assert.Len(t, s.Bindings(), 5)
}

func TestState_OutputsAndProviderIDs(t *testing.T) {
	t.Parallel()
	s := NewState()
	s.SetOutput(OutputClusterName, "demo")
	s.SetProviderID("network/vpc", "vpc-123")

	outputs := s.Outputs()
	outputs["mutated"] = "x"
	assert.Equal(t, map[string]string{OutputClusterName: "demo"}, s.Outputs())
	assert.Equal(t, "vpc-123", s.ProviderIDs()["network/vpc"])
}

func TestNetworkHandle_SubnetsByClass(t *testing.T) {
	t.Parallel()
	n := &NetworkHandle{Subnets: []awsplatform.Subnet{
		{ID: "s1", Public: true},
		{ID: "s2", Public: false},
		{ID: "s3", Public: true},
	}}
	assert.Len(t, n.SubnetsByClass(config.SubnetPublic), 2)
	assert.Equal(t, []string{"s2"}, n.SubnetIDs(config.SubnetPrivateNAT))
	assert.Equal(t, []string{"s1", "s3", "s2"}, n.SubnetIDs(config.SubnetPublic, config.SubnetPrivateNAT))
}

func TestFederation_IssuerHost(t *testing.T) {
	t.Parallel()
	f := Federation{Issuer: "https://oidc.eks.eu-west-1.amazonaws.com/id/ABC"}
	assert.Equal(t, "oidc.eks.eu-west-1.amazonaws.com/id/ABC", f.IssuerHost())
}

type recordingAccess struct {
	mu       sync.Mutex
	mappings []RoleMapping
}

func (r *recordingAccess) UpsertRoleMapping(_ context.Context, m RoleMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings = append(r.mappings, m)
	return nil
}

func (r *recordingAccess) EnsureServiceAccount(context.Context, string, string, map[string]string) error {
	return nil
}

func TestClusterHandle_AddRoleMapping(t *testing.T) {
	t.Parallel()
	h := &ClusterHandle{Name: "demo"}
	err := h.AddRoleMapping(context.Background(), RoleMapping{RoleARN: "arn"})
	assert.ErrorContains(t, err, "not connected")

	access := &recordingAccess{}
	h.Access = access
	require.NoError(t, h.AddRoleMapping(context.Background(), RoleMapping{RoleARN: "arn", Username: "masterRole", Groups: []string{"system:masters"}}))
	assert.Len(t, access.mappings, 1)
}
