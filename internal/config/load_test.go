package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const referenceDescriptor = `
network:
  cidr: 10.2.0.0/16
  maxAzs: 2
cluster:
  name: cluster
  version: "1.21"
  defaultCapacity: 0
nodePools:
  - name: public
    nodegroupName: worknode-public
    subnetClass: public
    instanceTypes: [t3.small]
    minSize: 1
  - name: private
    nodegroupName: worknode-private
    subnetClass: private-natted
    instanceTypes: [t3.medium]
    minSize: 1
identities:
  - namespace: kube-system
    name: aws-node
    managedPolicies: [AmazonEKS_CNI_Policy]
    createServiceAccount: false
  - namespace: kube-system
    name: lb-controller
    inlinePolicies:
      - name: AWSLoadBalancerControllerIAMPolicy
        file: files/iam/lb-controller.json
addons:
  - name: vpc-cni
    resolveConflicts: overwrite
    serviceAccount: kube-system/aws-node
  - name: kube-proxy
    resolveConflicts: overwrite
  - name: coredns
    resolveConflicts: overwrite
charts:
  - release: lb-controller
    chart: aws-load-balancer-controller
    repository: https://aws.github.io/eks-charts
    version: 1.4.5
    namespace: kube-system
    wait: true
    timeout: 15m
    serviceAccount: kube-system/lb-controller
    values:
      enableShield: false
`

func writeDescriptor(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eksforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFile_ReferenceDescriptor(t *testing.T) {
	desc, err := LoadFile(writeDescriptor(t, referenceDescriptor))
	require.NoError(t, err)

	assert.Equal(t, "vpc", desc.Network.Name)
	assert.Equal(t, 1, desc.Network.NATGatewayCount())
	require.Len(t, desc.Network.Subnets, 2)
	assert.Equal(t, SubnetPublic, desc.Network.Subnets[0].Class)

	assert.Equal(t, EndpointBoth, desc.Cluster.EndpointAccess)
	assert.Equal(t, "masterRole", desc.Cluster.AdminRole.Username)
	assert.Equal(t, []string{"system:masters"}, desc.Cluster.AdminRole.Groups)

	assert.Equal(t, 1, desc.NodePools[0].MaxSize)
	assert.Equal(t, 1, desc.NodePools[0].DesiredSize)

	assert.Equal(t, "sts.amazonaws.com", desc.Identities[0].Audience)
	assert.False(t, desc.Identities[0].ManagesServiceAccount())
	assert.True(t, desc.Identities[1].ManagesServiceAccount())

	require.Len(t, desc.Charts, 1)
	assert.Equal(t, 15*time.Minute, desc.Charts[0].Timeout.Duration)
	assert.Equal(t, false, desc.Charts[0].Values["enableShield"])

	assert.Equal(t, StateBackendFile, desc.State.Backend)
	assert.Equal(t, DefaultStateFile, desc.State.Path)
}

func TestLoadFile_UnknownField(t *testing.T) {
	_, err := LoadFile(writeDescriptor(t, "cluster:\n  name: x\n  spot: true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spot")
}

func TestLoadFile_InvalidDuration(t *testing.T) {
	_, err := Decode([]byte("charts:\n  - chart: x\n    timeout: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoadFile_Empty(t *testing.T) {
	_, err := LoadFile(writeDescriptor(t, ""))
	assert.ErrorContains(t, err, "empty")
}

func TestLoadFile_ValidationFailure(t *testing.T) {
	_, err := LoadFile(writeDescriptor(t, "network:\n  cidr: nope\ncluster:\n  version: \"1.29\"\n"))
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "network.cidr")
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read descriptor")
}

func TestWriteFile_RoundTrip(t *testing.T) {
	desc, err := Decode([]byte(referenceDescriptor))
	require.NoError(t, err)
	desc.ApplyDefaults()

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, WriteFile(desc, path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, desc.Charts[0].Timeout, loaded.Charts[0].Timeout)
	assert.Equal(t, desc.Network.Subnets, loaded.Network.Subnets)
}
