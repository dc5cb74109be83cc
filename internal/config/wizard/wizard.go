package wizard

import (
	"context"
	"fmt"
)

// Result holds all the answers from the interactive wizard.
type Result struct {
	// Cluster
	ClusterName string
	Version     string

	// Network
	NetworkCIDR string
	MaxAZs      int
	NATGateways int

	// Capacity
	PoolName     string
	SubnetClass  string
	InstanceType string
	PoolSize     int

	// Add-ons and charts
	Addons                 []string
	LoadBalancerController bool
	LoadBalancerPolicyFile string

	// State
	StateBackend string
	StatePath    string
	StateBucket  string
}

// Defaults returns the answers preselected in the forms.
func Defaults() *Result {
	return &Result{
		ClusterName:            "cluster",
		Version:                DefaultVersion,
		NetworkCIDR:            "10.2.0.0/16",
		MaxAZs:                 2,
		NATGateways:            1,
		PoolName:               "general",
		SubnetClass:            "private-natted",
		InstanceType:           "t3.medium",
		PoolSize:               2,
		Addons:                 []string{AddonVPCCNI, AddonCoreDNS, AddonKubeProxy},
		LoadBalancerController: true,
		LoadBalancerPolicyFile: "policies/aws-load-balancer-controller.json",
		StateBackend:           "file",
		StatePath:              ".eksforge/state.json",
	}
}

// RunWizard runs the interactive wizard. The context is used for
// cancellation support (e.g., Ctrl+C).
func RunWizard(ctx context.Context) (*Result, error) {
	result := Defaults()

	if err := runClusterGroup(ctx, result); err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}
	if err := runNetworkGroup(ctx, result); err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	if err := runCapacityGroup(ctx, result); err != nil {
		return nil, fmt.Errorf("capacity: %w", err)
	}
	if err := runAddonsGroup(ctx, result); err != nil {
		return nil, fmt.Errorf("add-ons: %w", err)
	}
	if err := runStateGroup(ctx, result); err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	return result, nil
}
