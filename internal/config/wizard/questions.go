package wizard

import (
	"context"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/huh"
)

// DefaultVersion is the platform version offered first.
const DefaultVersion = "1.29"

// Managed add-ons offered by the wizard.
const (
	AddonVPCCNI    = "vpc-cni"
	AddonCoreDNS   = "coredns"
	AddonKubeProxy = "kube-proxy"
)

// clusterNameRegex validates cluster names: letters, digits, hyphens and
// underscores, starting with a letter or digit.
var clusterNameRegex = regexp.MustCompile(`^[0-9A-Za-z][A-Za-z0-9\-_]{0,99}$`)

var instanceTypeRegex = regexp.MustCompile(`^[a-z][a-z0-9-]*\.[a-z0-9]+$`)

// VersionOptions are the platform versions offered for new clusters.
var VersionOptions = []huh.Option[string]{
	huh.NewOption("1.29", "1.29"),
	huh.NewOption("1.30", "1.30"),
	huh.NewOption("1.31", "1.31"),
}

// SubnetClassOptions are the subnet layers a node pool can be placed in.
var SubnetClassOptions = []huh.Option[string]{
	huh.NewOption("Private with NAT egress (recommended)", "private-natted"),
	huh.NewOption("Public", "public"),
}

// AddonOptions are the managed add-ons the wizard can enable.
var AddonOptions = []huh.Option[string]{
	huh.NewOption("VPC CNI (pod networking)", AddonVPCCNI),
	huh.NewOption("CoreDNS", AddonCoreDNS),
	huh.NewOption("kube-proxy", AddonKubeProxy),
}

// StateBackendOptions are the supported state backends.
var StateBackendOptions = []huh.Option[string]{
	huh.NewOption("Local file", "file"),
	huh.NewOption("S3 bucket", "s3"),
}

// runClusterGroup prompts for the cluster name and version.
func runClusterGroup(ctx context.Context, result *Result) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Cluster Name").
				Description("Letters, digits, hyphens and underscores").
				Placeholder("cluster").
				Value(&result.ClusterName).
				Validate(validateClusterName),
			huh.NewSelect[string]().
				Title("Kubernetes Version").
				Options(VersionOptions...).
				Value(&result.Version).
				Validate(validateVersion),
		).Title("Cluster"),
	).RunWithContext(ctx)
}

// runNetworkGroup prompts for the network range and zone spread.
func runNetworkGroup(ctx context.Context, result *Result) error {
	maxAZs := strconv.Itoa(result.MaxAZs)
	nat := strconv.Itoa(result.NATGateways)

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Network CIDR").
				Description("IPv4 range of the VPC").
				Placeholder("10.2.0.0/16").
				Value(&result.NetworkCIDR).
				Validate(validateCIDR),
			huh.NewInput().
				Title("Availability Zones").
				Description("Number of zones to spread subnets across (1-6)").
				Value(&maxAZs).
				Validate(validateRange(1, 6)),
			huh.NewInput().
				Title("NAT Gateways").
				Description("At most one per zone").
				Value(&nat).
				Validate(validateRange(1, 6)),
		).Title("Network"),
	).RunWithContext(ctx)
	if err != nil {
		return err
	}

	result.MaxAZs, _ = strconv.Atoi(maxAZs)
	result.NATGateways, _ = strconv.Atoi(nat)
	if result.NATGateways > result.MaxAZs {
		result.NATGateways = result.MaxAZs
	}
	return nil
}

// runCapacityGroup prompts for the first node pool.
func runCapacityGroup(ctx context.Context, result *Result) error {
	size := strconv.Itoa(result.PoolSize)

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Node Pool Name").
				Value(&result.PoolName).
				Validate(validateDNSLabel),
			huh.NewSelect[string]().
				Title("Subnets").
				Options(SubnetClassOptions...).
				Value(&result.SubnetClass),
			huh.NewInput().
				Title("Instance Type").
				Placeholder("t3.medium").
				Value(&result.InstanceType).
				Validate(validateInstanceType),
			huh.NewInput().
				Title("Nodes").
				Value(&size).
				Validate(validateRange(1, 100)),
		).Title("Capacity"),
	).RunWithContext(ctx)
	if err != nil {
		return err
	}

	result.PoolSize, _ = strconv.Atoi(size)
	return nil
}

// runAddonsGroup prompts for managed add-ons and the load balancer
// controller chart.
func runAddonsGroup(ctx context.Context, result *Result) error {
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Managed Add-ons").
				Options(AddonOptions...).
				Value(&result.Addons),
			huh.NewConfirm().
				Title("Install the AWS Load Balancer Controller?").
				Value(&result.LoadBalancerController),
		).Title("Add-ons"),
	).RunWithContext(ctx)
	if err != nil || !result.LoadBalancerController {
		return err
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Controller Policy File").
				Description("JSON permission policy attached to the controller's role").
				Value(&result.LoadBalancerPolicyFile).
				Validate(validateRequired("policy file")),
		).Title("Load Balancer Controller"),
	).RunWithContext(ctx)
}

// runStateGroup prompts for the state backend.
func runStateGroup(ctx context.Context, result *Result) error {
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("State Backend").
				Description("Where the last applied state is kept").
				Options(StateBackendOptions...).
				Value(&result.StateBackend),
		).Title("State"),
	).RunWithContext(ctx)
	if err != nil {
		return err
	}

	if result.StateBackend == "s3" {
		return huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Bucket").
					Value(&result.StateBucket).
					Validate(validateRequired("bucket")),
			).Title("S3 State"),
		).RunWithContext(ctx)
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("State File").
				Value(&result.StatePath).
				Validate(validateRequired("path")),
		).Title("File State"),
	).RunWithContext(ctx)
}

func validateClusterName(s string) error {
	if !clusterNameRegex.MatchString(s) {
		return fmt.Errorf("must start with a letter or digit and contain only letters, digits, hyphens or underscores")
	}
	return nil
}

func validateVersion(s string) error {
	if _, err := semver.NewVersion(s); err != nil {
		return fmt.Errorf("invalid version: %w", err)
	}
	return nil
}

func validateCIDR(s string) error {
	prefix, err := netip.ParsePrefix(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid CIDR: %w", err)
	}
	if !prefix.Addr().Is4() {
		return fmt.Errorf("must be an IPv4 range")
	}
	if prefix.Bits() < 16 || prefix.Bits() > 24 {
		return fmt.Errorf("prefix must be between /16 and /24")
	}
	return nil
}

func validateDNSLabel(s string) error {
	if !dnsLabel(s) {
		return fmt.Errorf("must be lowercase alphanumeric with hyphens")
	}
	return nil
}

func dnsLabel(s string) bool {
	if s == "" || len(s) > 63 || s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}

func validateInstanceType(s string) error {
	if !instanceTypeRegex.MatchString(s) {
		return fmt.Errorf("expected an instance type such as t3.medium")
	}
	return nil
}

func validateRange(lo, hi int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("must be a number")
		}
		if n < lo || n > hi {
			return fmt.Errorf("must be between %d and %d", lo, hi)
		}
		return nil
	}
}

func validateRequired(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func huhConfirm(title string, value *bool) error {
	return huh.NewConfirm().Title(title).Value(value).Run()
}
