package wizard

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/imamik/eksforge/internal/config"
)

// Load balancer controller chart coordinates.
const (
	LoadBalancerRelease    = "aws-load-balancer-controller"
	LoadBalancerChart      = "aws-load-balancer-controller"
	LoadBalancerRepository = "https://aws.github.io/eks-charts"
	LoadBalancerVersion    = "1.7.2"
	LoadBalancerPolicy     = "AWSLoadBalancerControllerIAMPolicy"
	systemNamespace        = "kube-system"
)

// Function variable for dependency injection in tests.
var confirmOverwrite = defaultConfirmOverwrite

// Descriptor converts the answers into a descriptor with defaults applied.
func (r *Result) Descriptor() *config.Descriptor {
	nat := r.NATGateways
	desc := &config.Descriptor{
		Network: config.NetworkSpec{
			CIDR:        r.NetworkCIDR,
			MaxAZs:      r.MaxAZs,
			NATGateways: &nat,
		},
		Cluster: config.ClusterSpec{
			Name:    r.ClusterName,
			Version: r.Version,
		},
		NodePools: []config.NodePoolSpec{{
			Name:          r.PoolName,
			SubnetClass:   config.SubnetClass(r.SubnetClass),
			InstanceTypes: []string{r.InstanceType},
			MinSize:       r.PoolSize,
			MaxSize:       r.PoolSize,
			DesiredSize:   r.PoolSize,
		}},
		State: config.StateConfig{
			Backend: r.StateBackend,
			Path:    r.StatePath,
			Bucket:  r.StateBucket,
		},
	}
	if r.StateBackend == config.StateBackendS3 {
		desc.State.Path = ""
		desc.State.Key = r.ClusterName + "/state.json"
	}

	for _, name := range r.Addons {
		addon := config.AddonSpec{Name: name, ResolveConflicts: config.ConflictOverwrite}
		if name == AddonVPCCNI {
			shipped := false
			desc.Identities = append(desc.Identities, config.WorkloadIdentitySpec{
				Namespace:            systemNamespace,
				Name:                 "aws-node",
				ManagedPolicies:      []string{"AmazonEKS_CNI_Policy"},
				CreateServiceAccount: &shipped,
			})
			addon.ServiceAccount = systemNamespace + "/aws-node"
		}
		desc.Addons = append(desc.Addons, addon)
	}

	if r.LoadBalancerController {
		desc.Identities = append(desc.Identities, config.WorkloadIdentitySpec{
			Namespace: systemNamespace,
			Name:      LoadBalancerRelease,
			InlinePolicies: []config.InlinePolicy{{
				Name: LoadBalancerPolicy,
				File: r.LoadBalancerPolicyFile,
			}},
		})
		chart := config.ChartRelease{
			Release:        LoadBalancerRelease,
			Chart:          LoadBalancerChart,
			Repository:     LoadBalancerRepository,
			Version:        LoadBalancerVersion,
			Namespace:      systemNamespace,
			Wait:           true,
			Timeout:        config.Duration{Duration: 15 * time.Minute},
			ServiceAccount: systemNamespace + "/" + LoadBalancerRelease,
		}
		if slices.Contains(r.Addons, AddonVPCCNI) {
			chart.DependsOn = []string{"addon/" + AddonVPCCNI}
		}
		desc.Charts = append(desc.Charts, chart)
	}

	desc.ApplyDefaults()
	return desc
}

// WriteDescriptor writes desc as YAML with a descriptive header.
func WriteDescriptor(desc *config.Descriptor, outputPath string) error {
	var buf bytes.Buffer
	buf.WriteString(generateHeader(outputPath, desc))
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(desc); err != nil {
		return fmt.Errorf("failed to marshal descriptor: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal descriptor: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// generateHeader creates the YAML file header comment.
func generateHeader(outputPath string, desc *config.Descriptor) string {
	var policies []string
	for _, id := range desc.Identities {
		for _, p := range id.InlinePolicies {
			policies = append(policies, "#   "+p.File)
		}
	}
	note := ""
	if len(policies) > 0 {
		note = "\n#\n# Policy documents referenced below must exist before apply:\n" + strings.Join(policies, "\n")
	}
	return fmt.Sprintf(`# eksforge deployment descriptor
# Generated by: eksforge init
# Generated at: %s
#
# Usage:
#   export AWS_REGION=<region>
#   eksforge plan -c %s
#   eksforge apply -c %s%s
`, time.Now().Format(time.RFC3339), outputPath, outputPath, note)
}

// FileExists checks if a file exists at the given path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ConfirmOverwrite prompts the user to confirm overwriting an existing file.
func ConfirmOverwrite(path string) (bool, error) {
	return confirmOverwrite(path)
}

// defaultConfirmOverwrite prompts with a huh confirm field.
func defaultConfirmOverwrite(path string) (bool, error) {
	overwrite := false
	err := huhConfirm(fmt.Sprintf("%s already exists. Overwrite?", path), &overwrite)
	return overwrite, err
}
