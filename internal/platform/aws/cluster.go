package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
)

// EnsureCluster creates the control plane unless a cluster with the same
// name exists. Existing clusters are returned as-is; version upgrades are
// not performed here.
func (c *RealClient) EnsureCluster(ctx context.Context, spec ClusterSpec) (*Cluster, error) {
	return (&EnsureOperation[*Cluster]{
		Name:         spec.Name,
		ResourceType: "cluster",
		Get: func(ctx context.Context) (*Cluster, error) {
			cl, err := c.DescribeCluster(ctx, spec.Name)
			if IsNotFound(err) {
				return nil, nil
			}
			return cl, err
		},
		Create: func(ctx context.Context) (*Cluster, error) {
			out, err := call(ctx, c, "create cluster", func(ctx context.Context) (*eks.CreateClusterOutput, error) {
				return c.eks.CreateCluster(ctx, &eks.CreateClusterInput{
					Name:    aws.String(spec.Name),
					Version: aws.String(spec.Version),
					RoleArn: aws.String(spec.RoleARN),
					ResourcesVpcConfig: &ekstypes.VpcConfigRequest{
						SubnetIds:             spec.SubnetIDs,
						EndpointPublicAccess:  aws.Bool(spec.EndpointPublic),
						EndpointPrivateAccess: aws.Bool(spec.EndpointPrivate),
					},
					AccessConfig: &ekstypes.CreateAccessConfigRequest{
						AuthenticationMode:                      ekstypes.AuthenticationModeApiAndConfigMap,
						BootstrapClusterCreatorAdminPermissions: aws.Bool(true),
					},
					Tags: spec.Tags,
				})
			})
			if err != nil {
				return nil, err
			}
			return fromEKSCluster(out.Cluster), nil
		},
	}).Execute(ctx)
}

// DescribeCluster returns the current provider view of a cluster.
func (c *RealClient) DescribeCluster(ctx context.Context, name string) (*Cluster, error) {
	out, err := call(ctx, c, "describe cluster", func(ctx context.Context) (*eks.DescribeClusterOutput, error) {
		return c.eks.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
	})
	if err != nil {
		return nil, err
	}
	return fromEKSCluster(out.Cluster), nil
}

// WaitClusterActive blocks until the cluster is ACTIVE.
func (c *RealClient) WaitClusterActive(ctx context.Context, name string, timeout time.Duration) (*Cluster, error) {
	waiter := eks.NewClusterActiveWaiter(c.eks)
	if err := waiter.Wait(ctx, &eks.DescribeClusterInput{Name: aws.String(name)}, timeout); err != nil {
		return nil, fmt.Errorf("cluster %s did not become active: %w", name, err)
	}
	return c.DescribeCluster(ctx, name)
}

func fromEKSCluster(cl *ekstypes.Cluster) *Cluster {
	if cl == nil {
		return nil
	}
	out := &Cluster{
		Name:     aws.ToString(cl.Name),
		ARN:      aws.ToString(cl.Arn),
		Version:  aws.ToString(cl.Version),
		Status:   string(cl.Status),
		Endpoint: aws.ToString(cl.Endpoint),
	}
	if cl.CertificateAuthority != nil {
		out.CertificateAuthority = aws.ToString(cl.CertificateAuthority.Data)
	}
	if cl.Identity != nil && cl.Identity.Oidc != nil {
		out.Issuer = aws.ToString(cl.Identity.Oidc.Issuer)
	}
	return out
}

// EnsureNodegroup creates the node group or reconciles its scaling and
// labels when they drifted.
func (c *RealClient) EnsureNodegroup(ctx context.Context, spec NodegroupSpec) (*Nodegroup, error) {
	return (&EnsureOperation[*Nodegroup]{
		Name:         spec.Name,
		ResourceType: "nodegroup",
		Get: func(ctx context.Context) (*Nodegroup, error) {
			ng, err := c.describeNodegroup(ctx, spec.Cluster, spec.Name)
			if IsNotFound(err) {
				return nil, nil
			}
			return ng, err
		},
		Create: func(ctx context.Context) (*Nodegroup, error) {
			out, err := call(ctx, c, "create nodegroup", func(ctx context.Context) (*eks.CreateNodegroupOutput, error) {
				return c.eks.CreateNodegroup(ctx, &eks.CreateNodegroupInput{
					ClusterName:   aws.String(spec.Cluster),
					NodegroupName: aws.String(spec.Name),
					NodeRole:      aws.String(spec.NodeRoleARN),
					Subnets:       spec.SubnetIDs,
					InstanceTypes: spec.InstanceTypes,
					ScalingConfig: scalingConfig(spec),
					CapacityType:  ekstypes.CapacityTypes(spec.CapacityType),
					Labels:        spec.Labels,
					Tags:          spec.Tags,
				})
			})
			if err != nil {
				return nil, err
			}
			return fromEKSNodegroup(spec.Cluster, out.Nodegroup), nil
		},
		Update: func(ctx context.Context, existing *Nodegroup) (*Nodegroup, error) {
			out, err := call(ctx, c, "describe nodegroup", func(ctx context.Context) (*eks.DescribeNodegroupOutput, error) {
				return c.eks.DescribeNodegroup(ctx, &eks.DescribeNodegroupInput{
					ClusterName:   aws.String(spec.Cluster),
					NodegroupName: aws.String(spec.Name),
				})
			})
			if err != nil {
				return nil, err
			}
			if !nodegroupDrifted(out.Nodegroup, spec) {
				return existing, nil
			}
			if existing.Status != string(ekstypes.NodegroupStatusActive) {
				return existing, nil
			}
			_, err = call(ctx, c, "update nodegroup config", func(ctx context.Context) (*eks.UpdateNodegroupConfigOutput, error) {
				return c.eks.UpdateNodegroupConfig(ctx, &eks.UpdateNodegroupConfigInput{
					ClusterName:   aws.String(spec.Cluster),
					NodegroupName: aws.String(spec.Name),
					ScalingConfig: scalingConfig(spec),
					Labels:        &ekstypes.UpdateLabelsPayload{AddOrUpdateLabels: spec.Labels},
				})
			})
			if err != nil {
				return nil, err
			}
			return existing, nil
		},
	}).Execute(ctx)
}

func (c *RealClient) describeNodegroup(ctx context.Context, cluster, name string) (*Nodegroup, error) {
	out, err := call(ctx, c, "describe nodegroup", func(ctx context.Context) (*eks.DescribeNodegroupOutput, error) {
		return c.eks.DescribeNodegroup(ctx, &eks.DescribeNodegroupInput{
			ClusterName:   aws.String(cluster),
			NodegroupName: aws.String(name),
		})
	})
	if err != nil {
		return nil, err
	}
	return fromEKSNodegroup(cluster, out.Nodegroup), nil
}

// WaitNodegroupActive blocks until the node group is ACTIVE.
func (c *RealClient) WaitNodegroupActive(ctx context.Context, cluster, name string, timeout time.Duration) error {
	waiter := eks.NewNodegroupActiveWaiter(c.eks)
	err := waiter.Wait(ctx, &eks.DescribeNodegroupInput{
		ClusterName:   aws.String(cluster),
		NodegroupName: aws.String(name),
	}, timeout)
	if err != nil {
		return fmt.Errorf("nodegroup %s did not become active: %w", name, err)
	}
	return nil
}

func scalingConfig(spec NodegroupSpec) *ekstypes.NodegroupScalingConfig {
	return &ekstypes.NodegroupScalingConfig{
		MinSize:     aws.Int32(spec.MinSize),
		MaxSize:     aws.Int32(spec.MaxSize),
		DesiredSize: aws.Int32(spec.DesiredSize),
	}
}

func nodegroupDrifted(ng *ekstypes.Nodegroup, spec NodegroupSpec) bool {
	if ng == nil || ng.ScalingConfig == nil {
		return true
	}
	sc := ng.ScalingConfig
	if aws.ToInt32(sc.MinSize) != spec.MinSize || aws.ToInt32(sc.MaxSize) != spec.MaxSize {
		return true
	}
	for k, v := range spec.Labels {
		if ng.Labels[k] != v {
			return true
		}
	}
	return false
}

func fromEKSNodegroup(cluster string, ng *ekstypes.Nodegroup) *Nodegroup {
	if ng == nil {
		return nil
	}
	return &Nodegroup{
		Cluster: cluster,
		Name:    aws.ToString(ng.NodegroupName),
		ARN:     aws.ToString(ng.NodegroupArn),
		Status:  string(ng.Status),
	}
}

// EnsureAddon installs the add-on or updates it when its version or role
// binding drifted. ResolveConflicts decides what happens to fields of the
// in-cluster objects that were changed outside the provider.
func (c *RealClient) EnsureAddon(ctx context.Context, spec AddonSpec) (*Addon, error) {
	var current *ekstypes.Addon
	return (&EnsureOperation[*Addon]{
		Name:         spec.Name,
		ResourceType: "addon",
		Get: func(ctx context.Context) (*Addon, error) {
			out, err := call(ctx, c, "describe addon", func(ctx context.Context) (*eks.DescribeAddonOutput, error) {
				return c.eks.DescribeAddon(ctx, &eks.DescribeAddonInput{
					ClusterName: aws.String(spec.Cluster),
					AddonName:   aws.String(spec.Name),
				})
			})
			if IsNotFound(err) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			current = out.Addon
			return fromEKSAddon(spec.Cluster, out.Addon), nil
		},
		Create: func(ctx context.Context) (*Addon, error) {
			out, err := call(ctx, c, "create addon", func(ctx context.Context) (*eks.CreateAddonOutput, error) {
				return c.eks.CreateAddon(ctx, &eks.CreateAddonInput{
					ClusterName:           aws.String(spec.Cluster),
					AddonName:             aws.String(spec.Name),
					AddonVersion:          optional(spec.Version),
					ResolveConflicts:      ekstypes.ResolveConflicts(spec.ResolveConflicts),
					ServiceAccountRoleArn: optional(spec.ServiceAccountRoleARN),
					Tags:                  spec.Tags,
				})
			})
			if err != nil {
				return nil, err
			}
			return fromEKSAddon(spec.Cluster, out.Addon), nil
		},
		Update: func(ctx context.Context, existing *Addon) (*Addon, error) {
			if !addonDrifted(current, spec) {
				return existing, nil
			}
			_, err := call(ctx, c, "update addon", func(ctx context.Context) (*eks.UpdateAddonOutput, error) {
				return c.eks.UpdateAddon(ctx, &eks.UpdateAddonInput{
					ClusterName:           aws.String(spec.Cluster),
					AddonName:             aws.String(spec.Name),
					AddonVersion:          optional(spec.Version),
					ResolveConflicts:      ekstypes.ResolveConflicts(spec.ResolveConflicts),
					ServiceAccountRoleArn: optional(spec.ServiceAccountRoleARN),
				})
			})
			if err != nil {
				return nil, err
			}
			return existing, nil
		},
	}).Execute(ctx)
}

// WaitAddonActive blocks until the add-on is ACTIVE.
func (c *RealClient) WaitAddonActive(ctx context.Context, cluster, name string, timeout time.Duration) error {
	waiter := eks.NewAddonActiveWaiter(c.eks)
	err := waiter.Wait(ctx, &eks.DescribeAddonInput{
		ClusterName: aws.String(cluster),
		AddonName:   aws.String(name),
	}, timeout)
	if err != nil {
		return fmt.Errorf("addon %s did not become active: %w", name, err)
	}
	return nil
}

func addonDrifted(current *ekstypes.Addon, spec AddonSpec) bool {
	if current == nil {
		return false
	}
	if spec.Version != "" && aws.ToString(current.AddonVersion) != spec.Version {
		return true
	}
	return aws.ToString(current.ServiceAccountRoleArn) != spec.ServiceAccountRoleARN
}

func fromEKSAddon(cluster string, a *ekstypes.Addon) *Addon {
	if a == nil {
		return nil
	}
	return &Addon{
		Cluster: cluster,
		Name:    aws.ToString(a.AddonName),
		ARN:     aws.ToString(a.AddonArn),
		Version: aws.ToString(a.AddonVersion),
		Status:  string(a.Status),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
