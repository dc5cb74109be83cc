package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/imamik/eksforge/internal/util/naming"
)

// Subnet tags read by the cluster's load balancer integration.
const (
	tagLogicalID    = "eksforge.io/logical-id"
	tagPartition    = "eksforge.io/partition"
	tagELB          = "kubernetes.io/role/elb"
	tagInternalELB  = "kubernetes.io/role/internal-elb"
	defaultRouteDst = "0.0.0.0/0"
)

// AvailabilityZones returns up to max available zones in lexical order.
func (c *RealClient) AvailabilityZones(ctx context.Context, max int) ([]string, error) {
	out, err := call(ctx, c, "describe availability zones", func(ctx context.Context) (*ec2.DescribeAvailabilityZonesOutput, error) {
		return c.ec2.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{
			Filters: []types.Filter{
				{Name: aws.String("state"), Values: []string{"available"}},
				{Name: aws.String("zone-type"), Values: []string{"availability-zone"}},
			},
		})
	})
	if err != nil {
		return nil, err
	}

	zones := make([]string, 0, len(out.AvailabilityZones))
	for _, az := range out.AvailabilityZones {
		zones = append(zones, aws.ToString(az.ZoneName))
	}
	sort.Strings(zones)
	if max > 0 && len(zones) > max {
		zones = zones[:max]
	}
	return zones, nil
}

// EnsureVPC finds the VPC by its Name tag or creates it.
func (c *RealClient) EnsureVPC(ctx context.Context, name, cidr string, tags map[string]string) (*VPC, error) {
	return (&EnsureOperation[*VPC]{
		Name:         name,
		ResourceType: "vpc",
		Get: func(ctx context.Context) (*VPC, error) {
			out, err := call(ctx, c, "describe vpcs", func(ctx context.Context) (*ec2.DescribeVpcsOutput, error) {
				return c.ec2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{Filters: []types.Filter{nameFilter(name)}})
			})
			if err != nil || len(out.Vpcs) == 0 {
				return nil, err
			}
			v := out.Vpcs[0]
			if got := aws.ToString(v.CidrBlock); got != cidr {
				return nil, fmt.Errorf("vpc %s exists with CIDR %s, want %s", name, got, cidr)
			}
			return &VPC{ID: aws.ToString(v.VpcId), Name: name, CIDR: cidr}, nil
		},
		Create: func(ctx context.Context) (*VPC, error) {
			out, err := call(ctx, c, "create vpc", func(ctx context.Context) (*ec2.CreateVpcOutput, error) {
				return c.ec2.CreateVpc(ctx, &ec2.CreateVpcInput{
					CidrBlock:         aws.String(cidr),
					TagSpecifications: tagSpec(types.ResourceTypeVpc, name, tags),
				})
			})
			if err != nil {
				return nil, err
			}
			id := aws.ToString(out.Vpc.VpcId)
			// Nodes register with the control plane by private DNS name.
			for _, attr := range []*ec2.ModifyVpcAttributeInput{
				{VpcId: aws.String(id), EnableDnsSupport: &types.AttributeBooleanValue{Value: aws.Bool(true)}},
				{VpcId: aws.String(id), EnableDnsHostnames: &types.AttributeBooleanValue{Value: aws.Bool(true)}},
			} {
				if _, err := call(ctx, c, "modify vpc attribute", func(ctx context.Context) (*ec2.ModifyVpcAttributeOutput, error) {
					return c.ec2.ModifyVpcAttribute(ctx, attr)
				}); err != nil {
					return nil, err
				}
			}
			return &VPC{ID: id, Name: name, CIDR: cidr}, nil
		},
	}).Execute(ctx)
}

// EnsureSubnet finds the subnet by its logical ID tag or creates it.
func (c *RealClient) EnsureSubnet(ctx context.Context, vpcID string, spec SubnetSpec) (*Subnet, error) {
	toSubnet := func(s types.Subnet) *Subnet {
		return &Subnet{
			ID:        aws.ToString(s.SubnetId),
			LogicalID: spec.LogicalID,
			Partition: spec.Partition,
			CIDR:      aws.ToString(s.CidrBlock),
			Zone:      aws.ToString(s.AvailabilityZone),
			Public:    spec.Public,
			Name:      tagValue(s.Tags, TagName),
		}
	}

	return (&EnsureOperation[*Subnet]{
		Name:         spec.LogicalID,
		ResourceType: "subnet",
		Get: func(ctx context.Context) (*Subnet, error) {
			out, err := call(ctx, c, "describe subnets", func(ctx context.Context) (*ec2.DescribeSubnetsOutput, error) {
				return c.ec2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{Filters: []types.Filter{
					{Name: aws.String("vpc-id"), Values: []string{vpcID}},
					{Name: aws.String("tag:" + tagLogicalID), Values: []string{spec.LogicalID}},
				}})
			})
			if err != nil || len(out.Subnets) == 0 {
				return nil, err
			}
			s := out.Subnets[0]
			if got := aws.ToString(s.CidrBlock); got != spec.CIDR {
				return nil, fmt.Errorf("subnet %s exists with CIDR %s, want %s", spec.LogicalID, got, spec.CIDR)
			}
			return toSubnet(s), nil
		},
		Create: func(ctx context.Context) (*Subnet, error) {
			tags := map[string]string{
				tagLogicalID: spec.LogicalID,
				tagPartition: spec.Partition,
			}
			if spec.Public {
				tags[tagELB] = "1"
			} else {
				tags[tagInternalELB] = "1"
			}
			for k, v := range spec.Tags {
				tags[k] = v
			}
			out, err := call(ctx, c, "create subnet", func(ctx context.Context) (*ec2.CreateSubnetOutput, error) {
				return c.ec2.CreateSubnet(ctx, &ec2.CreateSubnetInput{
					VpcId:             aws.String(vpcID),
					CidrBlock:         aws.String(spec.CIDR),
					AvailabilityZone:  aws.String(spec.Zone),
					TagSpecifications: tagSpec(types.ResourceTypeSubnet, "", tags),
				})
			})
			if err != nil {
				return nil, err
			}
			if spec.Public {
				if _, err := call(ctx, c, "modify subnet attribute", func(ctx context.Context) (*ec2.ModifySubnetAttributeOutput, error) {
					return c.ec2.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
						SubnetId:            out.Subnet.SubnetId,
						MapPublicIpOnLaunch: &types.AttributeBooleanValue{Value: aws.Bool(true)},
					})
				}); err != nil {
					return nil, err
				}
			}
			return toSubnet(*out.Subnet), nil
		},
	}).Execute(ctx)
}

// EnsureEgress attaches an internet gateway, creates NAT gateways in the
// first public subnets and routes every subnet through them.
func (c *RealClient) EnsureEgress(ctx context.Context, spec EgressSpec) error {
	if len(spec.PublicSubnets) == 0 {
		return fmt.Errorf("network %s has no public subnet for egress", spec.NetworkName)
	}

	igwID, err := c.ensureInternetGateway(ctx, spec)
	if err != nil {
		return err
	}

	publicRT, err := c.ensureRouteTable(ctx, spec.VPCID, naming.PublicRouteTable(spec.NetworkName), spec.Tags)
	if err != nil {
		return err
	}
	if err := c.ensureDefaultRoute(ctx, publicRT, aws.String(igwID), nil); err != nil {
		return err
	}
	for _, s := range spec.PublicSubnets {
		if err := c.ensureAssociation(ctx, publicRT, s.ID); err != nil {
			return err
		}
	}

	if len(spec.PrivateSubnets) == 0 || spec.NATGateways == 0 {
		return nil
	}

	count := spec.NATGateways
	if count > len(spec.PublicSubnets) {
		count = len(spec.PublicSubnets)
	}
	natIDs := make([]string, count)
	for i := range count {
		id, err := c.ensureNATGateway(ctx, spec, i+1, spec.PublicSubnets[i])
		if err != nil {
			return err
		}
		natIDs[i] = id
	}

	for i, s := range spec.PrivateSubnets {
		idx := i % count
		rt, err := c.ensureRouteTable(ctx, spec.VPCID, naming.PrivateRouteTable(spec.NetworkName, idx+1), spec.Tags)
		if err != nil {
			return err
		}
		if err := c.ensureDefaultRoute(ctx, rt, nil, aws.String(natIDs[idx])); err != nil {
			return err
		}
		if err := c.ensureAssociation(ctx, rt, s.ID); err != nil {
			return err
		}
	}
	return nil
}

func (c *RealClient) ensureInternetGateway(ctx context.Context, spec EgressSpec) (string, error) {
	name := naming.InternetGateway(spec.NetworkName)
	id, err := (&EnsureOperation[string]{
		Name:         name,
		ResourceType: "internet gateway",
		Get: func(ctx context.Context) (string, error) {
			out, err := call(ctx, c, "describe internet gateways", func(ctx context.Context) (*ec2.DescribeInternetGatewaysOutput, error) {
				return c.ec2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{Filters: []types.Filter{nameFilter(name)}})
			})
			if err != nil || len(out.InternetGateways) == 0 {
				return "", err
			}
			igw := out.InternetGateways[0]
			for _, att := range igw.Attachments {
				if aws.ToString(att.VpcId) == spec.VPCID {
					return aws.ToString(igw.InternetGatewayId), nil
				}
			}
			return aws.ToString(igw.InternetGatewayId), c.attachInternetGateway(ctx, aws.ToString(igw.InternetGatewayId), spec.VPCID)
		},
		Create: func(ctx context.Context) (string, error) {
			out, err := call(ctx, c, "create internet gateway", func(ctx context.Context) (*ec2.CreateInternetGatewayOutput, error) {
				return c.ec2.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
					TagSpecifications: tagSpec(types.ResourceTypeInternetGateway, name, spec.Tags),
				})
			})
			if err != nil {
				return "", err
			}
			id := aws.ToString(out.InternetGateway.InternetGatewayId)
			return id, c.attachInternetGateway(ctx, id, spec.VPCID)
		},
	}).Execute(ctx)
	return id, err
}

func (c *RealClient) attachInternetGateway(ctx context.Context, igwID, vpcID string) error {
	_, err := call(ctx, c, "attach internet gateway", func(ctx context.Context) (*ec2.AttachInternetGatewayOutput, error) {
		return c.ec2.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
			InternetGatewayId: aws.String(igwID),
			VpcId:             aws.String(vpcID),
		})
	})
	return err
}

func (c *RealClient) ensureNATGateway(ctx context.Context, spec EgressSpec, index int, subnet Subnet) (string, error) {
	name := naming.NATGateway(spec.NetworkName, index)
	id, err := (&EnsureOperation[string]{
		Name:         name,
		ResourceType: "nat gateway",
		Get: func(ctx context.Context) (string, error) {
			out, err := call(ctx, c, "describe nat gateways", func(ctx context.Context) (*ec2.DescribeNatGatewaysOutput, error) {
				return c.ec2.DescribeNatGateways(ctx, &ec2.DescribeNatGatewaysInput{Filter: []types.Filter{
					nameFilter(name),
					{Name: aws.String("state"), Values: []string{"pending", "available"}},
				}})
			})
			if err != nil || len(out.NatGateways) == 0 {
				return "", err
			}
			return aws.ToString(out.NatGateways[0].NatGatewayId), nil
		},
		Create: func(ctx context.Context) (string, error) {
			allocID, err := c.ensureElasticIP(ctx, naming.ElasticIP(spec.NetworkName, index), spec.Tags)
			if err != nil {
				return "", err
			}
			out, err := call(ctx, c, "create nat gateway", func(ctx context.Context) (*ec2.CreateNatGatewayOutput, error) {
				return c.ec2.CreateNatGateway(ctx, &ec2.CreateNatGatewayInput{
					SubnetId:          aws.String(subnet.ID),
					AllocationId:      aws.String(allocID),
					TagSpecifications: tagSpec(types.ResourceTypeNatgateway, name, spec.Tags),
				})
			})
			if err != nil {
				return "", err
			}
			return aws.ToString(out.NatGateway.NatGatewayId), nil
		},
	}).Execute(ctx)
	if err != nil {
		return "", err
	}

	waiter := ec2.NewNatGatewayAvailableWaiter(c.ec2)
	if err := waiter.Wait(ctx, &ec2.DescribeNatGatewaysInput{NatGatewayIds: []string{id}}, c.timeouts.Network); err != nil {
		return "", fmt.Errorf("nat gateway %s did not become available: %w", name, err)
	}
	return id, nil
}

func (c *RealClient) ensureElasticIP(ctx context.Context, name string, tags map[string]string) (string, error) {
	return (&EnsureOperation[string]{
		Name:         name,
		ResourceType: "elastic ip",
		Get: func(ctx context.Context) (string, error) {
			out, err := call(ctx, c, "describe addresses", func(ctx context.Context) (*ec2.DescribeAddressesOutput, error) {
				return c.ec2.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{Filters: []types.Filter{nameFilter(name)}})
			})
			if err != nil || len(out.Addresses) == 0 {
				return "", err
			}
			return aws.ToString(out.Addresses[0].AllocationId), nil
		},
		Create: func(ctx context.Context) (string, error) {
			out, err := call(ctx, c, "allocate address", func(ctx context.Context) (*ec2.AllocateAddressOutput, error) {
				return c.ec2.AllocateAddress(ctx, &ec2.AllocateAddressInput{
					Domain:            types.DomainTypeVpc,
					TagSpecifications: tagSpec(types.ResourceTypeElasticIp, name, tags),
				})
			})
			if err != nil {
				return "", err
			}
			return aws.ToString(out.AllocationId), nil
		},
	}).Execute(ctx)
}

func (c *RealClient) ensureRouteTable(ctx context.Context, vpcID, name string, tags map[string]string) (*types.RouteTable, error) {
	return (&EnsureOperation[*types.RouteTable]{
		Name:         name,
		ResourceType: "route table",
		Get: func(ctx context.Context) (*types.RouteTable, error) {
			out, err := call(ctx, c, "describe route tables", func(ctx context.Context) (*ec2.DescribeRouteTablesOutput, error) {
				return c.ec2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{Filters: []types.Filter{
					{Name: aws.String("vpc-id"), Values: []string{vpcID}},
					nameFilter(name),
				}})
			})
			if err != nil || len(out.RouteTables) == 0 {
				return nil, err
			}
			return &out.RouteTables[0], nil
		},
		Create: func(ctx context.Context) (*types.RouteTable, error) {
			out, err := call(ctx, c, "create route table", func(ctx context.Context) (*ec2.CreateRouteTableOutput, error) {
				return c.ec2.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
					VpcId:             aws.String(vpcID),
					TagSpecifications: tagSpec(types.ResourceTypeRouteTable, name, tags),
				})
			})
			if err != nil {
				return nil, err
			}
			return out.RouteTable, nil
		},
	}).Execute(ctx)
}

func (c *RealClient) ensureDefaultRoute(ctx context.Context, rt *types.RouteTable, gatewayID, natGatewayID *string) error {
	for _, r := range rt.Routes {
		if aws.ToString(r.DestinationCidrBlock) == defaultRouteDst {
			return nil
		}
	}
	_, err := call(ctx, c, "create route", func(ctx context.Context) (*ec2.CreateRouteOutput, error) {
		return c.ec2.CreateRoute(ctx, &ec2.CreateRouteInput{
			RouteTableId:         rt.RouteTableId,
			DestinationCidrBlock: aws.String(defaultRouteDst),
			GatewayId:            gatewayID,
			NatGatewayId:         natGatewayID,
		})
	})
	if err != nil && APIErrorCode(err) != "RouteAlreadyExists" {
		return err
	}
	return nil
}

func (c *RealClient) ensureAssociation(ctx context.Context, rt *types.RouteTable, subnetID string) error {
	for _, a := range rt.Associations {
		if aws.ToString(a.SubnetId) == subnetID {
			return nil
		}
	}
	_, err := call(ctx, c, "associate route table", func(ctx context.Context) (*ec2.AssociateRouteTableOutput, error) {
		return c.ec2.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
			RouteTableId: rt.RouteTableId,
			SubnetId:     aws.String(subnetID),
		})
	})
	if err != nil && APIErrorCode(err) != "Resource.AlreadyAssociated" {
		return err
	}
	return nil
}

// SetNameTag sets the Name tag of a resource unless it already has it.
func (c *RealClient) SetNameTag(ctx context.Context, resourceID, name string) (bool, error) {
	out, err := call(ctx, c, "describe tags", func(ctx context.Context) (*ec2.DescribeTagsOutput, error) {
		return c.ec2.DescribeTags(ctx, &ec2.DescribeTagsInput{Filters: []types.Filter{
			{Name: aws.String("resource-id"), Values: []string{resourceID}},
			{Name: aws.String("key"), Values: []string{TagName}},
		}})
	})
	if err != nil {
		return false, err
	}
	for _, t := range out.Tags {
		if aws.ToString(t.Value) == name {
			return false, nil
		}
	}

	_, err = call(ctx, c, "create tags", func(ctx context.Context) (*ec2.CreateTagsOutput, error) {
		return c.ec2.CreateTags(ctx, &ec2.CreateTagsInput{
			Resources: []string{resourceID},
			Tags:      []types.Tag{{Key: aws.String(TagName), Value: aws.String(name)}},
		})
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func nameFilter(name string) types.Filter {
	return types.Filter{Name: aws.String("tag:" + TagName), Values: []string{name}}
}

// tagSpec builds creation-time tags. An empty name leaves the Name tag to
// be set later.
func tagSpec(resourceType types.ResourceType, name string, tags map[string]string) []types.TagSpecification {
	all := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		all[k] = v
	}
	if name != "" {
		all[TagName] = name
	}
	return []types.TagSpecification{{ResourceType: resourceType, Tags: ec2Tags(all)}}
}

func ec2Tags(tags map[string]string) []types.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

func tagValue(tags []types.Tag, key string) string {
	for _, t := range tags {
		if aws.ToString(t.Key) == key {
			return aws.ToString(t.Value)
		}
	}
	return ""
}
