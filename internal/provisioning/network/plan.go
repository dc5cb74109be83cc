package network

import (
	"fmt"

	"github.com/imamik/eksforge/internal/config"
	"github.com/imamik/eksforge/internal/util/naming"
)

// SubnetPlan is one subnet of a partition in one availability zone.
type SubnetPlan struct {
	LogicalID string
	Partition string
	Class     config.SubnetClass
	CIDR      string
	Zone      string
}

// Public reports whether the subnet routes through the internet gateway.
func (s SubnetPlan) Public() bool {
	return s.Class == config.SubnetPublic
}

// Plan assigns every partition a disjoint address block in each zone.
// Partitions are allocated in declaration order, zones in the given order.
func Plan(spec config.NetworkSpec, zones []string) ([]SubnetPlan, error) {
	if len(zones) == 0 {
		return nil, config.NewConfigurationError("network.maxAzs", "no availability zones to place subnets in")
	}
	alloc, err := config.NewSubnetAllocator(spec.CIDR)
	if err != nil {
		return nil, config.NewConfigurationError("network.cidr", "%v", err)
	}

	plans := make([]SubnetPlan, 0, len(spec.Subnets)*len(zones))
	for _, partition := range spec.Subnets {
		for i, zone := range zones {
			cidr, err := alloc.Next(partition.CIDRMask)
			if err != nil {
				return nil, config.NewConfigurationError("network.subnets", "partition %s: %v", partition.Name, err)
			}
			plans = append(plans, SubnetPlan{
				LogicalID: naming.SubnetLogicalID(partition.Name, i+1),
				Partition: partition.Name,
				Class:     partition.Class,
				CIDR:      cidr,
				Zone:      zone,
			})
		}
	}
	return plans, nil
}

// SubnetName derives the Name tag of a subnet: the partition's generated
// ID without its trailing index, followed by the availability zone.
func SubnetName(logicalID, zone string) string {
	return naming.Subnet(logicalID, zone)
}

// checkDisjoint verifies that no two planned blocks overlap.
func checkDisjoint(plans []SubnetPlan) error {
	for i := range plans {
		for j := i + 1; j < len(plans); j++ {
			overlap, err := config.Overlaps(plans[i].CIDR, plans[j].CIDR)
			if err != nil {
				return err
			}
			if overlap {
				return fmt.Errorf("subnets %s (%s) and %s (%s) overlap",
					plans[i].LogicalID, plans[i].CIDR, plans[j].LogicalID, plans[j].CIDR)
			}
		}
	}
	return nil
}
