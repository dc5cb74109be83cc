package network

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
	"github.com/imamik/eksforge/internal/util/async"
)

// CollisionError is returned when two subnets would receive the same name.
type CollisionError struct {
	Name    string
	Subnets []string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("subnet name %q would be shared by %v", e.Name, e.Subnets)
}

// Names computes the Name tag of every subnet, keyed by subnet ID. Two
// subnets mapping to the same name is a CollisionError.
func Names(subnets []awsplatform.Subnet) (map[string]string, error) {
	names := make(map[string]string, len(subnets))
	owners := make(map[string][]string)
	for _, s := range subnets {
		name := SubnetName(s.LogicalID, s.Zone)
		names[s.ID] = name
		owners[name] = append(owners[name], s.LogicalID)
	}

	collisions := make([]string, 0)
	for name, ids := range owners {
		if len(ids) > 1 {
			collisions = append(collisions, name)
		}
	}
	if len(collisions) > 0 {
		sort.Strings(collisions)
		ids := owners[collisions[0]]
		sort.Strings(ids)
		return nil, &CollisionError{Name: collisions[0], Subnets: ids}
	}
	return names, nil
}

// NamePass tags every subnet with its derived name. Subnets that already
// carry the name are left untouched, so running the pass again changes
// nothing. It returns how many tags were written.
func NamePass(ctx context.Context, cloud awsplatform.NetworkManager, subnets []awsplatform.Subnet, limit int) (int, error) {
	names, err := Names(subnets)
	if err != nil {
		return 0, err
	}

	var changed atomic.Int64
	tasks := make([]async.Task, 0, len(subnets))
	for _, s := range subnets {
		name := names[s.ID]
		tasks = append(tasks, async.Task{
			Name: "subnet " + s.LogicalID,
			Func: func(ctx context.Context) error {
				ok, err := cloud.SetNameTag(ctx, s.ID, name)
				if err != nil {
					return err
				}
				if ok {
					changed.Add(1)
				}
				return nil
			},
		})
	}

	err = async.RunParallel(ctx, tasks, limit)
	return int(changed.Load()), err
}
