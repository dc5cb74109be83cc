package chart

import (
	"helm.sh/helm/v3/pkg/chartutil"

	"github.com/imamik/eksforge/internal/config"
)

// Values returns the release values: the user overrides with clusterName
// filled in and, for releases bound to a workload identity, the service
// account forced to the bound one. Forced keys win over user values.
func Values(spec config.ChartRelease, cluster string) map[string]any {
	forced := map[string]any{}
	if spec.ServiceAccount != "" {
		_, name, _ := config.SplitRef(spec.ServiceAccount)
		forced["serviceAccount"] = map[string]any{
			"create": false,
			"name":   name,
		}
	}

	user := copyValues(spec.Values)
	if _, ok := user["clusterName"]; !ok {
		user["clusterName"] = cluster
	}
	return chartutil.CoalesceTables(forced, user)
}

func copyValues(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			v = copyValues(nested)
		}
		out[k] = v
	}
	return out
}
