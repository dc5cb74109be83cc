package naming

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Naming functions for cluster resources.
// AWS resources created for a cluster follow consistent naming patterns so
// repeated runs find the same objects and operators can spot them in the
// console.

// MaxRoleNameLength is the IAM limit on role names.
const MaxRoleNameLength = 64

var subnetOrdinal = regexp.MustCompile(`Subnet[0-9]+$`)

func ClusterRole(cluster string) string {
	return fmt.Sprintf("%s-cluster-role", cluster)
}

func AdminRole(cluster string) string {
	return fmt.Sprintf("%s-admin-role", cluster)
}

func NodeRole(cluster string) string {
	return fmt.Sprintf("%s-node-role", cluster)
}

// IdentityRole derives the IAM role bound to a service account. Names longer
// than the IAM limit are truncated and suffixed with a short digest so that
// distinct service accounts never share a role.
func IdentityRole(cluster, namespace, serviceAccount string) string {
	name := fmt.Sprintf("%s-%s-%s", cluster, namespace, serviceAccount)
	if len(name) <= MaxRoleNameLength {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	suffix := hex.EncodeToString(sum[:])[:8]
	return strings.TrimRight(name[:MaxRoleNameLength-len(suffix)-1], "-") + "-" + suffix
}

func InternetGateway(network string) string {
	return fmt.Sprintf("%s-igw", network)
}

func NATGateway(network string, index int) string {
	return fmt.Sprintf("%s-nat-%d", network, index)
}

func ElasticIP(network string, index int) string {
	return fmt.Sprintf("%s-nat-eip-%d", network, index)
}

func PublicRouteTable(network string) string {
	return fmt.Sprintf("%s-public", network)
}

func PrivateRouteTable(network string, index int) string {
	return fmt.Sprintf("%s-private-%d", network, index)
}

// SubnetLogicalID is the generated identifier of the n-th (1-based) subnet of
// a partition, e.g. "PublicSubnet1".
func SubnetLogicalID(partition string, n int) string {
	return fmt.Sprintf("%sSubnet%d", partition, n)
}

// Subnet derives the human-readable Name tag of a subnet from its logical ID
// and availability zone: the trailing "Subnet<N>" is removed and the zone is
// appended.
func Subnet(logicalID, zone string) string {
	return subnetOrdinal.ReplaceAllString(logicalID, "") + "-" + zone
}

func OIDCProvider(cluster string) string {
	return fmt.Sprintf("%s-oidc", cluster)
}

func StateKey(cluster string) string {
	return fmt.Sprintf("eksforge/%s/state.json", cluster)
}
