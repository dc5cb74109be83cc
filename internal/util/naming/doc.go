// Package naming provides consistent naming functions for the AWS resources
// of a cluster.
//
// Cluster-scoped IAM roles follow {cluster}-{purpose}-role, workload identity
// roles follow {cluster}-{namespace}-{serviceaccount}, and network resources
// are prefixed with the network name. Subnet names are derived from their
// generated logical IDs and availability zones.
package naming
