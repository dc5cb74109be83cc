// Package kube talks to a provisioned cluster's API: it synthesizes the
// client configuration from the cluster handle, maintains the role
// mappings in the aws-auth ConfigMap and records workload service
// accounts.
package kube
