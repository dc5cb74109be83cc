// Package config defines the deployment descriptor consumed by the
// provisioning graph.
//
// A [Descriptor] describes one cluster deployment: the network it lives in,
// the control plane, node pools, workload identities bound to IAM roles,
// managed add-ons and chart releases. Descriptors are loaded from YAML,
// defaulted with [Descriptor.ApplyDefaults] and checked with
// [Descriptor.Validate] before any provider call is made.
//
// Account and region context lives in [Environment] and is passed
// explicitly to every component constructor.
package config
