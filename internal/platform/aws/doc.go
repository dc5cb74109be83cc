// Package aws provides the cloud provider layer for EKS deployments.
//
// The [Provider] interface groups the network, cluster and identity
// operations the provisioning components need. Every Ensure method is
// idempotent: it looks the resource up by its name (Name tag for EC2
// objects, resource name for EKS and IAM) and only creates what is missing,
// so a re-run converges instead of duplicating resources.
//
// [RealClient] implements Provider over aws-sdk-go-v2 (EC2, EKS, IAM, STS).
// The fake subpackage offers an in-memory implementation for tests.
package aws
