// Package identity binds workload identities to provider roles through the
// cluster's federation endpoint.
//
// Binding happens in two phases. DeclareBinding runs while the graph is
// built and reserves the role name and subject claim, rejecting duplicates.
// Once the federation endpoint is known, Finalize derives the trust document
// scoped to exactly one service account, and the Binder creates the role,
// attaches its permissions and records the service account in the cluster.
package identity
