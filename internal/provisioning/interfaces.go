package provisioning

import (
	"context"
	"time"
)

// Phase defines the interface for a provisioning phase.
type Phase interface {
	// Name returns the human-readable name of this phase.
	Name() string

	// Provision executes the provisioning logic for this phase.
	Provision(ctx *Context) error
}

// RoleMapping binds a cloud role to a user name and group memberships in
// the cluster's internal authorization model.
type RoleMapping struct {
	RoleARN  string
	Username string
	Groups   []string
}

// ClusterAccess is the in-cluster API surface used once the control plane
// is ready. Implemented by internal/platform/kube.
type ClusterAccess interface {
	// UpsertRoleMapping adds or replaces the mapping for RoleARN.
	UpsertRoleMapping(ctx context.Context, mapping RoleMapping) error

	// EnsureServiceAccount creates or updates a service account with the
	// given annotations.
	EnsureServiceAccount(ctx context.Context, namespace, name string, annotations map[string]string) error
}

// ChartRequest is one chart release to install or upgrade.
type ChartRequest struct {
	Release    string
	Chart      string
	Repository string
	Version    string
	Namespace  string
	Wait       bool
	Timeout    time.Duration
	Values     map[string]any
}

// ChartInstaller installs chart releases. Implemented by
// internal/platform/helm.
type ChartInstaller interface {
	// InstallOrUpgrade applies the release. With Wait set it blocks until
	// the workload reports ready, the release timeout expires or ctx is
	// done.
	InstallOrUpgrade(ctx context.Context, req ChartRequest) error

	// UpToDate reports whether the release's latest revision is deployed
	// from the requested chart version with the requested values.
	UpToDate(ctx context.Context, req ChartRequest) (bool, error)
}

// KubeConnector opens clients against a ready cluster.
type KubeConnector interface {
	Access(ctx context.Context, cluster *ClusterHandle) (ClusterAccess, error)
	Charts(ctx context.Context, cluster *ClusterHandle, namespace string) (ChartInstaller, error)
}
