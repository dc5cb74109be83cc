package testing

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/imamik/eksforge/internal/provisioning"
)

// ServiceAccount is a service account stored by FakeKube.
type ServiceAccount struct {
	Namespace   string
	Name        string
	Annotations map[string]string
}

// FakeKube is an in-memory cluster API implementing KubeConnector,
// ClusterAccess and ChartInstaller.
type FakeKube struct {
	mu sync.Mutex

	// ReleaseDelay is how long a waited release takes to become ready.
	ReleaseDelay time.Duration
	// Failures maps a release name to the error its install returns.
	Failures map[string]error
	// OnInstall, when set, is called as an install starts.
	OnInstall func(req provisioning.ChartRequest)

	connected       []string
	mappings        map[string]provisioning.RoleMapping
	serviceAccounts map[string]ServiceAccount
	releases        map[string]provisioning.ChartRequest
	installOrder    []string
}

// NewFakeKube returns an empty cluster.
func NewFakeKube() *FakeKube {
	return &FakeKube{
		Failures:        make(map[string]error),
		mappings:        make(map[string]provisioning.RoleMapping),
		serviceAccounts: make(map[string]ServiceAccount),
		releases:        make(map[string]provisioning.ChartRequest),
	}
}

// Access implements provisioning.KubeConnector.
func (k *FakeKube) Access(ctx context.Context, cluster *provisioning.ClusterHandle) (provisioning.ClusterAccess, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cluster.Endpoint == "" {
		return nil, fmt.Errorf("cluster %s has no endpoint", cluster.Name)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.connected = append(k.connected, cluster.Name)
	return k, nil
}

// Charts implements provisioning.KubeConnector.
func (k *FakeKube) Charts(ctx context.Context, cluster *provisioning.ClusterHandle, _ string) (provisioning.ChartInstaller, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cluster.Endpoint == "" {
		return nil, fmt.Errorf("cluster %s has no endpoint", cluster.Name)
	}
	return k, nil
}

// UpsertRoleMapping implements provisioning.ClusterAccess.
func (k *FakeKube) UpsertRoleMapping(ctx context.Context, mapping provisioning.RoleMapping) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.mappings[mapping.RoleARN] = mapping
	return nil
}

// EnsureServiceAccount implements provisioning.ClusterAccess.
func (k *FakeKube) EnsureServiceAccount(ctx context.Context, namespace, name string, annotations map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.serviceAccounts[namespace+"/"+name] = ServiceAccount{
		Namespace:   namespace,
		Name:        name,
		Annotations: maps.Clone(annotations),
	}
	return nil
}

// InstallOrUpgrade implements provisioning.ChartInstaller. Waited releases
// take ReleaseDelay and honor both ctx and the release timeout.
func (k *FakeKube) InstallOrUpgrade(ctx context.Context, req provisioning.ChartRequest) error {
	k.mu.Lock()
	err := k.Failures[req.Release]
	delay := k.ReleaseDelay
	hook := k.OnInstall
	k.mu.Unlock()
	if hook != nil {
		hook(req)
	}
	if err != nil {
		return err
	}

	if req.Wait && delay > 0 {
		wait := ctx
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			wait, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}
		select {
		case <-time.After(delay):
		case <-wait.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("release %s: timed out waiting for the condition: %w", req.Release, wait.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.releases[req.Namespace+"/"+req.Release] = req
	k.installOrder = append(k.installOrder, req.Release)
	return nil
}

// UpToDate implements provisioning.ChartInstaller. A release is current
// when its last applied request names the same chart, version and values.
func (k *FakeKube) UpToDate(ctx context.Context, req provisioning.ChartRequest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	current, ok := k.releases[req.Namespace+"/"+req.Release]
	if !ok {
		return false, nil
	}
	return current.Chart == req.Chart &&
		current.Version == req.Version &&
		reflect.DeepEqual(current.Values, req.Values), nil
}

// Mapping returns the role mapping stored for roleARN.
func (k *FakeKube) Mapping(roleARN string) (provisioning.RoleMapping, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.mappings[roleARN]
	return m, ok
}

// ServiceAccount returns a stored service account.
func (k *FakeKube) ServiceAccount(namespace, name string) (ServiceAccount, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	sa, ok := k.serviceAccounts[namespace+"/"+name]
	return sa, ok
}

// Release returns the last request applied for a release.
func (k *FakeKube) Release(namespace, release string) (provisioning.ChartRequest, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	r, ok := k.releases[namespace+"/"+release]
	return r, ok
}

// InstallOrder returns release names in the order they completed.
func (k *FakeKube) InstallOrder() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return slices.Clone(k.installOrder)
}

// Connections returns how many times Access was called.
func (k *FakeKube) Connections() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.connected)
}

var (
	_ provisioning.KubeConnector  = (*FakeKube)(nil)
	_ provisioning.ClusterAccess  = (*FakeKube)(nil)
	_ provisioning.ChartInstaller = (*FakeKube)(nil)
)
