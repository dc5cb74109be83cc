package testing

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/imamik/eksforge/internal/provisioning"
)

// MockClusterAccess is a mock implementation of provisioning.ClusterAccess.
type MockClusterAccess struct {
	mock.Mock
}

// UpsertRoleMapping records the mapping.
func (m *MockClusterAccess) UpsertRoleMapping(ctx context.Context, mapping provisioning.RoleMapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

// EnsureServiceAccount records the service account.
func (m *MockClusterAccess) EnsureServiceAccount(ctx context.Context, namespace, name string, annotations map[string]string) error {
	args := m.Called(ctx, namespace, name, annotations)
	return args.Error(0)
}

// NewMockClusterAccess creates a MockClusterAccess that accepts every call.
func NewMockClusterAccess() *MockClusterAccess {
	m := &MockClusterAccess{}
	m.On("UpsertRoleMapping", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("EnsureServiceAccount", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

// MockChartInstaller is a mock implementation of provisioning.ChartInstaller.
type MockChartInstaller struct {
	mock.Mock
}

// InstallOrUpgrade records the request.
func (m *MockChartInstaller) InstallOrUpgrade(ctx context.Context, req provisioning.ChartRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// UpToDate records the request.
func (m *MockChartInstaller) UpToDate(ctx context.Context, req provisioning.ChartRequest) (bool, error) {
	args := m.Called(ctx, req)
	return args.Bool(0), args.Error(1)
}

// MockKubeConnector is a mock implementation of provisioning.KubeConnector.
type MockKubeConnector struct {
	mock.Mock
}

// Access returns the configured ClusterAccess.
func (m *MockKubeConnector) Access(ctx context.Context, cluster *provisioning.ClusterHandle) (provisioning.ClusterAccess, error) {
	args := m.Called(ctx, cluster)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(provisioning.ClusterAccess), args.Error(1)
}

// Charts returns the configured ChartInstaller.
func (m *MockKubeConnector) Charts(ctx context.Context, cluster *provisioning.ClusterHandle, namespace string) (provisioning.ChartInstaller, error) {
	args := m.Called(ctx, cluster, namespace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(provisioning.ChartInstaller), args.Error(1)
}

// WithAccess configures the connector to hand out access.
func (m *MockKubeConnector) WithAccess(access provisioning.ClusterAccess) *MockKubeConnector {
	m.On("Access", mock.Anything, mock.Anything).Return(access, nil)
	return m
}

// WithCharts configures the connector to hand out installer.
func (m *MockKubeConnector) WithCharts(installer provisioning.ChartInstaller) *MockKubeConnector {
	m.On("Charts", mock.Anything, mock.Anything, mock.Anything).Return(installer, nil)
	return m
}
