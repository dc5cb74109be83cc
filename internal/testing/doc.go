// Package testing provides test utilities, builders, and fixtures for unit and integration tests.
//
// This package centralizes common testing patterns to avoid duplication across test files:
//   - DescriptorBuilder: Fluent builder for creating deployment descriptors
//   - Fixture: In-memory cloud and cluster wired into a provisioning context
//   - FakeKube: In-memory cluster API recording role mappings, service accounts and releases
//   - MockClusterAccess, MockChartInstaller, MockKubeConnector: Shared testify mocks
//   - RecordingObserver: Observer that keeps every event for assertions
//
// Usage:
//
//	desc := testing.NewDescriptorBuilder().
//	    WithCluster("demo", "1.29").
//	    WithNodePool("general", config.SubnetPrivateNAT, 2).
//	    Build()
//
//	fx := testing.NewFixture(t)
//	ctx := fx.Context(desc)
package testing
