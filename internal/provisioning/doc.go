// Package provisioning provides shared types, interfaces, and orchestration for cluster provisioning.
//
// # Subpackages
//
//   - graph/: dependency graph, readiness promises and the concurrent scheduler
//   - network/: VPC, subnets, NAT egress and subnet naming
//   - cluster/: control plane, administrative role and federation endpoint
//   - compute/: managed node groups
//   - identity/: workload identity trust bindings
//   - addons/: managed add-ons
//   - chart/: chart releases gated on their workload identity
//
// # Core Types
//
// Context carries the environment, descriptor, shared state, provider clients and observer.
// Phase defines a provisioning step with Name() and Provision() methods.
// Pipeline runs phases as graph nodes; RunPhases runs preflight phases in sequence.
// State holds the network and cluster promises, trust bindings and deployment outputs.
package provisioning
