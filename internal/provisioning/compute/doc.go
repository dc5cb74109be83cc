// Package compute attaches managed node pools to a running cluster.
//
// Every pool is its own resource: pools attach in parallel once the control
// plane is ready and one failing pool leaves the others untouched. All
// pools of a cluster share one node role.
package compute
