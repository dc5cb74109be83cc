// Package addons installs provider-managed cluster add-ons such as the node
// network plugin, the service proxy and cluster DNS.
//
// Each add-on is its own resource. An add-on that names a workload identity
// receives the role of that binding; the graph carries an explicit edge to
// the binding so the role exists before the add-on is created.
package addons
