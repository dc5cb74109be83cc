// Package graph executes provisioning work as an explicit dependency graph.
//
// Each [Node] names the nodes it depends on. [Graph.Validate] rejects missing
// dependencies and cycles before anything runs, and [Graph.Run] starts every
// node as soon as all of its prerequisites have reached [StatusReady],
// bounded by a concurrency limit. A node whose prerequisite failed is never
// applied; it is reported as [StatusBlocked]. Cancelling the run context
// stops scheduling and reports unstarted nodes as [StatusCancelled].
//
// Values that are only known after a node completes, such as a cluster's
// federation issuer, are published through a [Promise]. Consumers read a
// promise only from nodes that declare an edge to its producer.
package graph
