// Package deploy turns a descriptor into a resource graph and applies it.
//
// Resources and their edges:
//
//	network/<name>          -
//	cluster/<name>          network
//	federation/<cluster>    cluster
//	nodepool/<name>         cluster
//	identity/<ns>/<name>    federation
//	addon/<name>            cluster, identity of its service account, dependsOn
//	chart/<ns>/<release>    cluster, federation, identity of its service account, dependsOn
//
// Workload identities are declared while the graph is built, so duplicate
// subjects are rejected before any provider call.
package deploy
