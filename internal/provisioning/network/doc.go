// Package network allocates the isolated network a cluster is placed in.
//
// Every subnet partition is replicated across the selected availability
// zones. Address blocks are carved from the network CIDR in declaration
// order so they never overlap, and every subnet carries a generated logical
// ID so a re-run finds it again. After allocation a naming pass writes the
// human-readable Name tag of each subnet.
package network
