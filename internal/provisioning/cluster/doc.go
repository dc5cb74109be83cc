// Package cluster stands up the managed control plane and its federation
// endpoint.
//
// The Provisioner creates the control plane role and the administrative
// role, places the control plane in the allocated network with zero default
// capacity and maps the administrative role into the built-in super-user
// group as soon as the API is reachable. The provider publishes the
// federation issuer some time after the control plane turns active, so the
// Federation phase polls for it separately and registers it as an identity
// provider before any trust binding reads it.
package cluster
