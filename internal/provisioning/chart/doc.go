// Package chart installs chart releases into the cluster.
//
// A release starts only after the federation endpoint and the workload
// identity it runs as are ready. The release reuses that identity
// (serviceAccount.create=false) instead of creating its own. With wait set
// the install blocks until the workload is ready or the release timeout
// expires; a cancelled deployment leaves the release as it is.
package chart
