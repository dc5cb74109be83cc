// Package state persists the last-applied resources of a deployment: each
// resource identity with its provider ID and a fingerprint of the
// configuration it was applied with. Comparing fingerprints classifies the
// next apply as create, update or unchanged per resource.
package state
