// Package helm installs and upgrades chart releases against a cluster
// reached through an in-memory client configuration.
package helm
