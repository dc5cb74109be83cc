// Package async provides utilities for parallel task execution with
// error collection.
//
// [RunParallel] executes independent operations concurrently, optionally
// bounded, and returns all of their errors joined. Provisioning uses it for
// fan-out work such as tagging every subnet of a network.
package async
