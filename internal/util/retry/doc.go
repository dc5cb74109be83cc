// Package retry provides exponential backoff retry logic for transient failures.
//
// [WithExponentialBackoff] retries an operation with configurable max attempts,
// initial delay, and maximum delay. [Poll] builds on it for readiness checks
// such as waiting for a cluster's OIDC issuer to be published. Both are used
// around AWS API calls that may fail transiently or report eventual
// consistency.
package retry
