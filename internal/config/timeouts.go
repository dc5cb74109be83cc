package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable timeout and retry values.
// These values can be customized via environment variables.
type Timeouts struct {
	Network           time.Duration // Network allocation including NAT gateways
	Cluster           time.Duration // Control plane creation until ACTIVE
	Nodegroup         time.Duration // Node group creation until ACTIVE
	Addon             time.Duration // Add-on creation until ACTIVE
	Deployment        time.Duration // Whole graph apply
	RetryMaxAttempts  int           // Readiness poll attempts before giving up
	RetryInitialDelay time.Duration // Initial delay between readiness polls
	MaxConcurrency    int           // Resources applied in parallel
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - EKSFORGE_TIMEOUT_NETWORK (default: 10m)
//   - EKSFORGE_TIMEOUT_CLUSTER (default: 25m)
//   - EKSFORGE_TIMEOUT_NODEGROUP (default: 20m)
//   - EKSFORGE_TIMEOUT_ADDON (default: 10m)
//   - EKSFORGE_TIMEOUT_DEPLOYMENT (default: 60m)
//   - EKSFORGE_RETRY_MAX_ATTEMPTS (default: 5)
//   - EKSFORGE_RETRY_INITIAL_DELAY (default: 2s)
//   - EKSFORGE_MAX_CONCURRENCY (default: 4)
func LoadTimeouts() *Timeouts {
	d := DefaultTimeouts()
	return &Timeouts{
		Network:           parseDuration("EKSFORGE_TIMEOUT_NETWORK", d.Network),
		Cluster:           parseDuration("EKSFORGE_TIMEOUT_CLUSTER", d.Cluster),
		Nodegroup:         parseDuration("EKSFORGE_TIMEOUT_NODEGROUP", d.Nodegroup),
		Addon:             parseDuration("EKSFORGE_TIMEOUT_ADDON", d.Addon),
		Deployment:        parseDuration("EKSFORGE_TIMEOUT_DEPLOYMENT", d.Deployment),
		RetryMaxAttempts:  parseInt("EKSFORGE_RETRY_MAX_ATTEMPTS", d.RetryMaxAttempts),
		RetryInitialDelay: parseDuration("EKSFORGE_RETRY_INITIAL_DELAY", d.RetryInitialDelay),
		MaxConcurrency:    parseInt("EKSFORGE_MAX_CONCURRENCY", d.MaxConcurrency),
	}
}

// DefaultTimeouts returns the defaults without reading the environment.
func DefaultTimeouts() *Timeouts {
	return &Timeouts{
		Network:           10 * time.Minute,
		Cluster:           25 * time.Minute,
		Nodegroup:         20 * time.Minute,
		Addon:             10 * time.Minute,
		Deployment:        60 * time.Minute,
		RetryMaxAttempts:  5,
		RetryInitialDelay: 2 * time.Second,
		MaxConcurrency:    4,
	}
}

// FastTimeouts returns short timeouts and retry delays for tests.
func FastTimeouts() *Timeouts {
	return &Timeouts{
		Network:           5 * time.Second,
		Cluster:           5 * time.Second,
		Nodegroup:         5 * time.Second,
		Addon:             5 * time.Second,
		Deployment:        30 * time.Second,
		RetryMaxAttempts:  3,
		RetryInitialDelay: time.Millisecond,
		MaxConcurrency:    4,
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i <= 0 {
		return defaultVal
	}

	return i
}
