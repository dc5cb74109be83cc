package provisioning

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/imamik/eksforge/internal/config"
	awsplatform "github.com/imamik/eksforge/internal/platform/aws"
	"github.com/imamik/eksforge/internal/provisioning/graph"
)

// ConfigurationError is an invalid descriptor, detected before any provider
// call.
type ConfigurationError = config.ConfigurationError

// PrerequisiteNotReadyError is returned when a value a resource depends on
// did not become available within the retry budget.
type PrerequisiteNotReadyError struct {
	Resource     string
	Prerequisite string
	Err          error
}

func (e *PrerequisiteNotReadyError) Error() string {
	return fmt.Sprintf("%s: prerequisite %s not ready: %v", e.Resource, e.Prerequisite, e.Err)
}

func (e *PrerequisiteNotReadyError) Unwrap() error {
	return e.Err
}

// ProviderRejectionError is an API-level failure (naming conflict, quota,
// invalid parameter) that is surfaced without retrying.
type ProviderRejectionError struct {
	Resource  string
	Operation string
	Err       error
}

func (e *ProviderRejectionError) Error() string {
	return fmt.Sprintf("%s: provider rejected %s: %v", e.Resource, e.Operation, e.Err)
}

func (e *ProviderRejectionError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when a resource did not report ready within its
// own deadline.
type TimeoutError struct {
	Resource string
	Timeout  time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: not ready within %v: %v", e.Resource, e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// PartialDeploymentError lists the resources that did not become ready while
// others did. Ready resources are left in place.
type PartialDeploymentError struct {
	Ready  []string
	Failed map[string]error
	// NotApplied holds blocked and cancelled resources.
	NotApplied []string
}

func (e *PartialDeploymentError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.Failed[id]))
	}
	return fmt.Sprintf("deployment incomplete: %d ready, %d failed, %d not applied: %s",
		len(e.Ready), len(e.Failed), len(e.NotApplied), strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *PartialDeploymentError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		out = append(out, err)
	}
	return out
}

// NewPartialDeploymentError summarizes a run report. It returns nil when
// every resource is ready.
func NewPartialDeploymentError(report *graph.Report) *PartialDeploymentError {
	if report == nil || report.Succeeded() {
		return nil
	}
	e := &PartialDeploymentError{Failed: make(map[string]error)}
	for _, r := range report.InOrder() {
		switch r.Status {
		case graph.StatusReady:
			e.Ready = append(e.Ready, r.ID)
		case graph.StatusFailed:
			e.Failed[r.ID] = r.Err
		default:
			e.NotApplied = append(e.NotApplied, r.ID)
		}
	}
	return e
}

// ProviderError attaches the resource identity to a provider failure.
// Rejections become ProviderRejectionError; everything else is wrapped.
func ProviderError(resource, operation string, err error) error {
	if err == nil {
		return nil
	}
	var rejection *ProviderRejectionError
	if errors.As(err, &rejection) {
		return err
	}
	if awsplatform.IsRejection(err) {
		return &ProviderRejectionError{Resource: resource, Operation: operation, Err: err}
	}
	return fmt.Errorf("%s: failed to %s: %w", resource, operation, err)
}

// IsConfigurationError reports whether err is a descriptor problem.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
