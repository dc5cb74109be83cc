package deploy

import (
	"context"
	"errors"
	"time"

	"github.com/imamik/eksforge/internal/provisioning"
	"github.com/imamik/eksforge/internal/provisioning/graph"
	"github.com/imamik/eksforge/internal/state"
)

// ResourceStatus is the terminal status of one resource.
type ResourceStatus struct {
	ID         string        `json:"id"`
	Kind       string        `json:"kind"`
	Status     graph.Status  `json:"status"`
	Action     state.Action  `json:"action,omitempty"`
	ProviderID string        `json:"providerId,omitempty"`
	Error      string        `json:"error,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Result is the deployment result record.
type Result struct {
	Cluster          string            `json:"cluster"`
	MastersRoleARN   string            `json:"mastersRoleArn,omitempty"`
	FederationIssuer string            `json:"federationIssuer,omitempty"`
	Resources        []ResourceStatus  `json:"resources"`
	Outputs          map[string]string `json:"outputs"`
	StateLocation    string            `json:"stateLocation,omitempty"`
	Duration         time.Duration     `json:"duration"`
}

// Succeeded reports whether every resource is ready.
func (r *Result) Succeeded() bool {
	for _, res := range r.Resources {
		if res.Status != graph.StatusReady {
			return false
		}
	}
	return true
}

// Status returns the status of one resource.
func (r *Result) Status(id string) (ResourceStatus, bool) {
	for _, res := range r.Resources {
		if res.ID == id {
			return res, true
		}
	}
	return ResourceStatus{}, false
}

func newResult(cluster string, report *graph.Report, st *provisioning.State, changes []state.Change) *Result {
	actions := make(map[string]state.Action, len(changes))
	for _, c := range changes {
		actions[c.ID] = c.Action
	}
	ids := st.ProviderIDs()
	outputs := st.Outputs()

	res := &Result{
		Cluster:          cluster,
		MastersRoleARN:   outputs[provisioning.OutputMastersRoleARN],
		FederationIssuer: outputs[provisioning.OutputOIDCIssuer],
		Outputs:          outputs,
	}
	for _, r := range report.InOrder() {
		rs := ResourceStatus{
			ID:         r.ID,
			Kind:       r.Kind,
			Status:     r.Status,
			Action:     actions[r.ID],
			ProviderID: ids[r.ID],
			Duration:   r.Duration(),
		}
		if r.Err != nil {
			rs.Error = r.Err.Error()
			rs.Reason = reason(r.Status, r.Err)
		}
		res.Resources = append(res.Resources, rs)
	}
	return res
}

// reason names the error class of a failure. A release timeout is a
// TimeoutFailure; a deployment that ran out of time or was interrupted is
// Cancelled, which leaves the resource as it was.
func reason(status graph.Status, err error) string {
	var (
		rejection *provisioning.ProviderRejectionError
		timeout   *provisioning.TimeoutError
		prereq    *provisioning.PrerequisiteNotReadyError
		blocked   *graph.BlockedError
	)
	switch {
	case provisioning.IsConfigurationError(err):
		return "ConfigurationError"
	case errors.As(err, &timeout):
		return "TimeoutFailure"
	case status == graph.StatusCancelled,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return "Cancelled"
	case errors.As(err, &rejection):
		return "ProviderRejection"
	case errors.As(err, &prereq):
		return "PrerequisiteNotReady"
	case errors.As(err, &blocked):
		return "Blocked"
	default:
		return "Failed"
	}
}

// record merges the run into the previous state. Ready resources take the
// new fingerprint; others keep the last applied one with their new status,
// so the next apply classifies them as updates.
func record(prev *state.Record, cluster string, desired []state.Desired, result *Result, now time.Time) *state.Record {
	rec := state.NewRecord(cluster)
	if prev != nil {
		for id, r := range prev.Resources {
			rec.Resources[id] = r
		}
	}
	rec.AppliedAt = now
	for k, v := range result.Outputs {
		rec.Outputs[k] = v
	}

	fingerprints := make(map[string]string, len(desired))
	for _, d := range desired {
		fingerprints[d.ID] = d.Fingerprint
	}
	for _, rs := range result.Resources {
		old, existed := rec.Resources[rs.ID]
		entry := state.Resource{ID: rs.ID, Kind: rs.Kind, Status: string(rs.Status)}
		if rs.Status == graph.StatusReady {
			entry.Fingerprint = fingerprints[rs.ID]
			entry.ProviderID = rs.ProviderID
			entry.AppliedAt = now
		} else {
			if !existed {
				continue
			}
			entry.Fingerprint = old.Fingerprint
			entry.ProviderID = old.ProviderID
			entry.AppliedAt = old.AppliedAt
		}
		rec.Put(entry)
	}
	return rec
}
