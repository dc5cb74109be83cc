package tui

import (
	"time"

	"github.com/imamik/eksforge/internal/deploy"
	"github.com/imamik/eksforge/internal/provisioning/graph"
)

// NodeStartedMsg reports that a resource's prerequisites are ready and it
// is being applied.
type NodeStartedMsg struct {
	ID   string
	Kind string
}

// NodeFinishedMsg reports a resource's terminal status.
type NodeFinishedMsg struct {
	ID       string
	Kind     string
	Status   graph.Status
	Err      error
	Duration time.Duration
}

// TickMsg is sent periodically to refresh the display.
type TickMsg struct{}

// DoneMsg signals that the apply returned.
type DoneMsg struct {
	Result *deploy.Result
	Err    error
}
