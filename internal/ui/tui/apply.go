package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/eksforge/internal/deploy"
	"github.com/imamik/eksforge/internal/provisioning/graph"
)

// ApplyFunc runs a deployment, reporting node transitions to listener.
type ApplyFunc func(ctx context.Context, listener graph.Listener) (*deploy.Result, error)

// RunApply shows live per-resource status while apply runs in the
// background. The first quit key cancels the deployment; the view stays
// until apply returns so state is saved. It returns apply's result and
// error.
func RunApply(
	ctx context.Context,
	clusterName, region string,
	nodes []graph.Node,
	apply ApplyFunc,
	opts ...tea.ProgramOption,
) (*deploy.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewApplyModel(clusterName, region, nodes)
	m.cancel = cancel
	p := tea.NewProgram(m, opts...)

	done := make(chan DoneMsg, 1)
	go func() {
		res, err := apply(ctx, programListener{send: p.Send})
		msg := DoneMsg{Result: res, Err: err}
		done <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		out := <-done
		return out.Result, errors.Join(fmt.Errorf("apply view failed: %w", err), out.Err)
	}
	out := <-done
	return out.Result, out.Err
}

// programListener forwards graph transitions to a running program.
type programListener struct {
	send func(tea.Msg)
}

func (l programListener) NodeStarted(n graph.Node) {
	l.send(NodeStartedMsg{ID: n.ID, Kind: n.Kind})
}

func (l programListener) NodeFinished(n graph.Node, r graph.Result) {
	l.send(NodeFinishedMsg{ID: n.ID, Kind: n.Kind, Status: r.Status, Err: r.Err, Duration: r.Duration()})
}
