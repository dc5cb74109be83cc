package tui

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/eksforge/internal/deploy"
	"github.com/imamik/eksforge/internal/provisioning/graph"
)

func referenceNodes() []graph.Node {
	return []graph.Node{
		{ID: "network/vpc", Kind: "network"},
		{ID: "cluster/demo", Kind: "cluster"},
		{ID: "nodepool/general", Kind: "nodepool"},
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestModel_NodeTransitions(t *testing.T) {
	m := NewApplyModel("demo", "eu-west-1", referenceNodes())
	require.Len(t, m.Nodes, 3)
	assert.Equal(t, 0, m.finished())

	m, _ = update(t, m, NodeStartedMsg{ID: "network/vpc", Kind: "network"})
	assert.True(t, m.Nodes[0].Active)

	m, _ = update(t, m, NodeFinishedMsg{ID: "network/vpc", Kind: "network", Status: graph.StatusReady, Duration: time.Minute})
	assert.False(t, m.Nodes[0].Active)
	assert.Equal(t, graph.StatusReady, m.Nodes[0].Status)
	assert.Equal(t, 1, m.finished())

	boom := errors.New("vpc limit exceeded")
	m, _ = update(t, m, NodeFinishedMsg{ID: "cluster/demo", Kind: "cluster", Status: graph.StatusBlocked, Err: boom})
	assert.Equal(t, graph.StatusBlocked, m.Nodes[1].Status)
	assert.Equal(t, boom, m.Nodes[1].Err)

	// Nodes missing from the seed list are appended.
	m, _ = update(t, m, NodeStartedMsg{ID: "addon/vpc-cni", Kind: "addon"})
	require.Len(t, m.Nodes, 4)
	assert.Equal(t, "addon/vpc-cni", m.Nodes[3].ID)
}

func TestModel_FirstQuitCancelsSecondQuits(t *testing.T) {
	m := NewApplyModel("demo", "eu-west-1", referenceNodes())
	cancelled := false
	m.cancel = func() { cancelled = true }

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, cancelled)
	assert.True(t, m.Interrupted)
	assert.Nil(t, cmd, "the view stays until the apply returns")
	assert.Contains(t, m.View(), "cancelling")

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_DoneQuits(t *testing.T) {
	m := NewApplyModel("demo", "", nil)
	res := &deploy.Result{Cluster: "demo"}

	m, cmd := update(t, m, DoneMsg{Result: res})
	assert.True(t, m.Done)
	assert.Same(t, res, m.Result)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_TickAdvancesSpinner(t *testing.T) {
	m := NewApplyModel("demo", "", referenceNodes())
	m, cmd := update(t, m, TickMsg{})
	assert.Equal(t, 1, m.SpinnerFrame)
	assert.NotNil(t, cmd)
}

func TestRenderApplyView(t *testing.T) {
	m := NewApplyModel("demo", "eu-west-1", referenceNodes())
	m, _ = update(t, m, NodeFinishedMsg{ID: "network/vpc", Status: graph.StatusReady, Duration: 12 * time.Second})
	m, _ = update(t, m, NodeStartedMsg{ID: "cluster/demo"})
	m, _ = update(t, m, NodeFinishedMsg{ID: "nodepool/general", Status: graph.StatusFailed, Err: errors.New("instance type not offered")})

	out := m.View()
	assert.Contains(t, out, "eksforge apply: demo")
	assert.Contains(t, out, "(eu-west-1)")
	assert.Contains(t, out, "2/3")
	assert.Contains(t, out, "12s")
	assert.Contains(t, out, "applying")
	assert.Contains(t, out, "failed: instance type not offered")
	assert.Contains(t, out, "q: cancel")
}

func TestCurrentSpinner(t *testing.T) {
	assert.Equal(t, spinnerFrames[0], currentSpinner(0))
	assert.Equal(t, spinnerFrames[1], currentSpinner(len(spinnerFrames)+1))
	assert.Equal(t, spinnerFrames[1], currentSpinner(-1))
}

func headless() []tea.ProgramOption {
	return []tea.ProgramOption{tea.WithInput(nil), tea.WithOutput(io.Discard), tea.WithoutRenderer(), tea.WithoutSignalHandler()}
}

func TestRunApply_ForwardsTransitionsAndReturnsResult(t *testing.T) {
	want := &deploy.Result{Cluster: "demo"}
	var got graph.Listener

	res, err := RunApply(context.Background(), "demo", "eu-west-1", referenceNodes(),
		func(ctx context.Context, listener graph.Listener) (*deploy.Result, error) {
			got = listener
			n := graph.Node{ID: "network/vpc", Kind: "network"}
			listener.NodeStarted(n)
			listener.NodeFinished(n, graph.Result{ID: n.ID, Status: graph.StatusReady})
			return want, nil
		}, headless()...)

	require.NoError(t, err)
	assert.Same(t, want, res)
	assert.IsType(t, programListener{}, got)
}

func TestRunApply_ReturnsApplyError(t *testing.T) {
	partial := errors.New("1 of 3 resources failed")
	res, err := RunApply(context.Background(), "demo", "", referenceNodes(),
		func(ctx context.Context, _ graph.Listener) (*deploy.Result, error) {
			return &deploy.Result{Cluster: "demo"}, partial
		}, headless()...)

	require.ErrorIs(t, err, partial)
	assert.NotNil(t, res)
}

func TestRunApply_CancelledByParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	_, err := RunApply(parent, "demo", "", referenceNodes(),
		func(ctx context.Context, _ graph.Listener) (*deploy.Result, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}, headless()...)

	assert.ErrorIs(t, err, context.Canceled)
}
