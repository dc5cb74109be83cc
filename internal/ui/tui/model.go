package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/eksforge/internal/deploy"
	"github.com/imamik/eksforge/internal/provisioning/graph"
)

// NodeRow is one resource line of the apply view. An empty Status means
// the resource has not finished.
type NodeRow struct {
	ID       string
	Kind     string
	Status   graph.Status
	Active   bool
	Err      error
	Duration time.Duration
}

// Model is the Bubble Tea model of the apply view.
type Model struct {
	ClusterName string
	Region      string
	Nodes       []NodeRow
	index       map[string]int

	StartTime    time.Time
	SpinnerFrame int

	Width  int
	Height int

	// Interrupted is set by the first quit key; the deployment is
	// cancelled and the view stays until the apply returns.
	Interrupted bool
	cancel      context.CancelFunc

	Result *deploy.Result
	Err    error
	Done   bool
}

// NewApplyModel creates a model listing nodes as pending.
func NewApplyModel(clusterName, region string, nodes []graph.Node) Model {
	m := Model{
		ClusterName: clusterName,
		Region:      region,
		StartTime:   time.Now(),
		index:       make(map[string]int, len(nodes)),
	}
	for _, n := range nodes {
		m.row(n.ID, n.Kind)
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.Interrupted || m.cancel == nil {
				return m, tea.Quit
			}
			m.Interrupted = true
			m.cancel()
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case NodeStartedMsg:
		r := m.row(msg.ID, msg.Kind)
		r.Active = true

	case NodeFinishedMsg:
		r := m.row(msg.ID, msg.Kind)
		r.Active = false
		r.Status = msg.Status
		r.Err = msg.Err
		r.Duration = msg.Duration

	case TickMsg:
		m.SpinnerFrame++
		return m, tickCmd()

	case DoneMsg:
		m.Done = true
		m.Result = msg.Result
		m.Err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// row returns the row of id, appending it when the node was not listed.
func (m *Model) row(id, kind string) *NodeRow {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	i, ok := m.index[id]
	if !ok {
		i = len(m.Nodes)
		m.index[id] = i
		m.Nodes = append(m.Nodes, NodeRow{ID: id, Kind: kind})
	}
	return &m.Nodes[i]
}

// finished counts rows with a terminal status.
func (m Model) finished() int {
	n := 0
	for _, r := range m.Nodes {
		if r.Status != "" {
			n++
		}
	}
	return n
}

func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	return renderApplyView(m)
}
