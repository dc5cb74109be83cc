package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ApplyFunc performs the work of a node.
type ApplyFunc func(ctx context.Context) error

// Node is a unit of provisioning work.
type Node struct {
	// ID uniquely identifies the node, e.g. "nodepool/general".
	ID string
	// Kind groups nodes for reporting and metrics, e.g. "nodepool".
	Kind string
	// DependsOn lists the IDs that must reach StatusReady first.
	DependsOn []string
	Apply     ApplyFunc
}

// Graph is a set of nodes and their dependency edges. It is not safe for
// concurrent mutation; build it fully before calling Run.
type Graph struct {
	nodes map[string]*Node
	order []string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// Add inserts a node. IDs must be unique.
func (g *Graph) Add(n Node) error {
	if n.ID == "" {
		return errors.New("node ID is required")
	}
	if n.Apply == nil {
		return fmt.Errorf("node %s: apply function is required", n.ID)
	}
	if _, exists := g.nodes[n.ID]; exists {
		return fmt.Errorf("node %s already exists", n.ID)
	}
	n.DependsOn = slices.Clone(n.DependsOn)
	g.nodes[n.ID] = &n
	g.order = append(g.order, n.ID)
	return nil
}

// DependOn adds an edge from id to each of deps, ignoring duplicates.
func (g *Graph) DependOn(id string, deps ...string) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("node %s not found", id)
	}
	for _, d := range deps {
		if !slices.Contains(n.DependsOn, d) {
			n.DependsOn = append(n.DependsOn, d)
		}
	}
	return nil
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Has reports whether a node with the given ID exists.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// IDs returns node IDs in insertion order.
func (g *Graph) IDs() []string {
	return slices.Clone(g.order)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// MissingDependencyError reports an edge to a node that does not exist.
type MissingDependencyError struct {
	Node       string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("node %s depends on unknown node %s", e.Node, e.Dependency)
}

// CycleError reports nodes that can never become ready because they depend
// on each other.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among: %s", strings.Join(e.Nodes, ", "))
}

// Validate checks that every dependency exists and that the graph is
// acyclic.
func (g *Graph) Validate() error {
	_, err := g.TopologicalOrder()
	return err
}

// TopologicalOrder returns node IDs so that every node follows all of its
// dependencies. Ties are broken by insertion order, so the result is
// deterministic.
func (g *Graph) TopologicalOrder() ([]string, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(g.order))
	for _, level := range levels {
		out = append(out, level...)
	}
	return out, nil
}

// Levels groups node IDs into waves: every node of a wave depends only on
// nodes of earlier waves. Nodes within a wave may run concurrently.
func (g *Graph) Levels() ([][]string, error) {
	var errs []error
	for _, id := range g.order {
		for _, dep := range g.nodes[id].DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				errs = append(errs, &MissingDependencyError{Node: id, Dependency: dep})
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	indegree := make(map[string]int, len(g.order))
	dependents := make(map[string][]string, len(g.order))
	for _, id := range g.order {
		for _, dep := range unique(g.nodes[id].DependsOn) {
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	position := make(map[string]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
	}

	var current []string
	for _, id := range g.order {
		if indegree[id] == 0 {
			current = append(current, id)
		}
	}

	var levels [][]string
	visited := 0
	for len(current) > 0 {
		levels = append(levels, current)
		visited += len(current)
		var next []string
		for _, id := range current {
			for _, dependent := range dependents[id] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		slices.SortFunc(next, func(a, b string) int { return position[a] - position[b] })
		current = next
	}

	if visited != len(g.order) {
		var cyclic []string
		for _, id := range g.order {
			if indegree[id] > 0 {
				cyclic = append(cyclic, id)
			}
		}
		return nil, &CycleError{Nodes: cyclic}
	}
	return levels, nil
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
