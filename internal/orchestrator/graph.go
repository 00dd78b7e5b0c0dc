// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package orchestrator

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/featuregrid/internal/pipeline"
)

var (
	// ErrDuplicateComponent is returned when two components share an ID.
	ErrDuplicateComponent = errors.New("duplicate component")
	// ErrUnknownUpstream is returned when a component names a missing upstream.
	ErrUnknownUpstream = errors.New("unknown upstream component")
	// ErrCycle is returned when the components do not form a DAG.
	ErrCycle = errors.New("dependency cycle")
)

// State is the execution state of a node.
type State int32

const (
	Pending State = iota
	Running
	Done
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// node wraps a component with its scheduling state.
type node struct {
	component  pipeline.Component
	deps       []*node
	dependents []*node

	// depCount is the number of upstream nodes that have not finished yet.
	depCount atomic.Int32
	state    atomic.Int32
	skipOnce sync.Once

	// Written by the worker that runs the node, read by dependents after the
	// ready channel hands them over, and by Run after all workers finish.
	err     error
	outputs pipeline.Outputs
	cached  bool
}

func (n *node) id() string { return n.component.ID() }

func (n *node) getState() State { return State(n.state.Load()) }

func (n *node) setState(s State) { n.state.Store(int32(s)) }

// Graph is the dependency structure of a pipeline's components.
type Graph struct {
	nodes []*node
	byID  map[string]*node
}

// Build links components by their Upstream IDs and rejects duplicates,
// unknown references and cycles.
func Build(components []pipeline.Component) (*Graph, error) {
	g := &Graph{byID: make(map[string]*node, len(components))}
	for _, c := range components {
		if _, exists := g.byID[c.ID()]; exists {
			return nil, fmt.Errorf("%w: '%s'", ErrDuplicateComponent, c.ID())
		}
		n := &node{component: c}
		g.nodes = append(g.nodes, n)
		g.byID[c.ID()] = n
	}

	for _, n := range g.nodes {
		seen := make(map[string]struct{})
		for _, up := range n.component.Upstream() {
			if _, dup := seen[up]; dup {
				continue
			}
			seen[up] = struct{}{}
			dep, ok := g.byID[up]
			if !ok {
				return nil, fmt.Errorf("%w: '%s' depends on '%s'", ErrUnknownUpstream, n.id(), up)
			}
			n.deps = append(n.deps, dep)
			dep.dependents = append(dep.dependents, n)
		}
		n.depCount.Store(int32(len(n.deps)))
	}

	if _, err := g.Order(); err != nil {
		return nil, err
	}
	return g, nil
}

// Len returns the number of components in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// Order returns component IDs in a topological order. Ties are broken by
// declaration order.
func (g *Graph) Order() ([]string, error) {
	remaining := make(map[*node]int, len(g.nodes))
	var queue []*node
	for _, n := range g.nodes {
		remaining[n] = len(n.deps)
		if len(n.deps) == 0 {
			queue = append(queue, n)
		}
	}

	position := make(map[*node]int, len(g.nodes))
	for i, n := range g.nodes {
		position[n] = i
	}

	order := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n.id())

		var unlocked []*node
		for _, d := range n.dependents {
			remaining[d]--
			if remaining[d] == 0 {
				unlocked = append(unlocked, d)
			}
		}
		sort.Slice(unlocked, func(i, j int) bool { return position[unlocked[i]] < position[unlocked[j]] })
		queue = append(queue, unlocked...)
	}

	if len(order) != len(g.nodes) {
		var stuck []string
		for _, n := range g.nodes {
			if remaining[n] > 0 {
				stuck = append(stuck, n.id())
			}
		}
		return nil, fmt.Errorf("%w among %v", ErrCycle, stuck)
	}
	return order, nil
}
