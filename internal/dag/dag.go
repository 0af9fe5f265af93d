// SPDX-License-Identifier: MPL-2.0

// Package dag provides a small directed graph with path queries, cycle
// detection, and topological ordering. Load planning orders a module's
// dependency closure with it, and the loader keeps a wait-for graph in it to
// refuse waits that could never complete.
//
// Graph is not safe for concurrent use; callers synchronize.
package dag

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrCycle is the sentinel wrapped by CycleError.
var ErrCycle = errors.New("dependency cycle detected")

type (
	// CycleError indicates that the graph contains a cycle.
	CycleError struct {
		// Cycle lists the nodes on the cycle. When it was found by a path query
		// the first node is repeated at the end.
		Cycle []string
	}

	// Graph is a directed graph keyed by string. An edge from A to B reads
	// "A before B" for ordering and "A waits on B" for wait-for tracking; the
	// graph itself does not care which.
	Graph struct {
		// adjacency maps each node to its outgoing neighbors in insertion order.
		adjacency map[string][]string
		// nodes tracks all nodes in insertion order for deterministic output.
		nodes []string
		// nodeSet provides O(1) lookup for node existence.
		nodeSet map[string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycle, strings.Join(e.Cycle, " -> "))
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *CycleError) Unwrap() error { return ErrCycle }

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		adjacency: make(map[string][]string),
		nodeSet:   make(map[string]bool),
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// HasNode reports whether name is in the graph.
func (g *Graph) HasNode(name string) bool { return g.nodeSet[name] }

// AddNode adds a node to the graph. If the node already exists, this is a no-op.
func (g *Graph) AddNode(name string) {
	if g.nodeSet[name] {
		return
	}
	g.nodeSet[name] = true
	g.nodes = append(g.nodes, name)
}

// AddEdge adds a directed edge from -> to. Both nodes are implicitly added and
// repeated edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	if slices.Contains(g.adjacency[from], to) {
		return
	}
	g.adjacency[from] = append(g.adjacency[from], to)
}

// HasEdge reports whether from -> to exists.
func (g *Graph) HasEdge(from, to string) bool {
	return slices.Contains(g.adjacency[from], to)
}

// RemoveEdge deletes from -> to. Nodes left without any edge are dropped.
func (g *Graph) RemoveEdge(from, to string) {
	out := g.adjacency[from]
	i := slices.Index(out, to)
	if i < 0 {
		return
	}
	out = slices.Delete(out, i, i+1)
	if len(out) == 0 {
		delete(g.adjacency, from)
	} else {
		g.adjacency[from] = out
	}
	g.dropIfIsolated(from)
	g.dropIfIsolated(to)
}

func (g *Graph) dropIfIsolated(name string) {
	if len(g.adjacency[name]) > 0 {
		return
	}
	for _, neighbors := range g.adjacency {
		if slices.Contains(neighbors, name) {
			return
		}
	}
	delete(g.nodeSet, name)
	g.nodes = slices.DeleteFunc(g.nodes, func(n string) bool { return n == name })
}

// Neighbors returns the outgoing neighbors of name.
func (g *Graph) Neighbors(name string) []string {
	return slices.Clone(g.adjacency[name])
}

// Path returns a path from -> ... -> to following edges, or nil when to is
// unreachable. A node always reaches itself.
func (g *Graph) Path(from, to string) []string {
	if !g.nodeSet[from] || !g.nodeSet[to] {
		if from == to {
			return []string{from}
		}
		return nil
	}
	parent := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node == to {
			var path []string
			for cur := to; cur != ""; cur = parent[cur] {
				path = append(path, cur)
				if cur == from {
					break
				}
			}
			slices.Reverse(path)
			return path
		}
		for _, next := range g.adjacency[node] {
			if _, seen := parent[next]; !seen {
				parent[next] = node
				queue = append(queue, next)
			}
		}
	}
	return nil
}

// CheckEdge returns a CycleError if adding from -> to would close a cycle,
// without modifying the graph.
func (g *Graph) CheckEdge(from, to string) error {
	back := g.Path(to, from)
	if back == nil {
		return nil
	}
	return &CycleError{Cycle: append([]string{from}, back...)}
}

// TopologicalSort returns a valid ordering using Kahn's algorithm.
// Returns CycleError if the graph contains a cycle.
// The returned order is deterministic: nodes at the same topological level
// appear in the order they were first added to the graph.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for _, node := range g.nodes {
		inDegree[node] = 0
	}
	for _, neighbors := range g.adjacency {
		for _, neighbor := range neighbors {
			inDegree[neighbor]++
		}
	}

	queue := make([]string, 0)
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	var result []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, neighbor := range g.adjacency[node] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if len(result) != len(g.nodes) {
		// Remaining nodes with non-zero in-degree form or feed the cycle.
		var cycleNodes []string
		for _, node := range g.nodes {
			if inDegree[node] > 0 {
				cycleNodes = append(cycleNodes, node)
			}
		}
		return nil, &CycleError{Cycle: cycleNodes}
	}

	return result, nil
}
