// Package depgraph orders restore tables by their foreign-key
// relationships. Parents are restored before children; the reversed
// order is used when clearing existing data.
package depgraph

import (
	"fmt"
	"strings"
)

// Graph is a directed dependency graph over table names. An edge
// parent -> child means child carries a foreign key into parent, so
// parent rows must exist before child rows are written.
type Graph struct {
	nodes []string
	index map[string]int
	edges map[string][]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		index: make(map[string]int),
		edges: make(map[string][]string),
	}
}

// AddNode registers a table. Insertion order is remembered and used as
// the tie-breaker during sorting, so output is deterministic.
func (g *Graph) AddNode(name string) {
	if _, ok := g.index[name]; ok {
		return
	}
	g.index[name] = len(g.nodes)
	g.nodes = append(g.nodes, name)
}

// AddEdge records that child depends on parent. Both endpoints are
// added implicitly. Duplicate edges are ignored.
func (g *Graph) AddEdge(parent, child string) {
	g.AddNode(parent)
	g.AddNode(child)
	for _, c := range g.edges[parent] {
		if c == child {
			return
		}
	}
	g.edges[parent] = append(g.edges[parent], child)
}

// HasNode reports whether the table is registered.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Len returns the number of registered tables.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// CycleError reports a dependency cycle. The tables involved are the
// ones that could not be ordered.
type CycleError struct {
	Tables []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle involving tables: %s", strings.Join(e.Tables, ", "))
}

// TopoSort returns the tables in dependency order, every parent before
// all of its children. Ties are broken by node insertion order. Returns
// a CycleError if the graph is not acyclic.
func (g *Graph) TopoSort() ([]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		indegree[n] = 0
	}
	for _, children := range g.edges {
		for _, c := range children {
			indegree[c]++
		}
	}

	// Kahn's algorithm with a ready list kept in insertion order.
	var ready []string
	for _, n := range g.nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	ordered := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		// Pick the lowest-insertion-order ready node.
		minIdx := 0
		for i := 1; i < len(ready); i++ {
			if g.index[ready[i]] < g.index[ready[minIdx]] {
				minIdx = i
			}
		}
		node := ready[minIdx]
		ready = append(ready[:minIdx], ready[minIdx+1:]...)
		ordered = append(ordered, node)

		for _, child := range g.edges[node] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(ordered) != len(g.nodes) {
		var cyclic []string
		for _, n := range g.nodes {
			if indegree[n] > 0 {
				cyclic = append(cyclic, n)
			}
		}
		return nil, &CycleError{Tables: cyclic}
	}

	return ordered, nil
}

// Reverse returns a reversed copy of an ordering, children before
// parents. Used for the pre-clear pass of full restores.
func Reverse(order []string) []string {
	reversed := make([]string, len(order))
	for i, name := range order {
		reversed[len(order)-1-i] = name
	}
	return reversed
}
