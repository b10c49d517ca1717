// SPDX-License-Identifier: MPL-2.0

// Package dag provides directed acyclic graph operations for topological
// sorting and cycle detection. The reference resolver uses it to order
// reference-to-reference chains so forward references resolve in one
// pass, and to report the full chain of any reference cycle.
package dag

import (
	"fmt"
	"strings"
)

type (
	// CycleError indicates that the graph contains a cycle, preventing
	// topological ordering. Chain lists the nodes along the cycle in
	// walk order, ending with the node that was reached twice.
	CycleError struct {
		Chain []string
	}

	// Graph is a directed graph for topological sorting.
	// Nodes are identified by string keys. An edge from A to B means A
	// must be processed before B.
	Graph struct {
		// adjacency maps each node to its outgoing neighbors.
		adjacency map[string][]string
		// nodes tracks all nodes in insertion order for deterministic output.
		nodes []string
		// nodeSet provides O(1) lookup for node existence.
		nodeSet map[string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Chain, " -> "))
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		adjacency: make(map[string][]string),
		nodeSet:   make(map[string]bool),
	}
}

// AddNode adds a node to the graph. If the node already exists, this is a no-op.
func (g *Graph) AddNode(name string) {
	if g.nodeSet[name] {
		return
	}
	g.nodeSet[name] = true
	g.nodes = append(g.nodes, name)
}

// AddEdge adds a directed edge from -> to. Both nodes are implicitly
// added if they don't exist.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	g.adjacency[from] = append(g.adjacency[from], to)
}

// TopologicalSort returns a valid processing order using Kahn's
// algorithm. Returns CycleError carrying the full cycle chain if the
// graph contains a cycle. The returned order is deterministic: nodes
// at the same topological level appear in the order they were first
// added to the graph.
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
		return nil, &CycleError{Chain: g.findCycle()}
	}

	return result, nil
}

// findCycle locates one cycle with an explicit visited-set +
// recursion-stack DFS (iterative, so adversarial graphs cannot blow
// the native stack) and returns its chain including the repeated node.
func (g *Graph) findCycle() []string {
	visited := make(map[string]bool, len(g.nodes))
	onStack := make(map[string]bool, len(g.nodes))

	type frame struct {
		node string
		next int
	}

	for _, start := range g.nodes {
		if visited[start] {
			continue
		}

		stack := []frame{{node: start}}
		onStack[start] = true
		visited[start] = true

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			neighbors := g.adjacency[f.node]

			if f.next >= len(neighbors) {
				onStack[f.node] = false
				stack = stack[:len(stack)-1]
				continue
			}

			next := neighbors[f.next]
			f.next++

			if onStack[next] {
				// Slice the chain from the first occurrence of next,
				// then close the loop with next again.
				var chain []string
				started := false
				for _, fr := range stack {
					if fr.node == next {
						started = true
					}
					if started {
						chain = append(chain, fr.node)
					}
				}
				return append(chain, next)
			}
			if !visited[next] {
				visited[next] = true
				onStack[next] = true
				stack = append(stack, frame{node: next})
			}
		}
	}
	return nil
}
