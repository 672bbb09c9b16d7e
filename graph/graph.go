// Package graph holds the dependency graph used by the container: nodes in
// insertion order and "depends on" edges between them.
package graph

// Graph is a directed graph where an edge from A to B means A depends on B.
// Nodes keep their insertion order so every walk is deterministic.
type Graph[K comparable] struct {
	order []K
	edges map[K][]K
}

func New[K comparable]() *Graph[K] {
	return &Graph[K]{edges: make(map[K][]K)}
}

// AddNode adds id with the given dependencies. Adding an existing node
// appends the new dependencies to it.
func (g *Graph[K]) AddNode(id K, deps ...K) {
	if _, ok := g.edges[id]; !ok {
		g.order = append(g.order, id)
		g.edges[id] = nil
	}

	for _, dep := range deps {
		g.AddEdge(id, dep)
	}
}

// AddEdge records that from depends on to. Duplicate edges are ignored.
func (g *Graph[K]) AddEdge(from, to K) {
	if _, ok := g.edges[from]; !ok {
		g.order = append(g.order, from)
	}

	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}

	g.edges[from] = append(g.edges[from], to)
}

