package graph

import (
	"errors"
	"fmt"
	"strings"
)

var ErrCycle = errors.New("graph contains a cycle")

// CycleError carries the offending path.
type CycleError[K comparable] struct {
	Path []K
}

func (e *CycleError[K]) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = fmt.Sprint(id)
	}

	return fmt.Sprintf("%s: %s", ErrCycle, strings.Join(parts, " -> "))
}

func (e *CycleError[K]) Unwrap() error { return ErrCycle }

// TopologicalSort orders nodes so that every node comes after all of its
// dependencies. Independent nodes keep insertion order.
func (g *Graph[K]) TopologicalSort() ([]K, error) {
	if cycle := g.FindCycle(); cycle != nil {
		return nil, &CycleError[K]{Path: cycle}
	}

	return g.postorder(g.order), nil
}

// Reachable returns roots and everything they transitively depend on,
// dependencies first. The graph must be acyclic.
func (g *Graph[K]) Reachable(roots ...K) []K {
	return g.postorder(roots)
}

// Levels assigns each node its depth: 0 for nodes without dependencies,
// otherwise one more than the deepest dependency. Nodes sharing a level
// never depend on each other.
func (g *Graph[K]) Levels() (map[K]int, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	levels := make(map[K]int, len(order))
	for _, id := range order {
		level := 0
		for _, dep := range g.edges[id] {
			if l, ok := levels[dep]; ok && l+1 > level {
				level = l + 1
			}
		}
		levels[id] = level
	}

	return levels, nil
}

func (g *Graph[K]) postorder(roots []K) []K {
	seen := make(map[K]bool, len(g.order))
	order := make([]K, 0, len(g.order))

	var visit func(id K)
	visit = func(id K) {
		if seen[id] {
			return
		}
		seen[id] = true

		for _, dep := range g.edges[id] {
			if _, ok := g.edges[dep]; ok {
				visit(dep)
			}
		}

		order = append(order, id)
	}

	for _, id := range roots {
		if _, ok := g.edges[id]; ok {
			visit(id)
		}
	}

	return order
}
