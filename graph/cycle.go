package graph

type visitState uint8

const (
	unvisited visitState = iota
	visiting
	visited
)

// FindCycle walks the graph depth-first in insertion order and returns the
// first cycle it meets, as the path from the repeated node back to itself
// (for example [A B A]). It returns nil for an acyclic graph.
func (g *Graph[K]) FindCycle() []K {
	state := make(map[K]visitState, len(g.order))
	var stack Stack[K]

	var visit func(id K) []K
	visit = func(id K) []K {
		state[id] = visiting
		stack.Push(id)

		for _, dep := range g.edges[id] {
			if _, ok := g.edges[dep]; !ok {
				continue
			}

			switch state[dep] {
			case visiting:
				start := stack.Index(dep)
				path := make([]K, 0, len(stack)-start+1)
				path = append(path, stack[start:]...)
				return append(path, dep)
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}

		stack.Pop()
		state[id] = visited
		return nil
	}

	for _, id := range g.order {
		if state[id] != unvisited {
			continue
		}

		if cycle := visit(id); cycle != nil {
			return cycle
		}
	}

	return nil
}
