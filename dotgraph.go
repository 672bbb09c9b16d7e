package difx

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// GraphNode is a registered producer as seen by diagnostics.
type GraphNode struct {
	Key         string
	Aliases     []string
	Provider    string
	Module      string
	Scoped      bool
	Supplied    bool
	Constructed bool
	Level       int
}

// GraphEdge means From depends on To.
type GraphEdge struct {
	From string
	To   string
}

// DotGraph is a read-only snapshot of the dependency graph. It can be
// injected like any other service.
type DotGraph struct {
	Nodes []GraphNode
	Edges []GraphEdge
}

// Graph snapshots the dependency graph. Inputs without a producer are left
// out, so the snapshot is available even for an invalid app. For a valid app
// nodes come in construction order.
func (a *App) Graph() *DotGraph {
	c := a.container
	g := &DotGraph{}

	entries := c.registry.entries
	if a.Validate() == nil {
		entries = c.ordered()
	}

	for _, e := range entries {
		node := GraphNode{
			Key:         e.key().String(),
			Provider:    e.label,
			Module:      e.module,
			Scoped:      e.scoped,
			Supplied:    e.kind == kindSupplied,
			Constructed: c.root.constructed(e),
			Level:       c.levels[e.key()],
		}
		for _, alias := range e.keys[1:] {
			node.Aliases = append(node.Aliases, alias.String())
		}
		g.Nodes = append(g.Nodes, node)

		for _, in := range e.inputs {
			if dep, err := c.registry.lookup(in); err == nil {
				g.Edges = append(g.Edges, GraphEdge{From: node.Key, To: dep.key().String()})
			}
		}
	}

	return g
}

// DependenciesOf returns the keys key depends on directly.
func (g *DotGraph) DependenciesOf(key string) []string {
	var deps []string
	for _, edge := range g.Edges {
		if edge.From == key {
			deps = append(deps, edge.To)
		}
	}

	return deps
}

// WriteDOT renders the graph in Graphviz DOT format.
func (g *DotGraph) WriteDOT(w io.Writer) error {
	var b strings.Builder

	b.WriteString("digraph dependencies {\n")
	b.WriteString("\trankdir=LR;\n")
	b.WriteString("\tnode [shape=box, style=\"rounded,filled\", fillcolor=white];\n")

	for _, node := range g.Nodes {
		label := node.Key + "\n" + node.Provider
		if node.Module != "" {
			label += "\n" + node.Module
		}

		attrs := []string{"label=" + strconv.Quote(label)}
		if node.Constructed {
			attrs = append(attrs, "fillcolor=lightblue")
		}
		if node.Scoped {
			attrs = append(attrs, "style=\"rounded,dashed\"")
		}

		fmt.Fprintf(&b, "\t%s [%s];\n", strconv.Quote(node.Key), strings.Join(attrs, ", "))
	}

	for _, edge := range g.Edges {
		fmt.Fprintf(&b, "\t%s -> %s;\n", strconv.Quote(edge.From), strconv.Quote(edge.To))
	}

	b.WriteString("}\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func (g *DotGraph) String() string {
	var b strings.Builder
	_ = g.WriteDOT(&b)
	return b.String()
}

// Table renders one row per service with its provider and dependencies.
func (g *DotGraph) Table() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Service", "Provider", "Module", "Depends on", "Level", "State"})

	for _, node := range g.Nodes {
		state := "pending"
		switch {
		case node.Supplied:
			state = "supplied"
		case node.Constructed:
			state = "constructed"
		}
		if node.Scoped {
			state += " (scoped)"
		}

		t.AppendRow(table.Row{node.Key, node.Provider, node.Module, strings.Join(g.DependenciesOf(node.Key), ", "), node.Level, state})
	}

	return t.Render()
}
