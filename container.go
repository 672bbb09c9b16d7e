package difx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/smirnoffmg/di-fx/graph"
)

type boundDecorator struct {
	*decorator
	deps []*providerEntry
}

// container owns the registry and, once compiled, the dependency graph and
// the root scope.
type container struct {
	registry   *registry
	lifecycle  *lifecycle
	events     EventLogger
	concurrent bool

	once     sync.Once
	buildErr error

	graph      *graph.Graph[Key]
	deps       map[*providerEntry][]*providerEntry
	decorators map[*providerEntry][]*boundDecorator
	invokeDeps map[*invocation][]*providerEntry
	levels     map[Key]int

	root *scope
}

func newContainer(lc *lifecycle, events EventLogger, concurrent bool) *container {
	c := &container{
		registry:   newRegistry(),
		lifecycle:  lc,
		events:     events,
		concurrent: concurrent,
	}
	c.root = newScope(c, nil, "root")

	return c
}

// build compiles the graph once. It never calls a constructor.
func (c *container) build() error {
	c.once.Do(func() { c.buildErr = c.compile() })
	return c.buildErr
}

func (c *container) compile() error {
	g := graph.New[Key]()
	deps := make(map[*providerEntry][]*providerEntry, len(c.registry.entries))

	for _, e := range c.registry.entries {
		g.AddNode(e.key())

		resolved, err := c.dependencies(e.String(), e.inputs)
		if err != nil {
			return err
		}

		for _, dep := range resolved {
			g.AddEdge(e.key(), dep.key())
		}
		deps[e] = resolved
	}

	decorators := make(map[*providerEntry][]*boundDecorator)
	for _, d := range c.registry.decorators {
		target, err := c.dependency(d.String(), d.target)
		if err != nil {
			return err
		}

		for _, k := range target.keys {
			if !d.target.typ.AssignableTo(k.typ) {
				return fmt.Errorf("%w: decorator %s returns %s, which cannot be used as %s provided by %s",
					ErrInvalidConstructor, d, d.target.typ, k, target)
			}
		}

		resolved, err := c.dependencies(d.String(), d.inputs)
		if err != nil {
			return err
		}

		for _, dep := range resolved {
			g.AddEdge(target.key(), dep.key())
		}
		decorators[target] = append(decorators[target], &boundDecorator{decorator: d, deps: resolved})
	}

	invokeDeps := make(map[*invocation][]*providerEntry, len(c.registry.invocations))
	for _, inv := range c.registry.invocations {
		resolved, err := c.dependencies(inv.String(), inv.inputs)
		if err != nil {
			return err
		}
		invokeDeps[inv] = resolved
	}

	if path := g.FindCycle(); path != nil {
		return &CircularDependencyError{Path: path}
	}

	for _, e := range c.registry.entries {
		if e.scoped {
			continue
		}

		all := deps[e]
		for _, d := range decorators[e] {
			all = append(all, d.deps...)
		}

		for _, dep := range all {
			if dep.scoped {
				return fmt.Errorf("%w: %s requires %s", ErrCaptiveDependency, e, dep.key())
			}
		}
	}

	levels, err := g.Levels()
	if err != nil {
		return err
	}

	c.graph, c.deps, c.decorators, c.invokeDeps, c.levels = g, deps, decorators, invokeDeps, levels
	return nil
}

func (c *container) dependencies(consumer string, keys []Key) ([]*providerEntry, error) {
	resolved := make([]*providerEntry, len(keys))
	for i, k := range keys {
		dep, err := c.dependency(consumer, k)
		if err != nil {
			return nil, err
		}
		resolved[i] = dep
	}

	return resolved, nil
}

func (c *container) dependency(consumer string, k Key) (*providerEntry, error) {
	dep, err := c.registry.lookup(k)

	var unresolved *UnresolvedDependencyError
	if errors.As(err, &unresolved) {
		unresolved.Consumer = consumer
	}

	return dep, err
}

func (c *container) recorder(ctx context.Context, e *providerEntry) *hookRecorder {
	return &hookRecorder{
		lifecycle: c.lifecycle,
		ctx:       context.WithoutCancel(ctx),
		owner:     e.key().String(),
		level:     c.levels[e.key()],
		scoped:    e.scoped,
	}
}

func (c *container) invocationRecorder(ctx context.Context, inv *invocation) *hookRecorder {
	level := 0
	for _, dep := range c.invokeDeps[inv] {
		if l := c.levels[dep.key()] + 1; l > level {
			level = l
		}
	}

	return &hookRecorder{
		lifecycle: c.lifecycle,
		ctx:       context.WithoutCancel(ctx),
		owner:     inv.String(),
		level:     level,
	}
}

// ordered returns the entries in construction order. The container must be
// built.
func (c *container) ordered() []*providerEntry {
	order, _ := c.graph.TopologicalSort()
	return c.entriesOf(order)
}

// plan lists the entries resolving keys would construct, dependencies first.
func (c *container) plan(keys []Key) ([]*providerEntry, error) {
	roots := make([]Key, len(keys))
	for i, k := range keys {
		e, err := c.dependency("plan", k)
		if err != nil {
			return nil, err
		}
		roots[i] = e.key()
	}

	return c.entriesOf(c.graph.Reachable(roots...)), nil
}

func (c *container) entriesOf(keys []Key) []*providerEntry {
	byKey := make(map[Key]*providerEntry, len(c.registry.entries))
	for _, e := range c.registry.entries {
		byKey[e.key()] = e
	}

	entries := make([]*providerEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, byKey[k])
	}

	return entries
}
