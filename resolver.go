package difx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	isync "github.com/smirnoffmg/di-fx/sync"
)

type scopedCleanup struct {
	key Key
	fn  Cleanup
}

// scope caches instances for one lifetime. The root scope holds singletons;
// child scopes hold instances of scoped entries.
type scope struct {
	c      *container
	parent *scope
	name   string

	cache  *isync.Map[serviceID, any]
	flight singleflight.Group

	mu       sync.Mutex
	cleanups []scopedCleanup
	closed   bool
}

func newScope(c *container, parent *scope, name string) *scope {
	return &scope{
		c:      c,
		parent: parent,
		name:   name,
		cache:  isync.NewMap[serviceID, any](hashID),
	}
}

func (s *scope) root() *scope {
	for s.parent != nil {
		s = s.parent
	}

	return s
}

func (s *scope) resolve(ctx context.Context, k Key) (any, error) {
	if err := s.c.build(); err != nil {
		return nil, err
	}

	e, err := s.c.registry.lookup(k)
	if err != nil {
		return nil, err
	}

	return s.resolveEntry(ctx, e)
}

// resolveEntry returns the cached instance of e, joins a construction of e
// already in flight, or constructs e.
func (s *scope) resolveEntry(ctx context.Context, e *providerEntry) (any, error) {
	if e.kind == kindLifecycle {
		return &hookRecorder{lifecycle: s.c.lifecycle, ctx: context.WithoutCancel(ctx)}, nil
	}

	owner := s.root()
	if e.scoped {
		if s.parent == nil {
			return nil, fmt.Errorf("%w: %s", ErrScopeRequired, e.key())
		}
		owner = s
	}

	if v, ok := owner.cache.Load(e.id); ok {
		return v, nil
	}

	ch := owner.flight.DoChan(e.id.String(), func() (any, error) {
		if v, ok := owner.cache.Load(e.id); ok {
			return v, nil
		}

		return owner.construct(ctx, e)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *scope) construct(ctx context.Context, e *providerEntry) (any, error) {
	rec := s.c.recorder(ctx, e)

	args, err := s.resolveInputs(ctx, s.c.deps[e], rec)
	if err != nil {
		return nil, err
	}

	begin := time.Now()
	value, cleanup, err := e.build(ctx, args)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err == nil {
		value, err = s.decorate(ctx, e, value, rec)
	}
	if err == nil {
		err = rec.Err()
	}
	if err == nil {
		err = s.track(e, value, cleanup)
	}

	if err != nil {
		if cleanup != nil {
			err = multierr.Append(err, runCleanup(context.WithoutCancel(ctx), cleanup))
		}
		s.c.lifecycle.discard(rec.records())

		err = &ConstructionError{Key: e.key(), Provider: e.String(), Cause: err}
		s.c.events.LogEvent(&Constructed{Key: e.key().String(), Provider: e.String(), Duration: time.Since(begin), Err: err})
		return nil, err
	}

	s.c.events.LogEvent(&Constructed{Key: e.key().String(), Provider: e.String(), Duration: time.Since(begin)})
	return value, nil
}

// resolveInputs resolves deps in order. Independent inputs resolve
// concurrently unless the container is sequential.
func (s *scope) resolveInputs(ctx context.Context, deps []*providerEntry, rec *hookRecorder) ([]any, error) {
	args := make([]any, len(deps))

	var pending []int
	for i, dep := range deps {
		if dep.kind == kindLifecycle {
			args[i] = rec
			continue
		}
		pending = append(pending, i)
	}

	if !s.c.concurrent || len(pending) < 2 {
		for _, i := range pending {
			v, err := s.resolveEntry(ctx, deps[i])
			if err != nil {
				return nil, err
			}
			args[i] = v
		}

		return args, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, i := range pending {
		g.Go(func() error {
			v, err := s.resolveEntry(gctx, deps[i])
			if err != nil {
				return err
			}
			args[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return args, nil
}

func (s *scope) decorate(ctx context.Context, e *providerEntry, value any, rec *hookRecorder) (any, error) {
	for _, d := range s.c.decorators[e] {
		args, err := s.resolveInputs(ctx, d.deps, rec)
		if err != nil {
			return nil, err
		}

		value, err = d.apply(ctx, value, args)
		if err != nil {
			return nil, fmt.Errorf("decorator %s: %w", d, err)
		}
	}

	return value, nil
}

// track caches value and records its cleanup in one step, so a closed scope
// never gains instances.
func (s *scope) track(e *providerEntry, value any, cleanup Cleanup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: %s", ErrScopeClosed, s.name)
	}

	if cleanup != nil {
		s.cleanups = append(s.cleanups, scopedCleanup{key: e.key(), fn: cleanup})
	}
	s.cache.Store(e.id, value)

	return nil
}

func (s *scope) constructed(e *providerEntry) bool {
	return s.cache.Has(e.id)
}

// close runs cleanups in reverse acquisition order. Every cleanup runs once
// even when earlier ones fail.
func (s *scope) close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cleanups := s.cleanups
	s.cleanups = nil
	s.mu.Unlock()

	var errs error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := runCleanup(ctx, cleanups[i].fn); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cleanup of %s: %w", cleanups[i].key, err))
		}
	}

	return errs
}

func runCleanup(ctx context.Context, fn Cleanup) (err error) {
	defer recoverInto(&err)
	return fn(ctx)
}
