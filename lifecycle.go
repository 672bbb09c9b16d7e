package difx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Hook is a pair of start and stop actions registered by a constructor.
// Either action may be nil. A zero Timeout uses the app's hook timeout.
type Hook struct {
	Name    string
	OnStart func(context.Context) error
	OnStop  func(context.Context) error
	Timeout time.Duration
}

// Lifecycle lets constructors register hooks. Hooks start in the order the
// services were constructed and stop in exactly the reverse order.
type Lifecycle interface {
	Append(Hook)
}

type HookState uint8

const (
	HookRegistered HookState = iota
	HookStarting
	HookRunning
	HookStopping
	HookStopped
	HookFailed
)

func (s HookState) String() string {
	switch s {
	case HookRegistered:
		return "registered"
	case HookStarting:
		return "starting"
	case HookRunning:
		return "running"
	case HookStopping:
		return "stopping"
	case HookStopped:
		return "stopped"
	case HookFailed:
		return "failed"
	}

	return fmt.Sprintf("HookState(%d)", uint8(s))
}

type lifecyclePhase uint8

const (
	phaseIdle lifecyclePhase = iota
	phaseStarting
	phaseRunning
	phaseStopping
	phaseStopped
)

type hookRecord struct {
	Hook
	owner string
	level int
	state HookState
}

// lifecycle coordinates hooks. Start actions run in registration order,
// or level by level with parallel set; stop actions run in reverse of the
// order start actions completed.
type lifecycle struct {
	mu       sync.Mutex
	phase    lifecyclePhase
	pending  []*hookRecord
	started  []*hookRecord
	all      []*hookRecord
	timeout  time.Duration
	parallel bool
	events   EventLogger
}

func newLifecycle(timeout time.Duration, parallel bool, events EventLogger) *lifecycle {
	if timeout <= 0 {
		timeout = DefaultHookTimeout
	}

	return &lifecycle{timeout: timeout, parallel: parallel, events: events}
}

// append registers h. Hooks arriving while the lifecycle is starting are
// queued behind the ones already pending. Hooks arriving once it is running
// are started right away.
func (l *lifecycle) append(ctx context.Context, owner string, level int, h Hook) (*hookRecord, error) {
	if h.Name == "" {
		h.Name = hookName(h, owner)
	}

	rec := &hookRecord{Hook: h, owner: owner, level: level}

	l.mu.Lock()
	phase := l.phase
	if phase <= phaseRunning {
		l.all = append(l.all, rec)
	}
	if phase <= phaseStarting {
		l.pending = append(l.pending, rec)
	}
	l.mu.Unlock()

	switch phase {
	case phaseIdle, phaseStarting:
		return rec, nil
	case phaseRunning:
		return rec, l.startHook(ctx, rec)
	default:
		return nil, fmt.Errorf("%w: cannot append hook %q", ErrLifecycleClosed, h.Name)
	}
}

// discard forgets hooks that have not started yet. It is used when the
// constructor that registered them fails.
func (l *lifecycle) discard(recs []*hookRecord) {
	if len(recs) == 0 {
		return
	}

	drop := make(map[*hookRecord]bool, len(recs))
	for _, rec := range recs {
		drop[rec] = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pending := l.pending[:0]
	for _, rec := range l.pending {
		if !drop[rec] {
			pending = append(pending, rec)
		}
	}
	l.pending = pending

	all := l.all[:0]
	for _, rec := range l.all {
		if !drop[rec] || rec.state != HookRegistered {
			all = append(all, rec)
		}
	}
	l.all = all
}

// Start runs pending start actions until none are left. Hooks appended by a
// start action join the queue and run after the current batch.
func (l *lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.phase != phaseIdle {
		l.mu.Unlock()
		return fmt.Errorf("lifecycle: %w", ErrAlreadyStarted)
	}
	l.phase = phaseStarting

	for len(l.pending) > 0 {
		hooks := l.pending
		l.pending = nil
		l.mu.Unlock()

		if err := l.startBatch(ctx, hooks); err != nil {
			return err
		}

		l.mu.Lock()
	}

	if l.phase == phaseStarting {
		l.phase = phaseRunning
	}
	l.mu.Unlock()

	return nil
}

func (l *lifecycle) startBatch(ctx context.Context, hooks []*hookRecord) error {
	if l.parallel {
		return l.startLevels(ctx, hooks)
	}

	for _, rec := range hooks {
		if err := l.startHook(ctx, rec); err != nil {
			return err
		}
	}

	return nil
}

// startLevels starts hooks level by level. Within a level, hooks of
// different owners run concurrently and hooks of one owner keep their order.
func (l *lifecycle) startLevels(ctx context.Context, hooks []*hookRecord) error {
	var levels [][]*hookRecord
	for _, rec := range hooks {
		for len(levels) <= rec.level {
			levels = append(levels, nil)
		}
		levels[rec.level] = append(levels[rec.level], rec)
	}

	for _, level := range levels {
		var owners []string
		byOwner := make(map[string][]*hookRecord)
		for _, rec := range level {
			if _, ok := byOwner[rec.owner]; !ok {
				owners = append(owners, rec.owner)
			}
			byOwner[rec.owner] = append(byOwner[rec.owner], rec)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, owner := range owners {
			recs := byOwner[owner]
			g.Go(func() error {
				for _, rec := range recs {
					if err := l.startHook(gctx, rec); err != nil {
						return err
					}
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}
	}

	return nil
}

func (l *lifecycle) startHook(ctx context.Context, rec *hookRecord) error {
	l.setState(rec, HookStarting)

	if rec.OnStart != nil {
		if err := l.run(ctx, rec, PhaseStart, rec.OnStart); err != nil {
			l.setState(rec, HookFailed)
			return err
		}
	}

	l.mu.Lock()
	rec.state = HookRunning
	l.started = append(l.started, rec)
	l.mu.Unlock()

	return nil
}

// Stop runs the stop action of every running hook once, in reverse start
// order, and returns all failures combined.
func (l *lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	if l.phase == phaseIdle || l.phase >= phaseStopping {
		l.phase = phaseStopped
		l.mu.Unlock()
		return nil
	}
	l.phase = phaseStopping
	hooks := l.started
	l.started = nil
	l.mu.Unlock()

	var errs error
	for i := len(hooks) - 1; i >= 0; i-- {
		rec := hooks[i]
		if rec.OnStop == nil {
			l.setState(rec, HookStopped)
			continue
		}

		l.setState(rec, HookStopping)
		if err := l.run(ctx, rec, PhaseStop, rec.OnStop); err != nil {
			l.setState(rec, HookFailed)
			errs = multierr.Append(errs, err)
			continue
		}
		l.setState(rec, HookStopped)
	}

	l.mu.Lock()
	l.phase = phaseStopped
	l.mu.Unlock()

	return errs
}

// run executes one action under the hook timeout. An action that ignores its
// context is abandoned when the timeout fires.
func (l *lifecycle) run(ctx context.Context, rec *hookRecord, phase Phase, action func(context.Context) error) error {
	timeout := rec.Timeout
	if timeout <= 0 {
		timeout = l.timeout
	}

	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	begin := time.Now()
	done := make(chan error, 1)
	go func() {
		var err error
		defer func() { done <- err }()
		defer recoverInto(&err)
		err = action(hctx)
	}()

	var err error
	select {
	case err = <-done:
		switch {
		case err == nil:
		case ctx.Err() != nil:
			err = fmt.Errorf("hook %q: %s interrupted: %w", rec.Name, phase, ctx.Err())
		case errors.Is(hctx.Err(), context.DeadlineExceeded):
			err = &LifecycleTimeoutError{Hook: rec.Name, Phase: phase, Timeout: timeout}
		default:
			err = &LifecycleError{Hook: rec.Name, Phase: phase, Cause: err}
		}
	case <-hctx.Done():
		if ctx.Err() != nil {
			err = fmt.Errorf("hook %q: %s interrupted: %w", rec.Name, phase, ctx.Err())
		} else {
			err = &LifecycleTimeoutError{Hook: rec.Name, Phase: phase, Timeout: timeout}
		}
	}

	l.events.LogEvent(&HookExecuted{Hook: rec.Name, Owner: rec.owner, Phase: phase, Duration: time.Since(begin), Err: err})
	return err
}

func (l *lifecycle) setState(rec *hookRecord, state HookState) {
	l.mu.Lock()
	rec.state = state
	l.mu.Unlock()
}

// HookStatus is a snapshot of one registered hook.
type HookStatus struct {
	Name  string
	Owner string
	State HookState
}

func (l *lifecycle) statuses() []HookStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	statuses := make([]HookStatus, len(l.all))
	for i, rec := range l.all {
		statuses[i] = HookStatus{Name: rec.Name, Owner: rec.owner, State: rec.state}
	}

	return statuses
}

func hookName(h Hook, owner string) string {
	if name := funcName(h.OnStart); name != "" {
		return name
	}
	if name := funcName(h.OnStop); name != "" {
		return name
	}
	if owner != "" {
		return owner
	}

	return "unnamed"
}

// hookRecorder is the Lifecycle handed to one constructor or invocation. It
// tags hooks with their owner and keeps errors of hooks started late.
type hookRecorder struct {
	lifecycle *lifecycle
	ctx       context.Context
	owner     string
	level     int
	scoped    bool

	mu   sync.Mutex
	recs []*hookRecord
	err  error
}

func (r *hookRecorder) Append(h Hook) {
	var (
		rec *hookRecord
		err error
	)
	if r.scoped {
		err = fmt.Errorf("hook %q of %s: scoped services cannot register lifecycle hooks", h.Name, r.owner)
	} else {
		rec, err = r.lifecycle.append(r.ctx, r.owner, r.level, h)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec != nil {
		r.recs = append(r.recs, rec)
	}
	if err != nil {
		r.err = multierr.Append(r.err, err)
	}
}

func (r *hookRecorder) records() []*hookRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*hookRecord(nil), r.recs...)
}

func (r *hookRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
