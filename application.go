package difx

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// App is an assembled application: its registry, its singleton scope and
// the lifecycle of the hooks its constructors register.
type App struct {
	container *container
	lifecycle *lifecycle
	events    EventLogger
	logger    *zap.Logger
	config    Config
	err       error

	mu      sync.Mutex
	started bool
	stopped bool

	done         chan struct{}
	shutdownOnce sync.Once
}

type pendingInvocation struct {
	inv  *invocation
	args []any
	rec  *hookRecorder
}

// New assembles an App. Assembly errors are kept and returned by Err,
// Validate, Start and Run.
func New(opts ...Option) *App {
	s := settings{config: DefaultConfig()}
	for _, opt := range opts {
		opt.configure(&s)
	}

	logger := s.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	events := s.events
	if events == nil {
		events = &ZapLogger{Logger: logger}
	}

	app := &App{
		events: events,
		logger: logger,
		config: s.config,
		done:   make(chan struct{}),
	}
	app.lifecycle = newLifecycle(s.config.HookTimeout, s.config.ParallelStart, events)
	app.container = newContainer(app.lifecycle, events, s.config.ConcurrentResolve)

	if err := app.provideBuiltins(); err != nil {
		app.err = err
		return app
	}

	asm := &assembly{app: app}
	for _, opt := range opts {
		if opt.apply(asm); asm.err != nil {
			break
		}
	}
	app.err = asm.err

	return app
}

// ValidateApp assembles an App from opts and validates it.
func ValidateApp(opts ...Option) error {
	return New(opts...).Validate()
}

func (a *App) provideBuiltins() error {
	builtins := []*providerEntry{
		{
			keys:  []Key{KeyOf[Lifecycle]()},
			label: "Lifecycle",
			kind:  kindLifecycle,
			build: func(context.Context, []any) (any, Cleanup, error) {
				return nil, nil, fmt.Errorf("the lifecycle is bound per constructor")
			},
		},
		{
			keys:  []Key{KeyOf[Shutdowner]()},
			label: "Shutdowner",
			kind:  kindSupplied,
			build: func(context.Context, []any) (any, Cleanup, error) { return a, nil, nil },
		},
		{
			keys:  []Key{KeyOf[*DotGraph]()},
			label: "DotGraph",
			build: func(context.Context, []any) (any, Cleanup, error) { return a.Graph(), nil, nil },
		},
	}

	for _, e := range builtins {
		if err := a.container.registry.register(e, false); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) Err() error { return a.err }

// Validate builds the dependency graph and checks it without constructing
// anything.
func (a *App) Validate() error {
	if a.err != nil {
		return a.err
	}

	return a.container.build()
}

func (a *App) Resolve(ctx context.Context, key Key) (any, error) {
	if a.err != nil {
		return nil, a.err
	}

	return a.container.root.resolve(ctx, key)
}

// Plan returns the keys of the services resolving keys would construct, in
// construction order. Nothing is constructed.
func (a *App) Plan(keys ...Key) ([]Key, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	entries, err := a.container.plan(keys)
	if err != nil {
		return nil, err
	}

	plan := make([]Key, len(entries))
	for i, e := range entries {
		plan[i] = e.key()
	}

	return plan, nil
}

// NewScope opens a child scope. Scoped services are constructed once per
// scope; everything else comes from the App.
func (a *App) NewScope(name string) *Scope {
	return &Scope{s: newScope(a.container, a.container.root, name)}
}

// Start resolves the inputs of every invocation, starts all hooks and then
// calls the invocations in registration order. When any step fails, Start
// stops whatever started, releases acquired resources and returns the
// failure.
func (a *App) Start(ctx context.Context) (err error) {
	if err := a.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("app: %w", ErrAlreadyStarted)
	}
	a.started = true
	a.mu.Unlock()

	defer func() {
		a.events.LogEvent(&Started{Err: err})
		if err != nil {
			err = a.rollback(err)
		}
	}()

	c := a.container
	calls := make([]pendingInvocation, 0, len(c.registry.invocations))

	for _, inv := range c.registry.invocations {
		rec := c.invocationRecorder(ctx, inv)

		args, err := c.root.resolveInputs(ctx, c.invokeDeps[inv], rec)
		if err != nil {
			return err
		}

		calls = append(calls, pendingInvocation{inv: inv, args: args, rec: rec})
	}

	if err := a.lifecycle.Start(ctx); err != nil {
		return err
	}

	for _, call := range calls {
		err := call.inv.call(ctx, call.args)
		if err == nil {
			err = call.rec.Err()
		}

		a.events.LogEvent(&Invoked{Function: call.inv.label, Module: call.inv.module, Err: err})
		if err != nil {
			return fmt.Errorf("invoke %s: %w", call.inv, err)
		}
	}

	return nil
}

func (a *App) rollback(cause error) error {
	ctx, cancel := withTimeout(context.Background(), a.config.StopTimeout)
	defer cancel()

	err := a.Stop(ctx)
	a.events.LogEvent(&RolledBack{Err: err})

	return multierr.Append(cause, err)
}

// Stop runs the stop hooks in reverse start order and then the cleanups of
// the App scope in reverse acquisition order. Only the first call does
// anything.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	a.mu.Unlock()

	err := multierr.Append(a.lifecycle.Stop(ctx), a.container.root.close(ctx))
	a.events.LogEvent(&Stopped{Err: err})

	return err
}

// Run starts the app, blocks until ctx is done, SIGINT or SIGTERM arrives or
// Shutdown is called, and then stops the app. A startup failure is returned
// after the rollback.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := withTimeout(ctx, a.config.StartTimeout)
	err := a.Start(startCtx)
	cancel()

	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		a.events.LogEvent(&ShutdownRequested{Reason: ctx.Err().Error()})
	case <-a.done:
	}

	stopCtx, cancel := withTimeout(context.Background(), a.config.StopTimeout)
	defer cancel()

	return a.Stop(stopCtx)
}

// Shutdown makes Run return. Later calls are ignored.
func (a *App) Shutdown(reason string) {
	a.shutdownOnce.Do(func() {
		a.events.LogEvent(&ShutdownRequested{Reason: reason})
		close(a.done)
	})
}

// Done is closed once Shutdown is called.
func (a *App) Done() <-chan struct{} { return a.done }

// Hooks reports every registered hook and its state.
func (a *App) Hooks() []HookStatus { return a.lifecycle.statuses() }

func (a *App) Logger() *zap.Logger { return a.logger }

// withTimeout treats a non-positive d as no deadline.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d)
}
