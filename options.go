package difx

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"go.uber.org/zap"
)

// Option configures an App. Options nest freely through Module and Options.
type Option interface {
	configure(*settings)
	apply(*assembly)
}

type settings struct {
	config Config
	logger *zap.Logger
	events EventLogger
}

// assembly registers options into an App, remembering the first failure.
type assembly struct {
	app    *App
	module string
	err    error
}

func (a *assembly) fail(err error) {
	if a.err != nil {
		return
	}

	if a.module != "" {
		err = fmt.Errorf("module %q: %w", a.module, err)
	}
	a.err = err
}

type settingOption func(*settings)

func (o settingOption) configure(s *settings) { o(s) }
func (settingOption) apply(*assembly)         {}

type registration func(*assembly)

func (registration) configure(*settings)  {}
func (o registration) apply(a *assembly) {
	if a.err == nil {
		o(a)
	}
}

// Provide registers constructors. A constructor is a function whose
// parameters are its dependencies and whose results are the value, an
// optional cleanup (func(), func() error or func(context.Context) error) and
// an optional error. A leading context.Context receives the resolution
// context. Provider descriptors and Annotate results are accepted as well.
func Provide(constructors ...any) Option {
	return provide(constructors, false)
}

// Replace registers constructors or values that take over keys which
// already have a producer. It is meant for tests.
func Replace(targets ...any) Option {
	return registration(func(a *assembly) {
		for _, target := range targets {
			inner, _ := unwrap(target)
			if isConstructor(inner) {
				register(a, target, true)
			} else {
				supply(a, target, true)
			}
			if a.err != nil {
				return
			}
		}
	})
}

func provide(constructors []any, override bool) Option {
	return registration(func(a *assembly) {
		for _, c := range constructors {
			if register(a, c, override); a.err != nil {
				return
			}
		}
	})
}

func register(a *assembly, target any, override bool) {
	e, err := newEntry(target)
	if err != nil {
		inner, _ := unwrap(target)
		a.app.events.LogEvent(&Provided{Provider: funcName(inner), Module: a.module, Err: err})
		a.fail(err)
		return
	}

	e.module = a.module
	err = a.app.container.registry.register(e, override)

	keys := make([]string, len(e.keys))
	for i, k := range e.keys {
		keys[i] = k.String()
	}
	a.app.events.LogEvent(&Provided{Provider: e.label, Keys: keys, Module: a.module, Err: err})

	if err != nil {
		a.fail(err)
	}
}

// Supply registers ready values. Each value is provided under its dynamic
// type; wrap it with Annotate to add a name or interface aliases.
func Supply(values ...any) Option {
	return registration(func(a *assembly) {
		for _, v := range values {
			if supply(a, v, false); a.err != nil {
				return
			}
		}
	})
}

func supply(a *assembly, value any, override bool) {
	e, err := newSuppliedEntry(value)
	if err == nil {
		e.module = a.module
		err = a.app.container.registry.register(e, override)
	}

	key := fmt.Sprintf("%T", value)
	if e != nil {
		key = e.key().String()
	}
	a.app.events.LogEvent(&Supplied{Key: key, Module: a.module, Err: err})

	if err != nil {
		a.fail(err)
	}
}

// Invoke registers functions that run, in order, once the app has started.
// They may only return an error.
func Invoke(funcs ...any) Option {
	return registration(func(a *assembly) {
		for _, fn := range funcs {
			inv, err := newInvocation(fn)
			if err != nil {
				a.fail(err)
				return
			}

			inv.module = a.module
			a.app.container.registry.invocations = append(a.app.container.registry.invocations, inv)
		}
	})
}

// Decorate registers functions that receive a constructed value (and
// further dependencies) and return a replacement for it. Decorators of the
// same type apply in registration order.
func Decorate(decorators ...any) Option {
	return registration(func(a *assembly) {
		for _, fn := range decorators {
			d, err := newDecorator(fn)
			if err == nil {
				d.module = a.module
				a.app.container.registry.decorators = append(a.app.container.registry.decorators, d)
			}

			label, key := funcName(fn), ""
			if d != nil {
				label, key = d.label, d.target.String()
			}
			a.app.events.LogEvent(&Decorated{Decorator: label, Key: key, Module: a.module, Err: err})

			if err != nil {
				a.fail(err)
				return
			}
		}
	})
}

type group struct {
	name string
	opts []Option
}

func (g group) configure(s *settings) {
	for _, opt := range g.opts {
		opt.configure(s)
	}
}

func (g group) apply(a *assembly) {
	parent := a.module
	if g.name != "" {
		if parent == "" {
			a.module = g.name
		} else {
			a.module = parent + "." + g.name
		}
	}

	for _, opt := range g.opts {
		if opt.apply(a); a.err != nil {
			break
		}
	}

	a.module = parent
}

// Module groups options under a name used in errors and diagnostics.
func Module(name string, opts ...Option) Option {
	return group{name: name, opts: opts}
}

// Options groups options without naming them.
func Options(opts ...Option) Option {
	return group{opts: opts}
}

// When applies opts only if cond holds.
func When(cond bool, opts ...Option) Option {
	if !cond {
		return group{}
	}

	return group{opts: opts}
}

// WhenEnv applies opts only if the environment variable name equals value.
func WhenEnv(name, value string, opts ...Option) Option {
	return When(os.Getenv(name) == value, opts...)
}

func WithLogger(logger *zap.Logger) Option {
	return settingOption(func(s *settings) { s.logger = logger })
}

func WithEventLogger(events EventLogger) Option {
	return settingOption(func(s *settings) { s.events = events })
}

func WithConfig(cfg Config) Option {
	return settingOption(func(s *settings) { s.config = cfg })
}

// HookTimeout is the timeout of hooks that do not set their own.
func HookTimeout(d time.Duration) Option {
	return settingOption(func(s *settings) { s.config.HookTimeout = d })
}

// StartTimeout bounds the whole start phase of Run.
func StartTimeout(d time.Duration) Option {
	return settingOption(func(s *settings) { s.config.StartTimeout = d })
}

// StopTimeout bounds the whole stop phase of Run and of a rollback.
func StopTimeout(d time.Duration) Option {
	return settingOption(func(s *settings) { s.config.StopTimeout = d })
}

// ParallelStart starts hooks of independent services concurrently.
func ParallelStart() Option {
	return settingOption(func(s *settings) { s.config.ParallelStart = true })
}

// SequentialResolve resolves the inputs of a constructor one by one.
func SequentialResolve() Option {
	return settingOption(func(s *settings) { s.config.ConcurrentResolve = false })
}

func isConstructor(v any) bool {
	if _, ok := v.(Provider); ok {
		return true
	}

	return v != nil && reflect.TypeOf(v).Kind() == reflect.Func
}
