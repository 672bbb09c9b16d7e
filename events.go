package difx

import (
	"time"

	"go.uber.org/zap"
)

// Event is emitted by an App while it is assembled, resolved, started and
// stopped.
type Event interface {
	event()
}

type Provided struct {
	Provider string
	Keys     []string
	Module   string
	Err      error
}

type Supplied struct {
	Key    string
	Module string
	Err    error
}

type Decorated struct {
	Decorator string
	Key       string
	Module    string
	Err       error
}

// Constructed reports a constructor call, successful or not.
type Constructed struct {
	Key      string
	Provider string
	Duration time.Duration
	Err      error
}

type Invoked struct {
	Function string
	Module   string
	Err      error
}

type HookExecuted struct {
	Hook     string
	Owner    string
	Phase    Phase
	Duration time.Duration
	Err      error
}

type Started struct{ Err error }

type RolledBack struct{ Err error }

type ShutdownRequested struct{ Reason string }

type Stopped struct{ Err error }

func (*Provided) event()          {}
func (*Supplied) event()          {}
func (*Decorated) event()         {}
func (*Constructed) event()       {}
func (*Invoked) event()           {}
func (*HookExecuted) event()      {}
func (*Started) event()           {}
func (*RolledBack) event()        {}
func (*ShutdownRequested) event() {}
func (*Stopped) event()           {}

// EventLogger receives every Event of an App.
type EventLogger interface {
	LogEvent(Event)
}

// ZapLogger writes events as structured zap entries.
type ZapLogger struct {
	Logger *zap.Logger
}

var _ EventLogger = (*ZapLogger)(nil)

func (l *ZapLogger) LogEvent(event Event) {
	switch e := event.(type) {
	case *Provided:
		if e.Err != nil {
			l.Logger.Error("error encountered while applying options", moduleField(e.Module), zap.String("provider", e.Provider), zap.Error(e.Err))
			return
		}
		for _, k := range e.Keys {
			l.Logger.Debug("provided", moduleField(e.Module), zap.String("provider", e.Provider), zap.String("type", k))
		}
	case *Supplied:
		if e.Err != nil {
			l.Logger.Error("error encountered while applying options", moduleField(e.Module), zap.String("type", e.Key), zap.Error(e.Err))
			return
		}
		l.Logger.Debug("supplied", moduleField(e.Module), zap.String("type", e.Key))
	case *Decorated:
		if e.Err != nil {
			l.Logger.Error("error encountered while applying options", moduleField(e.Module), zap.String("decorator", e.Decorator), zap.Error(e.Err))
			return
		}
		l.Logger.Debug("decorated", moduleField(e.Module), zap.String("decorator", e.Decorator), zap.String("type", e.Key))
	case *Constructed:
		if e.Err != nil {
			l.Logger.Error("constructor failed", zap.String("type", e.Key), zap.String("provider", e.Provider), zap.Error(e.Err))
			return
		}
		l.Logger.Debug("constructed", zap.String("type", e.Key), zap.String("provider", e.Provider), zap.Duration("runtime", e.Duration))
	case *Invoked:
		if e.Err != nil {
			l.Logger.Error("invoke failed", moduleField(e.Module), zap.String("function", e.Function), zap.Error(e.Err))
			return
		}
		l.Logger.Info("invoked", moduleField(e.Module), zap.String("function", e.Function))
	case *HookExecuted:
		fields := []zap.Field{zap.String("hook", e.Hook), zap.String("phase", string(e.Phase)), zap.Duration("runtime", e.Duration)}
		if e.Owner != "" {
			fields = append(fields, zap.String("owner", e.Owner))
		}
		if e.Err != nil {
			l.Logger.Error("hook failed", append(fields, zap.Error(e.Err))...)
			return
		}
		l.Logger.Info("hook executed", fields...)
	case *Started:
		if e.Err != nil {
			l.Logger.Error("start failed", zap.Error(e.Err))
			return
		}
		l.Logger.Info("started")
	case *RolledBack:
		if e.Err != nil {
			l.Logger.Error("rollback failed", zap.Error(e.Err))
			return
		}
		l.Logger.Info("rolled back")
	case *ShutdownRequested:
		l.Logger.Info("shutdown requested", zap.String("reason", e.Reason))
	case *Stopped:
		if e.Err != nil {
			l.Logger.Error("stop failed", zap.Error(e.Err))
			return
		}
		l.Logger.Info("stopped")
	}
}

func moduleField(module string) zap.Field {
	if module == "" {
		return zap.Skip()
	}

	return zap.String("module", module)
}
