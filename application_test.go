package difx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type ApplicationTestSuite struct {
	suite.Suite
	ctx context.Context
	log *orderLog
}

func (s *ApplicationTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.log = &orderLog{}
}

// chain provides db <- repo <- service, each registering a logging hook.
func (s *ApplicationTestSuite) chain() Option {
	return Provide(
		hooked(s.log, "db", &testDatabase{name: "main"}),
		func(lc Lifecycle, db *testDatabase) *testRepo {
			return hooked(s.log, "repo", &testRepo{db: db})(lc)
		},
		func(lc Lifecycle, repo *testRepo) *testService {
			return hooked(s.log, "service", &testService{repo: repo})(lc)
		},
	)
}

func (s *ApplicationTestSuite) TestStartAndStopFollowDependencyOrder() {
	app := New(s.chain(), Invoke(func(*testService) { s.log.add("invoke") }))

	s.Require().NoError(app.Start(s.ctx))
	s.Require().NoError(app.Stop(s.ctx))

	s.Equal([]string{
		"construct db", "construct repo", "construct service",
		"start db", "start repo", "start service",
		"invoke",
		"stop service", "stop repo", "stop db",
	}, s.log.list())
}

func (s *ApplicationTestSuite) TestParallelStartKeepsDependencyOrder() {
	app := New(ParallelStart(), s.chain(), Invoke(func(*testService) {}))

	s.Require().NoError(app.Start(s.ctx))
	s.Require().NoError(app.Stop(s.ctx))

	s.Equal([]string{
		"construct db", "construct repo", "construct service",
		"start db", "start repo", "start service",
		"stop service", "stop repo", "stop db",
	}, s.log.list())
}

func (s *ApplicationTestSuite) TestUnusedConstructorsAreNotCalled() {
	app := New(s.chain(), Invoke(func(*testDatabase) {}))

	s.Require().NoError(app.Start(s.ctx))
	s.Require().NoError(app.Stop(s.ctx))

	s.Equal([]string{"construct db", "start db", "stop db"}, s.log.list())
}

func (s *ApplicationTestSuite) TestInvocationHooksStartImmediately() {
	app := New(
		Provide(hooked(s.log, "db", &testDatabase{})),
		Invoke(func(lc Lifecycle, _ *testDatabase) {
			s.log.add("invoke")
			lc.Append(Hook{
				Name:    "worker",
				OnStart: func(context.Context) error { s.log.add("start worker"); return nil },
				OnStop:  func(context.Context) error { s.log.add("stop worker"); return nil },
			})
		}),
	)

	s.Require().NoError(app.Start(s.ctx))
	s.Require().NoError(app.Stop(s.ctx))

	s.Equal([]string{
		"construct db", "start db", "invoke", "start worker",
		"stop worker", "stop db",
	}, s.log.list())
}

func (s *ApplicationTestSuite) TestRunStopsOnShutdown() {
	app := New(s.chain(), Invoke(func(_ *testService, sd Shutdowner) {
		go sd.Shutdown("work finished")
	}))

	s.Require().NoError(app.Run(s.ctx))

	select {
	case <-app.Done():
	default:
		s.Fail("done channel not closed")
	}

	s.Equal([]string{"stop service", "stop repo", "stop db"}, s.log.list()[6:])
	for _, status := range app.Hooks() {
		s.Equal(HookStopped, status.State, status.Name)
	}
}

func (s *ApplicationTestSuite) TestRunStopsWhenContextIsCancelled() {
	ctx, cancel := context.WithCancel(s.ctx)

	app := New(s.chain(), Invoke(func(*testService) { cancel() }))

	s.Require().NoError(app.Run(ctx))
	s.Contains(s.log.list(), "stop db")
}

func (s *ApplicationTestSuite) TestStartupTimeoutRollsBack() {
	app := New(
		HookTimeout(50*time.Millisecond),
		Provide(
			hooked(s.log, "db", &testDatabase{}),
			func(lc Lifecycle, db *testDatabase) *testRepo {
				s.log.add("construct repo")
				lc.Append(Hook{
					Name: "repo",
					OnStart: func(ctx context.Context) error {
						<-ctx.Done()
						return ctx.Err()
					},
					OnStop: func(context.Context) error {
						s.log.add("stop repo")
						return nil
					},
				})
				return &testRepo{db: db}
			},
		),
		Invoke(func(*testRepo) { s.log.add("invoke") }),
	)

	err := app.Run(s.ctx)
	s.Require().Error(err)

	var timeout *LifecycleTimeoutError
	s.Require().ErrorAs(err, &timeout)
	s.Equal("repo", timeout.Hook)
	s.Equal(PhaseStart, timeout.Phase)

	s.Equal([]string{"construct db", "construct repo", "start db", "stop db"}, s.log.list())
}

func (s *ApplicationTestSuite) TestInvokeFailureRollsBack() {
	app := New(s.chain(), Invoke(func(*testService) error { return errors.New("migration failed") }))

	err := app.Start(s.ctx)
	s.Require().Error(err)
	s.Contains(err.Error(), "migration failed")
	s.Equal([]string{"stop service", "stop repo", "stop db"}, s.log.list()[6:])
}

func (s *ApplicationTestSuite) TestConstructorFailureRollsBack() {
	closed := false

	app := New(
		Provide(
			func() (*testDatabase, func()) { return &testDatabase{}, func() { closed = true } },
			func(*testDatabase) (*testRepo, error) { return nil, errors.New("schema mismatch") },
		),
		Invoke(func(*testRepo) {}),
	)

	err := app.Start(s.ctx)

	var construction *ConstructionError
	s.Require().ErrorAs(err, &construction)
	s.Equal(KeyOf[*testRepo](), construction.Key)
	s.True(closed)
}

func (s *ApplicationTestSuite) TestStartTwice() {
	app := New(s.chain())

	s.Require().NoError(app.Start(s.ctx))
	s.ErrorIs(app.Start(s.ctx), ErrAlreadyStarted)
	s.NoError(app.Stop(s.ctx))
}

func (s *ApplicationTestSuite) TestStopIsIdempotent() {
	app := New(s.chain(), Invoke(func(*testDatabase) {}))

	s.Require().NoError(app.Start(s.ctx))
	s.NoError(app.Stop(s.ctx))
	s.NoError(app.Stop(s.ctx))

	s.Equal([]string{"construct db", "start db", "stop db"}, s.log.list())
}

func (s *ApplicationTestSuite) TestInvalidAppDoesNotStart() {
	app := New(Provide(newTestRepo), Invoke(func(*testRepo) {}))

	var unresolved *UnresolvedDependencyError
	s.ErrorAs(app.Start(s.ctx), &unresolved)
	s.ErrorAs(app.Run(s.ctx), &unresolved)
}

func (s *ApplicationTestSuite) TestHookStatuses() {
	app := New(s.chain(), Invoke(func(*testRepo) {}))
	s.Require().NoError(app.Start(s.ctx))

	hooks := app.Hooks()
	s.Require().Len(hooks, 2)
	s.Equal(HookStatus{Name: "db", Owner: "*difx.testDatabase", State: HookRunning}, hooks[0])
	s.Equal(HookStatus{Name: "repo", Owner: "*difx.testRepo", State: HookRunning}, hooks[1])

	s.Require().NoError(app.Stop(s.ctx))
	s.Equal(HookStopped, app.Hooks()[0].State)
}

func (s *ApplicationTestSuite) TestEventsAreLogged() {
	core, logs := observer.New(zapcore.DebugLevel)

	app := New(
		WithLogger(zap.New(core)),
		Module("storage", Provide(newTestDatabase)),
		Invoke(func(*testDatabase) {}),
	)
	s.NotNil(app.Logger())

	s.Require().NoError(app.Start(s.ctx))
	s.Require().NoError(app.Stop(s.ctx))

	provided := logs.FilterMessage("provided").FilterField(zap.String("module", "storage")).All()
	s.Require().Len(provided, 1)
	s.Equal("*difx.testDatabase", provided[0].ContextMap()["type"])

	s.Equal(1, logs.FilterMessage("constructed").Len())
	s.Equal(1, logs.FilterMessage("invoked").Len())
	s.Equal(1, logs.FilterMessage("started").Len())
	s.Equal(1, logs.FilterMessage("stopped").Len())
}

func (s *ApplicationTestSuite) TestCustomEventLogger() {
	var events []Event
	app := New(WithEventLogger(eventFunc(func(e Event) { events = append(events, e) })), Provide(newTestDatabase))

	s.Require().NoError(app.Start(s.ctx))

	var provided []*Provided
	for _, e := range events {
		if p, ok := e.(*Provided); ok {
			provided = append(provided, p)
		}
	}
	s.Require().Len(provided, 1)
	s.Equal([]string{"*difx.testDatabase"}, provided[0].Keys)
	s.IsType(&Started{}, events[len(events)-1])
}

func TestApplicationTestSuite(t *testing.T) {
	suite.Run(t, new(ApplicationTestSuite))
}

type eventFunc func(Event)

func (f eventFunc) LogEvent(e Event) { f(e) }
