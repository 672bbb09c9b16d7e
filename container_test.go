package difx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ContainerTestSuite struct {
	suite.Suite
}

func (s *ContainerTestSuite) TestValidateReportsMissingDependencyWithoutConstructing() {
	var constructed bool

	app := New(Provide(
		func(db *testDatabase) *testRepo {
			constructed = true
			return &testRepo{db: db}
		},
	))

	err := app.Validate()
	s.Require().Error(err)

	var unresolved *UnresolvedDependencyError
	s.Require().ErrorAs(err, &unresolved)
	s.Equal(KeyOf[*testDatabase](), unresolved.Missing)
	s.Contains(unresolved.Consumer, "TestValidateReportsMissingDependencyWithoutConstructing")
	s.Contains(err.Error(), "*difx.testDatabase")
	s.False(constructed)
}

func (s *ContainerTestSuite) TestValidateReportsCycle() {
	err := ValidateApp(Provide(newCircA, newCircB))
	s.Require().Error(err)

	var cycle *CircularDependencyError
	s.Require().ErrorAs(err, &cycle)
	s.Equal([]Key{KeyOf[*testCircA](), KeyOf[*testCircB](), KeyOf[*testCircA]()}, cycle.Path)
	s.Equal("circular dependency: *difx.testCircA -> *difx.testCircB -> *difx.testCircA", err.Error())
}

func (s *ContainerTestSuite) TestValidateNamesEveryNodeOfLongCycle() {
	type (
		users    struct{}
		orders   struct{}
		payments struct{}
	)

	err := ValidateApp(Provide(
		func(*orders) *users { return nil },
		func(*payments) *orders { return nil },
		func(*users) *payments { return nil },
	))

	var cycle *CircularDependencyError
	s.Require().ErrorAs(err, &cycle)
	s.Len(cycle.Path, 4)
	s.Equal(cycle.Path[0], cycle.Path[3])
	s.ElementsMatch([]Key{KeyOf[*users](), KeyOf[*orders](), KeyOf[*payments]()}, cycle.Path[:3])
}

func (s *ContainerTestSuite) TestDuplicateProvider() {
	app := New(Provide(newTestDatabase, newTestDatabase))

	var duplicate *DuplicateProviderError
	s.Require().ErrorAs(app.Err(), &duplicate)
	s.Equal(KeyOf[*testDatabase](), duplicate.Key)
	s.ErrorIs(app.Validate(), app.Err())
}

func (s *ContainerTestSuite) TestDuplicateWithSuppliedValue() {
	err := ValidateApp(Provide(newTestDatabase), Supply(&testDatabase{}))

	var duplicate *DuplicateProviderError
	s.ErrorAs(err, &duplicate)
}

func (s *ContainerTestSuite) TestBuiltinsCannotBeRedefined() {
	err := ValidateApp(Provide(func() Lifecycle { return nil }))

	var duplicate *DuplicateProviderError
	s.ErrorAs(err, &duplicate)
}

func (s *ContainerTestSuite) TestModuleScopesErrors() {
	err := ValidateApp(Module("storage", Module("sql", Provide(newTestDatabase, newTestDatabase))))
	s.Require().Error(err)
	s.Contains(err.Error(), `module "storage.sql"`)

	var duplicate *DuplicateProviderError
	s.ErrorAs(err, &duplicate)
	s.Contains(duplicate.Existing, `(module "storage.sql")`)
}

func (s *ContainerTestSuite) TestModuleConsumerInUnresolvedError() {
	err := ValidateApp(Module("api", Provide(newTestRepo)))

	var unresolved *UnresolvedDependencyError
	s.Require().ErrorAs(err, &unresolved)
	s.Contains(unresolved.Consumer, `newTestRepo (module "api")`)
}

func (s *ContainerTestSuite) TestInvocationInputsAreValidated() {
	err := ValidateApp(Invoke(func(*testService) {}))

	var unresolved *UnresolvedDependencyError
	s.Require().ErrorAs(err, &unresolved)
	s.Equal(KeyOf[*testService](), unresolved.Missing)
}

func (s *ContainerTestSuite) TestDecoratorInputsAreValidated() {
	err := ValidateApp(Decorate(func(db *testDatabase) *testDatabase { return db }))

	var unresolved *UnresolvedDependencyError
	s.ErrorAs(err, &unresolved)
}

func (s *ContainerTestSuite) TestDecoratorMustFitEveryKeyOfItsTarget() {
	type wrappedStore struct{ testStore }

	err := ValidateApp(
		Provide(Annotate(newTestSQLStore, As[testStore]()), func(*testSQLStore) *testService { return &testService{} }),
		Decorate(func(store testStore) testStore { return &wrappedStore{store} }),
	)
	s.Require().ErrorIs(err, ErrInvalidConstructor)
	s.Contains(err.Error(), "cannot be used as *difx.testSQLStore")

	err = ValidateApp(
		Provide(newTestSQLStore),
		Decorate(func(store testStore) testStore { return store }),
	)
	s.ErrorIs(err, ErrInvalidConstructor)

	s.NoError(ValidateApp(
		Provide(Annotate(newTestSQLStore, As[testStore]())),
		Decorate(func(store *testSQLStore) *testSQLStore { return store }),
	))
}

func (s *ContainerTestSuite) TestCycleThroughDecorator() {
	err := ValidateApp(
		Provide(newTestDatabase, newTestRepo),
		Decorate(func(db *testDatabase, _ *testRepo) *testDatabase { return db }),
	)

	var cycle *CircularDependencyError
	s.ErrorAs(err, &cycle)
}

func (s *ContainerTestSuite) TestInterfaceFallback() {
	s.NoError(ValidateApp(Provide(newTestSQLStore, newTestStoreUser)))

	err := ValidateApp(Provide(newTestSQLStore, newTestMemStore, newTestStoreUser))

	var ambiguous *AmbiguousProviderError
	s.Require().ErrorAs(err, &ambiguous)
	s.Equal(KeyOf[testStore](), ambiguous.Key)
	s.Equal([]Key{KeyOf[*testSQLStore](), KeyOf[*testMemStore]()}, ambiguous.Candidates)
}

func (s *ContainerTestSuite) TestExplicitAliasWinsOverFallback() {
	err := ValidateApp(Provide(
		Annotate(newTestSQLStore, As[testStore]()),
		newTestMemStore,
		newTestStoreUser,
	))

	s.NoError(err)
}

func (s *ContainerTestSuite) TestCaptiveDependency() {
	type request struct{}
	type handler struct{}

	err := ValidateApp(Provide(
		Annotate(func() *request { return &request{} }, Scoped()),
		func(*request) *handler { return &handler{} },
	))

	s.True(errors.Is(err, ErrCaptiveDependency))
}

func (s *ContainerTestSuite) TestInvalidRegistrations() {
	s.ErrorIs(New(Provide(42)).Err(), ErrInvalidConstructor)
	s.ErrorIs(New(Provide(func() {})).Err(), ErrInvalidConstructor)
	s.ErrorIs(New(Provide(func() error { return nil })).Err(), ErrInvalidConstructor)
	s.ErrorIs(New(Provide(func() (*testDatabase, string) { return nil, "" })).Err(), ErrInvalidConstructor)
	s.ErrorIs(New(Provide(func(*testDatabase, ...int) *testRepo { return nil })).Err(), ErrInvalidConstructor)
	s.ErrorIs(New(Provide(Annotate(newTestDatabase, As[*testRepo]()))).Err(), ErrInvalidConstructor)
	s.ErrorIs(New(Provide(Annotate(newTestDatabase, As[testStore]()))).Err(), ErrInvalidConstructor)
	s.ErrorIs(New(Provide(Annotate(newTestRepo, ParamNames("a", "b")))).Err(), ErrInvalidConstructor)
	s.ErrorIs(New(Supply(nil)).Err(), ErrInvalidValue)
	s.ErrorIs(New(Supply(newTestDatabase)).Err(), ErrInvalidValue)
	s.ErrorIs(New(Invoke(func() int { return 0 })).Err(), ErrInvalidConstructor)
	s.ErrorIs(New(Decorate(func(*testDatabase) *testRepo { return nil })).Err(), ErrInvalidConstructor)
	s.ErrorIs(New(Provide(Provider{Name: "empty"})).Err(), ErrInvalidConstructor)
}

func (s *ContainerTestSuite) TestFirstAssemblyErrorStopsAssembly() {
	app := New(Provide(42), Provide(newTestDatabase, newTestDatabase))

	s.ErrorIs(app.Err(), ErrInvalidConstructor)

	var duplicate *DuplicateProviderError
	s.False(errors.As(app.Err(), &duplicate))
}

func (s *ContainerTestSuite) TestConditionalRegistration() {
	s.T().Setenv("DIFX_TEST_STORE", "sql")

	app := New(
		WhenEnv("DIFX_TEST_STORE", "sql", Provide(newTestSQLStore)),
		WhenEnv("DIFX_TEST_STORE", "mem", Provide(newTestMemStore)),
		When(false, Provide(newTestMemStore)),
		Provide(newTestStoreUser),
	)

	s.NoError(app.Validate())
}

func TestContainerTestSuite(t *testing.T) {
	suite.Run(t, new(ContainerTestSuite))
}
