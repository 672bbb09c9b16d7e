package difx

import (
	"context"
	"sync"
)

type testDatabase struct {
	name string
}

type testRepo struct {
	db *testDatabase
}

type testService struct {
	repo *testRepo
}

type testStore interface {
	Get() string
}

type testSQLStore struct{}

func (*testSQLStore) Get() string { return "sql" }

type testMemStore struct{}

func (*testMemStore) Get() string { return "mem" }

type testCircA struct{}
type testCircB struct{}

func newCircA(*testCircB) *testCircA { return &testCircA{} }
func newCircB(*testCircA) *testCircB { return &testCircB{} }

func newTestDatabase() *testDatabase               { return &testDatabase{name: "main"} }
func newTestRepo(db *testDatabase) *testRepo        { return &testRepo{db: db} }
func newTestService(repo *testRepo) *testService    { return &testService{repo: repo} }
func newTestSQLStore() *testSQLStore                { return &testSQLStore{} }
func newTestMemStore() *testMemStore                { return &testMemStore{} }
func newTestStoreUser(store testStore) *testService { return &testService{} }

// orderLog records events from concurrently running constructors and hooks.
type orderLog struct {
	mu    sync.Mutex
	items []string
}

func (o *orderLog) add(item string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, item)
}

func (o *orderLog) list() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.items...)
}

// hooked returns a constructor for T that logs its construction and appends
// a hook logging start and stop under name.
func hooked[T any](log *orderLog, name string, value T) func(Lifecycle) T {
	return func(lc Lifecycle) T {
		log.add("construct " + name)
		lc.Append(Hook{
			Name: name,
			OnStart: func(context.Context) error {
				log.add("start " + name)
				return nil
			},
			OnStop: func(context.Context) error {
				log.add("stop " + name)
				return nil
			},
		})
		return value
	}
}
