// Package difx is a dependency injection container with an application
// lifecycle.
//
// Constructors declare their dependencies as parameters and their product
// as the first result:
//
//	app := difx.New(
//		difx.Provide(NewConfig, NewDatabase, NewServer),
//		difx.Invoke(func(*Server) {}),
//	)
//	if err := app.Run(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
// The App builds a dependency graph from the registered constructors,
// rejects missing, ambiguous and circular dependencies before anything is
// constructed, and constructs each service at most once, even under
// concurrent demand. Constructors register start and stop hooks through the
// Lifecycle service; hooks start in construction order and stop in reverse.
package difx
