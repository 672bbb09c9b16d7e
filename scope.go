package difx

import "context"

// Scope is a lifetime narrower than the App, such as a request. Services
// annotated with Scoped are constructed at most once per Scope and their
// cleanups run when the Scope closes.
type Scope struct {
	s *scope
}

func (sc *Scope) Name() string { return sc.s.name }

func (sc *Scope) Resolve(ctx context.Context, key Key) (any, error) {
	return sc.s.resolve(ctx, key)
}

// Close releases the resources acquired in this scope in reverse order.
func (sc *Scope) Close(ctx context.Context) error { return sc.s.close(ctx) }
