package difx

import (
	"context"
	"fmt"
)

// Resolver returns the instance registered under a key, constructing it and
// its dependencies on first use.
type Resolver interface {
	Resolve(ctx context.Context, key Key) (any, error)
}

// Shutdowner asks a running App to stop
type Shutdowner interface {
	Shutdown(reason string)
}

var (
	_ Resolver   = (*App)(nil)
	_ Resolver   = (*Scope)(nil)
	_ Shutdowner = (*App)(nil)
	_ Lifecycle  = (*hookRecorder)(nil)
)

// Resolve returns the unnamed instance of T.
func Resolve[T any](ctx context.Context, r Resolver) (T, error) {
	return resolveAs[T](ctx, r, KeyOf[T]())
}

// ResolveNamed returns the instance of T registered under name.
func ResolveNamed[T any](ctx context.Context, r Resolver, name string) (T, error) {
	return resolveAs[T](ctx, r, NamedKeyOf[T](name))
}

// MustResolve is like Resolve but panics on error.
func MustResolve[T any](ctx context.Context, r Resolver) T {
	v, err := Resolve[T](ctx, r)
	if err != nil {
		panic(err)
	}

	return v
}

func resolveAs[T any](ctx context.Context, r Resolver, k Key) (T, error) {
	var zero T

	v, err := r.Resolve(ctx, k)
	if err != nil || v == nil {
		return zero, err
	}

	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("resolved %s holds %T", k, v)
	}

	return t, nil
}
