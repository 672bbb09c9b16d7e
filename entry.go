package difx

import (
	"context"
	"fmt"
	"reflect"
)

// Cleanup releases a resource acquired by a constructor. Cleanups of a scope
// run in reverse acquisition order when the scope ends.
type Cleanup func(context.Context) error

// Provider is an explicit constructor descriptor: the keys it produces, the
// keys it consumes and a build function receiving the consumed values in the
// order of In. Reflection-based constructors are turned into the same shape.
type Provider struct {
	Name   string
	Out    []Key
	In     []Key
	Scoped bool
	Build  func(ctx context.Context, in []any) (any, Cleanup, error)
}

type entryKind uint8

const (
	kindConstructor entryKind = iota
	kindSupplied
	kindLifecycle
)

// providerEntry is one registered producer. The first key is the primary
// one, the rest are aliases sharing its instance.
type providerEntry struct {
	id     serviceID
	keys   []Key
	inputs []Key
	build  func(ctx context.Context, in []any) (any, Cleanup, error)
	label  string
	module string
	kind   entryKind
	scoped bool
}

func (e *providerEntry) key() Key { return e.keys[0] }

func (e *providerEntry) String() string { return describe(e.label, e.module) }

func describe(label, module string) string {
	if module == "" {
		return label
	}

	return fmt.Sprintf("%s (module %q)", label, module)
}

func newEntry(target any) (*providerEntry, error) {
	target, ann := unwrap(target)

	if p, ok := target.(Provider); ok {
		return newDescriptorEntry(p, ann)
	}

	return newConstructorEntry(target, ann)
}

func newConstructorEntry(fn any, ann annotations) (*providerEntry, error) {
	v := reflect.ValueOf(fn)
	if fn == nil || v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("%w: %T is not a function", ErrInvalidConstructor, fn)
	}

	t := v.Type()
	label := funcName(fn)

	inputs, takesContext, err := inputKeys(t, ann.paramNames)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConstructor, label, err)
	}

	n := t.NumOut()
	if n == 0 || n > 3 {
		return nil, fmt.Errorf("%w: %s must return a value, optionally followed by a cleanup and an error", ErrInvalidConstructor, label)
	}

	out := t.Out(0)
	if out == errorType {
		return nil, fmt.Errorf("%w: %s returns only an error", ErrInvalidConstructor, label)
	}

	returnsErr := t.Out(n-1) == errorType
	cleanupAt := -1

	switch {
	case n == 3 && !returnsErr:
		return nil, fmt.Errorf("%w: %s: last result must be an error", ErrInvalidConstructor, label)
	case n == 3, n == 2 && !returnsErr:
		if !isCleanupType(t.Out(1)) {
			return nil, fmt.Errorf("%w: %s: second result %s is not a cleanup function", ErrInvalidConstructor, label, t.Out(1))
		}
		cleanupAt = 1
	}

	keys, err := outputKeys(out, ann)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConstructor, label, err)
	}

	return &providerEntry{
		keys:   keys,
		inputs: inputs,
		label:  label,
		scoped: ann.scoped,
		build: func(ctx context.Context, in []any) (value any, cleanup Cleanup, err error) {
			defer recoverInto(&err)

			results := v.Call(callArgs(t, takesContext, ctx, in))

			if returnsErr {
				if err, _ := results[n-1].Interface().(error); err != nil {
					return nil, nil, err
				}
			}

			if cleanupAt > 0 {
				cleanup = toCleanup(results[cleanupAt])
			}

			return results[0].Interface(), cleanup, nil
		},
	}, nil
}

func newDescriptorEntry(p Provider, ann annotations) (*providerEntry, error) {
	if len(p.Out) == 0 || p.Build == nil {
		return nil, fmt.Errorf("%w: provider %q needs at least one output key and a build function", ErrInvalidConstructor, p.Name)
	}

	for _, k := range append(append([]Key(nil), p.Out...), p.In...) {
		if k.IsZero() {
			return nil, fmt.Errorf("%w: provider %q has an empty key", ErrInvalidConstructor, p.Name)
		}
	}

	label := p.Name
	if label == "" {
		label = "Provider(" + p.Out[0].String() + ")"
	}

	build := p.Build

	return &providerEntry{
		keys:   append([]Key(nil), p.Out...),
		inputs: append([]Key(nil), p.In...),
		label:  label,
		scoped: p.Scoped || ann.scoped,
		build: func(ctx context.Context, in []any) (value any, cleanup Cleanup, err error) {
			defer recoverInto(&err)
			return build(ctx, in)
		},
	}, nil
}

func newSuppliedEntry(target any) (*providerEntry, error) {
	value, ann := unwrap(target)
	if value == nil {
		return nil, fmt.Errorf("%w: cannot supply untyped nil", ErrInvalidValue)
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Func {
		return nil, fmt.Errorf("%w: %s is a function, use Provide for constructors", ErrInvalidValue, t)
	}

	keys, err := outputKeys(t, ann)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	return &providerEntry{
		keys:  keys,
		label: "Supply(" + t.String() + ")",
		kind:  kindSupplied,
		build: func(context.Context, []any) (any, Cleanup, error) { return value, nil, nil },
	}, nil
}

func inputKeys(t reflect.Type, names []string) ([]Key, bool, error) {
	if t.IsVariadic() {
		return nil, false, fmt.Errorf("variadic parameters are not supported")
	}

	start := 0
	if t.NumIn() > 0 && t.In(0) == contextType {
		start = 1
	}

	if len(names) > t.NumIn()-start {
		return nil, false, fmt.Errorf("%d parameter names for %d parameters", len(names), t.NumIn()-start)
	}

	keys := make([]Key, 0, t.NumIn()-start)
	for i := start; i < t.NumIn(); i++ {
		if t.In(i) == contextType {
			return nil, false, fmt.Errorf("context.Context must be the first parameter")
		}

		var name string
		if j := i - start; j < len(names) {
			name = names[j]
		}

		keys = append(keys, Key{typ: t.In(i), name: name})
	}

	return keys, start == 1, nil
}

func outputKeys(t reflect.Type, ann annotations) ([]Key, error) {
	keys := []Key{{typ: t, name: ann.name}}

	for _, iface := range ann.as {
		if iface.Kind() != reflect.Interface {
			return nil, fmt.Errorf("As(%s): not an interface", iface)
		}
		if !t.Implements(iface) {
			return nil, fmt.Errorf("%s does not implement %s", t, iface)
		}

		k := Key{typ: iface, name: ann.name}
		if !containsKey(keys, k) {
			keys = append(keys, k)
		}
	}

	return keys, nil
}

func callArgs(t reflect.Type, takesContext bool, ctx context.Context, in []any) []reflect.Value {
	args := make([]reflect.Value, 0, t.NumIn())
	if takesContext {
		args = append(args, reflect.ValueOf(&ctx).Elem())
	}

	for _, value := range in {
		param := t.In(len(args))
		if value == nil {
			args = append(args, reflect.Zero(param))
			continue
		}

		args = append(args, reflect.ValueOf(value))
	}

	return args
}

func isCleanupType(t reflect.Type) bool {
	switch t {
	case reflect.TypeOf(func() {}),
		reflect.TypeOf(func() error { return nil }),
		reflect.TypeOf(func(context.Context) error { return nil }),
		reflect.TypeOf(Cleanup(nil)):
		return true
	}

	return false
}

func toCleanup(v reflect.Value) Cleanup {
	if v.IsNil() {
		return nil
	}

	switch fn := v.Interface().(type) {
	case func():
		return func(context.Context) error { fn(); return nil }
	case func() error:
		return func(context.Context) error { return fn() }
	case func(context.Context) error:
		return fn
	case Cleanup:
		return fn
	}

	return nil
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}

func containsKey(keys []Key, k Key) bool {
	for _, existing := range keys {
		if existing == k {
			return true
		}
	}

	return false
}
