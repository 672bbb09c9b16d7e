package difx

import (
	"fmt"
	"reflect"
)

// Key identifies a service: a type and an optional name that tells apart
// several instances of the same type. Keys are comparable.
type Key struct {
	typ  reflect.Type
	name string
}

func KeyOf[T any]() Key { return Key{typ: typeOf[T]()} }

func NamedKeyOf[T any](name string) Key { return Key{typ: typeOf[T](), name: name} }

func KeyFor(t reflect.Type, name string) Key { return Key{typ: t, name: name} }

func (k Key) Type() reflect.Type { return k.typ }
func (k Key) Name() string       { return k.name }
func (k Key) IsZero() bool       { return k.typ == nil }

func (k Key) String() string {
	switch {
	case k.typ == nil:
		return "<none>"
	case k.name == "":
		return k.typ.String()
	default:
		return fmt.Sprintf("%s[name=%q]", k.typ, k.name)
	}
}

func (k Key) isInterface() bool { return k.typ != nil && k.typ.Kind() == reflect.Interface }
