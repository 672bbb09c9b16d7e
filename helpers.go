package difx

import (
	"context"
	"hash/maphash"
	"reflect"
	"runtime"
	"strconv"
	"strings"

	goreflect "github.com/goccy/go-reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

func typeOf[T any]() reflect.Type { return reflect.TypeOf((*T)(nil)).Elem() }

// typeID is the runtime identity of t. Pointer types are unique per element
// type, so the id of *t stands in for t, interfaces included.
func typeID(t reflect.Type) uintptr {
	return goreflect.TypeID(reflect.New(t).Interface())
}

// serviceID is the runtime identity of a key. Scope caches and in-flight
// constructions are keyed by it.
type serviceID struct {
	typ  uintptr
	name string
}

func idOf(k Key) serviceID { return serviceID{typ: typeID(k.typ), name: k.name} }

func (id serviceID) String() string {
	return strconv.FormatUint(uint64(id.typ), 16) + "#" + id.name
}

var idSeed = maphash.MakeSeed()

func hashID(id serviceID) uint64 {
	return uint64(id.typ)*0x9e3779b97f4a7c15 ^ maphash.String(idSeed, id.name)
}

func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}

	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return ""
	}

	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	return strings.TrimSuffix(name, "-fm")
}
