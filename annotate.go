package difx

import "reflect"

// Annotation changes how a constructor, value, decorator or invocation is
// registered. Apply annotations with Annotate.
type Annotation func(*annotations)

type annotations struct {
	name       string
	as         []reflect.Type
	paramNames []string
	scoped     bool
}

type annotated struct {
	target      any
	annotations []Annotation
}

// Annotate attaches annotations to target, which may be a constructor, a
// supplied value, a Provider or an invocation function.
//
//	difx.Provide(
//		difx.Annotate(NewPostgres, difx.Name("primary"), difx.As[Database]()),
//		difx.Annotate(NewRepo, difx.ParamNames("primary")),
//	)
func Annotate(target any, anns ...Annotation) any {
	if inner, ok := target.(annotated); ok {
		return annotated{target: inner.target, annotations: append(append([]Annotation(nil), inner.annotations...), anns...)}
	}

	return annotated{target: target, annotations: anns}
}

// As additionally registers the produced value under the interface T. Both
// keys resolve to the same instance.
func As[T any]() Annotation {
	return func(a *annotations) { a.as = append(a.as, typeOf[T]()) }
}

// Name registers the produced value under a named key.
func Name(name string) Annotation {
	return func(a *annotations) { a.name = name }
}

// ParamNames names the inputs positionally; an empty string keeps the
// unnamed key. A leading context.Context parameter is not counted.
func ParamNames(names ...string) Annotation {
	return func(a *annotations) { a.paramNames = names }
}

// Scoped makes the constructor produce one instance per Scope instead of one
// per App.
func Scoped() Annotation {
	return func(a *annotations) { a.scoped = true }
}

func unwrap(target any) (any, annotations) {
	var a annotations

	if ann, ok := target.(annotated); ok {
		for _, apply := range ann.annotations {
			apply(&a)
		}

		return ann.target, a
	}

	return target, a
}
