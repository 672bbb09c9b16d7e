package difx

import (
	"context"
	"fmt"
	"reflect"
)

// invocation is a function run once the app has started. It declares inputs
// but produces nothing.
type invocation struct {
	fn           reflect.Value
	inputs       []Key
	takesContext bool
	label        string
	module       string
}

func (i *invocation) String() string { return describe(i.label, i.module) }

func newInvocation(target any) (*invocation, error) {
	fn, ann := unwrap(target)

	v := reflect.ValueOf(fn)
	if fn == nil || v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("%w: cannot invoke %T", ErrInvalidConstructor, fn)
	}

	t := v.Type()
	label := funcName(fn)

	inputs, takesContext, err := inputKeys(t, ann.paramNames)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConstructor, label, err)
	}

	if t.NumOut() > 1 || t.NumOut() == 1 && t.Out(0) != errorType {
		return nil, fmt.Errorf("%w: %s may only return an error", ErrInvalidConstructor, label)
	}

	return &invocation{fn: v, inputs: inputs, takesContext: takesContext, label: label}, nil
}

func (i *invocation) call(ctx context.Context, in []any) (err error) {
	defer recoverInto(&err)

	results := i.fn.Call(callArgs(i.fn.Type(), i.takesContext, ctx, in))
	if len(results) == 1 {
		err, _ = results[0].Interface().(error)
	}

	return err
}

// decorator rewrites the value of target after construction. Its first
// parameter (after an optional context) receives the current value.
type decorator struct {
	target       Key
	inputs       []Key
	takesContext bool
	returnsErr   bool
	fn           reflect.Value
	label        string
	module       string
}

func (d *decorator) String() string { return describe(d.label, d.module) }

func newDecorator(target any) (*decorator, error) {
	fn, ann := unwrap(target)

	v := reflect.ValueOf(fn)
	if fn == nil || v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("%w: cannot decorate with %T", ErrInvalidConstructor, fn)
	}

	t := v.Type()
	label := funcName(fn)

	params, takesContext, err := inputKeys(t, ann.paramNames)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConstructor, label, err)
	}

	if len(params) == 0 {
		return nil, fmt.Errorf("%w: decorator %s takes no value to decorate", ErrInvalidConstructor, label)
	}

	switch {
	case t.NumOut() == 1 && t.Out(0) == params[0].typ:
	case t.NumOut() == 2 && t.Out(0) == params[0].typ && t.Out(1) == errorType:
	default:
		return nil, fmt.Errorf("%w: decorator %s must return %s, optionally with an error", ErrInvalidConstructor, label, params[0].typ)
	}

	target0 := params[0]
	if ann.name != "" {
		target0.name = ann.name
	}

	return &decorator{
		target:       target0,
		inputs:       params[1:],
		takesContext: takesContext,
		returnsErr:   t.NumOut() == 2,
		fn:           v,
		label:        label,
	}, nil
}

func (d *decorator) apply(ctx context.Context, current any, in []any) (value any, err error) {
	defer recoverInto(&err)

	results := d.fn.Call(callArgs(d.fn.Type(), d.takesContext, ctx, append([]any{current}, in...)))
	if d.returnsErr {
		if err, _ := results[1].Interface().(error); err != nil {
			return nil, err
		}
	}

	return results[0].Interface(), nil
}
