package memscope

import (
	"context"
	"fmt"
	"reflect"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// Call is one method invocation seen by a Handler.
type Call struct {
	Scope  *Scope
	Object *Object
	Method string
	Args   map[string]any
}

// Ref returns a reference argument as a stored handle. Arguments may be
// handles or paths.
func (c *Call) Ref(name string) (*Object, error) {
	switch v := c.Args[name].(type) {
	case nil:
		return nil, nil
	case cim.ManagedObject:
		return c.Scope.Get(v.Path())
	case string:
		return c.Scope.Get(v)
	default:
		return nil, fmt.Errorf("%s: argument %s is %T, not a reference", c.Method, name, v)
	}
}

// Refs is Ref for array arguments.
func (c *Call) Refs(name string) ([]*Object, error) {
	items, err := c.list(name)
	if err != nil {
		return nil, err
	}
	out := make([]*Object, 0, len(items))
	for i, item := range items {
		sub := &Call{Scope: c.Scope, Method: c.Method, Args: map[string]any{name: item}}
		obj, err := sub.Ref(name)
		if err != nil {
			return nil, fmt.Errorf("%s element %d: %w", name, i, err)
		}
		out = append(out, obj)
	}
	return out, nil
}

// Instance parses an embedded-instance argument, given in text form.
func (c *Call) Instance(name string) (*Object, error) {
	switch v := c.Args[name].(type) {
	case nil:
		return nil, nil
	case string:
		return c.Scope.ParseText(v)
	default:
		return nil, fmt.Errorf("%s: argument %s is %T, not an instance", c.Method, name, v)
	}
}

// Instances is Instance for array arguments.
func (c *Call) Instances(name string) ([]*Object, error) {
	items, err := c.list(name)
	if err != nil {
		return nil, err
	}
	out := make([]*Object, 0, len(items))
	for i, item := range items {
		text, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s element %d is %T, not an instance", name, i, item)
		}
		obj, err := c.Scope.ParseText(text)
		if err != nil {
			return nil, fmt.Errorf("%s element %d: %w", name, i, err)
		}
		out = append(out, obj)
	}
	return out, nil
}

// Int returns an integer argument; a missing one reads as 0.
func (c *Call) Int(name string) int {
	n, _ := scalar(cim.TypeSInt64, c.Args[name]).(int)
	return n
}

// Text returns a string argument; a missing one reads as "".
func (c *Call) Text(name string) string {
	s, _ := c.Args[name].(string)
	return s
}

func (c *Call) list(name string) ([]any, error) {
	v := c.Args[name]
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%s: argument %s is %T, not an array", c.Method, name, v)
	}
	items := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		items = append(items, rv.Index(i).Interface())
	}
	return items, nil
}

// Job returns the outputs of a method that started job.
func Job(job *Object, code int) map[string]any {
	return map[string]any{"ReturnValue": code, "Job": job}
}

// Noop is a handler that returns code without doing anything.
func Noop(code int) Handler {
	return func(context.Context, *Call) (map[string]any, error) {
		return map[string]any{"ReturnValue": code}, nil
	}
}
