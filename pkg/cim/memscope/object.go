package memscope

import (
	"context"
	"fmt"
	"strings"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// Object is a handle to an instance of a Scope. It carries a local copy of
// the property values: SetProperty changes only the copy, and Reload
// replaces it with the stored state.
type Object struct {
	scope  *Scope
	class  *classInfo
	path   string
	values map[string]any
}

var _ cim.ManagedObject = (*Object)(nil)

// Path returns the absolute object path, or "" for an instance that was
// never stored.
func (o *Object) Path() string {
	return o.scope.FullPath(o.path)
}

// RelativePath returns the path without the host and namespace prefix.
func (o *Object) RelativePath() string {
	return o.path
}

// ClassName returns the most derived class.
func (o *Object) ClassName() string {
	return o.class.name
}

// Derivation returns the superclasses, nearest first.
func (o *Object) Derivation() []string {
	return append([]string(nil), o.class.derivation...)
}

// Scope returns the owning Scope.
func (o *Object) Scope() cim.Scope {
	return o.scope
}

// Text returns the MOF-like text form of the object.
func (o *Object) Text(ctx context.Context) (string, error) {
	return formatText(o), nil
}

// Property returns the local value of name.
func (o *Object) Property(name string) (cim.Property, error) {
	def, ok := o.class.property(name)
	if !ok {
		return cim.Property{}, fmt.Errorf("%s.%s: %w", o.class.name, name, cim.ErrNoSuchProperty)
	}
	return cim.Property{
		Name:    def.Name,
		Type:    def.Type,
		IsArray: def.IsArray,
		Value:   o.values[def.Name],
	}, nil
}

// SetProperty writes the local copy; the store changes only through a method.
func (o *Object) SetProperty(name string, value any) error {
	def, ok := o.class.property(name)
	if !ok {
		return fmt.Errorf("%s.%s: %w", o.class.name, name, cim.ErrNoSuchProperty)
	}
	if def.ReadOnly {
		return fmt.Errorf("%s.%s: %w", o.class.name, name, cim.ErrReadOnlyProperty)
	}
	o.values[def.Name] = normalize(def, value)
	return nil
}

func (o *Object) Properties() []cim.Property {
	out := make([]cim.Property, 0, len(o.class.props))
	for _, def := range o.class.props {
		out = append(out, cim.Property{
			Name:    def.Name,
			Type:    def.Type,
			IsArray: def.IsArray,
			Value:   o.values[def.Name],
		})
	}
	return out
}

// Reload replaces the local values with the stored state. Reloading a
// scripted job first advances its script by one state.
func (o *Object) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.path == "" {
		return fmt.Errorf("reload %s: instance was never stored: %w", o.class.name, cim.ErrNotFound)
	}
	o.scope.advanceJob(o.path)

	fresh, err := o.scope.Get(o.path)
	if err != nil {
		return err
	}
	o.class = fresh.class
	o.values = fresh.values
	return nil
}

// Clone returns an independent copy of the local values.
func (o *Object) Clone() cim.ManagedObject {
	return &Object{
		scope:  o.scope,
		class:  o.class,
		path:   o.path,
		values: copyValues(o.values),
	}
}

// MethodParameters returns the input parameters declared for method.
func (o *Object) MethodParameters(ctx context.Context, method string) ([]cim.Parameter, error) {
	m, ok := o.class.method(method)
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", o.class.name, method, cim.ErrMethodNotSupported)
	}
	return append([]cim.Parameter(nil), m.In...), nil
}

// InvokeMethod runs the method's handler and types its outputs by the
// method's declared output parameters. ReturnValue is always reported.
func (o *Object) InvokeMethod(ctx context.Context, method string, in map[string]any) ([]cim.Property, error) {
	m, ok := o.class.method(method)
	if !ok || m.Handler == nil {
		return nil, fmt.Errorf("%s.%s: %w", o.class.name, method, cim.ErrMethodNotSupported)
	}
	args := make(map[string]any, len(in))
	for k, v := range in {
		args[k] = v
	}
	out, err := m.Handler(ctx, &Call{Scope: o.scope, Object: o, Method: m.Name, Args: args})
	if err != nil {
		return nil, err
	}

	rv := out["ReturnValue"]
	if rv == nil {
		rv = 0
	}
	props := []cim.Property{{Name: "ReturnValue", Type: cim.TypeUInt32, Value: rv}}
	for _, p := range m.Out {
		if strings.EqualFold(p.Name, "ReturnValue") {
			continue
		}
		props = append(props, cim.Property{
			Name:    p.Name,
			Type:    p.Type,
			IsArray: p.IsArray,
			Value:   outputValue(out[p.Name]),
		})
	}
	return props, nil
}

// outputValue turns handles returned by handlers into paths, the way a
// remote host reports references.
func outputValue(v any) any {
	switch vv := v.(type) {
	case cim.ManagedObject:
		return vv.Path()
	case []cim.ManagedObject:
		items := make([]any, 0, len(vv))
		for _, obj := range vv {
			items = append(items, obj.Path())
		}
		return items
	}
	return v
}

func (o *Object) String() string {
	if o.path == "" {
		return o.class.name + " (new)"
	}
	return o.Path()
}
