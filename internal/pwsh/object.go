package pwsh

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// textFormatCimDtd20 is System.Management.TextFormat.CimDtd20, the text
// form Hyper-V expects for embedded instances.
const textFormatCimDtd20 = 1

// Object is a WMI object fetched from the host. Property writes stay local
// until the object's text form is handed to a method.
type Object struct {
	scope      *Scope
	path       string
	class      string
	derivation []string
	props      []cim.Property
	dirty      map[string]bool
}

var _ cim.ManagedObject = (*Object)(nil)

// Path returns the object path, empty for an instance never stored.
func (o *Object) Path() string { return o.path }

// ClassName returns the WMI class of the object.
func (o *Object) ClassName() string { return o.class }

// Derivation returns the superclasses, nearest first.
func (o *Object) Derivation() []string { return append([]string(nil), o.derivation...) }

// Scope returns the scope the object was fetched through.
func (o *Object) Scope() cim.Scope { return o.scope }

func (o *Object) String() string {
	if o.path == "" {
		return "new " + o.class
	}
	return o.path
}

func (o *Object) index(name string) int {
	for i, p := range o.props {
		if strings.EqualFold(p.Name, name) {
			return i
		}
	}
	return -1
}

// Property returns the locally held value of name.
func (o *Object) Property(name string) (cim.Property, error) {
	i := o.index(name)
	if i < 0 {
		return cim.Property{}, fmt.Errorf("%w: %s.%s", cim.ErrNoSuchProperty, o.class, name)
	}
	return o.props[i], nil
}

// SetProperty records a local write that Text later applies.
func (o *Object) SetProperty(name string, value any) error {
	i := o.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s.%s", cim.ErrNoSuchProperty, o.class, name)
	}
	o.props[i].Value = value
	o.dirty[strings.ToLower(o.props[i].Name)] = true
	return nil
}

// Properties returns a copy of every property.
func (o *Object) Properties() []cim.Property {
	return append([]cim.Property(nil), o.props...)
}

// expr is a PowerShell expression yielding this object on the host.
func (o *Object) expr() string {
	if o.path == "" {
		return fmt.Sprintf("([wmiclass]%s).CreateInstance()", Quote(o.scope.classPath(o.class)))
	}
	return "[wmi]" + Quote(o.path)
}

// Text renders the instance with its local writes applied.
func (o *Object) Text(ctx context.Context) (string, error) {
	lines := []string{"$o = " + o.expr()}
	for _, p := range o.props {
		if !o.dirty[strings.ToLower(p.Name)] {
			continue
		}
		lit, err := TypedLiteral(p.Value, p.Type, p.IsArray)
		if err != nil {
			return "", fmt.Errorf("property %s: %w", p.Name, err)
		}
		lines = append(lines, fmt.Sprintf("$o[%s] = %s", Quote(p.Name), lit))
	}
	lines = append(lines, fmt.Sprintf("$o.GetText(%d)", textFormatCimDtd20))

	var text string
	found, err := o.scope.session.DoOne(ctx, joinLines(lines...), &text)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: no text for %s", ErrMalformedOutput, o)
	}
	return text, nil
}

// Reload fetches the object again and drops local writes.
func (o *Object) Reload(ctx context.Context) error {
	if o.path == "" {
		return fmt.Errorf("%w: %s has never been stored", cim.ErrNotFound, o.class)
	}
	fresh, err := o.scope.get(ctx, o.path)
	if err != nil {
		return err
	}
	o.class = fresh.class
	o.derivation = fresh.derivation
	o.props = fresh.props
	o.dirty = map[string]bool{}
	return nil
}

// Clone returns an independent copy, local writes included.
func (o *Object) Clone() cim.ManagedObject {
	c := *o
	c.derivation = append([]string(nil), o.derivation...)
	c.props = make([]cim.Property, len(o.props))
	for i, p := range o.props {
		if items, ok := p.Value.([]any); ok {
			p.Value = append([]any(nil), items...)
		}
		c.props[i] = p
	}
	c.dirty = make(map[string]bool, len(o.dirty))
	for k, v := range o.dirty {
		c.dirty[k] = v
	}
	return &c
}

// MethodParameters returns the input parameters of method, cached per class.
func (o *Object) MethodParameters(ctx context.Context, method string) ([]cim.Parameter, error) {
	if err := checkIdentifier("method", method); err != nil {
		return nil, err
	}
	key := strings.ToLower(o.class + "." + method)
	if cached, ok := o.scope.params.Load(key); ok {
		return cached.([]cim.Parameter), nil
	}

	body := joinLines(
		"$o = "+o.expr(),
		fmt.Sprintf("ConvertTo-HvParameters ($o.GetMethodParameters(%s))", Quote(method)),
	)
	items, err := o.scope.session.Do(ctx, body)
	if err != nil {
		return nil, err
	}

	params := make([]cim.Parameter, 0, len(items))
	for _, item := range items {
		var w wireParameter
		if err := decodeJSON(item, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		params = append(params, cim.Parameter{Name: w.Name, Type: cim.ParseCIMType(w.Type), IsArray: w.IsArray})
	}
	o.scope.params.Store(key, params)
	return params, nil
}

// InvokeMethod runs method on the host and returns its output parameters.
func (o *Object) InvokeMethod(ctx context.Context, method string, in map[string]any) ([]cim.Property, error) {
	if o.path == "" {
		return nil, fmt.Errorf("invoke %s on %s: object has never been stored", method, o.class)
	}
	params, err := o.MethodParameters(ctx, method)
	if err != nil {
		return nil, err
	}

	lines := []string{"$o = " + o.expr()}
	inExpr := "$null"
	if len(params) > 0 {
		lines = append(lines, fmt.Sprintf("$in = $o.GetMethodParameters(%s)", Quote(method)))
		inExpr = "$in"
	}
	for _, p := range params {
		v, ok := in[p.Name]
		if !ok || v == nil {
			continue
		}
		lit, err := TypedLiteral(v, p.Type, p.IsArray)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		lines = append(lines, fmt.Sprintf("$in[%s] = %s", Quote(p.Name), lit))
	}
	lines = append(lines,
		fmt.Sprintf("$out = $o.InvokeMethod(%s, %s, $null)", Quote(method), inExpr),
		"$out | ConvertTo-HvObject",
	)

	var w wireObject
	found, err := o.scope.session.DoOne(ctx, joinLines(lines...), &w)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New("method returned no output parameters")
	}
	return w.properties()
}

// Related runs GetRelated on the host.
func (o *Object) Related(ctx context.Context, q cim.AssociationQuery) ([]cim.ManagedObject, error) {
	if o.path == "" {
		return nil, nil
	}
	body := joinLines(
		"$o = "+o.expr(),
		fmt.Sprintf("$o.GetRelated(%s, %s, %s, %s, %s, %s, %s, $null) | ConvertTo-HvObject",
			orNull(q.RelatedClass), orNull(q.RelationshipClass),
			orNull(q.RelationshipQualifier), orNull(q.RelatedQualifier),
			orNull(q.RelatedRole), orNull(q.ThisRole), boolLiteral(q.ClassDefinitionsOnly)),
	)
	items, err := o.scope.session.Do(ctx, body)
	if err != nil {
		return nil, err
	}
	return o.scope.objectsFrom(items)
}

// Relationships runs GetRelationships on the host.
func (o *Object) Relationships(ctx context.Context, q cim.AssociationQuery) ([]cim.ManagedObject, error) {
	if o.path == "" {
		return nil, nil
	}
	body := joinLines(
		"$o = "+o.expr(),
		fmt.Sprintf("$o.GetRelationships(%s, %s, %s, %s, $null) | ConvertTo-HvObject",
			orNull(q.RelationshipClass), orNull(q.RelationshipQualifier),
			orNull(q.ThisRole), boolLiteral(q.ClassDefinitionsOnly)),
	)
	items, err := o.scope.session.Do(ctx, body)
	if err != nil {
		return nil, err
	}
	return o.scope.objectsFrom(items)
}

func boolLiteral(b bool) string {
	if b {
		return "$true"
	}
	return "$false"
}
