package cim

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// Node is one step of a traversal path. Expand returns the objects
// reachable from obj through this step, in the order the backend reports
// them, already filtered by the node's selector.
type Node interface {
	Expand(ctx context.Context, obj ManagedObject) ([]ManagedObject, error)
	String() string
}

// ObjectTransformer turns a property value into an object handle for a
// PropertyNode.
type ObjectTransformer interface {
	Transform(ctx context.Context, value any, parent ManagedObject) (ManagedObject, error)
}

// PassThrough accepts values that already are object handles.
type PassThrough struct{}

// Transform returns value when it is already an object.
func (PassThrough) Transform(_ context.Context, value any, _ ManagedObject) (ManagedObject, error) {
	if obj, ok := value.(ManagedObject); ok {
		return obj, nil
	}
	return nil, &ConversionError{Value: value, Target: TypeReference, Reason: "value is not an object"}
}

// ReferenceResolver resolves reference values (object paths) through the
// parent's scope. Values that already are handles pass through.
type ReferenceResolver struct{}

// Transform resolves a reference path through the parent's scope.
func (ReferenceResolver) Transform(ctx context.Context, value any, parent ManagedObject) (ManagedObject, error) {
	if obj, ok := value.(ManagedObject); ok {
		return obj, nil
	}
	path, ok := value.(string)
	if !ok {
		return nil, &ConversionError{Value: value, Target: TypeReference, Reason: "reference must be an object path"}
	}
	if parent.Scope() == nil {
		return nil, &ConversionError{Value: value, Target: TypeReference, Reason: "no scope to resolve reference"}
	}
	return parent.Scope().Resolve(ctx, path)
}

// PropertyNode dereferences one property of the current object. Array
// properties yield one candidate per element.
type PropertyNode struct {
	Name        string
	Transformer ObjectTransformer
	Selector    Selector
}

// Ref returns a PropertyNode that resolves reference values by path.
func Ref(name string) *PropertyNode {
	return &PropertyNode{Name: name, Transformer: ReferenceResolver{}}
}

// Filter sets the node's selector and returns the node.
func (n *PropertyNode) Filter(s Selector) *PropertyNode {
	n.Selector = s
	return n
}

// Expand reads the property and turns each value into an object.
func (n *PropertyNode) Expand(ctx context.Context, obj ManagedObject) ([]ManagedObject, error) {
	value, err := Require(obj, n.Name)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	transformer := n.Transformer
	if transformer == nil {
		transformer = PassThrough{}
	}

	var values []any
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		for i := 0; i < rv.Len(); i++ {
			values = append(values, rv.Index(i).Interface())
		}
	} else {
		values = []any{value}
	}

	var out []ManagedObject
	for _, v := range values {
		target, err := transformer.Transform(ctx, v, obj)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", n.Name, err)
		}
		if accept(n.Selector, target) {
			out = append(out, target)
		}
	}
	return out, nil
}

func (n *PropertyNode) String() string {
	return describe("property", n.Name, n.Selector)
}

// RelatedNode follows an association to the objects on its other end.
type RelatedNode struct {
	Query    AssociationQuery
	Selector Selector
}

// Related returns a RelatedNode for objects of class.
func Related(class string) *RelatedNode {
	return &RelatedNode{Query: AssociationQuery{RelatedClass: class}}
}

// Filter sets the node's selector and returns the node.
func (n *RelatedNode) Filter(s Selector) *RelatedNode {
	n.Selector = s
	return n
}

// Expand returns the related objects other than obj that pass the selector.
func (n *RelatedNode) Expand(ctx context.Context, obj ManagedObject) ([]ManagedObject, error) {
	candidates, err := obj.Related(ctx, n.Query)
	if err != nil {
		return nil, fmt.Errorf("related %s of %s: %w", n.Query.RelatedClass, obj.ClassName(), err)
	}
	return filterCandidates(obj, candidates, n.Selector), nil
}

func (n *RelatedNode) String() string {
	return describe("related", n.Query.RelatedClass, n.Selector)
}

// RelationshipNode returns the association instances linking the current
// object to others.
type RelationshipNode struct {
	Query    AssociationQuery
	Selector Selector
}

// Relationship returns a RelationshipNode for association class.
func Relationship(class string) *RelationshipNode {
	return &RelationshipNode{Query: AssociationQuery{RelationshipClass: class}}
}

// Filter sets the node's selector and returns the node.
func (n *RelationshipNode) Filter(s Selector) *RelationshipNode {
	n.Selector = s
	return n
}

// Expand returns the association instances that pass the selector.
func (n *RelationshipNode) Expand(ctx context.Context, obj ManagedObject) ([]ManagedObject, error) {
	candidates, err := obj.Relationships(ctx, n.Query)
	if err != nil {
		return nil, fmt.Errorf("relationships %s of %s: %w", n.Query.RelationshipClass, obj.ClassName(), err)
	}
	return filterCandidates(obj, candidates, n.Selector), nil
}

func (n *RelationshipNode) String() string {
	return describe("relationship", n.Query.RelationshipClass, n.Selector)
}

// filterCandidates drops the source object itself, then applies the
// selector. Symmetric associations would otherwise lead back to the source.
func filterCandidates(source ManagedObject, candidates []ManagedObject, s Selector) []ManagedObject {
	var out []ManagedObject
	for _, c := range candidates {
		if SameObject(source, c) {
			continue
		}
		if accept(s, c) {
			out = append(out, c)
		}
	}
	return out
}

func accept(s Selector, obj ManagedObject) bool {
	if s == nil {
		return true
	}
	return s.Accept(obj)
}

func describe(kind, target string, s Selector) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte(':')
	b.WriteString(target)
	if st, ok := s.(fmt.Stringer); ok {
		fmt.Fprintf(&b, "[%s]", st.String())
	}
	return b.String()
}
