// Package cim provides a client-side engine for walking and mutating the
// management object graph a hypervisor exposes, and for invoking remote
// methods that may finish synchronously or hand back a job to poll.
//
// The engine does not talk to the management host itself. Backends
// implement ManagedObject and Scope; the engine composes those capabilities
// into path traversal (Traverse, GetChild) and the invocation protocol
// (Invoke, EvaluateInvocationResult).
package cim

import (
	"context"
	"strings"
)

// CIMType is the declared type tag of a remote property or method parameter.
type CIMType int

const (
	TypeUnknown CIMType = iota
	TypeString
	TypeBoolean
	TypeUInt8
	TypeUInt16
	TypeUInt32
	TypeUInt64
	TypeSInt16
	TypeSInt32
	TypeSInt64
	TypeReal32
	TypeReal64
	TypeDateTime
	TypeReference
	TypeChar16
	TypeObject
)

var typeNames = map[CIMType]string{
	TypeUnknown:   "Unknown",
	TypeString:    "String",
	TypeBoolean:   "Boolean",
	TypeUInt8:     "UInt8",
	TypeUInt16:    "UInt16",
	TypeUInt32:    "UInt32",
	TypeUInt64:    "UInt64",
	TypeSInt16:    "SInt16",
	TypeSInt32:    "SInt32",
	TypeSInt64:    "SInt64",
	TypeReal32:    "Real32",
	TypeReal64:    "Real64",
	TypeDateTime:  "DateTime",
	TypeReference: "Reference",
	TypeChar16:    "Char16",
	TypeObject:    "Object",
}

func (t CIMType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// ParseCIMType maps a type name as reported by the management host
// ("String", "UInt32", "Reference", ...) to a CIMType. Matching ignores case.
func ParseCIMType(name string) CIMType {
	for t, n := range typeNames {
		if strings.EqualFold(n, name) {
			return t
		}
	}
	return TypeUnknown
}

// Property is a named, typed value attached to a ManagedObject.
type Property struct {
	Name    string
	Type    CIMType
	IsArray bool
	Value   any
}

// Parameter is one formal parameter of a remote method.
type Parameter struct {
	Name    string
	Type    CIMType
	IsArray bool
}

// AssociationQuery holds the arguments of a related-object or relationship
// enumeration. Empty fields are wildcards.
type AssociationQuery struct {
	// RelatedClass is the class of the objects returned by Related.
	RelatedClass string

	// RelationshipClass is the association class. Relationships returns
	// instances of this class.
	RelationshipClass string

	RelationshipQualifier string
	RelatedQualifier      string

	// RelatedRole is the role the returned object plays in the association.
	RelatedRole string

	// ThisRole is the role the source object plays in the association.
	ThisRole string

	ClassDefinitionsOnly bool
}

// ManagedObject is a handle to one remote object instance. Implementations
// are provided by backends; the engine never caches property values across
// calls.
type ManagedObject interface {
	// Path is the full object path. It is the object's identity.
	Path() string

	// ClassName is the concrete class of the instance.
	ClassName() string

	// Derivation lists the superclasses of ClassName, nearest first.
	Derivation() []string

	// Scope is the management scope the object was materialized from.
	Scope() Scope

	// Text returns the canonical text form of the instance, including
	// property values not yet committed. It is what String-typed
	// parameters receive when given an object.
	Text(ctx context.Context) (string, error)

	// Property returns ErrNoSuchProperty for names the schema does not know.
	Property(name string) (Property, error)

	// SetProperty returns ErrNoSuchProperty or ErrReadOnlyProperty when the
	// write cannot apply. Nothing is committed remotely.
	SetProperty(name string, value any) error

	Properties() []Property

	// Reload re-fetches the object from the management host.
	Reload(ctx context.Context) error

	// Clone returns an independent copy carrying the same path.
	Clone() ManagedObject

	MethodParameters(ctx context.Context, method string) ([]Parameter, error)

	// InvokeMethod calls a remote method with already-marshaled arguments
	// and returns its output parameters, including ReturnValue.
	InvokeMethod(ctx context.Context, method string, in map[string]any) ([]Property, error)

	Related(ctx context.Context, q AssociationQuery) ([]ManagedObject, error)
	Relationships(ctx context.Context, q AssociationQuery) ([]ManagedObject, error)
}

// Scope is a connection to one management namespace.
type Scope interface {
	// Resolve turns an object path, or an object's canonical text form,
	// into a handle.
	Resolve(ctx context.Context, pathOrText string) (ManagedObject, error)

	// Query runs a filter expression and returns every match.
	Query(ctx context.Context, query string) ([]ManagedObject, error)

	// NewInstance creates a local, uncommitted instance of class.
	NewInstance(ctx context.Context, class string) (ManagedObject, error)
}

// SameObject reports whether a and b refer to the same remote instance.
// Object paths compare case-insensitively.
func SameObject(a, b ManagedObject) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return strings.EqualFold(a.Path(), b.Path())
}

// IsA reports whether obj is an instance of class or of one of its subclasses.
func IsA(obj ManagedObject, class string) bool {
	if strings.EqualFold(obj.ClassName(), class) {
		return true
	}
	for _, c := range obj.Derivation() {
		if strings.EqualFold(c, class) {
			return true
		}
	}
	return false
}
