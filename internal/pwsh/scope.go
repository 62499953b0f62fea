package pwsh

import (
	"context"
	"fmt"
	"sync"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// Scope is a cim.Scope over one WMI namespace of the host.
type Scope struct {
	session   *Session
	namespace string

	// Method parameter lists by lower-case "class.method". Schemas do not
	// change while connected.
	params sync.Map
}

var _ cim.Scope = (*Scope)(nil)

// NewScope returns a scope over namespace.
func NewScope(session *Session, namespace string) *Scope {
	return &Scope{session: session, namespace: namespace}
}

// Session returns the session the scope runs scripts on.
func (s *Scope) Session() *Session {
	return s.session
}

// Namespace returns the WMI namespace of the scope.
func (s *Scope) Namespace() string {
	return s.namespace
}

func (s *Scope) classPath(class string) string {
	return s.namespace + ":" + class
}

// Resolve fetches the object at a path, or builds an uncommitted object
// from CIM-XML instance text.
func (s *Scope) Resolve(ctx context.Context, pathOrText string) (cim.ManagedObject, error) {
	if isInstanceText(pathOrText) {
		obj, err := s.parseInstanceText(pathOrText)
		if err != nil {
			return nil, err
		}
		return obj, nil
	}
	obj, err := s.get(ctx, pathOrText)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (s *Scope) get(ctx context.Context, path string) (*Object, error) {
	var w wireObject
	found, err := s.session.DoOne(ctx, "[wmi]"+Quote(path)+" | ConvertTo-HvObject", &w)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", cim.ErrNotFound, path)
	}
	return s.objectFrom(&w)
}

// Query runs a WQL query in the scope's namespace.
func (s *Scope) Query(ctx context.Context, query string) ([]cim.ManagedObject, error) {
	body := fmt.Sprintf("Get-WmiObject -Namespace %s -Query %s | ConvertTo-HvObject",
		Quote(s.namespace), Quote(query))
	items, err := s.session.Do(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", query, err)
	}
	return s.objectsFrom(items)
}

// NewInstance creates an uncommitted instance of class, carrying the
// class defaults.
func (s *Scope) NewInstance(ctx context.Context, class string) (cim.ManagedObject, error) {
	if err := checkIdentifier("class", class); err != nil {
		return nil, err
	}
	var w wireObject
	body := fmt.Sprintf("([wmiclass]%s).CreateInstance() | ConvertTo-HvObject", Quote(s.classPath(class)))
	found, err := s.session.DoOne(ctx, body, &w)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: class %s", cim.ErrNotFound, class)
	}
	w.Path = ""
	return s.objectFrom(&w)
}
