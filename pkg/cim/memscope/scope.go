package memscope

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// DefaultNamespace is the namespace a scope reports when none is set.
const DefaultNamespace = `root\virtualization\v2`

// record is the stored state of one instance.
type record struct {
	class  *classInfo
	path   string
	values map[string]any
	seq    int
}

// Scope is an in-memory cim.Scope. It is safe for concurrent use; the
// handles it returns are not.
type Scope struct {
	mu        sync.RWMutex
	host      string
	namespace string
	defs      map[string]*Class
	classes   map[string]*classInfo
	objects   map[string]*record
	jobs      map[string]*jobScript
	seq       int
}

var _ cim.Scope = (*Scope)(nil)

// New returns an empty scope for host. The job classes are predefined.
func New(host string) *Scope {
	s := &Scope{
		host:      host,
		namespace: DefaultNamespace,
		defs:      make(map[string]*Class),
		objects:   make(map[string]*record),
		jobs:      make(map[string]*jobScript),
	}
	s.Define(jobClasses()...)
	return s
}

// Host returns the host name used in object paths.
func (s *Scope) Host() string {
	return s.host
}

// Namespace returns the namespace used in object paths.
func (s *Scope) Namespace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namespace
}

// SetNamespace changes the namespace used in object paths. Existing
// instances keep resolving by relative path.
func (s *Scope) SetNamespace(ns string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespace = ns
}

// Define adds or replaces class definitions.
func (s *Scope) Define(classes ...*Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range classes {
		s.defs[strings.ToLower(c.Name)] = c
	}
	s.classes = flatten(s.defs)
	for _, r := range s.objects {
		if info, ok := s.classes[strings.ToLower(r.class.name)]; ok {
			r.class = info
		}
	}
}

// Handle attaches a handler to a method declared on class or inherited by
// it. It panics when the method does not exist.
func (s *Scope) Handle(class, method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.classes[strings.ToLower(class)]
	if !ok {
		panic(fmt.Sprintf("memscope: class %s not defined", class))
	}
	m, ok := info.method(method)
	if !ok {
		panic(fmt.Sprintf("memscope: %s has no method %s", class, method))
	}
	m.Handler = h
}

// Create stores a new instance and returns a handle to it. Key properties
// missing from values are generated.
func (s *Scope) Create(class string, values map[string]any) (*Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.create(class, values)
	if err != nil {
		return nil, err
	}
	return s.handle(r), nil
}

func (s *Scope) create(class string, values map[string]any) (*record, error) {
	info, ok := s.classes[strings.ToLower(class)]
	if !ok {
		return nil, fmt.Errorf("memscope: class %s: %w", class, cim.ErrNotFound)
	}
	s.seq++
	r := &record{class: info, values: defaults(info), seq: s.seq}
	for name, v := range values {
		def, ok := info.property(name)
		if !ok {
			return nil, fmt.Errorf("memscope: %s.%s: %w", class, name, cim.ErrNoSuchProperty)
		}
		r.values[def.Name] = normalize(def, v)
	}
	for _, k := range info.keys() {
		if r.values[k.Name] == nil {
			r.values[k.Name] = fmt.Sprintf("%s-%d", strings.ToLower(info.name), s.seq)
		}
	}
	r.path = relativePath(info, r.values)
	key := strings.ToLower(r.path)
	if _, exists := s.objects[key]; exists {
		return nil, fmt.Errorf("memscope: instance %s already exists", r.path)
	}
	s.objects[key] = r
	return r, nil
}

// Update writes values into the stored instance at path.
func (s *Scope) Update(path string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.lookup(path)
	if err != nil {
		return err
	}
	for name, v := range values {
		def, ok := r.class.property(name)
		if !ok {
			return fmt.Errorf("memscope: %s.%s: %w", r.class.name, name, cim.ErrNoSuchProperty)
		}
		r.values[def.Name] = normalize(def, v)
	}
	return nil
}

// Delete removes the instance at path and every association that
// references it.
func (s *Scope) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.lookup(path)
	if err != nil {
		return err
	}
	delete(s.objects, strings.ToLower(r.path))
	for key, a := range s.objects {
		if !a.class.association {
			continue
		}
		for _, role := range referenceRoles(a) {
			if sameRef(a.values[role.Name], r.path) {
				delete(s.objects, key)
				break
			}
		}
	}
	return nil
}

// Associate creates an instance of association class linking two objects
// under the given role names.
func (s *Scope) Associate(class, role1 string, obj1 cim.ManagedObject, role2 string, obj2 cim.ManagedObject) error {
	_, err := s.Create(class, map[string]any{role1: obj1.Path(), role2: obj2.Path()})
	return err
}

// Resolve implements cim.Scope. It accepts an absolute or relative object
// path, or the text form produced by Object.Text.
func (s *Scope) Resolve(ctx context.Context, pathOrText string) (cim.ManagedObject, error) {
	var (
		obj *Object
		err error
	)
	if isText(pathOrText) {
		obj, err = s.ParseText(pathOrText)
	} else {
		obj, err = s.Get(pathOrText)
	}
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Get returns a handle to the stored instance at path.
func (s *Scope) Get(path string) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, err := s.lookup(path)
	if err != nil {
		return nil, err
	}
	return s.handle(r), nil
}

// Query implements cim.Scope for "SELECT ... FROM Class [WHERE ...]".
// Instances of subclasses match. Results are in creation order.
func (s *Scope) Query(ctx context.Context, query string) ([]cim.ManagedObject, error) {
	q, err := parseQuery(query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []*record
	for _, r := range s.sorted() {
		if !r.class.isA(q.class) {
			continue
		}
		ok, err := q.match(r)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, r)
		}
	}
	out := make([]cim.ManagedObject, 0, len(matches))
	for _, r := range matches {
		out = append(out, s.handle(r))
	}
	return out, nil
}

// NewInstance implements cim.Scope. The instance has default values and
// no path until a method handler stores it.
func (s *Scope) NewInstance(ctx context.Context, class string) (cim.ManagedObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.classes[strings.ToLower(class)]
	if !ok {
		return nil, fmt.Errorf("memscope: class %s: %w", class, cim.ErrNotFound)
	}
	return &Object{scope: s, class: info, values: defaults(info)}, nil
}

// Store commits a handle created by NewInstance or ParseText as a new
// instance and returns the stored handle.
func (s *Scope) Store(obj *Object) (*Object, error) {
	return s.Create(obj.ClassName(), obj.values)
}

// Len returns the number of stored instances.
func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// FullPath turns a relative path into an absolute one.
func (s *Scope) FullPath(rel string) string {
	if rel == "" {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf(`\\%s\%s:%s`, s.host, s.namespace, rel)
}

func (s *Scope) lookup(path string) (*record, error) {
	r, ok := s.objects[strings.ToLower(relative(path))]
	if !ok {
		return nil, fmt.Errorf("memscope: %s: %w", path, cim.ErrNotFound)
	}
	return r, nil
}

func (s *Scope) sorted() []*record {
	out := make([]*record, 0, len(s.objects))
	for _, r := range s.objects {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (s *Scope) handle(r *record) *Object {
	return &Object{
		scope:  s,
		class:  r.class,
		path:   r.path,
		values: copyValues(r.values),
	}
}

// relative strips the `\\host\namespace:` prefix of an absolute path.
func relative(path string) string {
	if strings.HasPrefix(path, `\\`) {
		if i := strings.Index(path, ":"); i >= 0 {
			return path[i+1:]
		}
	}
	return path
}

func relativePath(info *classInfo, values map[string]any) string {
	keys := info.keys()
	if len(keys) == 0 {
		return fmt.Sprintf("%s=@", info.name)
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k.Name, fmt.Sprint(values[k.Name])))
	}
	return info.name + "." + strings.Join(parts, ",")
}

func sameRef(v any, path string) bool {
	s, ok := v.(string)
	return ok && strings.EqualFold(relative(s), relative(path))
}

func defaults(info *classInfo) map[string]any {
	values := make(map[string]any, len(info.props))
	for _, p := range info.props {
		values[p.Name] = normalize(p, p.Default)
	}
	return values
}

func copyValues(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if items, ok := v.([]any); ok {
			v = append([]any(nil), items...)
		}
		out[k] = v
	}
	return out
}
