package memscope

import (
	"context"
	"strings"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// Related returns the objects linked to o by association instances,
// in the order the associations were created.
func (o *Object) Related(ctx context.Context, q cim.AssociationQuery) ([]cim.ManagedObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.path == "" {
		return nil, nil
	}
	s := o.scope
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []cim.ManagedObject
	seen := make(map[string]bool)
	for _, a := range s.sorted() {
		if !a.class.association || !matchesClass(a.class, q.RelationshipClass) {
			continue
		}
		roles := referenceRoles(a)
		if !plays(a, roles, o.path, q.ThisRole) {
			continue
		}
		for _, role := range roles {
			if q.RelatedRole != "" && !strings.EqualFold(role.Name, q.RelatedRole) {
				continue
			}
			ref, _ := a.values[role.Name].(string)
			if ref == "" || sameRef(ref, o.path) {
				continue
			}
			target, err := s.lookup(ref)
			if err != nil {
				continue
			}
			if !matchesClass(target.class, q.RelatedClass) {
				continue
			}
			key := strings.ToLower(target.path)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s.handle(target))
		}
	}
	return out, nil
}

// Relationships returns the association instances that reference o.
func (o *Object) Relationships(ctx context.Context, q cim.AssociationQuery) ([]cim.ManagedObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.path == "" {
		return nil, nil
	}
	s := o.scope
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []cim.ManagedObject
	for _, a := range s.sorted() {
		if !a.class.association || !matchesClass(a.class, q.RelationshipClass) {
			continue
		}
		if plays(a, referenceRoles(a), o.path, q.ThisRole) {
			out = append(out, s.handle(a))
		}
	}
	return out, nil
}

// plays reports whether path is referenced by association a, under role
// when role is set.
func plays(a *record, roles []PropertyDef, path, role string) bool {
	for _, r := range roles {
		if role != "" && !strings.EqualFold(r.Name, role) {
			continue
		}
		if sameRef(a.values[r.Name], path) {
			return true
		}
	}
	return false
}

func referenceRoles(r *record) []PropertyDef {
	var roles []PropertyDef
	for _, p := range r.class.props {
		if p.Type == cim.TypeReference && !p.IsArray {
			roles = append(roles, p)
		}
	}
	return roles
}

func matchesClass(info *classInfo, class string) bool {
	return class == "" || info.isA(class)
}
