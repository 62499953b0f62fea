// Package memscope is an in-memory management scope. It holds class
// definitions, object instances, association instances and method
// handlers, and hands out cim.ManagedObject handles over them. Jobs can be
// scripted to walk through a fixed sequence of states.
package memscope

import (
	"context"
	"strings"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// PropertyDef declares one property of a class.
type PropertyDef struct {
	Name     string
	Type     cim.CIMType
	IsArray  bool
	Key      bool
	ReadOnly bool
	Default  any
}

// Handler implements a method. The returned map holds the output
// parameters; a missing ReturnValue reads as 0.
type Handler func(ctx context.Context, call *Call) (map[string]any, error)

// Method declares a method of a class.
type Method struct {
	Name    string
	In      []cim.Parameter
	Out     []cim.Parameter
	Handler Handler
}

// Class declares a class. Properties and methods are inherited from
// Superclass when it is defined in the same scope.
type Class struct {
	Name        string
	Superclass  string
	Association bool
	Properties  []PropertyDef
	Methods     []*Method
}

// classInfo is a class with its inheritance flattened.
type classInfo struct {
	name        string
	derivation  []string
	association bool
	props       []PropertyDef
	methods     map[string]*Method
}

func (c *classInfo) property(name string) (PropertyDef, bool) {
	for _, p := range c.props {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return PropertyDef{}, false
}

func (c *classInfo) method(name string) (*Method, bool) {
	m, ok := c.methods[strings.ToLower(name)]
	return m, ok
}

func (c *classInfo) keys() []PropertyDef {
	var keys []PropertyDef
	for _, p := range c.props {
		if p.Key {
			keys = append(keys, p)
		}
	}
	return keys
}

func (c *classInfo) isA(class string) bool {
	if strings.EqualFold(c.name, class) {
		return true
	}
	for _, d := range c.derivation {
		if strings.EqualFold(d, class) {
			return true
		}
	}
	return false
}

// flatten resolves the inheritance chain of every class. Subclass
// properties and methods override inherited ones of the same name.
func flatten(defs map[string]*Class) map[string]*classInfo {
	out := make(map[string]*classInfo, len(defs))
	var build func(name string, seen map[string]bool) *classInfo
	build = func(name string, seen map[string]bool) *classInfo {
		key := strings.ToLower(name)
		if info, ok := out[key]; ok {
			return info
		}
		def, ok := defs[key]
		if !ok || seen[key] {
			return nil
		}
		seen[key] = true

		info := &classInfo{
			name:        def.Name,
			association: def.Association,
			methods:     make(map[string]*Method),
		}
		if def.Superclass != "" {
			info.derivation = append(info.derivation, def.Superclass)
			if parent := build(def.Superclass, seen); parent != nil {
				info.derivation = append(info.derivation, parent.derivation...)
				info.association = info.association || parent.association
				info.props = append(info.props, parent.props...)
				for k, m := range parent.methods {
					info.methods[k] = m
				}
			}
		}
		for _, p := range def.Properties {
			replaced := false
			for i := range info.props {
				if strings.EqualFold(info.props[i].Name, p.Name) {
					info.props[i] = p
					replaced = true
				}
			}
			if !replaced {
				info.props = append(info.props, p)
			}
		}
		for _, m := range def.Methods {
			info.methods[strings.ToLower(m.Name)] = m
		}
		out[key] = info
		return info
	}
	for name := range defs {
		build(name, map[string]bool{})
	}
	return out
}
