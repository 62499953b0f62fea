package memscope

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// Fixture is the YAML form of a scope's contents.
//
//	host: HV01
//	classes:
//	  - name: Msvm_ComputerSystem
//	    superclass: CIM_ComputerSystem
//	    properties:
//	      - {name: Name, type: String, key: true}
//	objects:
//	  - id: vm1
//	    class: Msvm_ComputerSystem
//	    properties: {Name: "4D2A...", ElementName: web}
//	  - class: Msvm_SystemDevice
//	    properties: {GroupComponent: "@vm1", PartComponent: "@nic1"}
//
// String values of the form "@id" are replaced by the path of the object
// with that id.
type Fixture struct {
	Host      string          `yaml:"host"`
	Namespace string          `yaml:"namespace,omitempty"`
	Classes   []FixtureClass  `yaml:"classes"`
	Objects   []FixtureObject `yaml:"objects"`
}

type FixtureClass struct {
	Name        string            `yaml:"name"`
	Superclass  string            `yaml:"superclass,omitempty"`
	Association bool              `yaml:"association,omitempty"`
	Properties  []FixtureProperty `yaml:"properties,omitempty"`
	Methods     []FixtureMethod   `yaml:"methods,omitempty"`
}

type FixtureProperty struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Array    bool   `yaml:"array,omitempty"`
	Key      bool   `yaml:"key,omitempty"`
	ReadOnly bool   `yaml:"readonly,omitempty"`
	Default  any    `yaml:"default,omitempty"`
}

type FixtureMethod struct {
	Name    string            `yaml:"name"`
	In      []FixtureProperty `yaml:"in,omitempty"`
	Out     []FixtureProperty `yaml:"out,omitempty"`
	Returns *int              `yaml:"returns,omitempty"`
}

type FixtureObject struct {
	ID         string         `yaml:"id,omitempty"`
	Class      string         `yaml:"class"`
	Properties map[string]any `yaml:"properties,omitempty"`
}

// LoadFixture reads a fixture file into a new scope.
func LoadFixture(path string) (*Scope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return ReadFixture(f)
}

// ReadFixture decodes a fixture into a new scope.
func ReadFixture(r io.Reader) (*Scope, error) {
	var fx Fixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	s := New(fx.Host)
	if fx.Namespace != "" {
		s.SetNamespace(fx.Namespace)
	}
	if _, err := s.Apply(fx); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply defines the fixture's classes and creates its objects. It returns
// the created objects by id.
func (s *Scope) Apply(fx Fixture) (map[string]*Object, error) {
	classes := make([]*Class, 0, len(fx.Classes))
	for _, fc := range fx.Classes {
		c, err := fc.class()
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	s.Define(classes...)

	ids := make(map[string]*Object)
	for i, fo := range fx.Objects {
		values := make(map[string]any, len(fo.Properties))
		for k, v := range fo.Properties {
			resolved, err := resolveIDs(v, ids)
			if err != nil {
				return nil, fmt.Errorf("fixture object %d (%s): %w", i, fo.Class, err)
			}
			values[k] = resolved
		}
		obj, err := s.Create(fo.Class, values)
		if err != nil {
			return nil, fmt.Errorf("fixture object %d: %w", i, err)
		}
		if fo.ID != "" {
			ids[fo.ID] = obj
		}
	}
	return ids, nil
}

func (fc FixtureClass) class() (*Class, error) {
	c := &Class{Name: fc.Name, Superclass: fc.Superclass, Association: fc.Association}
	for _, fp := range fc.Properties {
		def, err := fp.def()
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", fc.Name, err)
		}
		c.Properties = append(c.Properties, def)
	}
	for _, fm := range fc.Methods {
		m := &Method{Name: fm.Name}
		for _, fp := range fm.In {
			def, err := fp.def()
			if err != nil {
				return nil, fmt.Errorf("method %s.%s: %w", fc.Name, fm.Name, err)
			}
			m.In = append(m.In, cim.Parameter{Name: def.Name, Type: def.Type, IsArray: def.IsArray})
		}
		for _, fp := range fm.Out {
			def, err := fp.def()
			if err != nil {
				return nil, fmt.Errorf("method %s.%s: %w", fc.Name, fm.Name, err)
			}
			m.Out = append(m.Out, cim.Parameter{Name: def.Name, Type: def.Type, IsArray: def.IsArray})
		}
		if fm.Returns != nil {
			m.Handler = Noop(*fm.Returns)
		}
		c.Methods = append(c.Methods, m)
	}
	return c, nil
}

func (fp FixtureProperty) def() (PropertyDef, error) {
	t := cim.ParseCIMType(fp.Type)
	if t == cim.TypeUnknown {
		return PropertyDef{}, fmt.Errorf("property %s: unknown type %q", fp.Name, fp.Type)
	}
	return PropertyDef{
		Name:     fp.Name,
		Type:     t,
		IsArray:  fp.Array,
		Key:      fp.Key,
		ReadOnly: fp.ReadOnly,
		Default:  fp.Default,
	}, nil
}

func resolveIDs(v any, ids map[string]*Object) (any, error) {
	switch vv := v.(type) {
	case string:
		if !strings.HasPrefix(vv, "@") {
			return vv, nil
		}
		obj, ok := ids[vv[1:]]
		if !ok {
			return nil, fmt.Errorf("unknown object id %q", vv)
		}
		return obj.Path(), nil
	case []any:
		out := make([]any, 0, len(vv))
		for _, item := range vv {
			r, err := resolveIDs(item, ids)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	}
	return v, nil
}
