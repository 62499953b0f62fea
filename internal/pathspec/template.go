package pathspec

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/javanstorm/hvctl/pkg/cim"
)

//go:embed templates
var builtinFS embed.FS

// ErrUnknownTemplate is returned by Catalog.Get for a name not loaded.
var ErrUnknownTemplate = errors.New("unknown template")

// Step is one node of a template written as YAML. Exactly one of Ref,
// Related and Relationship is set.
type Step struct {
	Ref          string `yaml:"ref,omitempty"`
	Related      string `yaml:"related,omitempty"`
	Relationship string `yaml:"relationship,omitempty"`

	// Association options for related and relationship steps.
	Association string `yaml:"via,omitempty"`
	Role        string `yaml:"role,omitempty"`
	ThisRole    string `yaml:"this,omitempty"`

	// Where is an expression over the candidate's properties.
	Where string `yaml:"where,omitempty"`
}

// Node compiles the step.
func (s Step) Node() (cim.Node, error) {
	var sel cim.Selector
	if s.Where != "" {
		w, err := cim.Where(s.Where)
		if err != nil {
			return nil, err
		}
		sel = w
	}

	set := 0
	for _, v := range []string{s.Ref, s.Related, s.Relationship} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: a step needs exactly one of ref, related, relationship", ErrSyntax)
	}

	switch {
	case s.Ref != "":
		if s.Association != "" || s.Role != "" || s.ThisRole != "" {
			return nil, fmt.Errorf("%w: ref steps take no association options", ErrSyntax)
		}
		n := cim.Ref(s.Ref)
		n.Selector = sel
		return n, nil
	case s.Related != "":
		return &cim.RelatedNode{Query: cim.AssociationQuery{
			RelatedClass:      s.Related,
			RelationshipClass: s.Association,
			RelatedRole:       s.Role,
			ThisRole:          s.ThisRole,
		}, Selector: sel}, nil
	default:
		return &cim.RelationshipNode{Query: cim.AssociationQuery{
			RelationshipClass: s.Relationship,
			RelatedRole:       s.Role,
			ThisRole:          s.ThisRole,
		}, Selector: sel}, nil
	}
}

// Template is a named path. It is written either as a one-line Path or as
// a list of Steps.
type Template struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// From is the class of the objects the path starts at.
	From string `yaml:"from,omitempty"`

	Path  string `yaml:"path,omitempty"`
	Steps []Step `yaml:"steps,omitempty"`

	// Source is the file the template was loaded from.
	Source string `yaml:"-"`
}

// Compile returns the template's path.
func (t *Template) Compile() (cim.Path, error) {
	switch {
	case t.Path != "" && len(t.Steps) > 0:
		return nil, fmt.Errorf("template %s: set path or steps, not both", t.Name)
	case t.Path != "":
		p, err := Parse(t.Path)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", t.Name, err)
		}
		return p, nil
	case len(t.Steps) == 0:
		return nil, fmt.Errorf("template %s: no steps", t.Name)
	}
	path := make(cim.Path, 0, len(t.Steps))
	for i, s := range t.Steps {
		n, err := s.Node()
		if err != nil {
			return nil, fmt.Errorf("template %s step %d: %w", t.Name, i+1, err)
		}
		path = append(path, n)
	}
	return path, nil
}

type templateFile struct {
	Templates []*Template `yaml:"templates"`
}

// Catalog holds templates by name. Later loads replace earlier templates
// of the same name.
type Catalog struct {
	templates map[string]*Template
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{templates: make(map[string]*Template)}
}

// Builtin returns a catalog of the templates shipped with hvctl.
func Builtin() (*Catalog, error) {
	c := NewCatalog()
	err := fs.WalkDir(builtinFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isYAML(path) {
			return err
		}
		data, err := builtinFS.ReadFile(path)
		if err != nil {
			return err
		}
		return c.Add(data, "builtin:"+d.Name())
	})
	if err != nil {
		return nil, fmt.Errorf("load builtin templates: %w", err)
	}
	return c, nil
}

// Add parses a template file and adds its templates. Every template is
// compiled once so that errors surface at load time.
func (c *Catalog) Add(data []byte, source string) error {
	var f templateFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return fmt.Errorf("parse %s: %w", source, err)
	}
	for _, t := range f.Templates {
		if t.Name == "" {
			return fmt.Errorf("%s: template without a name", source)
		}
		if _, err := t.Compile(); err != nil {
			return fmt.Errorf("%s: %w", source, err)
		}
		t.Source = source
		c.templates[strings.ToLower(t.Name)] = t
	}
	return nil
}

// Load adds the templates in path, which is a YAML file or a directory of
// them.
func (c *Catalog) Load(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return c.loadFile(path)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		if err := c.loadFile(filepath.Join(path, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.Add(data, path)
}

// Get returns the template called name, case-insensitively.
func (c *Catalog) Get(name string) (*Template, error) {
	t, ok := c.templates[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	return t, nil
}

// Templates returns every template sorted by name.
func (c *Catalog) Templates() []*Template {
	out := make([]*Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve compiles spec, a one-line path in which a step may also be the
// name of a template (optionally written @name). Template steps expand to
// the template's nodes.
func (c *Catalog) Resolve(spec string) (cim.Path, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("%w: empty path", ErrSyntax)
	}
	steps, err := split(spec, '/')
	if err != nil {
		return nil, err
	}
	var path cim.Path
	for i, raw := range steps {
		raw = strings.TrimSpace(raw)
		if strings.HasPrefix(raw, "@") || !strings.Contains(raw, ":") {
			t, err := c.Get(strings.TrimPrefix(raw, "@"))
			if err != nil {
				return nil, err
			}
			sub, err := t.Compile()
			if err != nil {
				return nil, err
			}
			path = append(path, sub...)
			continue
		}
		node, err := parseStep(raw)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		path = append(path, node)
	}
	return path, nil
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
