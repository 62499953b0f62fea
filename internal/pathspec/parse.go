// Package pathspec reads traversal paths written as text.
//
// A path is a list of steps separated by "/":
//
//	related:Msvm_VirtualSystemSettingData(via=Msvm_SettingsDefineState,role=SettingData,this=ManagedElement)/related:Msvm_SyntheticEthernetPortSettingData
//	relationship:Msvm_SettingsDefineCapabilities[ValueRole == 0]/ref:PartComponent
//
// Each step is kind:target, optionally followed by association options in
// parentheses and a selector expression in brackets. The kinds are ref
// (alias property), related and relationship (alias rel).
package pathspec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("path syntax error")

// Parse compiles a one-line path.
func Parse(s string) (cim.Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty path", ErrSyntax)
	}
	steps, err := split(s, '/')
	if err != nil {
		return nil, err
	}
	path := make(cim.Path, 0, len(steps))
	for i, raw := range steps {
		node, err := parseStep(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		path = append(path, node)
	}
	return path, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) cim.Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func parseStep(s string) (cim.Node, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("%w: %q has no kind", ErrSyntax, s)
	}
	kind = strings.ToLower(strings.TrimSpace(kind))

	var where string
	if i := strings.IndexByte(rest, '['); i >= 0 {
		if !strings.HasSuffix(rest, "]") {
			return nil, fmt.Errorf("%w: unterminated selector in %q", ErrSyntax, s)
		}
		where = strings.TrimSpace(rest[i+1 : len(rest)-1])
		rest = rest[:i]
	}
	var opts string
	if i := strings.IndexByte(rest, '('); i >= 0 {
		if !strings.HasSuffix(rest, ")") {
			return nil, fmt.Errorf("%w: unterminated options in %q", ErrSyntax, s)
		}
		opts = rest[i+1 : len(rest)-1]
		rest = rest[:i]
	}
	target := strings.TrimSpace(rest)
	if target == "" {
		return nil, fmt.Errorf("%w: %q has no target", ErrSyntax, s)
	}

	step := Step{Where: where}
	switch kind {
	case "ref", "property":
		if opts != "" {
			return nil, fmt.Errorf("%w: %s steps take no options", ErrSyntax, kind)
		}
		step.Ref = target
	case "related":
		step.Related = target
	case "relationship", "rel":
		step.Relationship = target
	default:
		return nil, fmt.Errorf("%w: unknown step kind %q", ErrSyntax, kind)
	}
	if opts != "" {
		if err := step.setOptions(opts); err != nil {
			return nil, err
		}
	}
	return step.Node()
}

func (s *Step) setOptions(opts string) error {
	for _, kv := range strings.Split(opts, ",") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("%w: option %q is not key=value", ErrSyntax, strings.TrimSpace(kv))
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "via", "assoc":
			s.Association = value
		case "role":
			s.Role = value
		case "this":
			s.ThisRole = value
		default:
			return fmt.Errorf("%w: unknown option %q", ErrSyntax, strings.TrimSpace(key))
		}
	}
	return nil
}

// split cuts s at sep outside brackets, parentheses and quotes.
func split(s string, sep byte) ([]string, error) {
	var (
		out   []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[' || c == '(':
			depth++
		case c == ']' || c == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced %q at offset %d", ErrSyntax, c, i)
			}
		case c == sep && depth == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated string", ErrSyntax)
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced brackets", ErrSyntax)
	}
	return append(out, s[start:]), nil
}
