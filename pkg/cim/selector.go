package cim

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Selector decides whether a traversal candidate is kept.
type Selector interface {
	Accept(obj ManagedObject) bool
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(obj ManagedObject) bool

func (f SelectorFunc) Accept(obj ManagedObject) bool { return f(obj) }

// AcceptAll is the null selector.
var AcceptAll Selector = SelectorFunc(func(ManagedObject) bool { return true })

// PropertySelector keeps objects whose properties, rendered as text, equal
// the expected literals. An object missing one of the properties is
// rejected.
type PropertySelector map[string]any

// Accept reports whether every listed property equals its value.
func (s PropertySelector) Accept(obj ManagedObject) bool {
	for name, want := range s {
		got, ok := Get(obj, name)
		if !ok {
			return false
		}
		if !strings.EqualFold(stringify(got), stringify(want)) {
			return false
		}
	}
	return true
}

func (s PropertySelector) String() string {
	parts := make([]string, 0, len(s))
	for name, want := range s {
		parts = append(parts, fmt.Sprintf("%s=%s", name, stringify(want)))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// ExprSelector keeps objects for which a boolean expression over their
// properties holds. Property names are the expression's variables.
type ExprSelector struct {
	source  string
	program *vm.Program
	logger  *slog.Logger
}

// Where compiles an expression selector such as
//
//	ResourceType == 5 && Address == "0"
func Where(source string) (*ExprSelector, error) {
	program, err := expr.Compile(source, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", source, err)
	}
	return &ExprSelector{source: source, program: program}, nil
}

// MustWhere is like Where but panics on a compile error. It is meant for
// package-level path templates.
func MustWhere(source string) *ExprSelector {
	s, err := Where(source)
	if err != nil {
		panic(err)
	}
	return s
}

// WithLogger sets the logger that records rejected candidates. Without one
// they go to slog.Default().
func (s *ExprSelector) WithLogger(l *slog.Logger) *ExprSelector {
	s.logger = l
	return s
}

// Accept runs the expression. A run-time error rejects the candidate.
func (s *ExprSelector) Accept(obj ManagedObject) bool {
	env := Values(obj)
	env["__CLASS"] = obj.ClassName()
	env["__PATH"] = obj.Path()
	out, err := expr.Run(s.program, env)
	if err != nil {
		log := s.logger
		if log == nil {
			log = slog.Default()
		}
		log.Debug("selector rejected candidate",
			slog.String("selector", s.source),
			slog.String("object", obj.Path()),
			slog.String("error", err.Error()))
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func (s *ExprSelector) String() string {
	return s.source
}

func stringify(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case ManagedObject:
		return vv.Path()
	}
	return fmt.Sprint(v)
}
