package memscope

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

var selectRe = regexp.MustCompile(`(?is)^\s*select\s+.+?\s+from\s+(\w+)(?:\s+where\s+(.+?))?\s*$`)

type query struct {
	class   string
	where   string
	program *vm.Program
}

// parseQuery accepts the WQL subset
//
//	SELECT <anything> FROM <Class> [WHERE <condition>]
//
// Conditions use =, <>, <, <=, >, >=, AND, OR, NOT, TRUE, FALSE and NULL
// over property names and literals. They are evaluated with expr.
func parseQuery(q string) (*query, error) {
	m := selectRe.FindStringSubmatch(q)
	if m == nil {
		return nil, fmt.Errorf("memscope: unsupported query %q", q)
	}
	out := &query{class: m[1], where: m[2]}
	if out.where == "" {
		return out, nil
	}
	program, err := expr.Compile(translateWhere(out.where), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("memscope: query %q: %w", q, err)
	}
	out.program = program
	return out, nil
}

func (q *query) match(r *record) (bool, error) {
	if q.program == nil {
		return true, nil
	}
	env := make(map[string]any, len(r.values))
	for k, v := range r.values {
		env[k] = v
	}
	out, err := expr.Run(q.program, env)
	if err != nil {
		return false, fmt.Errorf("memscope: where %q: %w", q.where, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

var wqlWords = map[string]string{
	"and":   "and",
	"or":    "or",
	"not":   "not",
	"true":  "true",
	"false": "false",
	"null":  "nil",
}

// translateWhere rewrites a WQL condition into expr syntax. Quoted
// literals are copied unchanged.
func translateWhere(where string) string {
	var b strings.Builder
	runes := []rune(where)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '"' || c == '\'':
			j := i + 1
			for j < len(runes) && runes[j] != c {
				if runes[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(runes) {
				j = len(runes) - 1
			}
			b.WriteString(string(runes[i : j+1]))
			i = j
		case c == '<' && i+1 < len(runes) && runes[i+1] == '>':
			b.WriteString("!=")
			i++
		case c == '=':
			prev := rune(0)
			if i > 0 {
				prev = runes[i-1]
			}
			if prev == '<' || prev == '>' || prev == '!' || prev == '=' {
				b.WriteRune(c)
			} else if i+1 < len(runes) && runes[i+1] == '=' {
				b.WriteString("==")
				i++
			} else {
				b.WriteString("==")
			}
		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			word := string(runes[i:j])
			if repl, ok := wqlWords[strings.ToLower(word)]; ok {
				word = repl
			}
			b.WriteString(word)
			i = j - 1
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}
