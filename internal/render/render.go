// Package render writes objects and traversal results for the terminal:
// tables, JSON and Graphviz DOT.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// Format selects an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatDOT   Format = "dot"
)

// ParseFormat accepts a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatDOT:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or dot)", s)
}

// JSON writes v indented.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Record is the JSON form of an object.
type Record struct {
	Path       string         `json:"path"`
	Class      string         `json:"class"`
	Properties map[string]any `json:"properties"`
}

// ToRecord copies obj's properties. Object handles become their paths.
func ToRecord(obj cim.ManagedObject) Record {
	props := obj.Properties()
	r := Record{Path: obj.Path(), Class: obj.ClassName(), Properties: make(map[string]any, len(props))}
	for _, p := range props {
		r.Properties[p.Name] = Plain(p.Value)
	}
	return r
}

// ToRecords applies ToRecord to each object.
func ToRecords(objs []cim.ManagedObject) []Record {
	out := make([]Record, len(objs))
	for i, obj := range objs {
		out[i] = ToRecord(obj)
	}
	return out
}

// Plain replaces object handles in v with their paths.
func Plain(v any) any {
	switch vv := v.(type) {
	case cim.ManagedObject:
		return vv.Path()
	case []cim.ManagedObject:
		paths := make([]string, len(vv))
		for i, o := range vv {
			paths[i] = o.Path()
		}
		return paths
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = Plain(item)
		}
		return out
	}
	return v
}

// Text renders a value for a table cell.
func Text(v any) string {
	switch vv := Plain(v).(type) {
	case nil:
		return ""
	case string:
		return vv
	case []string:
		return strings.Join(vv, ", ")
	case []any:
		parts := make([]string, len(vv))
		for i, item := range vv {
			parts[i] = Text(item)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(vv)
	}
}

// Label is a short human name for obj: its ElementName, else its Name,
// else its path.
func Label(obj cim.ManagedObject) string {
	for _, name := range []string{"ElementName", "Name", "InstanceID"} {
		if s := cim.GetString(obj, name); s != "" {
			return s
		}
	}
	return obj.Path()
}
