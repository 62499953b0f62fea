package pwsh

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// wireObject is what ConvertTo-HvObject emits for one WMI object.
type wireObject struct {
	Path       string
	Class      string
	Derivation []string
	Properties []wireProperty
}

type wireProperty struct {
	Name    string
	Type    string
	IsArray bool
	Value   json.RawMessage
}

type wireParameter struct {
	Name    string
	Type    string
	IsArray bool
}

func (w *wireObject) properties() ([]cim.Property, error) {
	props := make([]cim.Property, 0, len(w.Properties))
	for _, p := range w.Properties {
		t := cim.ParseCIMType(p.Type)
		v, err := decodeValue(t, p.IsArray, p.Value)
		if err != nil {
			return nil, fmt.Errorf("property %s of %s: %w", p.Name, w.Class, err)
		}
		props = append(props, cim.Property{Name: p.Name, Type: t, IsArray: p.IsArray, Value: v})
	}
	return props, nil
}

// decodeValue turns a JSON property value into the Go value the type tag
// calls for: integers become int, reals float64, everything textual a
// string. Empty arrays decode to nil.
func decodeValue(t cim.CIMType, isArray bool, raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if !isArray {
		return decodeScalar(t, raw)
	}

	var items []json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
	} else {
		items = []json.RawMessage{raw}
	}
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		v, err := decodeScalar(t, item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeScalar(t cim.CIMType, raw json.RawMessage) (any, error) {
	var v any
	if err := decodeJSON(raw, &v); err != nil {
		return nil, err
	}
	n, isNumber := v.(json.Number)

	switch t {
	case cim.TypeUInt8, cim.TypeUInt16, cim.TypeUInt32, cim.TypeUInt64,
		cim.TypeSInt16, cim.TypeSInt32, cim.TypeSInt64:
		if !isNumber {
			return nil, fmt.Errorf("%s value %s is not a number", t, raw)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, err
		}
		return int(i), nil
	case cim.TypeReal32, cim.TypeReal64:
		if !isNumber {
			return nil, fmt.Errorf("%s value %s is not a number", t, raw)
		}
		return n.Float64()
	case cim.TypeChar16:
		if isNumber {
			i, err := n.Int64()
			if err != nil {
				return nil, err
			}
			return string(rune(i)), nil
		}
	}
	if isNumber {
		return n.String(), nil
	}
	return v, nil
}

func (s *Scope) objectFrom(w *wireObject) (*Object, error) {
	props, err := w.properties()
	if err != nil {
		return nil, err
	}
	return &Object{
		scope:      s,
		path:       w.Path,
		class:      w.Class,
		derivation: w.Derivation,
		props:      props,
		dirty:      map[string]bool{},
	}, nil
}

func (s *Scope) objectsFrom(items []json.RawMessage) ([]cim.ManagedObject, error) {
	out := make([]cim.ManagedObject, 0, len(items))
	for _, item := range items {
		var w wireObject
		if err := decodeJSON(item, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		obj, err := s.objectFrom(&w)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func orNull(s string) string {
	if strings.TrimSpace(s) == "" {
		return "$null"
	}
	return Quote(s)
}
