package pwsh

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// CIM-XML (DSP0201) instance, as produced by GetText(CimDtd20). Only the
// parts an embedded instance carries are modelled.
type xmlInstance struct {
	XMLName    xml.Name         `xml:"INSTANCE"`
	ClassName  string           `xml:"CLASSNAME,attr"`
	Properties []xmlProperty    `xml:"PROPERTY"`
	Arrays     []xmlArray       `xml:"PROPERTY.ARRAY"`
	References []xmlRefProperty `xml:"PROPERTY.REFERENCE"`
}

type xmlProperty struct {
	Name  string  `xml:"NAME,attr"`
	Type  string  `xml:"TYPE,attr"`
	Value *string `xml:"VALUE"`
}

type xmlArray struct {
	Name   string   `xml:"NAME,attr"`
	Type   string   `xml:"TYPE,attr"`
	Values []string `xml:"VALUE.ARRAY>VALUE"`
}

type xmlRefProperty struct {
	Name string `xml:"NAME,attr"`
}

func isInstanceText(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "<")
}

// parseInstanceText builds an uncommitted object from its CIM-XML text.
// The text form carries no path; reference values are not kept. Every
// property with a value is written back when the object renders its text.
func (s *Scope) parseInstanceText(text string) (*Object, error) {
	var inst xmlInstance
	if err := xml.Unmarshal([]byte(text), &inst); err != nil {
		return nil, fmt.Errorf("parse instance text: %w", err)
	}
	if inst.ClassName == "" {
		return nil, fmt.Errorf("parse instance text: no class name")
	}

	obj := &Object{scope: s, class: inst.ClassName, dirty: map[string]bool{}}
	for _, p := range inst.Properties {
		t := cim.ParseCIMType(p.Type)
		var value any
		if p.Value != nil {
			v, err := parseXMLValue(t, *p.Value)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", p.Name, err)
			}
			value = v
		}
		obj.props = append(obj.props, cim.Property{Name: p.Name, Type: t, Value: value})
	}
	for _, p := range inst.Arrays {
		t := cim.ParseCIMType(p.Type)
		var value any
		if len(p.Values) > 0 {
			items := make([]any, 0, len(p.Values))
			for _, raw := range p.Values {
				v, err := parseXMLValue(t, raw)
				if err != nil {
					return nil, fmt.Errorf("property %s: %w", p.Name, err)
				}
				items = append(items, v)
			}
			value = items
		}
		obj.props = append(obj.props, cim.Property{Name: p.Name, Type: t, IsArray: true, Value: value})
	}
	for _, p := range inst.References {
		obj.props = append(obj.props, cim.Property{Name: p.Name, Type: cim.TypeReference})
	}
	// The object is rebuilt from CreateInstance, so every carried value
	// counts as a local write.
	for _, p := range obj.props {
		if p.Value != nil {
			obj.dirty[strings.ToLower(p.Name)] = true
		}
	}
	return obj, nil
}

func parseXMLValue(t cim.CIMType, raw string) (any, error) {
	switch t {
	case cim.TypeUInt8, cim.TypeUInt16, cim.TypeUInt32, cim.TypeUInt64,
		cim.TypeSInt16, cim.TypeSInt32, cim.TypeSInt64:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, err
		}
		return int(n), nil
	case cim.TypeReal32, cim.TypeReal64:
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	case cim.TypeBoolean:
		return strconv.ParseBool(strings.TrimSpace(raw))
	}
	return raw, nil
}
