package memscope

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/javanstorm/hvctl/pkg/cim"
)

const textPrefix = "instance of "

// formatText renders o in a MOF-like form:
//
//	instance of Msvm_VirtualSystemSettingData
//	{
//		__PATH = "...";
//		ElementName = "vm1";
//	};
//
// Values are JSON literals. Null values are left out.
func formatText(o *Object) string {
	var b strings.Builder
	b.WriteString(textPrefix)
	b.WriteString(o.class.name)
	b.WriteString("\n{\n")
	if o.path != "" {
		fmt.Fprintf(&b, "\t__PATH = %s;\n", literal(o.path))
	}
	for _, def := range o.class.props {
		v := o.values[def.Name]
		if v == nil {
			continue
		}
		fmt.Fprintf(&b, "\t%s = %s;\n", def.Name, literal(v))
	}
	b.WriteString("};\n")
	return b.String()
}

func literal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprint(v))
	}
	return string(data)
}

func isText(s string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), textPrefix)
}

// ParseText builds a local handle from the text form. The handle carries
// the parsed values and, when the text names one, the original path; it is
// not stored.
func (s *Scope) ParseText(text string) (*Object, error) {
	sc := bufio.NewScanner(strings.NewReader(strings.TrimSpace(text)))
	if !sc.Scan() {
		return nil, fmt.Errorf("memscope: empty instance text")
	}
	header := strings.TrimSpace(sc.Text())
	if !isText(header) {
		return nil, fmt.Errorf("memscope: instance text must start with %q", textPrefix)
	}
	class := strings.TrimSpace(header[len(textPrefix):])

	s.mu.RLock()
	info, ok := s.classes[strings.ToLower(class)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memscope: class %s: %w", class, cim.ErrNotFound)
	}

	obj := &Object{scope: s, class: info, values: defaults(info)}
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line == "{" || line == "};" {
			continue
		}
		name, raw, ok := strings.Cut(strings.TrimSuffix(line, ";"), "=")
		if !ok {
			return nil, fmt.Errorf("memscope: malformed instance line %q", line)
		}
		name = strings.TrimSpace(name)
		value, err := decodeLiteral(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("memscope: %s: %w", name, err)
		}
		if name == "__PATH" {
			p, _ := value.(string)
			obj.path = relative(p)
			continue
		}
		def, ok := info.property(name)
		if !ok {
			return nil, fmt.Errorf("memscope: %s.%s: %w", class, name, cim.ErrNoSuchProperty)
		}
		obj.values[def.Name] = normalize(def, value)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return obj, nil
}

func decodeLiteral(raw string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
