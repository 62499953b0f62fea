package pwsh

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// Quote returns s as a single-quoted PowerShell string. PowerShell also
// treats the typographic single quotes as delimiters, so they are doubled
// too.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'', '‘', '’', '‚', '‛':
			b.WriteRune(r)
		}
		b.WriteRune(r)
	}
	b.WriteByte('\'')
	return b.String()
}

// Literal renders v as a PowerShell expression. Object handles render as
// their path. Slices render as arrays.
func Literal(v any) (string, error) {
	if v == nil {
		return "$null", nil
	}
	if obj, ok := v.(cim.ManagedObject); ok {
		return Quote(obj.Path()), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return Quote(rv.String()), nil
	case reflect.Bool:
		if rv.Bool() {
			return "$true", nil
		}
		return "$false", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("cannot express %v in powershell", f)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case reflect.Slice, reflect.Array:
		items := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := Literal(rv.Index(i).Interface())
			if err != nil {
				return "", err
			}
			items = append(items, item)
		}
		return "@(" + strings.Join(items, ", ") + ")", nil
	}
	return "", fmt.Errorf("cannot express %T in powershell", v)
}

var castTypes = map[cim.CIMType]string{
	cim.TypeString:    "string",
	cim.TypeBoolean:   "bool",
	cim.TypeUInt8:     "byte",
	cim.TypeUInt16:    "uint16",
	cim.TypeUInt32:    "uint32",
	cim.TypeUInt64:    "uint64",
	cim.TypeSInt16:    "int16",
	cim.TypeSInt32:    "int32",
	cim.TypeSInt64:    "int64",
	cim.TypeReal32:    "single",
	cim.TypeReal64:    "double",
	cim.TypeDateTime:  "string",
	cim.TypeReference: "string",
	cim.TypeChar16:    "char",
}

// TypedLiteral renders v cast to the .NET type WMI expects for t, so that
// assignments into method parameters and properties do not fail on a type
// mismatch.
func TypedLiteral(v any, t cim.CIMType, isArray bool) (string, error) {
	lit, err := Literal(v)
	if err != nil || v == nil {
		return lit, err
	}
	cast, ok := castTypes[t]
	if !ok {
		return lit, nil
	}
	if isArray {
		return "[" + cast + "[]]" + lit, nil
	}
	return "[" + cast + "]" + lit, nil
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdentifier(kind, name string) error {
	if !identifier.MatchString(name) {
		return fmt.Errorf("invalid %s name %q", kind, name)
	}
	return nil
}
