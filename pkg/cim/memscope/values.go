package memscope

import (
	"encoding/json"
	"math"
	"reflect"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// normalize converts a value to the form the store keeps for def:
// references as paths, integers as int, arrays as []any.
func normalize(def PropertyDef, v any) any {
	if v == nil {
		return nil
	}
	if def.IsArray {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return []any{scalar(def.Type, v)}
		}
		if rv.Len() == 0 {
			return nil
		}
		items := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items = append(items, scalar(def.Type, rv.Index(i).Interface()))
		}
		return items
	}
	return scalar(def.Type, v)
}

func scalar(t cim.CIMType, v any) any {
	switch vv := v.(type) {
	case nil:
		return nil
	case cim.ManagedObject:
		if t == cim.TypeReference {
			return vv.Path()
		}
		return vv
	case json.Number:
		if i, err := vv.Int64(); err == nil {
			return int(i)
		}
		f, _ := vv.Float64()
		return f
	case float64:
		if isInteger(t) && vv == math.Trunc(vv) {
			return int(vv)
		}
		return vv
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint())
	}
	return v
}

func isInteger(t cim.CIMType) bool {
	switch t {
	case cim.TypeUInt8, cim.TypeUInt16, cim.TypeUInt32, cim.TypeUInt64,
		cim.TypeSInt16, cim.TypeSInt32, cim.TypeSInt64:
		return true
	}
	return false
}
