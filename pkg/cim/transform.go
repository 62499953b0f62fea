package cim

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// ToRemote converts a caller-supplied value into the representation a
// parameter of type t expects:
//
//   - an object given to a String parameter becomes its canonical text form
//   - an object given to a Reference parameter passes through
//   - a string given to a Reference parameter is resolved through scope
//   - strings, integers and booleans pass only when the tag matches
//
// Every other combination fails with ErrUnsupportedConversion. A nil value
// stays nil.
func ToRemote(ctx context.Context, scope Scope, value any, t CIMType) (any, error) {
	if value == nil {
		return nil, nil
	}

	if obj, ok := value.(ManagedObject); ok {
		switch t {
		case TypeString:
			text, err := obj.Text(ctx)
			if err != nil {
				return nil, fmt.Errorf("text of %s: %w", obj.Path(), err)
			}
			return text, nil
		case TypeReference:
			return obj, nil
		}
		return nil, &ConversionError{Value: value, Target: t}
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String:
		s := rv.String()
		switch t {
		case TypeString, TypeDateTime:
			return s, nil
		case TypeReference:
			if scope == nil {
				return nil, &ConversionError{Value: value, Target: t, Reason: "no scope to resolve reference"}
			}
			obj, err := scope.Resolve(ctx, s)
			if err != nil {
				return nil, fmt.Errorf("resolve reference: %w", err)
			}
			return obj, nil
		}
	case reflect.Bool:
		if t == TypeBoolean {
			return rv.Bool(), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return toUnsigned(value, rv.Int(), t)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt64 {
			return nil, &ConversionError{Value: value, Target: t, Reason: "overflows int64"}
		}
		return toUnsigned(value, int64(rv.Uint()), t)
	}

	return nil, &ConversionError{Value: value, Target: t}
}

// FromRemote converts a value reported by the management host into its
// caller-facing form. References become object handles; unsigned integers
// become int.
func FromRemote(ctx context.Context, scope Scope, value any, t CIMType) (any, error) {
	if value == nil {
		return nil, nil
	}
	if n, ok := value.(json.Number); ok {
		i, err := n.Int64()
		if err != nil {
			return nil, &ConversionError{Value: value, Target: t, Reason: err.Error()}
		}
		value = i
	}
	if f, ok := value.(float64); ok && f == math.Trunc(f) {
		value = int64(f)
	}
	return ToRemote(ctx, scope, value, t)
}

// ToRemoteArray applies ToRemote to every element of value, which must be a
// slice, an array or nil. An empty result is reported as absent (nil), since
// the management host does not treat an empty array like a missing one.
func ToRemoteArray(ctx context.Context, scope Scope, value any, t CIMType) ([]any, error) {
	return convertArray(ctx, scope, value, t, ToRemote)
}

// FromRemoteArray is the array form of FromRemote.
func FromRemoteArray(ctx context.Context, scope Scope, value any, t CIMType) ([]any, error) {
	return convertArray(ctx, scope, value, t, FromRemote)
}

type convertFunc func(context.Context, Scope, any, CIMType) (any, error)

func convertArray(ctx context.Context, scope Scope, value any, t CIMType, conv convertFunc) ([]any, error) {
	if value == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, &ConversionError{Value: value, Target: t, Reason: "array parameter needs a slice"}
	}
	if rv.Len() == 0 {
		return nil, nil
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item, err := conv(ctx, scope, rv.Index(i).Interface(), t)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, item)
	}
	return out, nil
}

func toUnsigned(v any, n int64, t CIMType) (any, error) {
	var limit int64
	switch t {
	case TypeUInt16:
		limit = math.MaxUint16
	case TypeUInt32:
		limit = math.MaxUint32
	default:
		return nil, &ConversionError{Value: v, Target: t}
	}
	if n < 0 || n > limit {
		return nil, &ConversionError{Value: v, Target: t, Reason: fmt.Sprintf("%d out of range", n)}
	}
	return int(n), nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int", n)
		}
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not integral", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	}
	return 0, fmt.Errorf("%T is not an integer", v)
}
