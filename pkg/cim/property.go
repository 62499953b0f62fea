package cim

import (
	"errors"
	"fmt"
	"log/slog"
)

// Get reads a property value. A property the object does not have, or
// cannot expose, reads as absent: ok is false and no error is raised.
func Get(obj ManagedObject, name string) (value any, ok bool) {
	p, err := obj.Property(name)
	if err != nil {
		return nil, false
	}
	return p.Value, true
}

// Require reads a property that must exist. Unlike Get it fails loudly.
func Require(obj ManagedObject, name string) (any, error) {
	p, err := obj.Property(name)
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", obj.ClassName(), name, err)
	}
	return p.Value, nil
}

// Set writes a property value on the local handle. Writes to unknown or
// read-only properties are dropped without error so that one set of
// settings can be applied across classes with differing schemas. Other
// failures are returned. Set never commits: the write reaches the
// management host only when the object is passed to a method.
//
// Dropped writes are logged at Debug through the Default engine's logger.
func Set(obj ManagedObject, name string, value any) error {
	return Default.Set(obj, name, value)
}

// SetAll applies every entry of values with Set semantics.
func SetAll(obj ManagedObject, values map[string]any) error {
	return Default.SetAll(obj, values)
}

// Set is the package-level Set, logging dropped writes to e.Logger.
func (e *Engine) Set(obj ManagedObject, name string, value any) error {
	err := obj.SetProperty(name, value)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoSuchProperty), errors.Is(err, ErrReadOnlyProperty):
		e.logger().Debug("property write ignored",
			slog.String("class", obj.ClassName()),
			slog.String("property", name),
			slog.String("reason", err.Error()))
		return nil
	default:
		return fmt.Errorf("write %s.%s: %w", obj.ClassName(), name, err)
	}
}

// SetAll applies every entry of values with e.Set.
func (e *Engine) SetAll(obj ManagedObject, values map[string]any) error {
	for name, v := range values {
		if err := e.Set(obj, name, v); err != nil {
			return err
		}
	}
	return nil
}

// Values returns every property of obj keyed by name.
func Values(obj ManagedObject) map[string]any {
	props := obj.Properties()
	out := make(map[string]any, len(props))
	for _, p := range props {
		out[p.Name] = p.Value
	}
	return out
}

// GetString reads a string property, fail-soft.
func GetString(obj ManagedObject, name string) string {
	v, ok := Get(obj, name)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// GetInt reads an integer property, fail-soft.
func GetInt(obj ManagedObject, name string) (int, bool) {
	v, ok := Get(obj, name)
	if !ok || v == nil {
		return 0, false
	}
	n, err := toInt(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetBool reads a boolean property, fail-soft.
func GetBool(obj ManagedObject, name string) (bool, bool) {
	v, ok := Get(obj, name)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetStrings reads a string array property, fail-soft.
func GetStrings(obj ManagedObject, name string) []string {
	v, ok := Get(obj, name)
	if !ok || v == nil {
		return nil
	}
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}
