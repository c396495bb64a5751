package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Args is the parameter mapping a step hands to an operation. Values come
// from JSON or YAML documents, so numbers may be any numeric type and
// booleans may arrive as strings.
type Args map[string]any

// Has reports whether key is present with a non-nil value
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// String returns a required, non-blank string parameter
func (a Args) String(key string) (string, error) {
	s, err := a.Text(key)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", validationError("%w: %s", ErrMissingParameter, key)
	}
	return s, nil
}

// Text returns a required string parameter that may be empty
func (a Args) Text(key string) (string, error) {
	if !a.Has(key) {
		return "", validationError("%w: %s", ErrMissingParameter, key)
	}
	s, ok := a[key].(string)
	if !ok {
		return "", validationError(
			"%w: %s must be a string, got %T", ErrInvalidParameter, key, a[key],
		)
	}
	return s, nil
}

// OptString returns an optional string parameter
func (a Args) OptString(key, def string) (string, error) {
	if !a.Has(key) {
		return def, nil
	}
	return a.Text(key)
}

// OptBool returns an optional boolean parameter
func (a Args) OptBool(key string, def bool) (bool, error) {
	if !a.Has(key) {
		return def, nil
	}
	switch v := a[key].(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err == nil {
			return b, nil
		}
	}
	return false, validationError(
		"%w: %s must be a boolean", ErrInvalidParameter, key,
	)
}

// OptInt returns an optional integer parameter
func (a Args) OptInt(key string, def int) (int, error) {
	if !a.Has(key) {
		return def, nil
	}
	f, ok := toFloat(a[key])
	if !ok || f != math.Trunc(f) {
		return 0, validationError(
			"%w: %s must be an integer", ErrInvalidParameter, key,
		)
	}
	return int(f), nil
}

// StringMap returns an optional object parameter with every value
// rendered as a string
func (a Args) StringMap(key string) (map[string]string, error) {
	if !a.Has(key) {
		return nil, nil
	}
	m, ok := asMap(a[key])
	if !ok {
		return nil, validationError(
			"%w: %s must be an object", ErrInvalidParameter, key,
		)
	}
	res := make(map[string]string, len(m))
	for k, v := range m {
		res[k] = stringify(v)
	}
	return res, nil
}

// List returns a required array parameter
func (a Args) List(key string) ([]any, error) {
	if !a.Has(key) {
		return nil, validationError("%w: %s", ErrMissingParameter, key)
	}
	l, ok := a[key].([]any)
	if !ok {
		return nil, validationError(
			"%w: %s must be an array", ErrInvalidParameter, key,
		)
	}
	return l, nil
}

// OptStrings returns an optional array of strings
func (a Args) OptStrings(key string) ([]string, error) {
	if !a.Has(key) {
		return nil, nil
	}
	l, err := a.List(key)
	if err != nil {
		return nil, err
	}
	res := make([]string, len(l))
	for i, v := range l {
		res[i] = stringify(v)
	}
	return res, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Args:
		return m, true
	case map[string]string:
		res := make(map[string]any, len(m))
		for k, s := range m {
			res[k] = s
		}
		return res, true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case fmt.Stringer:
		return s.String()
	case map[string]any, []any:
		data, err := json.Marshal(s)
		if err == nil {
			return string(data)
		}
	}
	return fmt.Sprint(v)
}
