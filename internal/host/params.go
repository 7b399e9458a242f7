package host

import (
	"encoding/json"
	"strconv"
	"strings"

	errx "github.com/langfuse-nodes/server/internal/core/error"
)

// GetString reads a string parameter. Numbers and booleans are formatted.
func GetString(src ParameterSource, name string, itemIndex int, fallback string) (string, error) {
	v, err := src.Parameter(name, itemIndex, fallback)
	if err != nil {
		return "", err
	}
	switch t := v.(type) {
	case nil:
		return fallback, nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	}
	return "", errx.TypeMismatch(src.Node().Name, name, "a string", errx.TypeName(v))
}

// GetNumber reads a numeric parameter. Numeric strings are accepted.
func GetNumber(src ParameterSource, name string, itemIndex int, fallback float64) (float64, error) {
	v, err := src.Parameter(name, itemIndex, fallback)
	if err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case nil:
		return fallback, nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		if strings.TrimSpace(t) == "" {
			return fallback, nil
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f, nil
		}
	}
	return 0, errx.TypeMismatch(src.Node().Name, name, "a number", errx.TypeName(v))
}

// GetBool reads a boolean parameter. "true" and "false" strings are accepted.
func GetBool(src ParameterSource, name string, itemIndex int, fallback bool) (bool, error) {
	v, err := src.Parameter(name, itemIndex, fallback)
	if err != nil {
		return false, err
	}
	switch t := v.(type) {
	case nil:
		return fallback, nil
	case bool:
		return t, nil
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b, nil
		}
	}
	return false, errx.TypeMismatch(src.Node().Name, name, "a boolean", errx.TypeName(v))
}

// GetList reads a list parameter. A missing value is an empty list.
func GetList(src ParameterSource, name string, itemIndex int) ([]any, error) {
	v, err := src.Parameter(name, itemIndex, nil)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return t, nil
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, nil
	}
	return nil, errx.TypeMismatch(src.Node().Name, name, "a list", errx.TypeName(v))
}
