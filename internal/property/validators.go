package property

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	errx "github.com/langfuse-nodes/server/internal/core/error"
)

// String accepts only string values.
func String(node, param string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errx.TypeMismatch(node, param, "a string", errx.TypeName(v))
	}
	return s, nil
}

// Any parses strings as JSON when possible and passes everything else through.
func Any(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return s
	}
	return parsed
}

// JSON requires an object, given either directly or as JSON text.
func JSON(node, param string, v any) (map[string]any, error) {
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(t), &parsed); err != nil {
			return nil, errx.InvalidJSON(node, param, err)
		}
		obj, ok := parsed.(map[string]any)
		if !ok {
			return nil, errx.InvalidJSON(node, param, fmt.Errorf("expected a JSON object, got %s", errx.TypeName(parsed)))
		}
		return obj, nil
	default:
		return nil, errx.TypeMismatch(node, param, "a JSON string or object", errx.TypeName(v))
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// maxEpochMillis bounds epoch timestamps to ±100,000,000 days, the range of a JavaScript Date.
const maxEpochMillis = 8.64e15

func epochMillis(node, param string, ms float64) (time.Time, bool, error) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || math.Abs(ms) > maxEpochMillis {
		return time.Time{}, false, errx.TypeMismatch(node, param, "epoch milliseconds within the calendar range",
			strconv.FormatFloat(ms, 'g', -1, 64))
	}
	return time.UnixMilli(int64(ms)).UTC(), true, nil
}

// DateTime accepts epoch milliseconds or a date string. ok is false when v is absent.
func DateTime(node, param string, v any) (t time.Time, ok bool, err error) {
	switch n := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case bool, map[string]any, []any:
		return time.Time{}, false, errx.TypeMismatch(node, param, "a string or a number", errx.TypeName(v))
	case int:
		return epochMillis(node, param, float64(n))
	case int64:
		return epochMillis(node, param, float64(n))
	case float64:
		return epochMillis(node, param, n)
	case json.Number:
		ms, perr := n.Float64()
		if perr != nil {
			return time.Time{}, false, errx.TypeMismatch(node, param, "epoch milliseconds", n.String())
		}
		return epochMillis(node, param, ms)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return time.Time{}, false, nil
		}
		if ms, perr := strconv.ParseInt(s, 10, 64); perr == nil {
			return epochMillis(node, param, float64(ms))
		}
		for _, layout := range dateLayouts {
			if parsed, perr := time.Parse(layout, s); perr == nil {
				return parsed, true, nil
			}
		}
		return time.Time{}, false, errx.TypeMismatch(node, param, "a date string or epoch milliseconds", fmt.Sprintf("%q", s))
	default:
		return time.Time{}, false, errx.TypeMismatch(node, param, "a string or a number", errx.TypeName(v))
	}
}

// PromptRef links a run to a managed prompt.
type PromptRef struct {
	Name    string
	Version int
	Raw     map[string]any
}

// PromptJSON validates a prompt object carrying a string name and a numeric version.
// With optional set, empty input yields nil.
func PromptJSON(node, param string, v any, optional bool) (*PromptRef, error) {
	if optional && isEmpty(v) {
		return nil, nil
	}
	obj, err := JSON(node, param, v)
	if err != nil {
		return nil, err
	}
	if optional && len(obj) == 0 {
		return nil, nil
	}
	name, nameOK := obj["name"].(string)
	version, versionOK := obj["version"].(float64)
	if iv, ok := obj["version"].(int); ok {
		version, versionOK = float64(iv), true
	}
	if !nameOK || !versionOK {
		return nil, errx.TypeMismatch(node, param,
			"a Langfuse prompt object with a 'name' string and a 'version' number", "an object without them")
	}
	return &PromptRef{Name: name, Version: int(version), Raw: obj}, nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	}
	return false
}
