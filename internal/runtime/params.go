package runtime

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/langfuse-nodes/server/internal/schema"
)

var placeholder = regexp.MustCompile(`\{\{(.*?)\}\}`)

// resolve evaluates expression parameters inside v. A string starting with "=" is an
// expression: "={{ x }}" yields the value of x, any other text has each {{ x }}
// replaced by its rendering. Maps and lists are resolved recursively.
func resolve(eval *schema.Evaluator, v any, env map[string]any) (any, error) {
	switch t := v.(type) {
	case string:
		if !strings.HasPrefix(t, "=") {
			return t, nil
		}
		return expression(eval, t[1:], env)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			r, err := resolve(eval, item, env)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			r, err := resolve(eval, item, env)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}

func expression(eval *schema.Evaluator, text string, env map[string]any) (any, error) {
	trimmed := strings.TrimSpace(text)
	if loc := placeholder.FindStringSubmatchIndex(trimmed); loc != nil && loc[0] == 0 && loc[1] == len(trimmed) {
		return eval.Eval(strings.TrimSpace(trimmed[loc[2]:loc[3]]), env)
	}

	var evalErr error
	out := placeholder.ReplaceAllStringFunc(text, func(m string) string {
		if evalErr != nil {
			return ""
		}
		v, err := eval.Eval(strings.TrimSpace(m[2:len(m)-2]), env)
		if err != nil {
			evalErr = err
			return ""
		}
		return render(v)
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return out, nil
}

func render(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
