package schema

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator compiles and runs expression text with expr-lang.
// Compiled programs are cached by source text.
type Evaluator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// NewEvaluator creates a new expression evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*vm.Program),
	}
}

// Functions available to every expression.
var builtins = map[string]any{
	"withDisplayName": withDisplayName,
}

// Eval runs expression against env and returns the raw result.
func (e *Evaluator) Eval(expression string, env map[string]any) (any, error) {
	program, err := e.compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}

	evalEnv := make(map[string]any, len(env)+len(builtins))
	for k, v := range builtins {
		evalEnv[k] = v
	}
	for k, v := range env {
		evalEnv[k] = v
	}

	out, err := expr.Run(program, evalEnv)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression: %w", err)
	}
	return out, nil
}

// Ports resolves spec against the node parameters. Static specs are returned as is.
func (e *Evaluator) Ports(spec PortSpec, parameters map[string]any) ([]Port, error) {
	if !spec.IsExpression() {
		return spec.Static, nil
	}
	if parameters == nil {
		parameters = map[string]any{}
	}
	out, err := e.Eval(spec.Expression, map[string]any{"parameter": parameters})
	if err != nil {
		return nil, err
	}
	return toPorts(out)
}

func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	prog, err := expr.Compile(expression,
		expr.Env(builtins),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()

	return prog, nil
}

// CacheSize returns the number of cached programs.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// withDisplayName copies a port map and fills displayName from names when absent.
func withDisplayName(item any, names any) any {
	m, ok := item.(map[string]any)
	if !ok {
		return item
	}
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	if _, has := out["displayName"]; has {
		return out
	}
	if nm, ok := names.(map[string]any); ok {
		if t, ok := m["type"].(string); ok {
			if dn, ok := nm[t]; ok {
				out["displayName"] = dn
			}
		}
	}
	return out
}

func toPorts(v any) ([]Port, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("ports expression must return a list, got %T", v)
	}
	ports := make([]Port, 0, len(list))
	for i, item := range list {
		p, err := toPort(item)
		if err != nil {
			return nil, fmt.Errorf("port %d: %w", i, err)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func toPort(v any) (Port, error) {
	switch t := v.(type) {
	case string:
		return Port{Type: ConnectionType(t)}, nil
	case map[string]any:
		typ, ok := t["type"].(string)
		if !ok || typ == "" {
			return Port{}, fmt.Errorf("missing type")
		}
		p := Port{Type: ConnectionType(typ)}
		if dn, ok := t["displayName"].(string); ok {
			p.DisplayName = dn
		}
		if req, ok := t["required"].(bool); ok {
			p.Required = req
		}
		switch n := t["maxConnections"].(type) {
		case int:
			p.MaxConnections = n
		case float64:
			p.MaxConnections = int(n)
		}
		if f, ok := t["filter"].(map[string]any); ok {
			nodes, _ := f["nodes"].([]any)
			filter := &PortFilter{}
			for _, n := range nodes {
				if s, ok := n.(string); ok {
					filter.Nodes = append(filter.Nodes, s)
				}
			}
			p.Filter = filter
		}
		return p, nil
	default:
		return Port{}, fmt.Errorf("unsupported port value %T", v)
	}
}
