package langchain

import (
	"context"
	"fmt"
	"math"
	"time"
	_ "time/tzdata"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/expr-lang/expr"

	"github.com/langfuse-nodes/server/internal/host"
	ports "github.com/langfuse-nodes/server/internal/schema"
)

const (
	ToolCurrentTimeType = Package + ".toolCurrentTime"
	ToolCalculatorType  = Package + ".toolCalculator"
)

const maxExpressionLen = 1024

type CurrentTimeInput struct {
	Timezone string `json:"timezone,omitempty"`
}

type CurrentTimeOutput struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
	Unix     int64  `json:"unix"`
}

type CalculatorInput struct {
	Expression string `json:"expression"`
}

type CalculatorOutput struct {
	Result any `json:"result"`
}

// ToolCurrentTime supplies a tool reporting the current time in a time zone.
type ToolCurrentTime struct {
	Now func() time.Time
}

var _ host.Supplier = (*ToolCurrentTime)(nil)

func (t *ToolCurrentTime) Description() host.Description {
	return host.Description{
		DisplayName: "Current Time Tool",
		Name:        ToolCurrentTimeType,
		Group:       []string{"transform"},
		Version:     []float64{1},
		Description: "Tells the agent the current date and time",
		Defaults:    host.Defaults{Name: "Current Time"},
		Inputs:      ports.Ports(),
		Outputs:     ports.Ports(ports.Port{Type: ports.AITool}),
		OutputNames: []string{"Tool"},
		Properties: []host.Parameter{
			{DisplayName: "Default Timezone", Name: "timezone", Type: "string", Default: "UTC"},
		},
	}
}

func (t *ToolCurrentTime) SupplyData(_ context.Context, ec host.ExecContext, itemIndex int) (host.Response, error) {
	tz, err := host.GetString(ec, "timezone", itemIndex, "UTC")
	if err != nil {
		return host.Response{}, err
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return host.Response{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return host.Response{Value: t.tool(tz)}, nil
}

func (t *ToolCurrentTime) tool(defaultTZ string) tool.BaseTool {
	now := t.Now
	if now == nil {
		now = time.Now
	}
	return utils.NewTool(
		&schema.ToolInfo{
			Name: "current_time",
			Desc: "Get the current date and time. Use this whenever the answer depends on today's date or the time of day.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"timezone": {
					Type: "string",
					Desc: fmt.Sprintf("IANA time zone such as Asia/Bangkok. Defaults to %s.", defaultTZ),
				},
			}),
		},
		func(ctx context.Context, in *CurrentTimeInput) (*CurrentTimeOutput, error) {
			tz := in.Timezone
			if tz == "" {
				tz = defaultTZ
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return nil, fmt.Errorf("unknown timezone: %s", tz)
			}
			ts := now().In(loc)
			return &CurrentTimeOutput{Time: ts.Format(time.RFC3339), Timezone: tz, Unix: ts.Unix()}, nil
		},
	)
}

// ToolCalculator supplies a tool evaluating arithmetic expressions.
type ToolCalculator struct{}

var _ host.Supplier = ToolCalculator{}

func (ToolCalculator) Description() host.Description {
	return host.Description{
		DisplayName: "Calculator",
		Name:        ToolCalculatorType,
		Group:       []string{"transform"},
		Version:     []float64{1},
		Description: "Lets the agent evaluate arithmetic",
		Defaults:    host.Defaults{Name: "Calculator"},
		Inputs:      ports.Ports(),
		Outputs:     ports.Ports(ports.Port{Type: ports.AITool}),
		OutputNames: []string{"Tool"},
	}
}

func (ToolCalculator) SupplyData(context.Context, host.ExecContext, int) (host.Response, error) {
	return host.Response{Value: calculatorTool()}, nil
}

var calculatorEnv = map[string]any{
	"sqrt": math.Sqrt,
	"pow":  math.Pow,
	"log":  math.Log,
	"pi":   math.Pi,
	"e":    math.E,
}

// Calculate evaluates an arithmetic expression such as "2 * (3 + 4) ^ 2".
func Calculate(expression string) (any, error) {
	if expression == "" {
		return nil, fmt.Errorf("expression is required")
	}
	if len(expression) > maxExpressionLen {
		return nil, fmt.Errorf("expression too long")
	}
	program, err := expr.Compile(expression, expr.Env(calculatorEnv))
	if err != nil {
		return nil, fmt.Errorf("invalid expression: %w", err)
	}
	out, err := expr.Run(program, calculatorEnv)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression: %w", err)
	}
	switch out.(type) {
	case int, float64:
		return out, nil
	default:
		return nil, fmt.Errorf("expression did not produce a number")
	}
}

func calculatorTool() tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: "calculator",
			Desc: "Evaluate an arithmetic expression. Supports + - * / % ^ and sqrt, pow, floor, ceil, round, log, pi, e.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"expression": {
					Type:     "string",
					Desc:     "The expression to evaluate, for example (12.5 * 4) / 2",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *CalculatorInput) (*CalculatorOutput, error) {
			v, err := Calculate(in.Expression)
			if err != nil {
				return nil, err
			}
			return &CalculatorOutput{Result: v}, nil
		},
	)
}
