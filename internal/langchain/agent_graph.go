package langchain

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

const (
	NodeAgentPrompt = "agent_prompt"
	NodeAgentModel  = "agent_model"
	NodeAgentTools  = "agent_tools"

	DefaultMaxIterations = 10
)

// Step is one tool call made by the agent and what the tool returned.
type Step struct {
	Tool        string `json:"tool"`
	ToolInput   string `json:"toolInput"`
	ToolCallID  string `json:"toolCallId"`
	Observation string `json:"observation,omitempty"`
}

// agentState is the graph local state of one agent run.
// It is read and written only inside eino state handlers.
type agentState struct {
	History              []*schema.Message
	ToolCallCount        int
	ToolCallLimitReached bool
	ToolCallIDSeq        int
	Steps                []Step
}

type agentGraphConfig struct {
	Model         model.BaseChatModel
	Tools         []tool.BaseTool
	MaxIterations int
	Log           zerolog.Logger
}

// agentRun is a compiled agent graph and the state it runs with.
type agentRun struct {
	runnable compose.Runnable[map[string]any, *schema.Message]
	state    *agentState
}

// buildAgentGraph composes prompt -> model <-> tools.
func buildAgentGraph(ctx context.Context, cfg agentGraphConfig) (*agentRun, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("agent model is nil")
	}
	maxIterations := normalizeMaxIterations(cfg.MaxIterations)
	st := &agentState{}

	g := compose.NewGraph[map[string]any, *schema.Message](
		compose.WithGenLocalState(func(ctx context.Context) *agentState {
			return st
		}),
	)

	chatModel := cfg.Model
	if len(cfg.Tools) > 0 {
		infos := make([]*schema.ToolInfo, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			info, err := t.Info(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to get tool info: %w", err)
			}
			infos = append(infos, info)
		}
		tcm, ok := cfg.Model.(model.ToolCallingChatModel)
		if !ok {
			return nil, fmt.Errorf("connected chat model does not support tool calling")
		}
		bound, err := tcm.WithTools(infos)
		if err != nil {
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
		chatModel = bound
	}

	_ = g.AddChatTemplateNode(NodeAgentPrompt,
		prompt.FromMessages(schema.FString, schema.MessagesPlaceholder("messages", false)))
	_ = g.AddChatModelNode(NodeAgentModel, chatModel,
		compose.WithStatePreHandler(newModelPreHandler(maxIterations)),
		compose.WithStatePostHandler(newModelPostHandler(cfg.Log)),
	)
	_ = g.AddEdge(compose.START, NodeAgentPrompt)
	_ = g.AddEdge(NodeAgentPrompt, NodeAgentModel)

	if len(cfg.Tools) == 0 {
		_ = g.AddEdge(NodeAgentModel, compose.END)
	} else {
		toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
			Tools:               cfg.Tools,
			ExecuteSequentially: true,
			UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
				cfg.Log.Warn().
					Str("tool_name", name).
					Str("arguments", input).
					Msg("Unknown or invalid tool call; returning fallback result")
				return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create tools node: %w", err)
		}
		_ = g.AddToolsNode(NodeAgentTools, toolsNode,
			compose.WithStatePreHandler(newToolsPreHandler(maxIterations, cfg.Log)),
		)
		_ = g.AddEdge(NodeAgentTools, NodeAgentModel)

		branch := compose.NewGraphBranch(newToolsCondition(cfg.Log), map[string]bool{
			NodeAgentTools: true,
			compose.END:    true,
		})
		if err := g.AddBranch(NodeAgentModel, branch); err != nil {
			return nil, fmt.Errorf("error adding tools branch: %w", err)
		}
	}

	// Limit total run steps to avoid infinite loops in tool retries
	maxSteps := max(10+maxIterations*2, 20)
	runnable, err := g.Compile(ctx, compose.WithMaxRunSteps(maxSteps), compose.WithGraphName("agent"))
	if err != nil {
		return nil, fmt.Errorf("error compiling agent graph: %w", err)
	}
	return &agentRun{runnable: runnable, state: st}, nil
}

func normalizeMaxIterations(n int) int {
	if n <= 0 {
		return DefaultMaxIterations
	}
	return n
}

// newModelPreHandler feeds the whole history to the model and asks it to wrap up once
// the iteration budget is spent.
func newModelPreHandler(maxIterations int) func(context.Context, []*schema.Message, *agentState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *agentState) ([]*schema.Message, error) {
		// Some providers return tool results without tool_call_id
		if len(in) > 0 {
			last := in[len(in)-1]
			if last != nil && last.Role == schema.Tool && strings.TrimSpace(last.ToolCallID) == "" {
				for i := len(state.History) - 1; i >= 0; i-- {
					msg := state.History[i]
					if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
						continue
					}
					if id := msg.ToolCalls[0].ID; strings.TrimSpace(id) != "" {
						last.ToolCallID = id
					}
					break
				}
			}
		}
		recordObservations(state, in)
		state.History = append(state.History, in...)

		if !state.ToolCallLimitReached && state.ToolCallCount >= maxIterations {
			state.ToolCallLimitReached = true
			state.History = append(state.History, schema.SystemMessage(fmt.Sprintf(
				"SYSTEM NOTICE: You have reached the maximum number of tool calls (%d). "+
					"Answer with the information you have gathered so far.",
				maxIterations,
			)))
		}
		return state.History, nil
	}
}

func recordObservations(state *agentState, in []*schema.Message) {
	for _, m := range in {
		if m == nil || m.Role != schema.Tool {
			continue
		}
		for i := range state.Steps {
			if state.Steps[i].ToolCallID == m.ToolCallID && state.Steps[i].Observation == "" {
				state.Steps[i].Observation = m.Content
				break
			}
		}
	}
}

func newModelPostHandler(log zerolog.Logger) func(context.Context, *schema.Message, *agentState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *agentState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("chat model returned no message")
		}
		// Some providers omit tool_call IDs
		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
		}
		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 {
			log.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			log.Debug().Msg("AI response ready")
		}
		return out, nil
	}
}

func newToolsCondition(log zerolog.Logger) func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		_ = compose.ProcessState(ctx, func(_ context.Context, state *agentState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})

		if limitReached {
			log.Debug().Msg("Tool limit reached previously - routing to end")
			return compose.END, nil
		}
		if len(input.ToolCalls) > 0 {
			return NodeAgentTools, nil
		}
		return compose.END, nil
	}
}

func newToolsPreHandler(maxIterations int, log zerolog.Logger) func(context.Context, *schema.Message, *agentState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *agentState) (*schema.Message, error) {
		state.ToolCallCount++
		for _, call := range in.ToolCalls {
			state.Steps = append(state.Steps, Step{
				Tool:       call.Function.Name,
				ToolInput:  call.Function.Arguments,
				ToolCallID: call.ID,
			})
		}
		log.Debug().Int("tool_call_count", state.ToolCallCount).Msg("Tool execution attempt")
		if state.ToolCallCount > maxIterations {
			state.ToolCallLimitReached = true
			log.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_iterations", maxIterations).
				Msg("Tool call limit exceeded - flagging and continuing")
		}
		return in, nil
	}
}
