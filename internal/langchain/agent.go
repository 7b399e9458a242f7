package langchain

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	errx "github.com/langfuse-nodes/server/internal/core/error"
	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/link"
	ports "github.com/langfuse-nodes/server/internal/schema"
	logx "github.com/langfuse-nodes/server/pkg/logger"
)

const AgentType = Package + ".agent"

// AgentInputs evaluates to the agent's input ports. The model port only accepts the
// chat model types listed in its filter.
const AgentInputs = `let hasOutputParser = parameter.hasOutputParser == true;
let displayNames = {ai_languageModel: "Chat Model", ai_memory: "Memory", ai_tool: "Tool", ai_outputParser: "Output Parser"};
let specialInputs = concat([
	{type: "ai_languageModel", required: true, maxConnections: 1, filter: {nodes: ["langchain.lmChatAnthropic", "langchain.lmChatGemini", "langchain.lmChatOpenAi", "langchain.lmChatOllama"]}},
	{type: "ai_memory", maxConnections: 1},
	{type: "ai_tool"}
], hasOutputParser ? [{type: "ai_outputParser", maxConnections: 1}] : []);
concat(["main"], map(specialInputs, {withDisplayName(#, displayNames)}))`

const defaultSystemMessage = "You are a helpful assistant"

// Agent answers each input item with a tool-calling chat model loop.
type Agent struct {
	Desc host.Description
	// Callbacks, when set, supplies handlers attached to every agent run.
	Callbacks CallbackHook
}

var _ host.Executor = (*Agent)(nil)

func NewAgent() *Agent {
	return &Agent{Desc: host.Description{
		DisplayName: "AI Agent",
		Name:        AgentType,
		Group:       []string{"transform"},
		Version:     []float64{2},
		Description: "Generates an action plan and executes it. Can use external tools.",
		Defaults:    host.Defaults{Name: "AI Agent"},
		Inputs:      ports.Expr(AgentInputs),
		Outputs:     ports.Ports(ports.Port{Type: ports.Main}),
		Properties: append(append([]host.Parameter{}, promptProperties...),
			host.Parameter{
				DisplayName: "Options",
				Name:        "options",
				Type:        "collection",
				Default:     map[string]any{},
				Options: []host.Parameter{
					{DisplayName: "System Message", Name: "systemMessage", Type: "string", Default: defaultSystemMessage},
					{DisplayName: "Max Iterations", Name: "maxIterations", Type: "number", Default: DefaultMaxIterations},
					{DisplayName: "Return Intermediate Steps", Name: "returnIntermediateSteps", Type: "boolean", Default: false},
				},
			},
		),
	}}
}

func (a *Agent) Description() host.Description {
	return a.Desc
}

func (a *Agent) Execute(ctx context.Context, ec host.ExecContext) ([][]host.Item, error) {
	items := ec.InputData()
	out := make([]host.Item, 0, len(items))
	for i := range items {
		json, err := a.processItem(ctx, ec, i)
		if err != nil {
			if ec.ContinueOnFail() {
				out = append(out, errorItem(err, i))
				continue
			}
			return nil, err
		}
		out = append(out, host.Item{JSON: json, PairedItem: &host.PairedItem{Item: i}})
	}
	return [][]host.Item{out}, nil
}

func (a *Agent) processItem(ctx context.Context, ec host.ExecContext, itemIndex int) (map[string]any, error) {
	node := ec.Node().Name
	log := logx.Node(node)

	llm, ok, err := link.First[model.BaseChatModel](ctx, ec, ports.AILanguageModel, "chat model")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errx.MissingLink(node, string(ports.AILanguageModel))
	}
	tools, err := link.CollectAll[tool.BaseTool](ctx, ec, ports.AITool, "tool")
	if err != nil {
		return nil, err
	}
	memory, hasMemory, err := link.First[Memory](ctx, ec, ports.AIMemory, "memory")
	if err != nil {
		return nil, err
	}

	var parser OutputParser
	hasParser, err := host.GetBool(ec, "hasOutputParser", itemIndex, false)
	if err != nil {
		return nil, err
	}
	if hasParser {
		parser, ok, err = link.First[OutputParser](ctx, ec, ports.AIOutputParser, "output parser")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errx.MissingLink(node, string(ports.AIOutputParser))
		}
	}

	input, err := promptText(ec, itemIndex)
	if err != nil {
		return nil, err
	}
	system, err := host.GetString(ec, "options.systemMessage", itemIndex, defaultSystemMessage)
	if err != nil {
		return nil, err
	}
	maxIterations, err := host.GetNumber(ec, "options.maxIterations", itemIndex, DefaultMaxIterations)
	if err != nil {
		return nil, err
	}
	returnSteps, err := host.GetBool(ec, "options.returnIntermediateSteps", itemIndex, false)
	if err != nil {
		return nil, err
	}

	messages := []*schema.Message{schema.SystemMessage(system)}
	if hasMemory {
		history, err := memory.Load(ctx)
		if err != nil {
			return nil, err
		}
		messages = append(messages, history...)
	}
	query := input
	if parser != nil {
		if instructions := parser.FormatInstructions(); instructions != "" {
			query = query + "\n" + instructions
		}
	}
	messages = append(messages, schema.UserMessage(query))

	var handlers []einocb.Handler
	if a.Callbacks != nil {
		handlers, err = a.Callbacks(ctx, ec, itemIndex)
		if err != nil {
			return nil, err
		}
	}

	run, err := buildAgentGraph(ctx, agentGraphConfig{
		Model:         llm,
		Tools:         tools,
		MaxIterations: int(maxIterations),
		Log:           log,
	})
	if err != nil {
		return nil, errx.NodeOperation(node, "%v", err)
	}
	reply, err := run.runnable.Invoke(ctx, map[string]any{"messages": messages}, compose.WithCallbacks(handlers...))
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(reply.Content)
	result := map[string]any{"output": text}
	if parser != nil {
		parsed, err := parser.Parse(ctx, text)
		if err != nil {
			return nil, err
		}
		result["output"] = parsed
	}
	if returnSteps {
		result["intermediateSteps"] = run.state.Steps
	}

	if hasMemory {
		if err := memory.SaveTurn(ctx, input, text); err != nil {
			log.Error().Err(err).Msg("failed to save agent turn to memory")
			return nil, err
		}
	}
	return result, nil
}
