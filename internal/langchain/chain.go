package langchain

import (
	"context"
	"fmt"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	errx "github.com/langfuse-nodes/server/internal/core/error"
	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/link"
	ports "github.com/langfuse-nodes/server/internal/schema"
	logx "github.com/langfuse-nodes/server/pkg/logger"
)

const ChainLlmType = Package + ".chainLlm"

// ChainLlmInputs evaluates to the chain's input ports. The result is bound last so
// derived node types can extend it.
const ChainLlmInputs = `let parser = parameter.hasOutputParser == true ? [{type: "ai_outputParser", displayName: "Output Parser", maxConnections: 1, required: false}] : [];
let inputs = concat(["main", {type: "ai_languageModel", displayName: "Model", maxConnections: 1, required: true}], parser);
let result = inputs;
result`

// batchingVersion is the first type version that processes items in batches.
const batchingVersion = 1.7

// ChainLlm runs a prompt through a connected chat model for every input item.
type ChainLlm struct {
	Desc host.Description
	// Callbacks, when set, supplies handlers attached to every chain run.
	Callbacks CallbackHook
}

var _ host.Executor = (*ChainLlm)(nil)

func NewChainLlm() *ChainLlm {
	return &ChainLlm{Desc: host.Description{
		DisplayName: "Basic LLM Chain",
		Name:        ChainLlmType,
		Group:       []string{"transform"},
		Version:     []float64{1, 1.5, 1.6, 1.7},
		Description: "A simple chain to prompt a large language model",
		Defaults:    host.Defaults{Name: "Basic LLM Chain"},
		Inputs:      ports.Expr(ChainLlmInputs),
		Outputs:     ports.Ports(ports.Port{Type: ports.Main}),
		Properties: append(append([]host.Parameter{}, promptProperties...),
			host.Parameter{
				DisplayName: "Chat Messages (if Using a Chat Model)",
				Name:        "messages",
				Type:        "fixedCollection",
				Default:     map[string]any{},
				Options: []host.Parameter{{
					DisplayName: "Prompt",
					Name:        "messageValues",
					Type:        "collection",
					Options: []host.Parameter{
						{DisplayName: "Type Name or ID", Name: "type", Type: "options", Default: "SystemMessagePromptTemplate",
							Choices: []host.Option{
								{Name: "AI", Value: "AIMessagePromptTemplate"},
								{Name: "System", Value: "SystemMessagePromptTemplate"},
								{Name: "User", Value: "HumanMessagePromptTemplate"},
							}},
						{DisplayName: "Message", Name: "message", Type: "string", Default: ""},
					},
				}},
			},
			host.Parameter{
				DisplayName: "Batch Processing",
				Name:        "batching",
				Type:        "collection",
				Default:     map[string]any{},
				Options: []host.Parameter{
					{DisplayName: "Batch Size", Name: "batchSize", Type: "number", Default: 5,
						Description: "How many items to process in parallel"},
					{DisplayName: "Delay Between Batches", Name: "delayBetweenBatches", Type: "number", Default: 0,
						Description: "Delay in milliseconds between batches"},
				},
			},
		),
	}}
}

func (c *ChainLlm) Description() host.Description {
	return c.Desc
}

func (c *ChainLlm) Execute(ctx context.Context, ec host.ExecContext) ([][]host.Item, error) {
	log := logx.Node(ec.Node().Name)
	log.Debug().Msg("executing basic LLM chain")

	items := ec.InputData()
	batchSize, err := host.GetNumber(ec, "batching.batchSize", 0, 5)
	if err != nil {
		return nil, err
	}
	delay, err := host.GetNumber(ec, "batching.delayBetweenBatches", 0, 0)
	if err != nil {
		return nil, err
	}

	var out []host.Item
	if ec.Node().TypeVersion >= batchingVersion && batchSize > 1 {
		out, err = c.executeBatched(ctx, ec, len(items), int(batchSize), time.Duration(delay)*time.Millisecond)
	} else {
		out, err = c.executeSequential(ctx, ec, len(items))
	}
	if err != nil {
		return nil, err
	}
	return [][]host.Item{out}, nil
}

func (c *ChainLlm) executeSequential(ctx context.Context, ec host.ExecContext, n int) ([]host.Item, error) {
	var out []host.Item
	for i := 0; i < n; i++ {
		responses, err := c.processItem(ctx, ec, i)
		if err != nil {
			if ec.ContinueOnFail() {
				out = append(out, errorItem(err, i))
				continue
			}
			return nil, err
		}
		for _, r := range responses {
			out = append(out, host.Item{JSON: formatResponse(r), PairedItem: &host.PairedItem{Item: i}})
		}
	}
	return out, nil
}

func (c *ChainLlm) executeBatched(ctx context.Context, ec host.ExecContext, n, size int, delay time.Duration) ([]host.Item, error) {
	var out []host.Item
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		results := make([][]any, end-start)
		errs := make([]error, end-start)

		// With continue-on-fail every item of the batch settles. Otherwise the first
		// failure cancels the items still running and is returned.
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i-start], errs[i-start] = c.processItem(gctx, ec, i)
				if errs[i-start] != nil && !ec.ContinueOnFail() {
					return errs[i-start]
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for j, err := range errs {
			itemIndex := start + j
			if err != nil {
				if ec.ContinueOnFail() {
					out = append(out, errorItem(err, itemIndex))
					continue
				}
				return nil, err
			}
			for _, r := range results[j] {
				out = append(out, host.Item{JSON: formatResponse(r), PairedItem: &host.PairedItem{Item: itemIndex}})
			}
		}

		if end < n && delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return out, nil
}

func (c *ChainLlm) processItem(ctx context.Context, ec host.ExecContext, itemIndex int) ([]any, error) {
	node := ec.Node().Name
	llm, ok, err := link.First[model.BaseChatModel](ctx, ec, ports.AILanguageModel, "chat model")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errx.MissingLink(node, string(ports.AILanguageModel))
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

	query, err := promptText(ec, itemIndex)
	if err != nil {
		return nil, err
	}
	messages, err := messageTemplates(ec, itemIndex)
	if err != nil {
		return nil, err
	}

	var handlers []einocb.Handler
	if c.Callbacks != nil {
		handlers, err = c.Callbacks(ctx, ec, itemIndex)
		if err != nil {
			return nil, err
		}
	}

	out, err := executeChain(ctx, llm, parser, messages, query, handlers)
	if err != nil {
		return nil, err
	}
	if list, ok := out.([]any); ok && parser != nil {
		return list, nil
	}
	return []any{out}, nil
}

// executeChain runs ChatTemplate -> ChatModel -> parse as one eino chain.
func executeChain(ctx context.Context, llm model.BaseChatModel, parser OutputParser,
	messages []*schema.Message, query string, handlers []einocb.Handler) (any, error) {
	if parser != nil {
		if instructions := parser.FormatInstructions(); instructions != "" {
			query = query + "\n" + instructions
		}
	}
	messages = append(messages, schema.UserMessage(query))

	tpl := prompt.FromMessages(schema.FString, schema.MessagesPlaceholder("messages", false))
	chain := compose.NewChain[map[string]any, any]()
	chain.
		AppendChatTemplate(tpl, compose.WithNodeName("prompt")).
		AppendChatModel(llm, compose.WithNodeName("model")).
		AppendLambda(compose.InvokableLambda(func(ctx context.Context, m *schema.Message) (any, error) {
			if m == nil {
				return "", nil
			}
			if parser != nil {
				return parser.Parse(ctx, m.Content)
			}
			return m.Content, nil
		}), compose.WithNodeName("output"))

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile chain: %w", err)
	}
	out, err := runnable.Invoke(ctx, map[string]any{"messages": messages},
		compose.WithCallbacks(handlers...))
	if err != nil {
		return nil, fmt.Errorf("chain run failed: %w", err)
	}
	return out, nil
}
