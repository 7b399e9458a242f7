// Package langchain provides the LLM chain, agent and sub-node types that Langfuse
// nodes attach to. Chains and agents run on eino.
package langchain

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"

	errx "github.com/langfuse-nodes/server/internal/core/error"
	"github.com/langfuse-nodes/server/internal/host"
)

// Package is the type identifier prefix of the nodes in this package.
const Package = "langchain"

// CallbackHook returns extra callback handlers for one item run.
type CallbackHook func(ctx context.Context, ec host.ExecContext, itemIndex int) ([]einocb.Handler, error)

// OutputParser turns model text into structured output.
type OutputParser interface {
	FormatInstructions() string
	Parse(ctx context.Context, text string) (any, error)
}

// Memory is conversation memory an agent reads before a run and writes after it.
type Memory interface {
	Load(ctx context.Context) ([]*schema.Message, error)
	SaveTurn(ctx context.Context, input, output string) error
}

var promptProperties = []host.Parameter{
	{
		DisplayName: "Source for Prompt (User Message)",
		Name:        "promptType",
		Type:        "options",
		Default:     "auto",
		Choices: []host.Option{
			{Name: "Connected Chat Trigger Node", Value: "auto", Description: "Looks for an input field called 'chatInput'"},
			{Name: "Define below", Value: "define"},
		},
	},
	{
		DisplayName: "Prompt (User Message)",
		Name:        "text",
		Type:        "string",
		Default:     "",
		Placeholder: "e.g. Hello, how can you help me?",
	},
	{
		DisplayName: "Require Specific Output Format",
		Name:        "hasOutputParser",
		Type:        "boolean",
		Default:     false,
	},
}

// promptText reads the user message of an item.
func promptText(ec host.ExecContext, itemIndex int) (string, error) {
	node := ec.Node().Name
	promptType, err := host.GetString(ec, "promptType", itemIndex, "auto")
	if err != nil {
		return "", err
	}
	var text string
	switch promptType {
	case "auto":
		items := ec.InputData()
		if itemIndex < len(items) {
			if v, ok := items[itemIndex].JSON["chatInput"].(string); ok {
				text = v
			}
		}
		if text == "" {
			return "", errx.NodeOperation(node, "no prompt specified: expected a 'chatInput' field in the input item")
		}
	case "define":
		text, err = host.GetString(ec, "text", itemIndex, "")
		if err != nil {
			return "", err
		}
		if text == "" {
			return "", errx.NodeOperation(node, "the 'text' parameter is empty")
		}
	default:
		return "", errx.NodeOperation(node, "unknown promptType %q", promptType)
	}
	return text, nil
}

// messageTemplates reads the messages.messageValues collection.
func messageTemplates(ec host.ExecContext, itemIndex int) ([]*schema.Message, error) {
	values, err := host.GetList(ec, "messages.messageValues", itemIndex)
	if err != nil {
		return nil, err
	}
	msgs := make([]*schema.Message, 0, len(values))
	for i, v := range values {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, errx.TypeMismatch(ec.Node().Name, "messages.messageValues", "a list of objects", errx.TypeName(v))
		}
		text, _ := m["message"].(string)
		switch m["type"] {
		case "SystemMessagePromptTemplate", nil:
			msgs = append(msgs, schema.SystemMessage(text))
		case "AIMessagePromptTemplate":
			msgs = append(msgs, schema.AssistantMessage(text, nil))
		case "HumanMessagePromptTemplate":
			msgs = append(msgs, schema.UserMessage(text))
		default:
			return nil, errx.NodeOperation(ec.Node().Name, "message %d has unknown type %v", i, m["type"])
		}
	}
	return msgs, nil
}

// formatResponse shapes one chain result as item JSON.
func formatResponse(v any) map[string]any {
	switch t := v.(type) {
	case string:
		return map[string]any{"text": strings.TrimSpace(t)}
	case []any:
		return map[string]any{"data": t}
	case map[string]any:
		return t
	}
	return map[string]any{"response": map[string]any{"text": v}}
}

func errorItem(err error, itemIndex int) host.Item {
	return host.Item{
		JSON:       map[string]any{"error": err.Error()},
		PairedItem: &host.PairedItem{Item: itemIndex},
	}
}
