package langchain

import (
	"context"
	"fmt"

	"github.com/langfuse-nodes/server/internal/conversation"
	errx "github.com/langfuse-nodes/server/internal/core/error"
	"github.com/langfuse-nodes/server/internal/host"
	ports "github.com/langfuse-nodes/server/internal/schema"
)

const MemoryBufferWindowType = Package + ".memoryBufferWindow"

// MemoryBufferWindow supplies the last turns of a chat session as agent memory.
type MemoryBufferWindow struct {
	Repo conversation.Repository
}

var _ host.Supplier = (*MemoryBufferWindow)(nil)

func NewMemoryBufferWindow(repo conversation.Repository) *MemoryBufferWindow {
	return &MemoryBufferWindow{Repo: repo}
}

func (m *MemoryBufferWindow) Description() host.Description {
	return host.Description{
		DisplayName: "Window Buffer Memory",
		Name:        MemoryBufferWindowType,
		Group:       []string{"transform"},
		Version:     []float64{1},
		Description: "Stores the chat history of a session",
		Defaults:    host.Defaults{Name: "Window Buffer Memory"},
		Inputs:      ports.Ports(),
		Outputs:     ports.Ports(ports.Port{Type: ports.AIMemory}),
		OutputNames: []string{"Memory"},
		Properties: []host.Parameter{
			{DisplayName: "Session ID", Name: "sessionIdType", Type: "options", Default: "fromInput",
				Choices: []host.Option{
					{Name: "Connected Chat Trigger Node", Value: "fromInput", Description: "Looks for an input field called 'sessionId'"},
					{Name: "Define below", Value: "customKey"},
				}},
			{DisplayName: "Key", Name: "sessionKey", Type: "string", Default: ""},
			{DisplayName: "Context Window Length", Name: "contextWindowLength", Type: "number", Default: 5,
				Description: "The number of previous turns the agent sees"},
		},
	}
}

func (m *MemoryBufferWindow) SupplyData(ctx context.Context, ec host.ExecContext, itemIndex int) (host.Response, error) {
	node := ec.Node().Name
	if m.Repo == nil {
		return host.Response{}, fmt.Errorf("memory repository is not configured")
	}
	idType, err := host.GetString(ec, "sessionIdType", itemIndex, "fromInput")
	if err != nil {
		return host.Response{}, err
	}
	var sessionID string
	switch idType {
	case "fromInput":
		items := ec.InputData()
		if itemIndex < len(items) {
			sessionID, _ = items[itemIndex].JSON["sessionId"].(string)
		}
		if sessionID == "" {
			return host.Response{}, errx.NodeOperation(node, "no session ID found: expected a 'sessionId' field in the input item")
		}
	case "customKey":
		sessionID, err = host.GetString(ec, "sessionKey", itemIndex, "")
		if err != nil {
			return host.Response{}, err
		}
		if sessionID == "" {
			return host.Response{}, errx.NodeOperation(node, "the 'sessionKey' parameter is empty")
		}
	default:
		return host.Response{}, errx.NodeOperation(node, "unknown sessionIdType %q", idType)
	}

	window, err := host.GetNumber(ec, "contextWindowLength", itemIndex, 5)
	if err != nil {
		return host.Response{}, err
	}
	return host.Response{Value: conversation.NewWindow(m.Repo, sessionID, int(window))}, nil
}
