package nodes

import (
	"fmt"

	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/langchain"
)

// All constructs every node type: the langchain types the Langfuse nodes attach to
// and the Langfuse nodes themselves. A schema patch failure aborts construction.
func All(deps Deps) ([]host.NodeType, error) {
	deps = deps.withDefaults()

	chain, err := NewChainLlmWithCallbacks(deps)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", ChainLlmWithCallbacksType, err)
	}
	agent, err := NewAgentWithCallbacks(deps)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", AgentWithCallbacksType, err)
	}

	types := []host.NodeType{
		langchain.NewChainLlm(),
		langchain.NewAgent(),
		langchain.LmChatGemini{},
		&langchain.ToolCurrentTime{Now: deps.Now},
		langchain.ToolCalculator{},
		langchain.OutputParserJSON{},

		NewTrace(deps),
		NewObservation(deps),
		NewTraceUpdate(deps),
		NewObservationUpdate(deps),
		NewCallbackHandler(deps),
		NewModelWithLangfuse(deps),
		NewGetPrompt(deps),
		NewLogCurrentTime(deps),
		chain,
		agent,
	}
	if deps.Memory != nil {
		types = append(types, langchain.NewMemoryBufferWindow(deps.Memory))
	}
	return types, nil
}

// Register adds every node type to reg under its description name.
func Register(reg *host.Registry, deps Deps) error {
	types, err := All(deps)
	if err != nil {
		return err
	}
	for _, nt := range types {
		if err := reg.Register(nt.Description().Name, nt); err != nil {
			return err
		}
	}
	return nil
}
