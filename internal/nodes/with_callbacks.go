package nodes

import (
	"context"
	"fmt"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"

	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/langchain"
	"github.com/langfuse-nodes/server/internal/link"
	ports "github.com/langfuse-nodes/server/internal/schema"
)

// chainPatches adds an optional ai_chain "Callbacks" input to the chain's inputs.
var chainPatches = []ports.PatchRule{
	ports.Rule(`let result = inputs;`,
		`let result = concat(inputs, [{type: "ai_chain", displayName: "Callbacks", required: false}]);`),
}

// agentPatches names the ai_chain input, admits the traced model on the model port
// and adds the ai_chain input after the agent's special inputs.
func agentPatches(packages []string) []ports.PatchRule {
	models := make([]string, len(packages))
	for i, p := range packages {
		models[i] = fmt.Sprintf("%q", p+".modelWithLangfuse")
	}
	return []ports.PatchRule{
		ports.Rule(`displayNames ?= ?\{`, `displayNames = {ai_chain: "Callback", `),
		ports.Rule(`["']langchain\.lmChatAnthropic["'],`,
			`"langchain.lmChatAnthropic", `+strings.Join(models, ", ")+`,`),
		ports.Rule(`concat\(\["main"\], map\(specialInputs,`,
			`concat(["main"], map(concat(specialInputs, [{type: "ai_chain"}]),`),
	}
}

// callbackHook collects the handlers connected on the callback role.
func callbackHook(resolver *link.Resolver) langchain.CallbackHook {
	ct := resolver.Table()[link.RoleCallback].Connection
	return func(ctx context.Context, ec host.ExecContext, _ int) ([]einocb.Handler, error) {
		return link.CollectAll[einocb.Handler](ctx, ec, ct, "callback handler")
	}
}

// NewChainLlmWithCallbacks is the basic LLM chain with an ai_chain input for
// callback handlers. It fails when the chain's inputs no longer have the expected shape.
func NewChainLlmWithCallbacks(deps Deps) (*langchain.ChainLlm, error) {
	base := langchain.NewChainLlm()
	inputs, err := ports.PatchPorts(ChainLlmWithCallbacksType, base.Desc.Inputs, chainPatches)
	if err != nil {
		return nil, err
	}
	desc := base.Desc
	desc.Name = ChainLlmWithCallbacksType
	desc.DisplayName = base.Desc.DisplayName + " with Callbacks"
	desc.Defaults = host.Defaults{Name: desc.DisplayName}
	desc.Inputs = inputs
	return &langchain.ChainLlm{Desc: desc, Callbacks: callbackHook(deps.Resolver())}, nil
}

// NewAgentWithCallbacks is the agent with an ai_chain input for callback handlers
// whose model port also accepts traced models.
func NewAgentWithCallbacks(deps Deps) (*langchain.Agent, error) {
	deps = deps.withDefaults()
	base := langchain.NewAgent()
	inputs, err := ports.PatchPorts(AgentWithCallbacksType, base.Desc.Inputs, agentPatches(deps.Packages))
	if err != nil {
		return nil, err
	}
	desc := base.Desc
	desc.Name = AgentWithCallbacksType
	desc.DisplayName = base.Desc.DisplayName + " with Callbacks"
	desc.Defaults = host.Defaults{Name: desc.DisplayName}
	desc.Inputs = inputs
	return &langchain.Agent{Desc: desc, Callbacks: callbackHook(deps.Resolver())}, nil
}
