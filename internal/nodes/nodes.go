// Package nodes implements the Langfuse node types: trace and observation suppliers,
// their update nodes, callback handlers, the traced model wrapper, prompt fetching and
// the chain and agent variants that accept callback handlers.
package nodes

import (
	"context"
	"time"

	"github.com/langfuse-nodes/server/internal/conversation"
	"github.com/langfuse-nodes/server/internal/credentials"
	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/langfuse"
	"github.com/langfuse-nodes/server/internal/link"
	"github.com/langfuse-nodes/server/internal/observers"
)

// Package prefixes the identifiers of the node types in this package.
const Package = "langfuse"

const (
	TraceType                 = Package + ".trace"
	ObservationType           = Package + ".observation"
	TraceUpdateType           = Package + ".traceUpdate"
	ObservationUpdateType     = Package + ".observationUpdate"
	CallbackHandlerType       = Package + ".callbackHandler"
	ModelWithLangfuseType     = Package + ".modelWithLangfuse"
	GetPromptType             = Package + ".getPrompt"
	LogCurrentTimeType        = Package + ".logCurrentTime"
	ChainLlmWithCallbacksType = Package + ".chainLlmWithCallbacks"
	AgentWithCallbacksType    = Package + ".agentWithCallbacks"
)

// Deps are the collaborators shared by all node types.
type Deps struct {
	Pool *langfuse.Pool
	// Packages are the package names whose trace, observation and model nodes are
	// accepted on connections. Defaults to Package.
	Packages []string
	// Memory backs the window buffer memory node. Nil disables it.
	Memory  conversation.Repository
	Pricing map[string]observers.Pricing
	Now     func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Pool == nil {
		d.Pool = langfuse.NewPool(langfuse.Config{})
	}
	if len(d.Packages) == 0 {
		d.Packages = []string{Package}
	}
	if d.Pricing == nil {
		d.Pricing = observers.DefaultPricing
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Resolver builds the link resolver for the configured packages.
func (d Deps) Resolver() *link.Resolver {
	return link.NewResolver(link.DefaultTable(d.withDefaults().Packages...))
}

// client returns the shared Langfuse client for the node's credentials.
func client(ctx context.Context, pool *langfuse.Pool, ec host.ExecContext) (*langfuse.Client, error) {
	keys, err := credentials.LangfuseKeys(ctx, ec, ec.Node().Name)
	if err != nil {
		return nil, err
	}
	return pool.Client(keys.Host, keys.PublicKey, keys.SecretKey)
}

// deterministicID identifies the object a node creates within one execution.
func deterministicID(ec host.ExecContext) string {
	md := ec.Metadata()
	return langfuse.DeterministicID(langfuse.IDPrefix, md.Workflow.ID, md.ExecutionID, ec.Node().Name)
}

var langfuseCredential = []host.CredentialRef{{Name: credentials.LangfuseAPI, Required: true}}
