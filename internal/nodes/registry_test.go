package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langfuse-nodes/server/internal/conversation"
	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/langchain"
)

func TestRegisterAll(t *testing.T) {
	reg := host.NewRegistry()
	require.NoError(t, Register(reg, Deps{Memory: conversation.NewMemoryRepository()}))

	assert.Equal(t, []string{
		langchain.AgentType,
		langchain.ChainLlmType,
		langchain.LmChatGeminiType,
		langchain.MemoryBufferWindowType,
		langchain.OutputParserJSONType,
		langchain.ToolCalculatorType,
		langchain.ToolCurrentTimeType,
		AgentWithCallbacksType,
		CallbackHandlerType,
		ChainLlmWithCallbacksType,
		GetPromptType,
		LogCurrentTimeType,
		ModelWithLangfuseType,
		ObservationType,
		ObservationUpdateType,
		TraceType,
		TraceUpdateType,
	}, reg.IDs())

	nt, ok := reg.Get(TraceType)
	require.True(t, ok)
	_, supplies := nt.(host.Supplier)
	assert.True(t, supplies)

	err := Register(reg, Deps{})
	assert.ErrorContains(t, err, "already registered")
}

func TestAllWithoutMemory(t *testing.T) {
	types, err := All(Deps{})
	require.NoError(t, err)
	for _, nt := range types {
		assert.NotEqual(t, langchain.MemoryBufferWindowType, nt.Description().Name)
		assert.NotEmpty(t, nt.Description().Version)
	}
	assert.Len(t, types, 16)
}
