package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluatorStaticPassthrough(t *testing.T) {
	ev := NewEvaluator()
	ports, err := ev.Ports(Ports(Port{Type: Main}, Port{Type: AIChain, Required: true}), nil)
	require.NoError(t, err)
	assert.Len(t, ports, 2)
	assert.Equal(t, 0, ev.CacheSize())
}

func TestEvaluatorConditionalOutputs(t *testing.T) {
	ev := NewEvaluator()
	spec := Expr(`parameter.enableOutputs == true ? ["main"] : []`)

	ports, err := ev.Ports(spec, map[string]any{"enableOutputs": true})
	require.NoError(t, err)
	assert.Equal(t, []Port{{Type: Main}}, ports)

	ports, err = ev.Ports(spec, nil)
	require.NoError(t, err)
	assert.Empty(t, ports)
	assert.Equal(t, 1, ev.CacheSize())
}

func TestEvaluatorMapPorts(t *testing.T) {
	ev := NewEvaluator()
	spec := Expr(`
let names = {ai_languageModel: "Model"};
let special = [{type: "ai_languageModel", required: true, maxConnections: 1, filter: {nodes: ["a.b"]}}];
concat(["main"], map(special, {withDisplayName(#, names)}))`)

	ports, err := ev.Ports(spec, map[string]any{})
	require.NoError(t, err)
	require.Len(t, ports, 2)
	assert.Equal(t, Main, ports[0].Type)
	assert.Equal(t, Port{
		Type:           AILanguageModel,
		DisplayName:    "Model",
		Required:       true,
		MaxConnections: 1,
		Filter:         &PortFilter{Nodes: []string{"a.b"}},
	}, ports[1])
}

func TestEvaluatorRejectsNonList(t *testing.T) {
	_, err := NewEvaluator().Ports(Expr(`"main"`), nil)
	assert.ErrorContains(t, err, "must return a list")

	_, err = NewEvaluator().Ports(Expr(`[1]`), nil)
	assert.ErrorContains(t, err, "port 0")
}

func TestEvaluatorCompileError(t *testing.T) {
	_, err := NewEvaluator().Eval(`[`, nil)
	assert.ErrorContains(t, err, "compile expression")
}

func TestPortFilterAllows(t *testing.T) {
	var none *PortFilter
	assert.True(t, none.Allows("x"))
	f := &PortFilter{Nodes: []string{"langfuse.trace"}}
	assert.True(t, f.Allows("langfuse.trace"))
	assert.False(t, f.Allows("langfuse.observation"))
}
