package logx

import (
	"bytes"
	"testing"

	"github.com/langfuse-nodes/server/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestInitProductionWritesJSONAtInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(LoggerOpts{Environment: core.Production, Output: &buf})
	t.Cleanup(func() { Init() })

	Debug().Msg("hidden")
	Info().Str("node", "Trace").Msg("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"node":"Trace"`)
	assert.Contains(t, out, `"message":"visible"`)
}

func TestInitLevelOverride(t *testing.T) {
	var buf bytes.Buffer
	Init(LoggerOpts{Environment: core.Production, Level: "warn", Output: &buf})
	t.Cleanup(func() { Init() })

	Info().Msg("skipped")
	Warn().Msg("kept")

	assert.NotContains(t, buf.String(), "skipped")
	assert.Contains(t, buf.String(), "kept")
}

func TestNodeLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(LoggerOpts{Environment: core.Production, Output: &buf})
	t.Cleanup(func() { Init() })

	l := Node("Get Prompt")
	l.Info().Msg("fetched")

	assert.Contains(t, buf.String(), `"node":"Get Prompt"`)
}
