package langchain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/langfuse-nodes/server/internal/host"
	ports "github.com/langfuse-nodes/server/internal/schema"
)

const OutputParserJSONType = Package + ".outputParserJson"

const (
	maxParseLen   = 128 * 1024
	maxErrSnippet = 200
)

const jsonFormatInstructions = "Respond only with a single valid JSON value. Do not wrap it in prose."

// OutputParserJSON supplies a parser that extracts JSON from model output.
type OutputParserJSON struct{}

var _ host.Supplier = OutputParserJSON{}

func (OutputParserJSON) Description() host.Description {
	return host.Description{
		DisplayName: "JSON Output Parser",
		Name:        OutputParserJSONType,
		Group:       []string{"transform"},
		Version:     []float64{1},
		Description: "Parse the model output as JSON",
		Defaults:    host.Defaults{Name: "JSON Output Parser"},
		Inputs:      ports.Ports(),
		Outputs:     ports.Ports(ports.Port{Type: ports.AIOutputParser}),
		OutputNames: []string{"Output Parser"},
		Properties: []host.Parameter{
			{DisplayName: "Format Instructions", Name: "instructions", Type: "string", Default: jsonFormatInstructions},
		},
	}
}

func (OutputParserJSON) SupplyData(_ context.Context, ec host.ExecContext, itemIndex int) (host.Response, error) {
	instructions, err := host.GetString(ec, "instructions", itemIndex, jsonFormatInstructions)
	if err != nil {
		return host.Response{}, err
	}
	return host.Response{Value: &JSONParser{Instructions: instructions}}, nil
}

// JSONParser implements OutputParser for JSON answers.
type JSONParser struct {
	Instructions string
}

var _ OutputParser = (*JSONParser)(nil)

func (p *JSONParser) FormatInstructions() string {
	return p.Instructions
}

// Parse accepts bare JSON, a fenced ```json block, or the first object or
// array embedded in surrounding text.
func (p *JSONParser) Parse(_ context.Context, text string) (any, error) {
	if len(text) > maxParseLen {
		return nil, fmt.Errorf("output too large to parse (%d bytes)", len(text))
	}
	text = strings.TrimSpace(text)
	for _, candidate := range []string{text, fenced(text), embedded(text)} {
		if candidate == "" {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(candidate), &v); err == nil {
			return v, nil
		}
	}
	return nil, fmt.Errorf("failed to parse JSON from model output: %q", snippet(text))
}

func fenced(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// skip the language tag
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

func embedded(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		return ""
	}
	return text[start : end+1]
}

func snippet(s string) string {
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
