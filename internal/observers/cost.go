package observers

import (
	"github.com/cloudwego/eino/components/model"

	"github.com/langfuse-nodes/server/internal/langfuse"
)

// Pricing is USD cost per 1M tokens.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// DefaultPricing covers the Gemini text models the chat model node offers.
var DefaultPricing = map[string]Pricing{
	"gemini-2.5-pro":        {InputPerM: 1.25, OutputPerM: 10.00},
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
	"gemini-2.0-flash":      {InputPerM: 0.10, OutputPerM: 0.40},
}

// usage converts token usage, pricing it when the model has a known price.
func usage(u *model.TokenUsage, modelName string, prices map[string]Pricing) langfuse.Usage {
	out := langfuse.Usage{
		Input:  u.PromptTokens,
		Output: u.CompletionTokens,
		Total:  u.TotalTokens,
	}
	if out.Total == 0 {
		out.Total = out.Input + out.Output
	}
	p, ok := prices[modelName]
	if !ok {
		return out
	}
	out.InputCost = p.InputPerM * float64(u.PromptTokens) / 1_000_000.0
	out.OutputCost = p.OutputPerM * float64(u.CompletionTokens) / 1_000_000.0
	out.TotalCost = out.InputCost + out.OutputCost
	return out
}
