package langfuse

import "time"

// EventType is the ingestion event discriminator.
type EventType string

const (
	EventTraceCreate      EventType = "trace-create"
	EventSpanCreate       EventType = "span-create"
	EventSpanUpdate       EventType = "span-update"
	EventGenerationCreate EventType = "generation-create"
	EventGenerationUpdate EventType = "generation-update"
)

// Event is one entry of an ingestion batch.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Body      map[string]any `json:"body"`
}

type ingestionRequest struct {
	Batch    []Event        `json:"batch"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ingestionStatus struct {
	ID      string `json:"id"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Error   any    `json:"error,omitempty"`
}

type ingestionResponse struct {
	Successes []ingestionStatus `json:"successes"`
	Errors    []ingestionStatus `json:"errors"`
}

// Usage is token usage attached to a generation.
type Usage struct {
	Input      int     `json:"input,omitempty"`
	Output     int     `json:"output,omitempty"`
	Total      int     `json:"total,omitempty"`
	Unit       string  `json:"unit,omitempty"`
	InputCost  float64 `json:"inputCost,omitempty"`
	OutputCost float64 `json:"outputCost,omitempty"`
	TotalCost  float64 `json:"totalCost,omitempty"`
}

// Map renders the usage for an event body.
func (u Usage) Map() map[string]any {
	m := map[string]any{
		"input":  u.Input,
		"output": u.Output,
		"total":  u.Total,
		"unit":   "TOKENS",
	}
	if u.Unit != "" {
		m["unit"] = u.Unit
	}
	if u.TotalCost > 0 {
		m["inputCost"] = u.InputCost
		m["outputCost"] = u.OutputCost
		m["totalCost"] = u.TotalCost
	}
	return m
}
