package langfuse

import (
	"maps"
	"time"
)

// ObservationType distinguishes spans from generations.
type ObservationType string

const (
	ObservationSpan       ObservationType = "span"
	ObservationGeneration ObservationType = "generation"
)

// Parent is anything observations can be nested under.
type Parent interface {
	TraceID() string
	Span(body map[string]any) *Span
	Generation(body map[string]any) *Generation
	Update(body map[string]any)
}

var (
	_ Parent = (*Trace)(nil)
	_ Parent = (*Span)(nil)
	_ Parent = (*Generation)(nil)
)

func withID(body map[string]any) (map[string]any, string) {
	out := make(map[string]any, len(body)+2)
	maps.Copy(out, body)
	id, _ := out["id"].(string)
	if id == "" {
		id = newID()
		out["id"] = id
	}
	return out, id
}

// Trace is a handle on a trace. Updates are sent as trace-create with the same id,
// which Langfuse upserts.
type Trace struct {
	client *Client
	ID     string
}

// Trace creates a trace. A missing id is generated.
func (c *Client) Trace(body map[string]any) *Trace {
	b, id := withID(body)
	if _, ok := b["timestamp"]; !ok {
		b["timestamp"] = c.now().UTC()
	}
	c.enqueue(EventTraceCreate, b)
	return &Trace{client: c, ID: id}
}

func (t *Trace) TraceID() string { return t.ID }

// Update upserts fields on the trace.
func (t *Trace) Update(body map[string]any) {
	b := maps.Clone(body)
	if b == nil {
		b = map[string]any{}
	}
	b["id"] = t.ID
	t.client.enqueue(EventTraceCreate, b)
}

func (t *Trace) Span(body map[string]any) *Span {
	return &Span{t.client.observe(ObservationSpan, t.ID, "", body)}
}

func (t *Trace) Generation(body map[string]any) *Generation {
	return &Generation{t.client.observe(ObservationGeneration, t.ID, "", body)}
}

type observation struct {
	client  *Client
	kind    ObservationType
	ID      string
	traceID string
}

func (c *Client) observe(kind ObservationType, traceID, parentID string, body map[string]any) observation {
	b, id := withID(body)
	b["traceId"] = traceID
	if parentID != "" {
		b["parentObservationId"] = parentID
	}
	if _, ok := b["startTime"]; !ok {
		b["startTime"] = c.now().UTC()
	}
	if kind == ObservationGeneration {
		c.enqueue(EventGenerationCreate, b)
	} else {
		c.enqueue(EventSpanCreate, b)
	}
	return observation{client: c, kind: kind, ID: id, traceID: traceID}
}

func (o *observation) TraceID() string { return o.traceID }

// Type reports whether this is a span or a generation.
func (o *observation) Type() ObservationType { return o.kind }

// Update sends an update event for the observation.
func (o *observation) Update(body map[string]any) {
	b := maps.Clone(body)
	if b == nil {
		b = map[string]any{}
	}
	b["id"] = o.ID
	b["traceId"] = o.traceID
	if o.kind == ObservationGeneration {
		o.client.enqueue(EventGenerationUpdate, b)
	} else {
		o.client.enqueue(EventSpanUpdate, b)
	}
}

// End updates the observation and sets its end time when not given.
func (o *observation) End(body map[string]any) {
	b := maps.Clone(body)
	if b == nil {
		b = map[string]any{}
	}
	if _, ok := b["endTime"]; !ok {
		b["endTime"] = o.client.now().UTC()
	}
	o.Update(b)
}

func (o *observation) Span(body map[string]any) *Span {
	return &Span{o.client.observe(ObservationSpan, o.traceID, o.ID, body)}
}

func (o *observation) Generation(body map[string]any) *Generation {
	return &Generation{o.client.observe(ObservationGeneration, o.traceID, o.ID, body)}
}

// Span is a duration of work inside a trace.
type Span struct{ observation }

// Generation is a span recording a model call.
type Generation struct{ observation }

// SetCompletionStart marks the arrival of the first streamed token.
func (g *Generation) SetCompletionStart(t time.Time) {
	g.Update(map[string]any{"completionStartTime": t.UTC()})
}
