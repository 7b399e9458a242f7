package observers

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/langfuse-nodes/server/internal/langfuse"
)

// PromptLink attaches a managed prompt to the generations of a run.
type PromptLink struct {
	Name    string
	Version int
}

// LangfuseOption configures a LangfuseHandler.
type LangfuseOption func(*LangfuseHandler)

// WithUpdateRoot copies the input and output of top level runs onto the root.
func WithUpdateRoot(update bool) LangfuseOption {
	return func(h *LangfuseHandler) { h.updateRoot = update }
}

// WithPrompt links every generation to the given prompt.
func WithPrompt(p *PromptLink) LangfuseOption {
	return func(h *LangfuseHandler) { h.prompt = p }
}

// WithPricing replaces the model price table used for cost.
func WithPricing(prices map[string]Pricing) LangfuseOption {
	return func(h *LangfuseHandler) { h.prices = prices }
}

func WithLogger(l zerolog.Logger) LangfuseOption {
	return func(h *LangfuseHandler) { h.log = l }
}

// LangfuseHandler records eino runs under a root trace or observation: chat model runs
// become generations, everything else becomes spans. Nesting follows the context.
type LangfuseHandler struct {
	root       langfuse.Parent
	updateRoot bool
	prompt     *PromptLink
	prices     map[string]Pricing
	log        zerolog.Logger
	now        func() time.Time

	streams sync.WaitGroup
}

var _ einocb.Handler = (*LangfuseHandler)(nil)

func NewLangfuseHandler(root langfuse.Parent, opts ...LangfuseOption) *LangfuseHandler {
	h := &LangfuseHandler{
		root:   root,
		prices: DefaultPricing,
		log:    log.Logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Root returns the trace or observation runs are recorded under.
func (h *LangfuseHandler) Root() langfuse.Parent {
	return h.root
}

// Wait blocks until every streamed output seen so far has been recorded.
func (h *LangfuseHandler) Wait() {
	h.streams.Wait()
}

type runKey struct{ h *LangfuseHandler }

type run struct {
	span       *langfuse.Span
	generation *langfuse.Generation
	model      string
	top        bool
}

func (r *run) parent() langfuse.Parent {
	if r.generation != nil {
		return r.generation
	}
	return r.span
}

func (r *run) end(body map[string]any) {
	if r.generation != nil {
		r.generation.End(body)
		return
	}
	r.span.End(body)
}

func (h *LangfuseHandler) current(ctx context.Context) *run {
	r, _ := ctx.Value(runKey{h}).(*run)
	return r
}

func runName(info *einocb.RunInfo) string {
	switch {
	case info == nil:
		return "run"
	case info.Name != "":
		return info.Name
	case info.Type != "":
		return info.Type
	case info.Component != "":
		return string(info.Component)
	}
	return "run"
}

func isModel(info *einocb.RunInfo) bool {
	return info != nil && info.Component == components.ComponentOfChatModel
}

func (h *LangfuseHandler) OnStart(ctx context.Context, info *einocb.RunInfo, input einocb.CallbackInput) context.Context {
	parentRun := h.current(ctx)
	var parent langfuse.Parent = h.root
	if parentRun != nil {
		parent = parentRun.parent()
	}
	r := &run{top: parentRun == nil}
	start := h.now().UTC()

	if isModel(info) {
		in := model.ConvCallbackInput(input)
		body := map[string]any{"name": runName(info), "startTime": start}
		var recorded any
		if in != nil {
			recorded = messages(in.Messages)
			body["input"] = recorded
			if in.Config != nil {
				r.model = in.Config.Model
				body["model"] = in.Config.Model
				body["modelParameters"] = modelParameters(in.Config)
			}
			if len(in.Tools) > 0 {
				body["metadata"] = map[string]any{"tools": toolNames(in.Tools)}
			}
		}
		if h.prompt != nil {
			body["promptName"] = h.prompt.Name
			body["promptVersion"] = h.prompt.Version
		}
		r.generation = parent.Generation(body)
		h.rootInput(r, recorded)
	} else {
		recorded := jsonable(input)
		body := map[string]any{"name": runName(info), "startTime": start, "input": recorded}
		if info != nil {
			body["metadata"] = map[string]any{"component": string(info.Component), "type": info.Type}
		}
		r.span = parent.Span(body)
		h.rootInput(r, recorded)
	}
	h.log.Debug().Str("run", runName(info)).Bool("generation", r.generation != nil).Msg("langfuse observation started")
	return context.WithValue(ctx, runKey{h}, r)
}

func (h *LangfuseHandler) rootInput(r *run, input any) {
	if r.top && h.updateRoot && input != nil {
		h.root.Update(map[string]any{"input": input})
	}
}

func (h *LangfuseHandler) rootOutput(r *run, output any) {
	if r.top && h.updateRoot && output != nil {
		h.root.Update(map[string]any{"output": output})
	}
}

func (h *LangfuseHandler) OnEnd(ctx context.Context, info *einocb.RunInfo, output einocb.CallbackOutput) context.Context {
	r := h.current(ctx)
	if r == nil {
		return ctx
	}
	if r.generation != nil {
		out := model.ConvCallbackOutput(output)
		if out == nil {
			r.end(nil)
			return ctx
		}
		h.endGeneration(r, out.Message, out.TokenUsage, out.Config)
		return ctx
	}
	recorded := jsonable(output)
	r.end(map[string]any{"output": recorded})
	h.rootOutput(r, recorded)
	return ctx
}

func (h *LangfuseHandler) endGeneration(r *run, msg *schema.Message, u *model.TokenUsage, cfg *model.Config) {
	body := map[string]any{}
	var recorded any
	if msg != nil {
		recorded = message(msg)
		body["output"] = recorded
	}
	if cfg != nil && cfg.Model != "" && r.model == "" {
		r.model = cfg.Model
		body["model"] = cfg.Model
	}
	if u != nil {
		body["usage"] = usage(u, r.model, h.prices).Map()
	}
	r.end(body)
	h.rootOutput(r, recorded)
}

func (h *LangfuseHandler) OnError(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
	r := h.current(ctx)
	if r == nil {
		return ctx
	}
	r.end(map[string]any{"level": "ERROR", "statusMessage": err.Error()})
	if r.top && h.updateRoot {
		h.root.Update(map[string]any{"output": map[string]any{"error": err.Error()}})
	}
	return ctx
}

// OnStartWithStreamInput records the start without the streamed input.
func (h *LangfuseHandler) OnStartWithStreamInput(ctx context.Context, info *einocb.RunInfo,
	input *schema.StreamReader[einocb.CallbackInput]) context.Context {
	input.Close()
	return h.OnStart(ctx, info, nil)
}

// OnEndWithStreamOutput drains the stream in the background and records the concatenated output.
func (h *LangfuseHandler) OnEndWithStreamOutput(ctx context.Context, info *einocb.RunInfo,
	output *schema.StreamReader[einocb.CallbackOutput]) context.Context {
	r := h.current(ctx)
	if r == nil {
		output.Close()
		return ctx
	}
	h.streams.Add(1)
	go func() {
		defer h.streams.Done()
		defer output.Close()

		var (
			chunks []*schema.Message
			others []any
			tokens *model.TokenUsage
			cfg    *model.Config
			first  = true
		)
		for {
			chunk, err := output.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				h.log.Error().Err(err).Str("run", runName(info)).Msg("langfuse stream output failed")
				r.end(map[string]any{"level": "ERROR", "statusMessage": err.Error()})
				return
			}
			if r.generation != nil {
				out := model.ConvCallbackOutput(chunk)
				if out == nil {
					continue
				}
				if first {
					r.generation.SetCompletionStart(h.now())
					first = false
				}
				if out.Message != nil {
					chunks = append(chunks, out.Message)
				}
				if out.TokenUsage != nil {
					tokens = out.TokenUsage
				}
				if out.Config != nil {
					cfg = out.Config
				}
				continue
			}
			if m, ok := chunk.(*schema.Message); ok {
				chunks = append(chunks, m)
				continue
			}
			others = append(others, jsonable(chunk))
		}

		var msg *schema.Message
		if len(chunks) > 0 {
			m, err := schema.ConcatMessages(chunks)
			if err != nil {
				h.log.Warn().Err(err).Str("run", runName(info)).Msg("could not concat streamed messages")
			} else {
				msg = m
			}
		}
		if r.generation != nil {
			h.endGeneration(r, msg, tokens, cfg)
			return
		}
		var recorded any = others
		if msg != nil {
			recorded = message(msg)
		}
		r.end(map[string]any{"output": recorded})
		h.rootOutput(r, recorded)
	}()
	return ctx
}

func modelParameters(c *model.Config) map[string]any {
	p := map[string]any{}
	if c.MaxTokens > 0 {
		p["max_tokens"] = c.MaxTokens
	}
	if c.Temperature != 0 {
		p["temperature"] = c.Temperature
	}
	if c.TopP != 0 {
		p["top_p"] = c.TopP
	}
	return p
}

func toolNames(tools []*schema.ToolInfo) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		if t != nil {
			names = append(names, t.Name)
		}
	}
	return names
}

func message(m *schema.Message) map[string]any {
	out := map[string]any{"role": string(m.Role), "content": m.Content}
	if m.Name != "" {
		out["name"] = m.Name
	}
	if m.ToolCallID != "" {
		out["tool_call_id"] = m.ToolCallID
	}
	if len(m.ToolCalls) > 0 {
		calls := make([]map[string]any, len(m.ToolCalls))
		for i, c := range m.ToolCalls {
			calls[i] = map[string]any{
				"id":        c.ID,
				"name":      c.Function.Name,
				"arguments": c.Function.Arguments,
			}
		}
		out["tool_calls"] = calls
	}
	return out
}

func messages(ms []*schema.Message) []map[string]any {
	out := make([]map[string]any, 0, len(ms))
	for _, m := range ms {
		if m != nil {
			out = append(out, message(m))
		}
	}
	return out
}

// jsonable renders eino values in the shape Langfuse displays best.
func jsonable(v any) any {
	switch t := v.(type) {
	case *schema.Message:
		if t == nil {
			return nil
		}
		return message(t)
	case []*schema.Message:
		return messages(t)
	}
	return v
}
