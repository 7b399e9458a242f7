package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/langfuse-nodes/server/internal/core"
	"github.com/langfuse-nodes/server/internal/credentials"
	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/langfuse"
	"github.com/langfuse-nodes/server/internal/schema"
	"github.com/langfuse-nodes/server/internal/store"
	logx "github.com/langfuse-nodes/server/pkg/logger"
)

// Recorder persists finished executions.
type Recorder interface {
	Record(ctx context.Context, e store.Execution) error
}

// Engine runs workflows. Executor nodes run once each in main-connection order;
// sub-nodes run whenever a connected node asks for their value.
type Engine struct {
	registry  *host.Registry
	creds     credentials.Store
	pool      *langfuse.Pool
	recorder  Recorder
	tracer    trace.Tracer
	evaluator *schema.Evaluator
	instance  host.Instance
	mode      core.ExecutionMode
	now       func() time.Time
	newID     func() string
}

// Option configures an Engine.
type Option func(*Engine)

func WithCredentials(s credentials.Store) Option {
	return func(e *Engine) { e.creds = s }
}

// WithPool flushes pool after every run.
func WithPool(p *langfuse.Pool) Option {
	return func(e *Engine) { e.pool = p }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func WithInstance(i host.Instance) Option {
	return func(e *Engine) { e.instance = i }
}

func WithMode(m core.ExecutionMode) Option {
	return func(e *Engine) { e.mode = m }
}

// WithIDs replaces the execution id generator.
func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func New(reg *host.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:  reg,
		creds:     credentials.MapStore{},
		tracer:    noop.NewTracerProvider().Tracer(""),
		evaluator: schema.NewEvaluator(),
		mode:      core.ModeCLI,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Result is the outcome of a run.
type Result struct {
	ExecutionID string
	// Outputs holds the outputs of every executed node by name.
	Outputs map[string][][]host.Item
	// Last is the first output of the last executed node.
	Last []host.Item
}

type run struct {
	wf      *Workflow
	meta    host.Metadata
	types   map[string]host.NodeType
	outputs map[string][][]host.Item
}

// Run validates and executes wf. Nodes without main inputs start with items, or a
// single empty item when items is empty.
func (e *Engine) Run(ctx context.Context, wf *Workflow, items []host.Item) (*Result, error) {
	if err := Validate(wf, e.registry, e.evaluator); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}
	if len(items) == 0 {
		items = []host.Item{{JSON: map[string]any{}}}
	}

	r := &run{
		wf: wf,
		meta: host.Metadata{
			ExecutionID: e.newID(),
			Workflow:    host.Workflow{ID: wf.ID, Name: wf.Name},
			Instance:    e.instance,
			Mode:        e.mode,
		},
		types:   map[string]host.NodeType{},
		outputs: map[string][][]host.Item{},
	}
	for _, n := range wf.Nodes {
		r.types[n.Name], _ = e.registry.Get(n.Type)
	}
	sorted, err := order(wf, r.types)
	if err != nil {
		return nil, err
	}

	started := e.now()
	log := logx.Execution(wf.Name, r.meta.ExecutionID)
	log.Info().Int("nodes", len(sorted)).Msg("workflow started")

	ctx, span := e.tracer.Start(ctx, "workflow "+wf.Name, trace.WithAttributes(
		attribute.String("workflow.id", wf.ID),
		attribute.String("execution.id", r.meta.ExecutionID),
	))
	res := &Result{ExecutionID: r.meta.ExecutionID, Outputs: r.outputs}
	runErr := e.execute(ctx, r, sorted, items, res)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	span.End()

	if e.pool != nil {
		if err := e.pool.Flush(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to flush langfuse events")
		}
	}
	e.record(ctx, r, started, res, runErr)

	if runErr != nil {
		log.Error().Err(runErr).Msg("workflow failed")
		return res, runErr
	}
	log.Info().Dur("took", e.now().Sub(started)).Msg("workflow finished")
	return res, nil
}

func (e *Engine) execute(ctx context.Context, r *run, sorted []string, items []host.Item, res *Result) error {
	for _, name := range sorted {
		node, _ := r.wf.Node(name)
		in := items
		if conns := r.wf.incoming(name, schema.Main); len(conns) > 0 {
			in = nil
			for _, c := range conns {
				if out := r.outputs[c.From]; len(out) > 0 {
					in = append(in, out[0]...)
				}
			}
			if len(in) == 0 {
				logx.Debug().Str("node", name).Msg("skipping node without input items")
				continue
			}
		}

		out, err := e.executeNode(ctx, r, node, in)
		if err != nil {
			return err
		}
		r.outputs[name] = out
		res.Last = nil
		if len(out) > 0 {
			res.Last = out[0]
		}
	}
	return nil
}

func (e *Engine) executeNode(ctx context.Context, r *run, node host.Node, in []host.Item) ([][]host.Item, error) {
	exec := r.types[node.Name].(host.Executor)
	ctx, span := e.tracer.Start(ctx, "node "+node.Name, trace.WithAttributes(
		attribute.String("node.name", node.Name),
		attribute.String("node.type", node.Type),
		attribute.Int("node.items", len(in)),
	))
	defer span.End()

	ec := &execContext{engine: e, run: r, node: node, items: in}
	out, err := exec.Execute(ctx, ec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if node.ContinueOnFail {
			logx.Warn().Err(err).Str("node", node.Name).Msg("node failed, continuing")
			return [][]host.Item{{{JSON: map[string]any{"error": err.Error()}}}}, nil
		}
		return nil, fmt.Errorf("node %q: %w", node.Name, err)
	}
	return out, nil
}

func (e *Engine) record(ctx context.Context, r *run, started time.Time, res *Result, runErr error) {
	if e.recorder == nil {
		return
	}
	exec := store.Execution{
		ID:           r.meta.ExecutionID,
		WorkflowID:   r.wf.ID,
		WorkflowName: r.wf.Name,
		Status:       store.StatusSuccess,
		StartedAt:    started,
		FinishedAt:   e.now(),
	}
	if runErr != nil {
		exec.Status = store.StatusError
		exec.Error = runErr.Error()
	}
	if res.Last != nil {
		if b, err := json.Marshal(res.Last); err == nil {
			exec.Output = b
		}
	}
	if err := e.recorder.Record(ctx, exec); err != nil {
		logx.Error().Err(err).Str("execution", exec.ID).Msg("failed to record execution")
	}
}
