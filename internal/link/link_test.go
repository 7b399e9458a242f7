package link

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/langfuse-nodes/server/internal/core/error"
	"github.com/langfuse-nodes/server/internal/host/hosttest"
	"github.com/langfuse-nodes/server/internal/langfuse"
	"github.com/langfuse-nodes/server/internal/langfuse/langfusetest"
	"github.com/langfuse-nodes/server/internal/schema"
)

func newClient(t *testing.T) *langfuse.Client {
	t.Helper()
	srv := langfusetest.NewServer(t)
	c, err := langfuse.New(langfuse.Config{
		Host:          srv.URL,
		PublicKey:     "pk",
		SecretKey:     "sk",
		FlushInterval: time.Hour,
		Metrics:       langfuse.NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	return c
}

func newResolver() *Resolver {
	return NewResolver(DefaultTable("langfuse"))
}

func TestDefaultTableFilters(t *testing.T) {
	table := DefaultTable("langfuse", "langfuseNodes")
	f := table.Filter(RoleTrace, RoleObservation)
	assert.Equal(t, []string{
		"langfuse.trace", "langfuseNodes.trace",
		"langfuse.observation", "langfuseNodes.observation",
	}, f.Nodes)
	assert.True(t, f.Allows("langfuseNodes.observation"))
	assert.False(t, f.Allows("langfuse.callbackHandler"))
	assert.True(t, table.Filter(RoleCallback).Allows("langfuse.callbackHandler"))
}

func TestResolveSingle(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	r := newResolver()

	t.Run("absent", func(t *testing.T) {
		ec := hosttest.New("Obs", "langfuse.observation", nil)
		h, err := r.ResolveSingle(ctx, ec, RoleTrace)
		require.NoError(t, err)
		assert.True(t, h.IsAbsent())
		assert.Nil(t, h.Parent())
	})

	t.Run("trace", func(t *testing.T) {
		trace := c.Trace(map[string]any{"name": "run"})
		ec := hosttest.New("Obs", "langfuse.observation", nil).Connect(schema.AIChain, trace)
		h, err := r.ResolveSingle(ctx, ec, RoleTrace)
		require.NoError(t, err)
		assert.Equal(t, Trace, h.Kind())
		assert.Same(t, trace, h.Trace())
		assert.Equal(t, trace.ID, h.Parent().TraceID())
	})

	t.Run("first of many", func(t *testing.T) {
		first := c.Trace(nil)
		ec := hosttest.New("Obs", "langfuse.observation", nil).
			Connect(schema.AIChain, first).
			Connect(schema.AIChain, c.Trace(nil))
		h, err := r.ResolveSingle(ctx, ec, RoleTrace)
		require.NoError(t, err)
		assert.Same(t, first, h.Trace())
	})

	t.Run("wrong type", func(t *testing.T) {
		ec := hosttest.New("Obs", "langfuse.observation", nil).Connect(schema.AIChain, "nope")
		_, err := r.ResolveSingle(ctx, ec, RoleTrace)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errx.ErrLinkType))
		assert.Contains(t, err.Error(), "Trace")
		assert.Contains(t, err.Error(), "string")
	})

	t.Run("span for trace role", func(t *testing.T) {
		span := c.Trace(nil).Span(nil)
		ec := hosttest.New("Obs", "langfuse.observation", nil).Connect(schema.AIChain, span)
		_, err := r.ResolveSingle(ctx, ec, RoleTrace)
		assert.ErrorIs(t, err, errx.ErrLinkType)

		h, err := r.ResolveSingle(ctx, ec, RoleObservation)
		require.NoError(t, err)
		assert.Equal(t, Span, h.Kind())
		assert.Same(t, span, h.Span())
	})

	t.Run("connection error", func(t *testing.T) {
		ec := hosttest.New("Obs", "langfuse.observation", nil)
		ec.ConnErrors[schema.AIChain] = errors.New("boom")
		_, err := r.ResolveSingle(ctx, ec, RoleTrace)
		assert.EqualError(t, err, "boom")
	})

	t.Run("unknown role", func(t *testing.T) {
		ec := hosttest.New("Obs", "langfuse.observation", nil)
		_, err := r.ResolveSingle(ctx, ec, Role("other"))
		assert.Error(t, err)
	})
}

func TestResolveEither(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	r := newResolver()

	t.Run("generation resolves as observation", func(t *testing.T) {
		gen := c.Trace(nil).Generation(nil)
		ec := hosttest.New("Model", "langfuse.modelWithLangfuse", nil).Connect(schema.AIChain, gen)
		h, err := r.ResolveEither(ctx, ec, RoleTrace, RoleObservation)
		require.NoError(t, err)
		assert.Equal(t, Generation, h.Kind())
		assert.Same(t, gen, h.Generation())
		assert.NotNil(t, h.Parent())
	})

	t.Run("trace resolves first", func(t *testing.T) {
		trace := c.Trace(nil)
		ec := hosttest.New("Model", "langfuse.modelWithLangfuse", nil).Connect(schema.AIChain, trace)
		h, err := r.ResolveEither(ctx, ec, RoleTrace, RoleObservation)
		require.NoError(t, err)
		assert.Equal(t, Trace, h.Kind())
	})

	t.Run("all absent", func(t *testing.T) {
		ec := hosttest.New("Model", "langfuse.modelWithLangfuse", nil)
		h, err := r.ResolveEither(ctx, ec, RoleTrace, RoleObservation)
		require.NoError(t, err)
		assert.True(t, h.IsAbsent())
	})

	t.Run("no role resolves", func(t *testing.T) {
		ec := hosttest.New("Model", "langfuse.modelWithLangfuse", nil).Connect(schema.AIChain, 3)
		_, err := r.ResolveEither(ctx, ec, RoleTrace, RoleObservation)
		require.Error(t, err)
		var e *errx.Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, "trace", e.Param)
	})
}

func TestResolveEitherSeparateConnections(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	r := NewResolver(Table{
		RoleTrace:       {Connection: schema.AIChain, Accepts: []Kind{Trace}},
		RoleObservation: {Connection: schema.AITool, Accepts: []Kind{Span, Generation}},
	})

	t.Run("first type error wins", func(t *testing.T) {
		ec := hosttest.New("Model", "langfuse.modelWithLangfuse", nil).
			Connect(schema.AIChain, 3).
			Connect(schema.AITool, "str")
		_, err := r.ResolveEither(ctx, ec, RoleTrace, RoleObservation)
		require.Error(t, err)
		var e *errx.Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, "trace", e.Param)
		assert.Equal(t, "int", e.Actual)
	})

	t.Run("trace preferred when both resolve", func(t *testing.T) {
		trace := c.Trace(nil)
		ec := hosttest.New("Model", "langfuse.modelWithLangfuse", nil).
			Connect(schema.AIChain, trace).
			Connect(schema.AITool, trace.Span(nil))
		h, err := r.ResolveEither(ctx, ec, RoleTrace, RoleObservation)
		require.NoError(t, err)
		assert.Equal(t, Trace, h.Kind())
		assert.Same(t, trace, h.Trace())
	})

	t.Run("type error ignored when a later role resolves", func(t *testing.T) {
		span := c.Trace(nil).Span(nil)
		ec := hosttest.New("Model", "langfuse.modelWithLangfuse", nil).
			Connect(schema.AIChain, 3).
			Connect(schema.AITool, span)
		h, err := r.ResolveEither(ctx, ec, RoleTrace, RoleObservation)
		require.NoError(t, err)
		assert.Same(t, span, h.Span())
	})
}

func TestNilLangfusePointerIsAbsent(t *testing.T) {
	ctx := context.Background()
	r := newResolver()

	for _, v := range []any{(*langfuse.Trace)(nil), (*langfuse.Span)(nil), (*langfuse.Generation)(nil)} {
		ec := hosttest.New("Update", "langfuse.traceUpdate", nil).Connect(schema.AIChain, v)
		h, err := r.ResolveSingle(ctx, ec, RoleTrace)
		require.NoError(t, err)
		assert.True(t, h.IsAbsent())

		_, err = r.Require(ctx, ec, RoleTrace)
		assert.ErrorIs(t, err, errx.ErrMissingLink)
	}

	h, ok := Of(nil)
	assert.True(t, ok)
	assert.True(t, h.IsAbsent())
	_, ok = Of("trace")
	assert.False(t, ok)
}

func TestRequire(t *testing.T) {
	ctx := context.Background()
	r := newResolver()
	ec := hosttest.New("Update", "langfuse.traceUpdate", nil)

	_, err := r.Require(ctx, ec, RoleTrace)
	assert.ErrorIs(t, err, errx.ErrMissingLink)
	assert.Contains(t, err.Error(), "Update")

	_, err = r.RequireEither(ctx, ec, RoleTrace, RoleObservation)
	assert.ErrorIs(t, err, errx.ErrMissingLink)
	assert.Contains(t, err.Error(), "trace/observation")

	span := newClient(t).Trace(nil).Span(nil)
	ec.Connect(schema.AIChain, span)
	h, err := r.RequireEither(ctx, ec, RoleTrace, RoleObservation)
	require.NoError(t, err)
	assert.Equal(t, Span, h.Kind())
}

type handler interface{ Name() string }

type named string

func (n named) Name() string { return string(n) }

func TestCollectAll(t *testing.T) {
	ctx := context.Background()

	ec := hosttest.New("Chain", "langfuse.chainLlmWithCallbacks", nil)
	all, err := CollectAll[handler](ctx, ec, schema.AIChain, "callback handler")
	require.NoError(t, err)
	assert.Empty(t, all)

	ec.Connect(schema.AIChain, named("a"))
	all, err = CollectAll[handler](ctx, ec, schema.AIChain, "callback handler")
	require.NoError(t, err)
	require.Len(t, all, 1)

	ec.Connect(schema.AIChain, named("b"))
	all, err = CollectAll[handler](ctx, ec, schema.AIChain, "callback handler")
	require.NoError(t, err)
	assert.Equal(t, []handler{named("a"), named("b")}, all)

	first, ok, err := First[handler](ctx, ec, schema.AIChain, "callback handler")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", first.Name())

	ec.Connect(schema.AIChain, 7)
	_, err = CollectAll[handler](ctx, ec, schema.AIChain, "callback handler")
	assert.ErrorIs(t, err, errx.ErrLinkType)
}
