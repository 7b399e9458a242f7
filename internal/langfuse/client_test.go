package langfuse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/langfuse-nodes/server/internal/core/error"
	"github.com/langfuse-nodes/server/internal/langfuse/langfusetest"
)

func newTestClient(t *testing.T, srv *langfusetest.Server, flushAt int) *Client {
	t.Helper()
	c, err := New(Config{
		Host:          srv.URL + "/",
		PublicKey:     "pk-lf-1",
		SecretKey:     "sk-lf-1",
		FlushAt:       flushAt,
		FlushInterval: time.Hour,
		Metrics:       NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	return c
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{PublicKey: "p", SecretKey: "s"})
	assert.Error(t, err)
	_, err = New(Config{Host: "http://x"})
	assert.Error(t, err)
}

func TestTraceAndObservationsAreIngested(t *testing.T) {
	srv := langfusetest.NewServer(t)
	c := newTestClient(t, srv, 100)

	trace := c.Trace(map[string]any{"id": "trace-1", "name": "run1"})
	span := trace.Span(map[string]any{"name": "step"})
	gen := span.Generation(map[string]any{"name": "llm", "model": "gemini-2.5-flash"})
	gen.End(map[string]any{"output": "hi"})
	trace.Update(map[string]any{"output": "done"})

	require.NoError(t, c.Flush(context.Background()))

	events := srv.Events()
	require.Len(t, events, 5)
	assert.Equal(t, "trace-create", events[0].Type)
	assert.Equal(t, "trace-1", events[0].Body["id"])
	assert.Equal(t, "run1", events[0].Body["name"])

	assert.Equal(t, "span-create", events[1].Type)
	assert.Equal(t, "trace-1", events[1].Body["traceId"])
	assert.Equal(t, span.ID, events[1].Body["id"])

	assert.Equal(t, "generation-create", events[2].Type)
	assert.Equal(t, span.ID, events[2].Body["parentObservationId"])

	assert.Equal(t, "generation-update", events[3].Type)
	assert.Equal(t, gen.ID, events[3].Body["id"])
	assert.NotEmpty(t, events[3].Body["endTime"])

	assert.Equal(t, "trace-create", events[4].Type)
	assert.Equal(t, "trace-1", events[4].Body["id"])
	assert.Equal(t, "done", events[4].Body["output"])

	assert.Equal(t, []string{BasicAuth("pk-lf-1", "sk-lf-1")}, srv.Authorizations())
	assert.Equal(t, 0, c.Pending())
}

func TestFlushAtTriggersBackgroundDelivery(t *testing.T) {
	srv := langfusetest.NewServer(t)
	c := newTestClient(t, srv, 1)

	c.Trace(map[string]any{"name": "immediate"})

	assert.Eventually(t, func() bool { return len(srv.Events()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownFlushesAndDropsLateEvents(t *testing.T) {
	srv := langfusetest.NewServer(t)
	c := newTestClient(t, srv, 100)

	c.Trace(map[string]any{"name": "a"})
	require.NoError(t, c.Shutdown(context.Background()))
	assert.Len(t, srv.Events(), 1)

	c.Trace(map[string]any{"name": "late"})
	assert.Equal(t, 0, c.Pending())
	assert.NoError(t, c.Shutdown(context.Background()))
}

func TestPartialFailureIsCounted(t *testing.T) {
	srv := langfusetest.NewServer(t)
	srv.RejectType("span-create")
	c := newTestClient(t, srv, 100)

	tr := c.Trace(nil)
	tr.Span(nil)
	require.NoError(t, c.Flush(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.cfg.Metrics.EventsSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cfg.Metrics.EventsFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cfg.Metrics.EventsEnqueued.WithLabelValues("span-create")))
}

func TestHTTPErrorIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := New(Config{Host: srv.URL, PublicKey: "p", SecretKey: "s", FlushInterval: time.Hour, FlushAt: 100})
	require.NoError(t, err)
	defer c.Shutdown(context.Background())

	c.Trace(nil)
	err = c.Flush(context.Background())
	require.Error(t, err)
	var e *errx.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusUnauthorized, e.Status)
	assert.ErrorIs(t, err, errx.ErrUpstream)

	assert.Error(t, c.CheckAuth(context.Background()))
}

func flakyServer(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failures {
			http.Error(w, "try again", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func retryClient(t *testing.T, host string, retries int) *Client {
	t.Helper()
	c, err := New(Config{
		Host:          host,
		PublicKey:     "p",
		SecretKey:     "s",
		FlushAt:       100,
		FlushInterval: time.Hour,
		MaxRetries:    retries,
		RetryBackoff:  time.Millisecond,
		Metrics:       NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	return c
}

func TestFlushRetriesTransientFailures(t *testing.T) {
	srv, calls := flakyServer(t, 2, http.StatusServiceUnavailable)
	c := retryClient(t, srv.URL, 3)

	c.Trace(nil)
	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cfg.Metrics.EventsSent))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.cfg.Metrics.EventsFailed))
}

func TestFlushGivesUpAfterMaxRetries(t *testing.T) {
	srv, calls := flakyServer(t, 100, http.StatusTooManyRequests)
	c := retryClient(t, srv.URL, 2)

	c.Trace(nil)
	err := c.Flush(context.Background())
	require.Error(t, err)
	var e *errx.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusTooManyRequests, e.Status)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cfg.Metrics.EventsFailed))
}

func TestFlushDoesNotRetryClientErrors(t *testing.T) {
	srv, calls := flakyServer(t, 100, http.StatusBadRequest)
	c := retryClient(t, srv.URL, 3)

	c.Trace(nil)
	assert.ErrorIs(t, c.Flush(context.Background()), errx.ErrUpstream)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFlushRetriesDisabled(t *testing.T) {
	srv, calls := flakyServer(t, 100, http.StatusBadGateway)
	c := retryClient(t, srv.URL, -1)

	c.Trace(nil)
	assert.Error(t, c.Flush(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCheckAuth(t *testing.T) {
	srv := langfusetest.NewServer(t)
	c := newTestClient(t, srv, 100)
	assert.NoError(t, c.CheckAuth(context.Background()))
}

func TestDeterministicID(t *testing.T) {
	id := DeterministicID("wf", "w1", "9", "My Trace?")
	assert.Equal(t, "wf-w1-9-TXkgVHJhY2U_", id)
	assert.Equal(t, id, DeterministicID("wf", "w1", "9", "My Trace?"))
	assert.NotEqual(t, id, DeterministicID("wf", "w1", "10", "My Trace?"))
}

func TestPoolSharesClients(t *testing.T) {
	srv := langfusetest.NewServer(t)
	p := NewPool(Config{FlushInterval: time.Hour, FlushAt: 100})

	a, err := p.Client(srv.URL, "pk", "sk")
	require.NoError(t, err)
	b, err := p.Client(srv.URL, "pk", "sk")
	require.NoError(t, err)
	other, err := p.Client(srv.URL, "pk2", "sk")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)

	a.Trace(nil)
	other.Trace(nil)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Len(t, srv.Events(), 2)
}
