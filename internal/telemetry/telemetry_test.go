package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNoneIsNoop(t *testing.T) {
	p, err := New(context.Background(), Config{Exporter: ExporterNone})
	require.NoError(t, err)
	_, span := p.Tracer().Start(context.Background(), "x")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewStdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(context.Background(), Config{
		Exporter:     "STDOUT",
		ServiceName:  "test",
		SampleRatio:  1,
		stdoutWriter: &buf,
	})
	require.NoError(t, err)
	_, span := p.Tracer().Start(context.Background(), "node Trace")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "node Trace")
}

func TestNewUnknownExporter(t *testing.T) {
	_, err := New(context.Background(), Config{Exporter: "zipkin"})
	assert.ErrorContains(t, err, `unknown telemetry exporter "zipkin"`)
}
