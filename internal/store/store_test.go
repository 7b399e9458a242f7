package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "executions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndGet(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 123, time.UTC)
	e := Execution{
		ID:           "e1",
		WorkflowID:   "wf1",
		WorkflowName: "My Workflow",
		Status:       StatusSuccess,
		StartedAt:    start,
		FinishedAt:   start.Add(time.Second),
		Output:       json.RawMessage(`[{"json":{"a":1}}]`),
	}
	require.NoError(t, s.Record(ctx, e))

	got, err := s.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, e.WorkflowName, got.WorkflowName)
	assert.True(t, start.Equal(got.StartedAt))
	assert.JSONEq(t, `[{"json":{"a":1}}]`, string(got.Output))
	assert.Empty(t, got.Error)

	e.Status = StatusError
	e.Error = "boom"
	e.Output = nil
	require.NoError(t, s.Record(ctx, e))
	got, err = s.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.Nil(t, got.Output)
}

func TestGetMissing(t *testing.T) {
	_, err := openTemp(t).Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListNewestFirst(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Record(ctx, Execution{
			ID:         id,
			WorkflowID: "wf",
			Status:     StatusSuccess,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)

	two, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}
