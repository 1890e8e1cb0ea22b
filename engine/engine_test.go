package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/op"
	"github.com/razeghi71/dqflow/ref"
)

type countingEngine struct {
	calls   int
	initErr error
}

func (c *countingEngine) Init(context.Context) error { return c.initErr }

func (c *countingEngine) CreateSession(context.Context) (ref.SessionID, error) {
	c.calls++
	return "s1", nil
}

func (c *countingEngine) DestroySession(context.Context, ref.SessionID) error {
	c.calls++
	return nil
}

func (c *countingEngine) ListTables(context.Context, ref.SessionID, bool) ([]TableInfo, error) {
	c.calls++
	return nil, nil
}

func (c *countingEngine) TableExists(context.Context, ref.SessionID, string) (bool, error) {
	c.calls++
	return true, nil
}

func (c *countingEngine) GetTableSchema(context.Context, ref.SessionID, string) (Schema, error) {
	c.calls++
	return Schema{}, nil
}

func (c *countingEngine) ExecuteOperation(context.Context, ref.SessionID, op.Operation) (OperationResult, error) {
	c.calls++
	return OperationResult{Success: true, RowCount: IntPtr(3)}, nil
}

func (c *countingEngine) CommitTable(context.Context, ref.SessionID, string, string) error {
	c.calls++
	return nil
}

func (c *countingEngine) RollbackSession(context.Context, ref.SessionID) error {
	c.calls++
	return nil
}

func TestGuardRejectsUntilReady(t *testing.T) {
	ctx := context.Background()
	inner := &countingEngine{}
	g := Guard(inner, NewReadiness())

	_, err := g.CreateSession(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotReady))
	_, err = g.ExecuteOperation(ctx, "s1", op.Ingest{Source: op.Dataset("d")})
	assert.True(t, errors.Is(err, errs.ErrNotReady))
	assert.True(t, errors.Is(g.CommitTable(ctx, "s1", "temp_a_1", "a"), errs.ErrNotReady))
	_, err = g.ListDatasets(ctx)
	assert.True(t, errors.Is(err, errs.ErrNotReady))
	assert.Equal(t, 0, inner.calls, "no call may reach the backend before readiness")

	require.NoError(t, g.Init(ctx))
	id, err := g.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, ref.SessionID("s1"), id)
	res, err := g.ExecuteOperation(ctx, id, op.Ingest{Source: op.Dataset("d")})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows())
	assert.Equal(t, 2, inner.calls)
}

func TestGuardInitFailureKeepsNotReady(t *testing.T) {
	inner := &countingEngine{initErr: errs.Transport(errors.New("refused"), "backend unreachable")}
	g := Guard(inner, NewReadiness())
	err := g.Init(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTransport))
	assert.False(t, g.Readiness().Ready())
}

func TestReadinessWait(t *testing.T) {
	r := NewReadiness()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := r.Wait(ctx)
	assert.True(t, errors.Is(err, errs.ErrNotReady))

	done := make(chan error, 1)
	go func() { done <- r.Wait(context.Background()) }()
	r.MarkReady()
	r.MarkReady()
	require.NoError(t, <-done)
	assert.NoError(t, r.Check())

	r.Reset()
	assert.False(t, r.Ready())
	assert.Error(t, r.Check())
}

func TestGuardDefaultsToProcess(t *testing.T) {
	g := Guard(&countingEngine{}, nil)
	assert.Same(t, Process, g.Readiness())
}
