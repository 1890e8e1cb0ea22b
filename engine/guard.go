package engine

import (
	"context"

	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/op"
	"github.com/razeghi71/dqflow/ref"
)

// Guarded wraps an Engine so that every call fails with NotReady, without
// reaching the backend, until its Readiness is signalled.
type Guarded struct {
	inner Engine
	ready *Readiness
}

// Guard wraps e. A nil r uses Process.
func Guard(e Engine, r *Readiness) *Guarded {
	if r == nil {
		r = Process
	}
	return &Guarded{inner: e, ready: r}
}

// Readiness returns the signal the guard waits on.
func (g *Guarded) Readiness() *Readiness { return g.ready }

// Unwrap returns the guarded engine.
func (g *Guarded) Unwrap() Engine { return g.inner }

// Init runs the inner engine's pre-flight, if any, and signals readiness on
// success.
func (g *Guarded) Init(ctx context.Context) error {
	if in, ok := g.inner.(Initializer); ok {
		if err := in.Init(ctx); err != nil {
			return err
		}
	}
	g.ready.MarkReady()
	return nil
}

// CreateSession forwards to the guarded engine once ready.
func (g *Guarded) CreateSession(ctx context.Context) (ref.SessionID, error) {
	if err := g.ready.Check(); err != nil {
		return "", err
	}
	return g.inner.CreateSession(ctx)
}

// DestroySession forwards to the guarded engine once ready.
func (g *Guarded) DestroySession(ctx context.Context, id ref.SessionID) error {
	if err := g.ready.Check(); err != nil {
		return err
	}
	return g.inner.DestroySession(ctx, id)
}

// ListTables forwards to the guarded engine once ready.
func (g *Guarded) ListTables(ctx context.Context, id ref.SessionID, includeTemporary bool) ([]TableInfo, error) {
	if err := g.ready.Check(); err != nil {
		return nil, err
	}
	return g.inner.ListTables(ctx, id, includeTemporary)
}

// TableExists forwards to the guarded engine once ready.
func (g *Guarded) TableExists(ctx context.Context, id ref.SessionID, name string) (bool, error) {
	if err := g.ready.Check(); err != nil {
		return false, err
	}
	return g.inner.TableExists(ctx, id, name)
}

// GetTableSchema forwards to the guarded engine once ready.
func (g *Guarded) GetTableSchema(ctx context.Context, id ref.SessionID, name string) (Schema, error) {
	if err := g.ready.Check(); err != nil {
		return Schema{}, err
	}
	return g.inner.GetTableSchema(ctx, id, name)
}

// ExecuteOperation forwards to the guarded engine once ready.
func (g *Guarded) ExecuteOperation(ctx context.Context, id ref.SessionID, o op.Operation) (OperationResult, error) {
	if err := g.ready.Check(); err != nil {
		return OperationResult{}, err
	}
	return g.inner.ExecuteOperation(ctx, id, o)
}

// CommitTable forwards to the guarded engine once ready.
func (g *Guarded) CommitTable(ctx context.Context, id ref.SessionID, tempName, finalName string) error {
	if err := g.ready.Check(); err != nil {
		return err
	}
	return g.inner.CommitTable(ctx, id, tempName, finalName)
}

// RollbackSession forwards to the guarded engine once ready.
func (g *Guarded) RollbackSession(ctx context.Context, id ref.SessionID) error {
	if err := g.ready.Check(); err != nil {
		return err
	}
	return g.inner.RollbackSession(ctx, id)
}

// ListDatasets forwards to the guarded engine when it can browse datasets.
func (g *Guarded) ListDatasets(ctx context.Context) ([]Dataset, error) {
	b, err := g.browser()
	if err != nil {
		return nil, err
	}
	return b.ListDatasets(ctx)
}

// DatasetColumns forwards to the guarded engine when it can browse datasets.
func (g *Guarded) DatasetColumns(ctx context.Context, name string) (Schema, error) {
	b, err := g.browser()
	if err != nil {
		return Schema{}, err
	}
	return b.DatasetColumns(ctx, name)
}

// DatasetColumnValues forwards to the guarded engine when it can browse datasets.
func (g *Guarded) DatasetColumnValues(ctx context.Context, name, column string, limit int) ([]any, error) {
	b, err := g.browser()
	if err != nil {
		return nil, err
	}
	return b.DatasetColumnValues(ctx, name, column, limit)
}

// ListSessions forwards to the guarded engine when it can list sessions.
func (g *Guarded) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	if err := g.ready.Check(); err != nil {
		return nil, err
	}
	l, ok := g.inner.(SessionLister)
	if !ok {
		return nil, errs.New(errs.CodeInternal, "engine %T cannot list sessions", g.inner)
	}
	return l.ListSessions(ctx)
}

func (g *Guarded) browser() (DatasetBrowser, error) {
	if err := g.ready.Check(); err != nil {
		return nil, err
	}
	b, ok := g.inner.(DatasetBrowser)
	if !ok {
		return nil, errs.New(errs.CodeInternal, "engine %T cannot browse datasets", g.inner)
	}
	return b, nil
}
