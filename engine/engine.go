// Package engine defines the contract every data engine implements, the
// readiness signal, and the result types shared by all implementations.
package engine

import (
	"context"

	"github.com/razeghi71/dqflow/loader"
	"github.com/razeghi71/dqflow/op"
	"github.com/razeghi71/dqflow/ref"
	"github.com/razeghi71/dqflow/table"
)

// Schema is the ordered column list of a table.
type Schema = table.Schema

// Column is one schema entry.
type Column = table.Column

// TableInfo describes a table visible to a session.
type TableInfo struct {
	Name        string `json:"name"`
	Schema      Schema `json:"schema"`
	RowCount    int    `json:"rowCount"`
	IsTemporary bool   `json:"isTemporary"`
}

// OperationResult is returned by a successful ExecuteOperation. Failures
// are reported as errors, never as a result with Success false.
type OperationResult struct {
	Success     bool          `json:"success"`
	OutputTable *ref.TableRef `json:"outputTable,omitempty"`
	RowCount    *int          `json:"rowCount,omitempty"`
	Message     string        `json:"message,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Rows returns the row count of the result, or zero when absent.
func (r OperationResult) Rows() int {
	if r.RowCount == nil {
		return 0
	}
	return *r.RowCount
}

// Engine is the session-scoped data engine. All calls are synchronous and
// calls on one session are serialized by the implementation.
type Engine interface {
	// CreateSession allocates an empty workspace.
	CreateSession(ctx context.Context) (ref.SessionID, error)
	// DestroySession drops every temporary table of id. Unknown ids are a no-op.
	DestroySession(ctx context.Context, id ref.SessionID) error
	// ListTables returns the persistent tables and, optionally, the
	// temporaries of id.
	ListTables(ctx context.Context, id ref.SessionID, includeTemporary bool) ([]TableInfo, error)
	TableExists(ctx context.Context, id ref.SessionID, name string) (bool, error)
	GetTableSchema(ctx context.Context, id ref.SessionID, name string) (Schema, error)
	ExecuteOperation(ctx context.Context, id ref.SessionID, o op.Operation) (OperationResult, error)
	// CommitTable promotes a temporary of id into a persistent table.
	CommitTable(ctx context.Context, id ref.SessionID, tempName, finalName string) error
	// RollbackSession drops every temporary of id and keeps the session.
	RollbackSession(ctx context.Context, id ref.SessionID) error
}

// Initializer is implemented by engines with a pre-flight check.
type Initializer interface {
	Init(ctx context.Context) error
}

// Dataset describes a named source available to Ingest.
type Dataset = loader.Dataset

// DatasetBrowser is implemented by engines that can list their datasets.
type DatasetBrowser interface {
	ListDatasets(ctx context.Context) ([]Dataset, error)
	DatasetColumns(ctx context.Context, name string) (Schema, error)
	DatasetColumnValues(ctx context.Context, name, column string, limit int) ([]any, error)
}

// SessionInfo summarises one live session.
type SessionInfo struct {
	ID         ref.SessionID `json:"id"`
	TempTables []string      `json:"tempTables"`
	CreatedAt  string        `json:"createdAt"`
	LastUsed   string        `json:"lastUsed"`
}

// SessionLister is implemented by engines that can enumerate sessions.
type SessionLister interface {
	ListSessions(ctx context.Context) ([]SessionInfo, error)
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }
