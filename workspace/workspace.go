// Package workspace is the in-process reference implementation of
// engine.Engine: tables live in memory, datasets come from a directory and
// operations run on a bounded worker pool.
package workspace

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/razeghi71/dqflow/engine"
	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/loader"
	"github.com/razeghi71/dqflow/metrics"
	"github.com/razeghi71/dqflow/ref"
	"github.com/razeghi71/dqflow/session"
	"github.com/razeghi71/dqflow/storage"
	"github.com/razeghi71/dqflow/table"
)

// Options configures a Workspace.
type Options struct {
	DataDir          string // Directory of ingestable datasets
	MaxConcurrentOps int    // Operations executing at once across sessions
	Sessions         session.Options
}

// DefaultOptions returns the default configuration for dataDir.
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:          dataDir,
		MaxConcurrentOps: 8,
		Sessions:         session.DefaultOptions(),
	}
}

// Workspace implements engine.Engine, engine.Initializer,
// engine.DatasetBrowser and engine.SessionLister.
type Workspace struct {
	opts     Options
	store    *storage.Memory
	sessions *session.Store
	catalog  *loader.Catalog
	pool     *ants.Pool
	log      *zap.SugaredLogger
}

var (
	_ engine.Engine         = (*Workspace)(nil)
	_ engine.Initializer    = (*Workspace)(nil)
	_ engine.DatasetBrowser = (*Workspace)(nil)
	_ engine.SessionLister  = (*Workspace)(nil)
)

// New builds a workspace. The caller owns it and must Close it.
func New(opts Options, log *zap.SugaredLogger) (*Workspace, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.MaxConcurrentOps <= 0 {
		opts.MaxConcurrentOps = 1
	}
	w := &Workspace{
		opts:    opts,
		store:   storage.NewMemory(),
		catalog: loader.NewCatalog(opts.DataDir),
		log:     log,
	}
	pool, err := ants.NewPool(opts.MaxConcurrentOps,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v any) {
			log.Errorw("operation worker panic", "panic", v)
		}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	w.pool = pool
	w.sessions = session.NewStore(session.DropperFunc(w.dropTemporary), opts.Sessions, log)
	return w, nil
}

// Store exposes the underlying table store.
func (w *Workspace) Store() *storage.Memory { return w.store }

// Close destroys every session and stops the worker pool.
func (w *Workspace) Close() error {
	err := w.sessions.Close()
	w.pool.Release()
	metrics.SessionsActive.Set(0)
	return err
}

// Init checks that the data directory is readable.
func (w *Workspace) Init(ctx context.Context) error {
	if w.opts.DataDir == "" {
		return nil
	}
	fi, err := os.Stat(w.opts.DataDir)
	if err != nil {
		return errs.Wrap(errs.CodeNotReady, err, "data directory %s unavailable", w.opts.DataDir)
	}
	if !fi.IsDir() {
		return errs.NotReady("data directory %s is not a directory", w.opts.DataDir)
	}
	return nil
}

func (w *Workspace) dropTemporary(id ref.SessionID, name string) error {
	return w.store.Drop(storage.Temporary(id, name))
}

// CreateSession allocates an empty session.
func (w *Workspace) CreateSession(ctx context.Context) (ref.SessionID, error) {
	sess, err := w.sessions.Create()
	if err != nil {
		w.log.Warnw("session creation refused", "error", err)
		return "", err
	}
	metrics.SessionsActive.Set(float64(w.sessions.Len()))
	w.log.Infow("session created", "session", sess.ID)
	return sess.ID, nil
}

// DestroySession drops the temporaries of id. Unknown ids are a no-op.
func (w *Workspace) DestroySession(ctx context.Context, id ref.SessionID) error {
	found, err := w.sessions.Destroy(id)
	metrics.SessionsActive.Set(float64(w.sessions.Len()))
	if err != nil {
		w.log.Errorw("session destroyed with leftover tables", "session", id, "error", err)
		return errs.Wrap(errs.CodeInternal, err, "destroy session %s", id)
	}
	if !found {
		w.log.Infow("destroy of unknown session ignored", "session", id)
		return nil
	}
	w.log.Infow("session destroyed", "session", id)
	return nil
}

// RollbackSession drops every temporary of id and keeps the session.
func (w *Workspace) RollbackSession(ctx context.Context, id ref.SessionID) error {
	sess, release, err := w.sessions.Acquire(id)
	if err != nil {
		return err
	}
	defer release()
	if err := w.sessions.Rollback(sess); err != nil {
		w.log.Errorw("rollback left tables behind", "session", id, "error", err)
		return errs.Wrap(errs.CodeInternal, err, "rollback session %s", id)
	}
	w.log.Infow("session rolled back", "session", id)
	return nil
}

// ListTables returns the persistent tables and, with includeTemporary, the
// temporaries of id.
func (w *Workspace) ListTables(ctx context.Context, id ref.SessionID, includeTemporary bool) ([]engine.TableInfo, error) {
	sess, release, err := w.sessions.Acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	var out []engine.TableInfo
	for _, name := range w.store.Names("") {
		t, err := w.store.Get(storage.Persistent(name))
		if err != nil {
			continue
		}
		out = append(out, info(name, t, false))
	}
	if includeTemporary {
		for _, name := range sess.TempNames() {
			t, err := w.store.Get(storage.Temporary(id, name))
			if err != nil {
				continue
			}
			out = append(out, info(name, t, true))
		}
	}
	return out, nil
}

func info(name string, t *table.Table, temporary bool) engine.TableInfo {
	return engine.TableInfo{Name: name, Schema: t.Schema(), RowCount: t.Len(), IsTemporary: temporary}
}

// lookup resolves name to this session's temporary or a persistent table.
func (w *Workspace) lookup(sess *session.Session, name string) (*table.Table, error) {
	if ref.IsTempName(name) {
		if !sess.Owns(name) {
			return nil, errs.NotFound("table %q not found in session %s", name, sess.ID)
		}
		return w.store.Get(storage.Temporary(sess.ID, name))
	}
	return w.store.Get(storage.Persistent(name))
}

// resolveName looks name up for session id. Persistent tables outlive the
// session that made them, so a persistent name resolves even when id is
// unknown or destroyed; temporaries never do.
func (w *Workspace) resolveName(id ref.SessionID, name string) (*table.Table, error) {
	sess, release, err := w.sessions.Acquire(id)
	if err != nil {
		if errs.CodeOf(err) == errs.CodeNotFound && !ref.IsTempName(name) {
			return w.store.Get(storage.Persistent(name))
		}
		return nil, err
	}
	defer release()
	return w.lookup(sess, name)
}

// TableExists reports whether name resolves for id. A temporary name on an
// unknown session is an error, not false.
func (w *Workspace) TableExists(ctx context.Context, id ref.SessionID, name string) (bool, error) {
	sess, release, err := w.sessions.Acquire(id)
	if err != nil {
		if errs.CodeOf(err) == errs.CodeNotFound && !ref.IsTempName(name) {
			return w.store.Exists(storage.Persistent(name)), nil
		}
		return false, err
	}
	defer release()
	_, err = w.lookup(sess, name)
	switch errs.CodeOf(err) {
	case "":
		return true, nil
	case errs.CodeNotFound:
		return false, nil
	default:
		return false, err
	}
}

// GetTableSchema returns the schema of name as seen by id.
func (w *Workspace) GetTableSchema(ctx context.Context, id ref.SessionID, name string) (engine.Schema, error) {
	t, err := w.resolveName(id, name)
	if err != nil {
		return engine.Schema{}, err
	}
	return t.Schema(), nil
}

// CommitTable promotes the temporary tempName of id to the persistent
// table finalName. An existing finalName is a conflict.
func (w *Workspace) CommitTable(ctx context.Context, id ref.SessionID, tempName, finalName string) error {
	err := w.commit(id, tempName, finalName)
	metrics.ObserveCommit(string(errs.CodeOf(err)))
	if err != nil {
		w.log.Infow("commit failed", "session", id, "temp", tempName, "final", finalName, "error", err)
		return err
	}
	w.log.Infow("table committed", "session", id, "temp", tempName, "final", finalName)
	return nil
}

func (w *Workspace) commit(id ref.SessionID, tempName, finalName string) error {
	sess, release, err := w.sessions.Acquire(id)
	if err != nil {
		return err
	}
	defer release()

	var v errs.Violations
	if !ref.IsTempName(tempName) {
		v.Add("tempName", "temporary names start with %q", ref.TempPrefix)
	}
	if _, err := ref.Persistent(finalName); err != nil {
		v.Merge("finalName", err)
	}
	if err := v.Err("invalid commit"); err != nil {
		return err
	}
	if !sess.Owns(tempName) {
		return errs.NotFound("temporary table %q not found in session %s", tempName, id)
	}
	if err := w.store.Rename(storage.Temporary(id, tempName), storage.Persistent(finalName)); err != nil {
		return err
	}
	sess.Deregister(tempName)
	return nil
}

// ListSessions summarises every live session.
func (w *Workspace) ListSessions(ctx context.Context) ([]engine.SessionInfo, error) {
	snaps := w.sessions.List()
	out := make([]engine.SessionInfo, len(snaps))
	for i, s := range snaps {
		out[i] = engine.SessionInfo{
			ID:         s.ID,
			TempTables: s.TempTables,
			CreatedAt:  s.CreatedAt.UTC().Format(time.RFC3339),
			LastUsed:   s.LastUsed.UTC().Format(time.RFC3339),
		}
	}
	return out, nil
}

// ListDatasets lists the datasets of the data directory.
func (w *Workspace) ListDatasets(ctx context.Context) ([]engine.Dataset, error) {
	return w.catalog.List()
}

// DatasetColumns returns the schema of a dataset.
func (w *Workspace) DatasetColumns(ctx context.Context, name string) (engine.Schema, error) {
	return w.catalog.Columns(name)
}

// DatasetColumnValues returns up to limit distinct values of a dataset column.
func (w *Workspace) DatasetColumnValues(ctx context.Context, name, column string, limit int) ([]any, error) {
	return w.catalog.ColumnValues(name, column, limit)
}
