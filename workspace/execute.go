package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/razeghi71/dqflow/engine"
	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/export"
	"github.com/razeghi71/dqflow/loader"
	"github.com/razeghi71/dqflow/metrics"
	"github.com/razeghi71/dqflow/op"
	"github.com/razeghi71/dqflow/ref"
	"github.com/razeghi71/dqflow/session"
	"github.com/razeghi71/dqflow/storage"
	"github.com/razeghi71/dqflow/table"
	"github.com/razeghi71/dqflow/transform"
)

// tempSeq numbers temporaries across all sessions of the process.
var tempSeq atomic.Uint64

// tempName returns a fresh temporary name built from hint.
func tempName(hint string) string {
	seq := tempSeq.Add(1)
	suffix := fmt.Sprintf("_%d", seq)
	hint = strings.TrimPrefix(hint, ref.TempPrefix)
	if hint == "" {
		hint = "table"
	}
	if max := ref.MaxNameLen - len(ref.TempPrefix) - len(suffix); len(hint) > max {
		hint = hint[:max]
	}
	return ref.TempPrefix + hint + suffix
}

func (w *Workspace) ExecuteOperation(ctx context.Context, id ref.SessionID, o op.Operation) (engine.OperationResult, error) {
	start := time.Now()
	typ := "unknown"
	if o != nil {
		typ = string(o.Type())
	}
	res, err := w.execute(ctx, id, o)
	metrics.ObserveOperation(typ, string(errs.CodeOf(err)), time.Since(start))
	if err != nil {
		w.log.Infow("operation failed", "session", id, "operation", typ, "code", errs.CodeOf(err), "error", err)
		return engine.OperationResult{}, err
	}
	w.log.Debugw("operation executed", "session", id, "operation", typ,
		"rows", res.Rows(), "elapsed", time.Since(start).String())
	return res, nil
}

func (w *Workspace) execute(ctx context.Context, id ref.SessionID, o op.Operation) (engine.OperationResult, error) {
	if err := ctx.Err(); err != nil {
		return engine.OperationResult{}, err
	}
	sess, release, err := w.sessions.Acquire(id)
	if err != nil {
		return engine.OperationResult{}, err
	}
	defer release()

	if err := op.Validate(o); err != nil {
		return engine.OperationResult{}, err
	}
	if err := checkOwnership(id, o); err != nil {
		return engine.OperationResult{}, err
	}
	out, produces := op.OutputOf(o)
	if produces && out.Persist && w.store.Exists(storage.Persistent(out.Destination)) {
		return engine.OperationResult{}, errs.Conflict("table %q already exists", out.Destination)
	}

	inputs, err := w.resolve(sess, o)
	if err != nil {
		return engine.OperationResult{}, err
	}

	if x, ok := o.(op.Export); ok {
		var n int
		err := w.run(func() error {
			var err error
			n, err = export.Write(inputs[0], x.Format, x.Path)
			return err
		})
		if err != nil {
			return engine.OperationResult{}, err
		}
		return engine.OperationResult{
			Success:  true,
			RowCount: engine.IntPtr(n),
			Message:  fmt.Sprintf("exported %d rows to %s", n, x.Path),
		}, nil
	}

	var result *table.Table
	if err := w.run(func() error {
		var err error
		result, err = apply(o, inputs)
		return err
	}); err != nil {
		return engine.OperationResult{}, err
	}

	name, key := w.outputKey(id, o.Type(), out)
	if err := w.store.Create(key, result); err != nil {
		return engine.OperationResult{}, err
	}
	var outRef ref.TableRef
	if key.IsTemporary() {
		sess.Register(name)
		outRef = ref.TableRef{Kind: ref.KindTemporary, Name: name, SessionID: id}
	} else {
		outRef = ref.TableRef{Kind: ref.KindPersistent, Name: name}
	}
	return engine.OperationResult{
		Success:     true,
		OutputTable: &outRef,
		RowCount:    engine.IntPtr(result.Len()),
	}, nil
}

func (w *Workspace) outputKey(id ref.SessionID, typ op.Type, out op.Output) (string, storage.Key) {
	if out.Persist {
		return out.Destination, storage.Persistent(out.Destination)
	}
	hint := out.Destination
	if hint == "" {
		hint = string(typ)
	}
	name := tempName(hint)
	return name, storage.Temporary(id, name)
}

// checkOwnership rejects temporary refs that name a different session.
func checkOwnership(id ref.SessionID, o op.Operation) error {
	var v errs.Violations
	for i, r := range op.Inputs(o) {
		if r.Kind == ref.KindTemporary && r.SessionID != id {
			v.Add(inputField(o, i)+".sessionId", "belongs to another session")
		}
	}
	return v.Err(fmt.Sprintf("invalid %s operation", o.Type()))
}

func inputField(o op.Operation, i int) string {
	if _, ok := o.(op.Join); ok {
		if i == 0 {
			return "left"
		}
		return "right"
	}
	return "input"
}

// resolve loads every table o reads, before anything is executed.
func (w *Workspace) resolve(sess *session.Session, o op.Operation) ([]*table.Table, error) {
	if x, ok := o.(op.Ingest); ok {
		t, err := w.loadSource(x.Source)
		if err != nil {
			return nil, err
		}
		return []*table.Table{t}, nil
	}
	refs := op.Inputs(o)
	tables := make([]*table.Table, len(refs))
	for i, r := range refs {
		t, err := w.resolveRef(sess, r)
		if err != nil {
			return nil, err
		}
		tables[i] = t
	}
	return tables, nil
}

func (w *Workspace) resolveRef(sess *session.Session, r ref.TableRef) (*table.Table, error) {
	switch r.Kind {
	case ref.KindTemporary:
		if !sess.Owns(r.Name) {
			return nil, errs.NotFound("temporary table %q not found in session %s", r.Name, sess.ID)
		}
		return w.store.Get(storage.Temporary(sess.ID, r.Name))
	case ref.KindPersistent:
		return w.store.Get(storage.Persistent(r.Name))
	case ref.KindFile:
		return loadFile(r.Path, "path")
	default:
		return nil, errs.Validation("invalid table ref", errs.FieldViolation{Field: "kind", Reason: "unknown kind"})
	}
}

func (w *Workspace) loadSource(src op.Source) (*table.Table, error) {
	if src.Kind == op.SourceFile {
		return loadFile(src.Path, "source.path")
	}
	t, err := w.catalog.Load(src.Name)
	if err != nil {
		if errs.CodeOf(err) == errs.CodeInternal {
			return nil, errs.Wrap(errs.CodeInternal, err, "load dataset %q", src.Name)
		}
		return nil, err
	}
	return t, nil
}

func loadFile(path, field string) (*table.Table, error) {
	if !loader.Supported(path) {
		return nil, errs.Validation("unsupported file format",
			errs.FieldViolation{Field: field, Reason: fmt.Sprintf("%s has no supported extension", path)})
	}
	t, err := loader.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.NotFound("file %s not found", path)
	}
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, err, "load %s", path)
	}
	return t, nil
}

// run executes fn on the worker pool and waits for it. A full pool is
// ResourceExhausted; a panic in fn becomes an internal error.
func (w *Workspace) run(fn func() error) error {
	done := make(chan error, 1)
	err := w.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errs.New(errs.CodeInternal, "operation panicked: %v", r)
			}
		}()
		done <- fn()
	})
	switch {
	case errors.Is(err, ants.ErrPoolOverload):
		return errs.ResourceExhausted("%d operations already running", w.opts.MaxConcurrentOps)
	case errors.Is(err, ants.ErrPoolClosed):
		return errs.NotReady("workspace is closed")
	case err != nil:
		return errs.Wrap(errs.CodeInternal, err, "submit operation")
	}
	return <-done
}

func apply(o op.Operation, in []*table.Table) (*table.Table, error) {
	switch x := o.(type) {
	case op.Ingest:
		if len(x.Filters) == 0 {
			return in[0], nil
		}
		return transform.Filter(in[0], x.Filters)
	case op.FilterRows:
		return transform.Filter(in[0], x.Filters)
	case op.Buffer:
		return transform.Buffer(in[0], x.Distance)
	case op.Join:
		return transform.Join(in[0], in[1], x)
	case op.Aggregate:
		return transform.Aggregate(in[0], x)
	default:
		return nil, errs.Validation("unsupported operation",
			errs.FieldViolation{Field: "type", Reason: fmt.Sprintf("%T cannot be applied", o)})
	}
}
