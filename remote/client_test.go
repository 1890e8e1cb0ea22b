package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/razeghi71/dqflow/engine"
	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/op"
	"github.com/razeghi71/dqflow/ref"
	"github.com/razeghi71/dqflow/server"
	"github.com/razeghi71/dqflow/workspace"
)

func newRemote(t *testing.T) (*Client, *engine.Readiness) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "water_points.csv"),
		[]byte("id,status,geometry\n1,active,POINT (0 0)\n2,active,POINT (1 1)\n3,broken,POINT (9 9)\n"), 0o644))

	w, err := workspace.New(workspace.DefaultOptions(dir), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	ready := engine.NewReadiness()
	g := engine.Guard(w, ready)
	srv := httptest.NewServer(server.New(g, ready, nil).Handler())
	t.Cleanup(srv.Close)
	require.NoError(t, g.Init(context.Background()))

	c, err := New(srv.URL)
	require.NoError(t, err)
	return c, ready
}

func TestRemoteRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newRemote(t)
	require.NoError(t, c.Init(ctx))

	id, err := c.CreateSession(ctx)
	require.NoError(t, err)

	res, err := c.ExecuteOperation(ctx, id, op.Ingest{Source: op.Dataset("water_points")})
	require.NoError(t, err)
	require.NotNil(t, res.OutputTable)
	assert.Equal(t, ref.KindTemporary, res.OutputTable.Kind)
	assert.Equal(t, 3, res.Rows())

	filtered, err := c.ExecuteOperation(ctx, id, op.FilterRows{
		Input:   *res.OutputTable,
		Filters: []op.Filter{op.NewFilter("status", op.In, []string{"active"})},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, filtered.Rows())

	buf, err := c.ExecuteOperation(ctx, id, op.Buffer{Input: *filtered.OutputTable, Distance: 100})
	require.NoError(t, err)
	assert.NotEqual(t, filtered.OutputTable.Name, buf.OutputTable.Name)

	exists, err := c.TableExists(ctx, id, buf.OutputTable.Name)
	require.NoError(t, err)
	assert.True(t, exists)

	tables, err := c.ListTables(ctx, id, true)
	require.NoError(t, err)
	assert.Len(t, tables, 3)

	require.NoError(t, c.CommitTable(ctx, id, buf.OutputTable.Name, "active_buffers"))
	err = c.CommitTable(ctx, id, filtered.OutputTable.Name, "active_buffers")
	assert.True(t, errors.Is(err, errs.ErrConflict))

	require.NoError(t, c.RollbackSession(ctx, id))
	tables, err = c.ListTables(ctx, id, true)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "active_buffers", tables[0].Name)

	require.NoError(t, c.DestroySession(ctx, id))
	require.NoError(t, c.DestroySession(ctx, id))

	other, err := c.CreateSession(ctx)
	require.NoError(t, err)
	schema, err := c.GetTableSchema(ctx, other, "active_buffers")
	require.NoError(t, err)
	assert.Len(t, schema.Columns, 3)

	sessions, err := c.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, other, sessions[0].ID)
}

func TestRemoteCommitOutlivesSession(t *testing.T) {
	ctx := context.Background()
	c, _ := newRemote(t)
	id, err := c.CreateSession(ctx)
	require.NoError(t, err)

	res, err := c.ExecuteOperation(ctx, id, op.Ingest{Source: op.Dataset("water_points")})
	require.NoError(t, err)
	require.NoError(t, c.CommitTable(ctx, id, res.OutputTable.Name, "final_points"))
	require.NoError(t, c.DestroySession(ctx, id))

	schema, err := c.GetTableSchema(ctx, id, "final_points")
	require.NoError(t, err)
	assert.Len(t, schema.Columns, 3)

	exists, err := c.TableExists(ctx, id, "final_points")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = c.GetTableSchema(ctx, id, res.OutputTable.Name)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestRemotePreservesErrorCodes(t *testing.T) {
	ctx := context.Background()
	c, _ := newRemote(t)
	id, err := c.CreateSession(ctx)
	require.NoError(t, err)

	_, err = c.ExecuteOperation(ctx, id, op.Join{
		Left:     ref.MustPersistent("a"),
		Right:    ref.MustPersistent("b"),
		JoinType: op.JoinAttribute,
	})
	require.True(t, errors.Is(err, errs.ErrValidation), "got %v", err)
	fields := errs.FieldsOf(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "on", fields[0].Field)

	_, err = c.GetTableSchema(ctx, id, "missing")
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	exists, err := c.TableExists(ctx, id, "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = c.TableExists(ctx, "ghost", "temp_missing_1")
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	_, err = c.ListTables(ctx, "ghost", false)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	_, err = c.ExecuteOperation(ctx, id, nil)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestRemoteNotReady(t *testing.T) {
	ctx := context.Background()
	c, ready := newRemote(t)
	ready.Reset()

	assert.True(t, errors.Is(c.Init(ctx), errs.ErrNotReady))
	_, err := c.CreateSession(ctx)
	assert.True(t, errors.Is(err, errs.ErrNotReady))
	_, err = c.ListDatasets(ctx)
	assert.True(t, errors.Is(err, errs.ErrNotReady))
}

func TestRemoteDatasets(t *testing.T) {
	ctx := context.Background()
	c, _ := newRemote(t)

	list, err := c.ListDatasets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "water_points", list[0].Name)

	schema, err := c.DatasetColumns(ctx, "water_points")
	require.NoError(t, err)
	assert.Len(t, schema.Columns, 3)

	values, err := c.DatasetColumnValues(ctx, "water_points", "status", 0)
	require.NoError(t, err)
	assert.Equal(t, []any{"active", "broken"}, values)

	_, err = c.DatasetColumnValues(ctx, "water_points", "nope", 0)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestTransportFailures(t *testing.T) {
	ctx := context.Background()

	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()
	c, err := New(url, WithTimeout(time.Second))
	require.NoError(t, err)
	err = c.Init(ctx)
	assert.True(t, errors.Is(err, errs.ErrTransport))
	assert.Contains(t, err.Error(), "unreachable")
	_, err = c.CreateSession(ctx)
	assert.True(t, errors.Is(err, errs.ErrTransport))

	html := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>proxy error</html>"))
	}))
	defer html.Close()
	c, err = New(html.URL)
	require.NoError(t, err)
	_, err = c.CreateSession(ctx)
	assert.True(t, errors.Is(err, errs.ErrTransport))

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer garbage.Close()
	c, err = New(garbage.URL)
	require.NoError(t, err)
	_, err = c.CreateSession(ctx)
	assert.True(t, errors.Is(err, errs.ErrTransport))

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()
	c, err = New(slow.URL, WithTimeout(20*time.Millisecond))
	require.NoError(t, err)
	_, err = c.ListSessions(ctx)
	assert.True(t, errors.Is(err, errs.ErrTransport))
}

func TestRemoteFailedResultIsError(t *testing.T) {
	ctx := context.Background()
	buffer := op.Buffer{Input: ref.MustPersistent("water_points"), Distance: 1}

	cases := []struct {
		name string
		body string
		code errs.Code
	}{
		{"with error", `{"success":false,"error":"boom"}`, errs.CodeInternal},
		{"without error", `{"success":false}`, errs.CodeTransport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			c, err := New(srv.URL)
			require.NoError(t, err)

			res, err := c.ExecuteOperation(ctx, "s1", buffer)
			require.Error(t, err)
			assert.Equal(t, tc.code, errs.CodeOf(err))
			assert.False(t, res.Success)
		})
	}
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("localhost:8080")
	assert.True(t, errors.Is(err, errs.ErrValidation))
}
