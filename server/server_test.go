package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/razeghi71/dqflow/engine"
	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/op"
	"github.com/razeghi71/dqflow/wire"
	"github.com/razeghi71/dqflow/workspace"
)

type fixture struct {
	t     *testing.T
	srv   *httptest.Server
	ready *engine.Readiness
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "water_points.csv"),
		[]byte("id,status,geometry\n1,active,POINT (0 0)\n2,broken,POINT (3 4)\n"), 0o644))

	w, err := workspace.New(workspace.DefaultOptions(dir), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	ready := engine.NewReadiness()
	g := engine.Guard(w, ready)
	srv := httptest.NewServer(New(g, ready, nil).Handler())
	t.Cleanup(srv.Close)
	require.NoError(t, g.Init(context.Background()))
	return &fixture{t: t, srv: srv, ready: ready}
}

func (f *fixture) do(method, path string, body any) *http.Response {
	f.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(f.t, err)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (f *fixture) session() string {
	resp := f.do(http.MethodPost, "/api/sessions", nil)
	require.Equal(f.t, http.StatusCreated, resp.StatusCode)
	return string(decode[wire.CreateSessionResponse](f.t, resp).SessionID)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp := f.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[wire.Health](t, resp).Ready)

	f.ready.Reset()
	resp = f.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, errs.CodeNotReady, decode[wire.ErrorBody](t, resp).Error.Code)

	resp = f.do(http.MethodPost, "/api/sessions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	id := f.session()

	resp := f.do(http.MethodPost, "/api/sessions/"+id+"/execute",
		wire.ExecuteRequest{Operation: op.Envelope{Operation: op.Ingest{Source: op.Dataset("water_points")}}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[engine.OperationResult](t, resp)
	require.NotNil(t, res.OutputTable)
	assert.Equal(t, 2, res.Rows())
	temp := res.OutputTable.Name

	resp = f.do(http.MethodHead, "/api/sessions/"+id+"/tables/"+temp, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(http.MethodGet, "/api/sessions/"+id+"/tables?includeTemporary=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tables := decode[wire.ListTablesResponse](t, resp).Tables
	require.Len(t, tables, 1)
	assert.True(t, tables[0].IsTemporary)

	resp = f.do(http.MethodGet, "/api/sessions", nil)
	sessions := decode[wire.ListSessionsResponse](t, resp).Sessions
	require.Len(t, sessions, 1)
	assert.Equal(t, []string{temp}, sessions[0].TempTables)

	resp = f.do(http.MethodPost, "/api/sessions/"+id+"/commit", wire.CommitRequest{TempTable: temp, FinalTable: "points"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(http.MethodPost, "/api/sessions/"+id+"/commit", wire.CommitRequest{TempTable: temp, FinalTable: "points"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(http.MethodGet, "/api/sessions/"+id+"/tables/points/schema", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[wire.SchemaResponse](t, resp).Schema.Columns, 3)

	resp = f.do(http.MethodPost, "/api/sessions/"+id+"/rollback", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestTableExistsDistinguishesUnknownSession(t *testing.T) {
	f := newFixture(t)
	id := f.session()

	resp := f.do(http.MethodHead, "/api/sessions/"+id+"/tables/nothing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(wire.HeaderErrorCode))

	resp = f.do(http.MethodHead, "/api/sessions/ghost/tables/temp_nothing_1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(errs.CodeNotFound), resp.Header.Get(wire.HeaderErrorCode))

	// Persistent names resolve without a live session.
	resp = f.do(http.MethodHead, "/api/sessions/ghost/tables/nothing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(wire.HeaderErrorCode))
}

func TestValidationErrorBody(t *testing.T) {
	f := newFixture(t)
	id := f.session()

	body := `{"operation":{"type":"join","left":{"kind":"persistent","name":"a"},` +
		`"right":{"kind":"persistent","name":"b"},"joinType":"attribute"}}`
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/sessions/"+id+"/execute", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	detail := decode[wire.ErrorBody](t, resp).Error
	assert.Equal(t, errs.CodeValidation, detail.Code)
	require.NotEmpty(t, detail.Fields)
	assert.Equal(t, "on", detail.Fields[0].Field)
}

func TestMalformedBodies(t *testing.T) {
	f := newFixture(t)
	id := f.session()

	for _, body := range []string{`{`, `{"operation":{"type":"teleport"}}`} {
		req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/sessions/"+id+"/execute", strings.NewReader(body))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, body)
		resp.Body.Close()
	}

	resp := f.do(http.MethodGet, "/api/sessions/"+id+"/tables?includeTemporary=maybe", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestDatasetTools(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodGet, "/tools/datasets", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[wire.DatasetsResponse](t, resp).Datasets
	require.Len(t, list, 1)
	assert.Equal(t, "water_points", list[0].Name)

	resp = f.do(http.MethodGet, "/tools/datasets/water_points/columns", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[wire.SchemaResponse](t, resp).Schema.Columns, 3)

	resp = f.do(http.MethodGet, "/tools/datasets/water_points/columns/status/values?limit=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"active"}, decode[wire.ColumnValuesResponse](t, resp).Values)

	resp = f.do(http.MethodGet, "/tools/datasets/nope/columns", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.session()
	resp := f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "dqflow_http_requests_total")
	assert.Contains(t, buf.String(), "dqflow_sessions_active")
}
