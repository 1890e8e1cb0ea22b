// Package remote implements engine.Engine against an engine server over
// HTTP/JSON. Every call is one request; failures come back with the same
// error code the server reported.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/razeghi71/dqflow/engine"
	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/op"
	"github.com/razeghi71/dqflow/ref"
	"github.com/razeghi71/dqflow/wire"
)

// DefaultTimeout bounds a single call.
const DefaultTimeout = 30 * time.Second

// Client is a remote engine.
type Client struct {
	base *url.URL
	http *http.Client
	log  *zap.SugaredLogger
}

var (
	_ engine.Engine         = (*Client)(nil)
	_ engine.Initializer    = (*Client)(nil)
	_ engine.DatasetBrowser = (*Client)(nil)
	_ engine.SessionLister  = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithLogger sets the client logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errs.Validation("invalid engine url", errs.FieldViolation{Field: "url", Reason: fmt.Sprintf("%q is not an absolute URL", baseURL)})
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: DefaultTimeout},
		log:  zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) url(query url.Values, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	target := c.base.String() + "/" + strings.Join(escaped, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func (c *Client) send(ctx context.Context, method, target string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, errs.Wrap(errs.CodeValidation, err, "encode request")
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errs.Transport(err, "build request %s %s", method, target)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Transport(err, "%s %s", method, target)
	}
	c.log.Debugw("engine call", "method", method, "url", target, "status", resp.StatusCode, "elapsed", time.Since(start).String())
	return resp, nil
}

// call performs one JSON round trip and decodes a 2xx body into out.
func (c *Client) call(ctx context.Context, method, target string, in, out any) error {
	resp, err := c.send(ctx, method, target, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Transport(err, "malformed response from %s %s", method, target)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Transport(err, "read %d response", resp.StatusCode)
	}
	var body wire.ErrorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Code == "" {
		return errs.Transport(err, "unexpected %d response: %s", resp.StatusCode, snippet(data))
	}
	return body.Error.Err()
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// Init checks that the server is reachable and ready.
func (c *Client) Init(ctx context.Context) error {
	var h wire.Health
	err := c.call(ctx, http.MethodGet, c.url(nil), nil, &h)
	switch {
	case errs.CodeOf(err) == errs.CodeTransport:
		return errs.Transport(err, "engine at %s is unreachable", c.base)
	case err != nil:
		return err
	case !h.Ready:
		return errs.NotReady("engine at %s is not ready", c.base)
	}
	return nil
}

// CreateSession allocates a session on the server.
func (c *Client) CreateSession(ctx context.Context) (ref.SessionID, error) {
	var out wire.CreateSessionResponse
	if err := c.call(ctx, http.MethodPost, c.url(nil, "api", "sessions"), nil, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", errs.Transport(nil, "server returned an empty session id")
	}
	return out.SessionID, nil
}

// ListSessions lists the server's live sessions.
func (c *Client) ListSessions(ctx context.Context) ([]engine.SessionInfo, error) {
	var out wire.ListSessionsResponse
	if err := c.call(ctx, http.MethodGet, c.url(nil, "api", "sessions"), nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// DestroySession drops the temporaries of id on the server.
func (c *Client) DestroySession(ctx context.Context, id ref.SessionID) error {
	return c.call(ctx, http.MethodDelete, c.url(nil, "api", "sessions", string(id)), nil, nil)
}

// ListTables lists the tables visible to id.
func (c *Client) ListTables(ctx context.Context, id ref.SessionID, includeTemporary bool) ([]engine.TableInfo, error) {
	q := url.Values{"includeTemporary": {strconv.FormatBool(includeTemporary)}}
	var out wire.ListTablesResponse
	if err := c.call(ctx, http.MethodGet, c.url(q, "api", "sessions", string(id), "tables"), nil, &out); err != nil {
		return nil, err
	}
	return out.Tables, nil
}

// TableExists checks name with a HEAD request. A bare 404 means false.
func (c *Client) TableExists(ctx context.Context, id ref.SessionID, name string) (bool, error) {
	resp, err := c.send(ctx, http.MethodHead, c.url(nil, "api", "sessions", string(id), "tables", name), nil)
	if err != nil {
		return false, err
	}
	resp.Body.Close()

	code := errs.Code(resp.Header.Get(wire.HeaderErrorCode))
	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound && code == "":
		return false, nil
	case code.Known():
		return false, errs.New(code, "table exists check for %q in session %s failed", name, id)
	default:
		return false, errs.New(wire.CodeForStatus(resp.StatusCode), "unexpected %d response to table exists check", resp.StatusCode)
	}
}

// GetTableSchema fetches the schema of name as seen by id.
func (c *Client) GetTableSchema(ctx context.Context, id ref.SessionID, name string) (engine.Schema, error) {
	var out wire.SchemaResponse
	if err := c.call(ctx, http.MethodGet, c.url(nil, "api", "sessions", string(id), "tables", name, "schema"), nil, &out); err != nil {
		return engine.Schema{}, err
	}
	return out.Schema, nil
}

// ExecuteOperation runs o in session id. A 2xx result that reports
// failure is returned as an error.
func (c *Client) ExecuteOperation(ctx context.Context, id ref.SessionID, o op.Operation) (engine.OperationResult, error) {
	if o == nil {
		return engine.OperationResult{}, op.Validate(o)
	}
	var out engine.OperationResult
	req := wire.ExecuteRequest{Operation: op.Envelope{Operation: o}}
	if err := c.call(ctx, http.MethodPost, c.url(nil, "api", "sessions", string(id), "execute"), req, &out); err != nil {
		return engine.OperationResult{}, err
	}
	if !out.Success {
		if out.Error == "" {
			return engine.OperationResult{}, errs.Transport(nil, "malformed response: %s operation failed without an error", o.Type())
		}
		return engine.OperationResult{}, errs.New(errs.CodeInternal, "%s operation failed: %s", o.Type(), out.Error)
	}
	return out, nil
}

// CommitTable promotes tempName of id to the persistent table finalName.
func (c *Client) CommitTable(ctx context.Context, id ref.SessionID, tempName, finalName string) error {
	req := wire.CommitRequest{TempTable: tempName, FinalTable: finalName}
	return c.call(ctx, http.MethodPost, c.url(nil, "api", "sessions", string(id), "commit"), req, nil)
}

// RollbackSession drops every temporary of id.
func (c *Client) RollbackSession(ctx context.Context, id ref.SessionID) error {
	return c.call(ctx, http.MethodPost, c.url(nil, "api", "sessions", string(id), "rollback"), nil, nil)
}

// ListDatasets lists the server's datasets.
func (c *Client) ListDatasets(ctx context.Context) ([]engine.Dataset, error) {
	var out wire.DatasetsResponse
	if err := c.call(ctx, http.MethodGet, c.url(nil, "tools", "datasets"), nil, &out); err != nil {
		return nil, err
	}
	return out.Datasets, nil
}

// DatasetColumns fetches the schema of a dataset.
func (c *Client) DatasetColumns(ctx context.Context, name string) (engine.Schema, error) {
	var out wire.SchemaResponse
	if err := c.call(ctx, http.MethodGet, c.url(nil, "tools", "datasets", name, "columns"), nil, &out); err != nil {
		return engine.Schema{}, err
	}
	return out.Schema, nil
}

// DatasetColumnValues fetches distinct values of a dataset column. A
// non-positive limit uses the server default.
func (c *Client) DatasetColumnValues(ctx context.Context, name, column string, limit int) ([]any, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out wire.ColumnValuesResponse
	if err := c.call(ctx, http.MethodGet, c.url(q, "tools", "datasets", name, "columns", column, "values"), nil, &out); err != nil {
		return nil, err
	}
	return out.Values, nil
}
