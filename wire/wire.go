// Package wire holds the HTTP/JSON documents exchanged between the engine
// server and the remote adapter, and the mapping between failure codes and
// HTTP status codes.
package wire

import (
	"errors"
	"net/http"

	"github.com/razeghi71/dqflow/engine"
	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/op"
	"github.com/razeghi71/dqflow/ref"
)

// HeaderErrorCode carries the failure code on responses without a body.
const HeaderErrorCode = "X-Error-Code"

// ErrorDetail is the error object of a failed call.
type ErrorDetail struct {
	Code    errs.Code             `json:"code"`
	Message string                `json:"message"`
	Fields  []errs.FieldViolation `json:"fields,omitempty"`
}

// ErrorBody is the body of every non-2xx response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// Health is returned by GET /.
type Health struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}

// CreateSessionResponse is the body of POST /api/sessions.
type CreateSessionResponse struct {
	SessionID ref.SessionID `json:"session_id"`
}

// ListSessionsResponse is the body of GET /api/sessions.
type ListSessionsResponse struct {
	Sessions []engine.SessionInfo `json:"sessions"`
}

// ListTablesResponse is the body of GET /api/sessions/:id/tables.
type ListTablesResponse struct {
	Tables []engine.TableInfo `json:"tables"`
}

// SchemaResponse carries a table or dataset schema.
type SchemaResponse struct {
	Schema engine.Schema `json:"schema"`
}

// ExecuteRequest is the body of POST /api/sessions/:id/execute.
type ExecuteRequest struct {
	Operation op.Envelope `json:"operation"`
}

// CommitRequest is the body of POST /api/sessions/:id/commit.
type CommitRequest struct {
	TempTable  string `json:"tempTable"`
	FinalTable string `json:"finalTable"`
}

// DatasetsResponse is the body of GET /tools/datasets.
type DatasetsResponse struct {
	Datasets []engine.Dataset `json:"datasets"`
}

// ColumnValuesResponse lists distinct values of a dataset column.
type ColumnValuesResponse struct {
	Values []any `json:"values"`
}

// Status returns the HTTP status for a failure code.
func Status(code errs.Code) int {
	switch code {
	case errs.CodeValidation:
		return http.StatusUnprocessableEntity
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeConflict:
		return http.StatusConflict
	case errs.CodeResourceExhausted:
		return http.StatusTooManyRequests
	case errs.CodeNotReady:
		return http.StatusServiceUnavailable
	case errs.CodeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CodeForStatus guesses the failure code of a response that carries no
// error body or header.
func CodeForStatus(status int) errs.Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errs.CodeValidation
	case http.StatusNotFound:
		return errs.CodeNotFound
	case http.StatusConflict:
		return errs.CodeConflict
	case http.StatusTooManyRequests:
		return errs.CodeResourceExhausted
	case http.StatusServiceUnavailable:
		return errs.CodeNotReady
	case http.StatusInternalServerError:
		return errs.CodeInternal
	default:
		return errs.CodeTransport
	}
}

// FromError builds the error body for err.
func FromError(err error) ErrorBody {
	var e *errs.Error
	if errors.As(err, &e) {
		msg := e.Message
		switch {
		case e.Err != nil && msg != "":
			msg += ": " + e.Err.Error()
		case e.Err != nil:
			msg = e.Err.Error()
		}
		return ErrorBody{Error: ErrorDetail{Code: e.Code, Message: msg, Fields: e.Fields}}
	}
	return ErrorBody{Error: ErrorDetail{Code: errs.CodeInternal, Message: err.Error()}}
}

// Err turns a decoded error body back into an *errs.Error. Codes outside
// the taxonomy are reported as transport errors.
func (d ErrorDetail) Err() error {
	if !d.Code.Known() {
		return errs.Transport(nil, "unexpected error code %q: %s", d.Code, d.Message)
	}
	return &errs.Error{Code: d.Code, Message: d.Message, Fields: d.Fields}
}
