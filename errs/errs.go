// Package errs defines the failure taxonomy shared by every engine
// implementation and the wire adapters.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies the kind of an engine failure.
type Code string

const (
	CodeValidation        Code = "validation_error"
	CodeNotFound          Code = "not_found"
	CodeConflict          Code = "conflict"
	CodeResourceExhausted Code = "resource_exhausted"
	CodeTransport         Code = "transport_error"
	CodeNotReady          Code = "not_ready"
	CodeInternal          Code = "internal"
)

// Known reports whether c is one of the codes above.
func (c Code) Known() bool {
	switch c {
	case CodeValidation, CodeNotFound, CodeConflict, CodeResourceExhausted,
		CodeTransport, CodeNotReady, CodeInternal:
		return true
	}
	return false
}

// Retryable reports whether a caller may retry a call that failed with c.
func (c Code) Retryable() bool {
	switch c {
	case CodeResourceExhausted, CodeTransport, CodeNotReady:
		return true
	}
	return false
}

// FieldViolation names one invalid field of an operation or reference.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (v FieldViolation) String() string {
	return v.Field + ": " + v.Reason
}

// Error carries a failure code, an optional list of field violations and
// the underlying cause.
type Error struct {
	Code    Code
	Message string
	Fields  []FieldViolation
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		parts := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			parts[i] = f.String()
		}
		sb.WriteString(" (")
		sb.WriteString(strings.Join(parts, "; "))
		sb.WriteString(")")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, ErrNotFound)
// works for every not-found failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Err == nil && len(t.Fields) == 0
}

// Retryable reports whether the failure may be retried.
func (e *Error) Retryable() bool { return e.Code.Retryable() }

// Sentinels for errors.Is.
var (
	ErrValidation        = &Error{Code: CodeValidation}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrConflict          = &Error{Code: CodeConflict}
	ErrResourceExhausted = &Error{Code: CodeResourceExhausted}
	ErrTransport         = &Error{Code: CodeTransport}
	ErrNotReady          = &Error{Code: CodeNotReady}
	ErrInternal          = &Error{Code: CodeInternal}
)

// New creates an error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to a cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation builds a validation error from a list of violations.
func Validation(message string, fields ...FieldViolation) *Error {
	return &Error{Code: CodeValidation, Message: message, Fields: fields}
}

// NotFound reports a missing session, table or source.
func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, format, args...)
}

// Conflict reports a name collision.
func Conflict(format string, args ...any) *Error {
	return New(CodeConflict, format, args...)
}

// ResourceExhausted reports that the engine is at capacity.
func ResourceExhausted(format string, args ...any) *Error {
	return New(CodeResourceExhausted, format, args...)
}

// Transport reports a wire or backend reachability failure.
func Transport(err error, format string, args ...any) *Error {
	return Wrap(CodeTransport, err, format, args...)
}

// NotReady reports a call issued before the engine signalled readiness.
func NotReady(format string, args ...any) *Error {
	return New(CodeNotReady, format, args...)
}

// CodeOf returns the code of err, or CodeInternal for errors outside the taxonomy.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// FieldsOf returns the field violations carried by err, if any.
func FieldsOf(err error) []FieldViolation {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// Violations accumulates field violations while validating a value.
type Violations []FieldViolation

// Add records a violation.
func (v *Violations) Add(field, format string, args ...any) {
	*v = append(*v, FieldViolation{Field: field, Reason: fmt.Sprintf(format, args...)})
}

// Merge appends the violations carried by err under a field prefix.
func (v *Violations) Merge(prefix string, err error) {
	if err == nil {
		return
	}
	fields := FieldsOf(err)
	if len(fields) == 0 {
		v.Add(prefix, "%s", err.Error())
		return
	}
	for _, f := range fields {
		name := f.Field
		if prefix != "" {
			name = prefix + "." + f.Field
		}
		*v = append(*v, FieldViolation{Field: name, Reason: f.Reason})
	}
}

// Err returns a validation error listing every violation, or nil.
func (v Violations) Err(message string) error {
	if len(v) == 0 {
		return nil
	}
	return Validation(message, v...)
}
