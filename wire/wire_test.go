package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/op"
)

func TestStatusMapping(t *testing.T) {
	cases := map[errs.Code]int{
		errs.CodeValidation:        http.StatusUnprocessableEntity,
		errs.CodeNotFound:          http.StatusNotFound,
		errs.CodeConflict:          http.StatusConflict,
		errs.CodeResourceExhausted: http.StatusTooManyRequests,
		errs.CodeNotReady:          http.StatusServiceUnavailable,
		errs.CodeInternal:          http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, Status(code), code)
		assert.Equal(t, code, CodeForStatus(status), status)
	}
	assert.Equal(t, errs.CodeTransport, CodeForStatus(http.StatusTeapot))
}

func TestErrorBodyRoundTrip(t *testing.T) {
	src := errs.Validation("invalid join operation",
		errs.FieldViolation{Field: "on", Reason: "required for attribute joins"})
	data, err := json.Marshal(FromError(src))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":{"code":"validation_error","message":"invalid join operation",
		"fields":[{"field":"on","reason":"required for attribute joins"}]}}`, string(data))

	var body ErrorBody
	require.NoError(t, json.Unmarshal(data, &body))
	back := body.Error.Err()
	assert.True(t, errors.Is(back, errs.ErrValidation))
	assert.Equal(t, src.Fields, errs.FieldsOf(back))
}

func TestFromForeignError(t *testing.T) {
	body := FromError(fmt.Errorf("disk full"))
	assert.Equal(t, errs.CodeInternal, body.Error.Code)
	assert.Equal(t, "disk full", body.Error.Message)
}

func TestUnknownCodeIsTransport(t *testing.T) {
	err := ErrorDetail{Code: "teapot", Message: "short and stout"}.Err()
	assert.True(t, errors.Is(err, errs.ErrTransport))
}

func TestExecuteRequestCarriesOperation(t *testing.T) {
	req := ExecuteRequest{Operation: op.Envelope{Operation: op.Buffer{Distance: 5}}}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var back ExecuteRequest
	require.NoError(t, json.Unmarshal(data, &back))
	buf, ok := back.Operation.Operation.(op.Buffer)
	require.True(t, ok)
	assert.Equal(t, 5.0, buf.Distance)
}
