package op

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/razeghi71/dqflow/errs"
)

// withType encodes v and prefixes the "type" discriminator.
func withType(t Type, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	tb, _ := json.Marshal(t)
	buf.Write(tb)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

func (o Ingest) MarshalJSON() ([]byte, error) {
	type plain Ingest
	return withType(TypeIngest, plain(o))
}

func (o FilterRows) MarshalJSON() ([]byte, error) {
	type plain FilterRows
	return withType(TypeFilter, plain(o))
}

func (o Buffer) MarshalJSON() ([]byte, error) {
	type plain Buffer
	return withType(TypeBuffer, plain(o))
}

func (o Join) MarshalJSON() ([]byte, error) {
	type plain Join
	return withType(TypeJoin, plain(o))
}

func (o Aggregate) MarshalJSON() ([]byte, error) {
	type plain Aggregate
	return withType(TypeAggregate, plain(o))
}

func (o Export) MarshalJSON() ([]byte, error) {
	type plain Export
	return withType(TypeExport, plain(o))
}

// Marshal encodes an operation with its type discriminator.
func Marshal(o Operation) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("marshal operation: nil operation")
	}
	return json.Marshal(o)
}

// Unmarshal decodes an operation envelope. An unknown or missing type is a
// validation error so that callers can report it like any other bad field.
func Unmarshal(data []byte) (Operation, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, errs.Validation("malformed operation", errs.FieldViolation{Field: "operation", Reason: err.Error()})
	}

	var (
		o   Operation
		err error
	)
	switch head.Type {
	case TypeIngest:
		var v Ingest
		err = decodeInto(data, &v)
		o = v
	case TypeFilter:
		var v FilterRows
		err = decodeInto(data, &v)
		o = v
	case TypeBuffer:
		var v Buffer
		err = decodeInto(data, &v)
		o = v
	case TypeJoin:
		var v Join
		err = decodeInto(data, &v)
		o = v
	case TypeAggregate:
		var v Aggregate
		err = decodeInto(data, &v)
		o = v
	case TypeExport:
		var v Export
		err = decodeInto(data, &v)
		o = v
	case "":
		return nil, errs.Validation("malformed operation", errs.FieldViolation{Field: "type", Reason: "required"})
	default:
		return nil, errs.Validation("malformed operation", errs.FieldViolation{Field: "type", Reason: fmt.Sprintf("unknown operation type %q", head.Type)})
	}
	if err != nil {
		return nil, errs.Validation("malformed operation", errs.FieldViolation{Field: string(head.Type), Reason: err.Error()})
	}
	return o, nil
}

func decodeInto(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// Envelope wraps an Operation so it can be embedded in other JSON documents.
type Envelope struct {
	Operation Operation
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Operation == nil {
		return []byte("null"), nil
	}
	return Marshal(e.Operation)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		e.Operation = nil
		return nil
	}
	o, err := Unmarshal(data)
	if err != nil {
		return err
	}
	e.Operation = o
	return nil
}
