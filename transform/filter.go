// Package transform implements the row-level semantics of the table
// operations on in-memory tables. Inputs are never modified.
package transform

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/op"
	"github.com/razeghi71/dqflow/table"
)

type predicate struct {
	col      int
	operator op.Operator
	value    table.Value
	list     []table.Value
}

// Filter keeps the rows of t that satisfy every filter. Nulls only pass
// not_equals and not_in.
func Filter(t *table.Table, filters []op.Filter) (*table.Table, error) {
	preds, err := compile(t, filters)
	if err != nil {
		return nil, err
	}

	result := table.NewTable(t.Columns)
	for _, row := range t.Rows {
		keep := true
		for _, p := range preds {
			if !p.match(row.Values[p.col]) {
				keep = false
				break
			}
		}
		if keep {
			result.AddRow(row.Values)
		}
	}
	return result, nil
}

func compile(t *table.Table, filters []op.Filter) ([]predicate, error) {
	var v errs.Violations
	preds := make([]predicate, 0, len(filters))
	for i, f := range filters {
		idx := t.ColIndex(f.Column)
		if idx < 0 {
			v.Add(fmt.Sprintf("filters[%d].column", i), "column %q not found", f.Column)
			continue
		}
		p := predicate{col: idx, operator: f.Operator}
		switch f.Operator {
		case op.In, op.NotIn:
			list, err := Literals(f.Value)
			if err != nil {
				v.Add(fmt.Sprintf("filters[%d].value", i), "%s", err)
				continue
			}
			p.list = list
		case op.Equals, op.NotEquals, op.GreaterThan, op.LessThan, op.Contains:
			lit, err := Literal(f.Value)
			if err != nil {
				v.Add(fmt.Sprintf("filters[%d].value", i), "%s", err)
				continue
			}
			p.value = lit
		default:
			v.Add(fmt.Sprintf("filters[%d].operator", i), "unknown operator %q", f.Operator)
			continue
		}
		preds = append(preds, p)
	}
	if err := v.Err("invalid filter"); err != nil {
		return nil, err
	}
	return preds, nil
}

func (p predicate) match(cell table.Value) bool {
	switch p.operator {
	case op.Equals:
		return table.Equal(cell, p.value)
	case op.NotEquals:
		return cell.IsNull() || !table.Equal(cell, p.value)
	case op.GreaterThan:
		return !cell.IsNull() && !p.value.IsNull() && table.Compare(cell, p.value) > 0
	case op.LessThan:
		return !cell.IsNull() && !p.value.IsNull() && table.Compare(cell, p.value) < 0
	case op.Contains:
		return !cell.IsNull() && strings.Contains(cell.AsString(), p.value.AsString())
	case op.In:
		return inList(cell, p.list)
	case op.NotIn:
		return cell.IsNull() || !inList(cell, p.list)
	}
	return false
}

func inList(cell table.Value, list []table.Value) bool {
	for _, v := range list {
		if table.Equal(cell, v) {
			return true
		}
	}
	return false
}

// Literal converts a decoded filter value into a table value.
func Literal(v any) (table.Value, error) {
	switch x := v.(type) {
	case nil:
		return table.Null(), nil
	case json.Number:
		if i, err := strconv.ParseInt(x.String(), 10, 64); err == nil {
			return table.IntVal(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return table.Null(), fmt.Errorf("invalid number %q", x.String())
		}
		return table.FloatVal(f), nil
	case float64:
		if x == float64(int64(x)) {
			return table.IntVal(int64(x)), nil
		}
		return table.FloatVal(x), nil
	case float32:
		return table.FloatVal(float64(x)), nil
	case int:
		return table.IntVal(int64(x)), nil
	case int32:
		return table.IntVal(int64(x)), nil
	case int64:
		return table.IntVal(x), nil
	case string:
		return table.StrVal(x), nil
	case bool:
		return table.BoolVal(x), nil
	case table.Value:
		return x, nil
	default:
		return table.Null(), fmt.Errorf("unsupported value type %T", v)
	}
}

// Literals converts a list filter value.
func Literals(v any) ([]table.Value, error) {
	if v == nil {
		return nil, fmt.Errorf("expected a list of values")
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected a list of values, got %T", v)
	}
	out := make([]table.Value, rv.Len())
	for i := range out {
		lit, err := Literal(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = lit
	}
	return out, nil
}
