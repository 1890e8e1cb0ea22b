package transform

import (
	"fmt"

	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/geo"
	"github.com/razeghi71/dqflow/op"
	"github.com/razeghi71/dqflow/table"
)

// RightSuffix is appended to right-hand column names that collide with a
// left-hand column.
const RightSuffix = "_right"

// Join combines left and right as an inner join. Attribute joins match on
// equal key values; spatial joins match on the geometry predicate. The
// output keeps every left column followed by every right column.
func Join(left, right *table.Table, j op.Join) (*table.Table, error) {
	cols := joinColumns(left.Columns, right.Columns)
	switch j.JoinType {
	case op.JoinAttribute:
		if j.On == nil {
			return nil, errs.Validation("join: missing key columns", errs.FieldViolation{Field: "on", Reason: "required for attribute joins"})
		}
		return attributeJoin(left, right, j.On, cols)
	case op.JoinSpatial:
		return spatialJoin(left, right, j.SpatialPredicate, cols)
	default:
		return nil, errs.Validation("join: unknown join type", errs.FieldViolation{Field: "joinType", Reason: fmt.Sprintf("unknown join type %q", j.JoinType)})
	}
}

func joinColumns(left, right []string) []string {
	taken := make(map[string]bool, len(left)+len(right))
	cols := make([]string, 0, len(left)+len(right))
	for _, c := range left {
		taken[c] = true
		cols = append(cols, c)
	}
	for _, c := range right {
		name := c
		for taken[name] {
			name += RightSuffix
		}
		taken[name] = true
		cols = append(cols, name)
	}
	return cols
}

func attributeJoin(left, right *table.Table, on *op.JoinOn, cols []string) (*table.Table, error) {
	var v errs.Violations
	li := left.ColIndex(on.LeftColumn)
	if li < 0 {
		v.Add("on.leftColumn", "column %q not found in left table", on.LeftColumn)
	}
	ri := right.ColIndex(on.RightColumn)
	if ri < 0 {
		v.Add("on.rightColumn", "column %q not found in right table", on.RightColumn)
	}
	if err := v.Err("invalid join"); err != nil {
		return nil, err
	}

	index := make(map[string][]int)
	for i, row := range right.Rows {
		key := row.Values[ri]
		if key.IsNull() {
			continue
		}
		k := joinKey(key)
		index[k] = append(index[k], i)
	}

	result := table.NewTable(cols)
	for _, lrow := range left.Rows {
		key := lrow.Values[li]
		if key.IsNull() {
			continue
		}
		for _, i := range index[joinKey(key)] {
			result.AddRow(concat(lrow.Values, right.Rows[i].Values))
		}
	}
	return result, nil
}

// joinKey normalises numeric keys so 3 and 3.0 match.
func joinKey(v table.Value) string {
	if f, ok := v.AsFloat(); ok {
		return fmt.Sprintf("n:%g", f)
	}
	return "s:" + v.AsString()
}

func spatialJoin(left, right *table.Table, name op.SpatialPredicate, cols []string) (*table.Table, error) {
	pred, err := geo.Lookup(string(name))
	if err != nil {
		return nil, errs.Validation("join: invalid spatial predicate", errs.FieldViolation{Field: "spatialPredicate", Reason: err.Error()})
	}
	var v errs.Violations
	lg := left.GeometryIndex()
	if lg < 0 {
		v.Add("left", "table has no geometry column")
	}
	rg := right.GeometryIndex()
	if rg < 0 {
		v.Add("right", "table has no geometry column")
	}
	if err := v.Err("invalid spatial join"); err != nil {
		return nil, err
	}

	result := table.NewTable(cols)
	for li, lrow := range left.Rows {
		a := lrow.Values[lg]
		if a.Type != table.TypeGeometry {
			continue
		}
		for ri, rrow := range right.Rows {
			b := rrow.Values[rg]
			if b.Type != table.TypeGeometry {
				continue
			}
			ok, err := pred(a.Geom, b.Geom)
			if err != nil {
				return nil, fmt.Errorf("join: left row %d, right row %d: %w", li, ri, err)
			}
			if ok {
				result.AddRow(concat(lrow.Values, rrow.Values))
			}
		}
	}
	return result, nil
}

func concat(a, b []table.Value) []table.Value {
	vals := make([]table.Value, 0, len(a)+len(b))
	vals = append(vals, a...)
	return append(vals, b...)
}
