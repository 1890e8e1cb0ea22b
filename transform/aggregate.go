package transform

import (
	"fmt"

	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/op"
	"github.com/razeghi71/dqflow/table"
)

type accumulator struct {
	fn    op.AggFunc
	col   int // -1 counts rows
	count int64
	sum   float64
	ints  bool
	isum  int64
	best  table.Value
}

func (a *accumulator) add(row table.Row) {
	if a.col < 0 {
		a.count++
		return
	}
	v := row.Values[a.col]
	if v.IsNull() {
		return
	}
	a.count++
	switch a.fn {
	case op.Sum, op.Avg:
		f, ok := v.AsFloat()
		if !ok {
			return
		}
		a.sum += f
		if v.Type == table.TypeInt {
			a.isum += v.Int
		} else {
			a.ints = false
		}
	case op.Min:
		if a.best.IsNull() || table.Compare(v, a.best) < 0 {
			a.best = v
		}
	case op.Max:
		if a.best.IsNull() || table.Compare(v, a.best) > 0 {
			a.best = v
		}
	}
}

func (a *accumulator) result() table.Value {
	switch a.fn {
	case op.Count:
		return table.IntVal(a.count)
	case op.Sum:
		if a.count == 0 {
			return table.Null()
		}
		if a.ints {
			return table.IntVal(a.isum)
		}
		return table.FloatVal(a.sum)
	case op.Avg:
		if a.count == 0 {
			return table.Null()
		}
		return table.FloatVal(a.sum / float64(a.count))
	default:
		return a.best
	}
}

// Aggregate groups t by the group-by columns and computes one output column
// per aggregation. Groups appear in first-seen order. Without group-by
// columns the whole table is one group.
func Aggregate(t *table.Table, a op.Aggregate) (*table.Table, error) {
	var v errs.Violations
	groupIdx := make([]int, len(a.GroupBy))
	for i, c := range a.GroupBy {
		groupIdx[i] = t.ColIndex(c)
		if groupIdx[i] < 0 {
			v.Add(fmt.Sprintf("groupBy[%d]", i), "column %q not found", c)
		}
	}
	aggIdx := make([]int, len(a.Aggregations))
	for i, agg := range a.Aggregations {
		if agg.Function == op.Count && agg.Column == "*" {
			aggIdx[i] = -1
			continue
		}
		aggIdx[i] = t.ColIndex(agg.Column)
		if aggIdx[i] < 0 {
			v.Add(fmt.Sprintf("aggregations[%d].column", i), "column %q not found", agg.Column)
			continue
		}
		if agg.Function == op.Sum || agg.Function == op.Avg {
			if bad, found := firstNonNumeric(t, aggIdx[i]); found {
				v.Add(fmt.Sprintf("aggregations[%d].column", i), "%s requires a numeric column, %q holds %q", agg.Function, agg.Column, bad.AsString())
			}
		}
	}
	if err := v.Err("invalid aggregate"); err != nil {
		return nil, err
	}

	type group struct {
		key  []table.Value
		accs []*accumulator
	}
	var groups []*group
	byKey := make(map[string]*group)

	newGroup := func(key []table.Value) *group {
		g := &group{key: key, accs: make([]*accumulator, len(a.Aggregations))}
		for i, agg := range a.Aggregations {
			g.accs[i] = &accumulator{fn: agg.Function, col: aggIdx[i], ints: true, best: table.Null()}
		}
		groups = append(groups, g)
		return g
	}

	if len(groupIdx) == 0 {
		newGroup(nil)
	}
	for _, row := range t.Rows {
		var g *group
		if len(groupIdx) == 0 {
			g = groups[0]
		} else {
			k := table.KeyOf(row, groupIdx)
			g = byKey[k]
			if g == nil {
				key := make([]table.Value, len(groupIdx))
				for i, idx := range groupIdx {
					key[i] = row.Values[idx]
				}
				g = newGroup(key)
				byKey[k] = g
			}
		}
		for _, acc := range g.accs {
			acc.add(row)
		}
	}

	cols := make([]string, 0, len(a.GroupBy)+len(a.Aggregations))
	cols = append(cols, a.GroupBy...)
	for _, agg := range a.Aggregations {
		cols = append(cols, agg.Alias)
	}
	result := table.NewTable(cols)
	for _, g := range groups {
		vals := make([]table.Value, 0, len(cols))
		vals = append(vals, g.key...)
		for _, acc := range g.accs {
			vals = append(vals, acc.result())
		}
		result.AddRow(vals)
	}
	return result, nil
}

// firstNonNumeric returns the first non-null value of column idx that is
// not a number.
func firstNonNumeric(t *table.Table, idx int) (table.Value, bool) {
	for _, r := range t.Rows {
		v := r.Values[idx]
		if v.IsNull() {
			continue
		}
		if _, ok := v.AsFloat(); !ok {
			return v, true
		}
	}
	return table.Null(), false
}
