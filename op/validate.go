package op

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/ref"
)

// Validate checks the invariants of o and returns one validation error
// listing every violated field, or nil.
func Validate(o Operation) error {
	var v errs.Violations
	switch x := o.(type) {
	case Ingest:
		validateSource(&v, x.Source)
		validateFilters(&v, x.Filters)
		validateOutput(&v, x.Output)
	case FilterRows:
		validateInput(&v, "input", x.Input)
		validateFilters(&v, x.Filters)
		validateOutput(&v, x.Output)
	case Buffer:
		validateInput(&v, "input", x.Input)
		if math.IsNaN(x.Distance) || math.IsInf(x.Distance, 0) || x.Distance <= 0 {
			v.Add("distance", "must be a finite number greater than zero")
		}
		validateOutput(&v, x.Output)
	case Join:
		validateJoin(&v, x)
	case Aggregate:
		validateAggregate(&v, x)
	case Export:
		validateInput(&v, "input", x.Input)
		switch x.Format {
		case FormatGPKG, FormatGeoJSON, FormatParquet, FormatCSV:
		case "":
			v.Add("format", "required")
		default:
			v.Add("format", "unknown format %q", x.Format)
		}
		if strings.TrimSpace(x.Path) == "" {
			v.Add("path", "required")
		}
	case nil:
		v.Add("operation", "required")
	default:
		v.Add("type", "unsupported operation %T", o)
	}
	if o == nil {
		return v.Err("invalid operation")
	}
	return v.Err(fmt.Sprintf("invalid %s operation", o.Type()))
}

func validateSource(v *errs.Violations, s Source) {
	switch s.Kind {
	case SourceDataset:
		if err := ref.CheckName(s.Name); err != nil {
			v.Add("source.name", "%s", err)
		}
		if s.Path != "" {
			v.Add("source.path", "not allowed on a dataset source")
		}
	case SourceFile:
		if strings.TrimSpace(s.Path) == "" {
			v.Add("source.path", "required")
		}
		if s.Name != "" {
			v.Add("source.name", "not allowed on a file source")
		}
	case "":
		v.Add("source.kind", "required")
	default:
		v.Add("source.kind", "unknown source kind %q", s.Kind)
	}
}

func validateInput(v *errs.Violations, field string, r ref.TableRef) {
	v.Merge(field, r.Validate())
}

func validateOutput(v *errs.Violations, out Output) {
	if out.Destination != "" {
		if err := ref.ValidateDestination(out.Destination); err != nil {
			v.Add("destination", "%s", err)
		}
	}
	if out.Persist && out.Destination == "" {
		v.Add("persist", "requires a destination")
	}
}

func validateFilters(v *errs.Violations, filters []Filter) {
	for i, f := range filters {
		prefix := fmt.Sprintf("filters[%d]", i)
		if strings.TrimSpace(f.Column) == "" {
			v.Add(prefix+".column", "required")
		}
		switch f.Operator {
		case Equals, NotEquals, GreaterThan, LessThan, Contains:
			if f.Value == nil {
				v.Add(prefix+".value", "required")
			} else if isList(f.Value) {
				v.Add(prefix+".value", "operator %s takes a single value", f.Operator)
			}
		case In, NotIn:
			if !isList(f.Value) {
				v.Add(prefix+".value", "operator %s takes a list of values", f.Operator)
			}
		case "":
			v.Add(prefix+".operator", "required")
		default:
			v.Add(prefix+".operator", "unknown operator %q", f.Operator)
		}
	}
}

func isList(value any) bool {
	if value == nil {
		return false
	}
	k := reflect.TypeOf(value).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func validateJoin(v *errs.Violations, j Join) {
	validateInput(v, "left", j.Left)
	validateInput(v, "right", j.Right)

	switch j.JoinType {
	case JoinAttribute:
		if j.On == nil {
			v.Add("on", "required for attribute joins")
		} else {
			if strings.TrimSpace(j.On.LeftColumn) == "" {
				v.Add("on.leftColumn", "required")
			}
			if strings.TrimSpace(j.On.RightColumn) == "" {
				v.Add("on.rightColumn", "required")
			}
		}
		if j.SpatialPredicate != "" {
			v.Add("spatialPredicate", "only valid for spatial joins")
		}
	case JoinSpatial:
		switch j.SpatialPredicate {
		case PredIntersects, PredWithin, PredContains, PredOverlaps:
		case "":
			v.Add("spatialPredicate", "required for spatial joins")
		default:
			v.Add("spatialPredicate", "unknown predicate %q", j.SpatialPredicate)
		}
		if j.On != nil {
			v.Add("on", "only valid for attribute joins")
		}
	case "":
		v.Add("joinType", "required")
	default:
		v.Add("joinType", "unknown join type %q", j.JoinType)
	}
	validateOutput(v, j.Output)
}

func validateAggregate(v *errs.Violations, a Aggregate) {
	validateInput(v, "input", a.Input)

	groups := make(map[string]bool, len(a.GroupBy))
	for i, g := range a.GroupBy {
		if strings.TrimSpace(g) == "" {
			v.Add(fmt.Sprintf("groupBy[%d]", i), "must not be empty")
			continue
		}
		if groups[g] {
			v.Add(fmt.Sprintf("groupBy[%d]", i), "duplicate column %q", g)
		}
		groups[g] = true
	}

	if len(a.Aggregations) == 0 {
		v.Add("aggregations", "at least one aggregation is required")
	}
	aliases := make(map[string]bool, len(a.Aggregations))
	for i, agg := range a.Aggregations {
		prefix := fmt.Sprintf("aggregations[%d]", i)
		switch agg.Function {
		case Count:
			if strings.TrimSpace(agg.Column) == "" {
				v.Add(prefix+".column", "required (use \"*\" to count rows)")
			}
		case Sum, Avg, Min, Max:
			if strings.TrimSpace(agg.Column) == "" || agg.Column == "*" {
				v.Add(prefix+".column", "a column is required for %s", agg.Function)
			}
		case "":
			v.Add(prefix+".function", "required")
		default:
			v.Add(prefix+".function", "unknown function %q", agg.Function)
		}

		if err := ref.CheckName(agg.Alias); err != nil {
			v.Add(prefix+".alias", "%s", err)
			continue
		}
		if aliases[agg.Alias] {
			v.Add(prefix+".alias", "duplicate alias %q", agg.Alias)
		}
		if groups[agg.Alias] {
			v.Add(prefix+".alias", "alias %q collides with a group-by column", agg.Alias)
		}
		aliases[agg.Alias] = true
	}
	validateOutput(v, a.Output)
}
