// Package op defines the closed set of declarative operations an engine
// executes. Operations carry intent only; they are built by the caller and
// never mutated by the engine.
package op

import (
	"github.com/razeghi71/dqflow/ref"
)

// Type is the discriminator of an Operation on the wire.
type Type string

const (
	TypeIngest    Type = "ingest"
	TypeFilter    Type = "filter"
	TypeBuffer    Type = "buffer"
	TypeJoin      Type = "join"
	TypeAggregate Type = "aggregate"
	TypeExport    Type = "export"
)

// Operation is implemented by Ingest, FilterRows, Buffer, Join, Aggregate and
// Export only.
type Operation interface {
	Type() Type
	operation()
}

// Output holds the optional output naming of a non-terminal operation.
// Persist requests that the result be created directly as the persistent
// table Destination instead of a session temporary.
type Output struct {
	Destination string `json:"destination,omitempty"`
	Persist     bool   `json:"persist,omitempty"`
}

// SourceKind tags an ingest source.
type SourceKind string

const (
	SourceDataset SourceKind = "dataset"
	SourceFile    SourceKind = "file"
)

// Source is where an Ingest reads from.
type Source struct {
	Kind SourceKind `json:"kind"`
	Name string     `json:"name,omitempty"`
	Path string     `json:"path,omitempty"`
}

// Dataset returns a source naming a dataset known to the engine.
func Dataset(name string) Source {
	return Source{Kind: SourceDataset, Name: name}
}

// FileSource returns a source reading an external file.
func FileSource(path string) Source {
	return Source{Kind: SourceFile, Path: path}
}

// Operator is a filter comparison.
type Operator string

const (
	Equals      Operator = "equals"
	NotEquals   Operator = "not_equals"
	In          Operator = "in"
	NotIn       Operator = "not_in"
	GreaterThan Operator = "greater_than"
	LessThan    Operator = "less_than"
	Contains    Operator = "contains"
)

// Filter is a single column predicate. Filters in one operation are ANDed.
type Filter struct {
	Column   string   `json:"column"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// NewFilter builds a Filter value.
func NewFilter(column string, operator Operator, value any) Filter {
	return Filter{Column: column, Operator: operator, Value: value}
}

// Ingest creates a new table from a dataset or file.
type Ingest struct {
	Source  Source   `json:"source"`
	Filters []Filter `json:"filters,omitempty"`
	Output
}

// FilterRows keeps the rows of Input matching every filter.
type FilterRows struct {
	Input   ref.TableRef `json:"input"`
	Filters []Filter     `json:"filters"`
	Output
}

// Buffer replaces each geometry of Input with its buffer at Distance map units.
type Buffer struct {
	Input    ref.TableRef `json:"input"`
	Distance float64      `json:"distance"`
	Output
}

// JoinType selects attribute or spatial matching.
type JoinType string

const (
	JoinAttribute JoinType = "attribute"
	JoinSpatial   JoinType = "spatial"
)

// SpatialPredicate relates left and right geometries in a spatial join.
type SpatialPredicate string

const (
	PredIntersects SpatialPredicate = "intersects"
	PredWithin     SpatialPredicate = "within"
	PredContains   SpatialPredicate = "contains"
	PredOverlaps   SpatialPredicate = "overlaps"
)

// JoinOn names the equi-join columns of an attribute join.
type JoinOn struct {
	LeftColumn  string `json:"leftColumn"`
	RightColumn string `json:"rightColumn"`
}

// Join combines Left and Right. On is required for attribute joins and
// SpatialPredicate for spatial joins.
type Join struct {
	Left             ref.TableRef     `json:"left"`
	Right            ref.TableRef     `json:"right"`
	JoinType         JoinType         `json:"joinType"`
	On               *JoinOn          `json:"on,omitempty"`
	SpatialPredicate SpatialPredicate `json:"spatialPredicate,omitempty"`
	Output
}

// AggFunc is an aggregation function.
type AggFunc string

const (
	Count AggFunc = "count"
	Sum   AggFunc = "sum"
	Avg   AggFunc = "avg"
	Min   AggFunc = "min"
	Max   AggFunc = "max"
)

// Aggregation computes Function over Column into the output column Alias.
type Aggregation struct {
	Column   string  `json:"column"`
	Function AggFunc `json:"function"`
	Alias    string  `json:"alias"`
}

// Aggregate groups Input by GroupBy and computes Aggregations per group.
type Aggregate struct {
	Input        ref.TableRef  `json:"input"`
	GroupBy      []string      `json:"groupBy"`
	Aggregations []Aggregation `json:"aggregations"`
	Output
}

// Format is an export file format.
type Format string

const (
	FormatGPKG    Format = "gpkg"
	FormatGeoJSON Format = "geojson"
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
)

// Export writes Input to Path. It produces no table.
type Export struct {
	Input  ref.TableRef `json:"input"`
	Format Format       `json:"format"`
	Path   string       `json:"path"`
}

func (Ingest) Type() Type     { return TypeIngest }
func (FilterRows) Type() Type { return TypeFilter }
func (Buffer) Type() Type     { return TypeBuffer }
func (Join) Type() Type       { return TypeJoin }
func (Aggregate) Type() Type  { return TypeAggregate }
func (Export) Type() Type     { return TypeExport }

func (Ingest) operation()     {}
func (FilterRows) operation() {}
func (Buffer) operation()     {}
func (Join) operation()       {}
func (Aggregate) operation()  {}
func (Export) operation()     {}

// Inputs returns the table refs an operation reads, in order.
func Inputs(o Operation) []ref.TableRef {
	switch v := o.(type) {
	case Ingest:
		return nil
	case FilterRows:
		return []ref.TableRef{v.Input}
	case Buffer:
		return []ref.TableRef{v.Input}
	case Join:
		return []ref.TableRef{v.Left, v.Right}
	case Aggregate:
		return []ref.TableRef{v.Input}
	case Export:
		return []ref.TableRef{v.Input}
	default:
		return nil
	}
}

// OutputOf returns the output naming of o. Export has none.
func OutputOf(o Operation) (Output, bool) {
	switch v := o.(type) {
	case Ingest:
		return v.Output, true
	case FilterRows:
		return v.Output, true
	case Buffer:
		return v.Output, true
	case Join:
		return v.Output, true
	case Aggregate:
		return v.Output, true
	default:
		return Output{}, false
	}
}
