package ast

// Literal is a constant in a filter condition: number, string, bool, null.
type Literal struct {
	// Kind: "int", "float", "string", "bool", "null"
	Kind  string
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

// Value returns the literal as a plain Go value.
func (l Literal) Value() any {
	switch l.Kind {
	case "int":
		return l.Int
	case "float":
		return l.Float
	case "string":
		return l.Str
	case "bool":
		return l.Bool
	default:
		return nil
	}
}

// Condition compares one column. Operator is an operation filter operator
// name such as "equals" or "not_in"; In and NotIn carry Values.
type Condition struct {
	Column   string
	Operator string
	Value    Literal
	Values   []Literal
}

// --- Sources ---

// SourceKind tags where a pipeline reads from.
type SourceKind string

const (
	SourceDataset SourceKind = "dataset" // dataset <name>
	SourceFile    SourceKind = "file"    // file "<path>"
	SourceTable   SourceKind = "table"   // table <name>, a persistent table
)

type Source struct {
	Kind SourceKind
	Name string
	Path string
}

// --- Stages ---

// Stage is one step of a pipeline after its source.
type Stage interface {
	stageNode()
}

// FilterStage keeps rows matching every condition.
type FilterStage struct {
	Conditions []Condition
}

func (s *FilterStage) stageNode() {}

// BufferStage buffers the geometry column.
type BufferStage struct {
	Distance float64
}

func (s *BufferStage) stageNode() {}

// JoinStage joins the current table with Right. Exactly one of On and
// Predicate is set.
type JoinStage struct {
	Right     Source
	On        *JoinKeys
	Predicate string // intersects, within, contains, overlaps
}

type JoinKeys struct {
	Left  string
	Right string
}

func (s *JoinStage) stageNode() {}

// Aggregation is "fn(column) as alias"; Column is "*" for count(*).
type Aggregation struct {
	Func   string
	Column string
	Alias  string
}

// AggregateStage groups by GroupBy and computes Aggregations per group.
type AggregateStage struct {
	GroupBy      []string
	Aggregations []Aggregation
}

func (s *AggregateStage) stageNode() {}

// NameStage names the output of the previous stage: "as name".
type NameStage struct {
	Name string
}

func (s *NameStage) stageNode() {}

// SaveStage commits the current table as a persistent table.
type SaveStage struct {
	Name string
}

func (s *SaveStage) stageNode() {}

// ExportStage writes the current table to a file.
type ExportStage struct {
	Format string
	Path   string
}

func (s *ExportStage) stageNode() {}

// Pipeline is a source followed by stages.
type Pipeline struct {
	Line   int
	Source Source
	Stages []Stage
}

// Script is a sequence of pipelines run in order within one session.
type Script struct {
	Pipelines []*Pipeline
}
