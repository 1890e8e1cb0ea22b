// Package workflow runs parsed scripts against an engine.Engine. Each
// pipeline becomes a chain of operations inside one session; "save" stages
// commit the current table and everything else stays temporary.
package workflow

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/razeghi71/dqflow/ast"
	"github.com/razeghi71/dqflow/engine"
	"github.com/razeghi71/dqflow/op"
	"github.com/razeghi71/dqflow/parser"
	"github.com/razeghi71/dqflow/ref"
)

// Step is the outcome of one stage.
type Step struct {
	Stage  string
	Table  *ref.TableRef
	Rows   int
	Detail string
}

// Result is the outcome of one pipeline.
type Result struct {
	Line  int
	Steps []Step
	// Table is the last table the pipeline produced or saved.
	Table *ref.TableRef
}

// Runner executes scripts. It is safe for concurrent use when the engine is.
type Runner struct {
	eng engine.Engine
	log *zap.SugaredLogger
}

// NewRunner returns a runner over e. A nil log discards output.
func NewRunner(e engine.Engine, log *zap.SugaredLogger) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{eng: e, log: log}
}

// RunSource parses src and runs it.
func (r *Runner) RunSource(ctx context.Context, src string) ([]Result, error) {
	script, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, script)
}

// Run executes every pipeline of script in order in a fresh session, which
// is destroyed afterwards. Tables saved before a failure stay committed.
func (r *Runner) Run(ctx context.Context, script *ast.Script) (results []Result, err error) {
	id, err := r.eng.CreateSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer func() {
		// The run context may be cancelled already; cleanup must still reach the engine.
		if derr := r.eng.DestroySession(context.WithoutCancel(ctx), id); derr != nil {
			err = multierr.Append(err, fmt.Errorf("destroy session: %w", derr))
		}
	}()

	for _, pl := range script.Pipelines {
		res, err := r.runPipeline(ctx, id, pl)
		results = append(results, res)
		if err != nil {
			return results, fmt.Errorf("line %d: %w", pl.Line, err)
		}
	}
	return results, nil
}

type pipelineRun struct {
	r   *Runner
	ctx context.Context
	id  ref.SessionID
	res *Result
	cur ref.TableRef
}

func (r *Runner) runPipeline(ctx context.Context, id ref.SessionID, pl *ast.Pipeline) (Result, error) {
	res := Result{Line: pl.Line}
	run := &pipelineRun{r: r, ctx: ctx, id: id, res: &res}

	stages := pl.Stages
	cur, err := run.open(pl.Source, nameHint(stages, 0), "source")
	if err != nil {
		return res, err
	}
	run.cur = cur

	for i, st := range stages {
		hint := nameHint(stages, i+1)
		if err := run.stage(st, hint); err != nil {
			return res, err
		}
	}
	return res, nil
}

// nameHint returns the name of an "as" stage at position i, if any.
func nameHint(stages []ast.Stage, i int) string {
	if i < len(stages) {
		if n, ok := stages[i].(*ast.NameStage); ok {
			return n.Name
		}
	}
	return ""
}

// open turns a source into a table ref. Datasets and pipeline-level files
// are ingested; persistent tables and join-side files are read in place.
func (p *pipelineRun) open(src ast.Source, hint, stage string) (ref.TableRef, error) {
	switch src.Kind {
	case ast.SourceTable:
		return ref.Persistent(src.Name)
	case ast.SourceDataset:
		return p.exec(stage, op.Ingest{Source: op.Dataset(src.Name), Output: op.Output{Destination: hint}})
	case ast.SourceFile:
		if stage == "join-source" {
			return ref.File(src.Path)
		}
		return p.exec(stage, op.Ingest{Source: op.FileSource(src.Path), Output: op.Output{Destination: hint}})
	default:
		return ref.TableRef{}, fmt.Errorf("unknown source kind %q", src.Kind)
	}
}

func (p *pipelineRun) stage(st ast.Stage, hint string) error {
	out := op.Output{Destination: hint}
	var (
		next ref.TableRef
		err  error
	)
	switch s := st.(type) {
	case *ast.NameStage:
		return nil
	case *ast.FilterStage:
		next, err = p.exec("filter", op.FilterRows{Input: p.cur, Filters: filters(s.Conditions), Output: out})
	case *ast.BufferStage:
		next, err = p.exec("buffer", op.Buffer{Input: p.cur, Distance: s.Distance, Output: out})
	case *ast.JoinStage:
		next, err = p.join(s, out)
	case *ast.AggregateStage:
		next, err = p.exec("aggregate", aggregate(p.cur, s, out))
	case *ast.SaveStage:
		next, err = p.save(s.Name)
	case *ast.ExportStage:
		return p.export(s)
	default:
		return fmt.Errorf("unsupported stage %T", st)
	}
	if err != nil {
		return err
	}
	p.cur = next
	return nil
}

func (p *pipelineRun) join(s *ast.JoinStage, out op.Output) (ref.TableRef, error) {
	right, err := p.open(s.Right, "", "join-source")
	if err != nil {
		return ref.TableRef{}, err
	}
	j := op.Join{Left: p.cur, Right: right, Output: out}
	if s.On != nil {
		j.JoinType = op.JoinAttribute
		j.On = &op.JoinOn{LeftColumn: s.On.Left, RightColumn: s.On.Right}
	} else {
		j.JoinType = op.JoinSpatial
		j.SpatialPredicate = op.SpatialPredicate(s.Predicate)
	}
	return p.exec("join", j)
}

// save commits the current table as name. A table the session does not own
// is copied into a temporary first.
func (p *pipelineRun) save(name string) (ref.TableRef, error) {
	temp := p.cur
	if temp.Kind != ref.KindTemporary {
		var err error
		if temp, err = p.exec("copy", op.FilterRows{Input: p.cur}); err != nil {
			return ref.TableRef{}, err
		}
	}
	if err := p.r.eng.CommitTable(p.ctx, p.id, temp.Name, name); err != nil {
		return ref.TableRef{}, fmt.Errorf("save %s: %w", name, err)
	}
	saved := ref.MustPersistent(name)
	p.record(Step{Stage: "save", Table: &saved, Detail: fmt.Sprintf("committed %s as %s", temp.Name, name)})
	p.r.log.Infow("table saved", "session", p.id, "temp", temp.Name, "table", name)
	return saved, nil
}

func (p *pipelineRun) export(s *ast.ExportStage) error {
	res, err := p.r.eng.ExecuteOperation(p.ctx, p.id, op.Export{Input: p.cur, Format: op.Format(s.Format), Path: s.Path})
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	p.record(Step{Stage: "export", Rows: res.Rows(), Detail: res.Message})
	return nil
}

func (p *pipelineRun) exec(stage string, o op.Operation) (ref.TableRef, error) {
	res, err := p.r.eng.ExecuteOperation(p.ctx, p.id, o)
	if err != nil {
		return ref.TableRef{}, fmt.Errorf("%s: %w", stage, err)
	}
	if res.OutputTable == nil {
		return ref.TableRef{}, fmt.Errorf("%s: engine returned no output table", stage)
	}
	p.record(Step{Stage: stage, Table: res.OutputTable, Rows: res.Rows()})
	p.r.log.Debugw("stage done", "session", p.id, "stage", stage, "table", res.OutputTable.Name, "rows", res.Rows())
	return *res.OutputTable, nil
}

func (p *pipelineRun) record(s Step) {
	p.res.Steps = append(p.res.Steps, s)
	if s.Table != nil {
		p.res.Table = s.Table
	}
}

func filters(conds []ast.Condition) []op.Filter {
	out := make([]op.Filter, 0, len(conds))
	for _, c := range conds {
		var value any
		if c.Values != nil {
			list := make([]any, len(c.Values))
			for i, v := range c.Values {
				list[i] = v.Value()
			}
			value = list
		} else {
			value = c.Value.Value()
		}
		out = append(out, op.NewFilter(c.Column, op.Operator(c.Operator), value))
	}
	return out
}

func aggregate(in ref.TableRef, s *ast.AggregateStage, out op.Output) op.Aggregate {
	a := op.Aggregate{Input: in, GroupBy: s.GroupBy, Output: out}
	if a.GroupBy == nil {
		a.GroupBy = []string{}
	}
	for _, g := range s.Aggregations {
		a.Aggregations = append(a.Aggregations, op.Aggregation{Column: g.Column, Function: op.AggFunc(g.Func), Alias: g.Alias})
	}
	return a
}
