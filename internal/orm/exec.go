package orm

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/entql/internal/expr"
	"github.com/roach88/entql/internal/ir"
	"github.com/roach88/entql/internal/schema"
	"github.com/roach88/entql/internal/sqlgen"
	"github.com/roach88/entql/internal/store"
	"github.com/roach88/entql/internal/tracker"
)

// Result is the outcome of executing a tree. Which field is set depends
// on the frame: Instances for ToArray and ForEach over entities, Records
// for projections, Instance for Single and First, Count for Count, Bool
// for Some and Every.
type Result struct {
	Frame     expr.NodeType
	Shape     sqlgen.Shape
	Instances []*tracker.Instance
	Records   []expr.Values
	Instance  *tracker.Instance
	Count     int64
	Bool      bool

	// Warnings names the predicates that were evaluated in memory.
	Warnings []string
}

// keyBatch bounds the keys bound into one reference lookup.
const keyBatch = 500

// Execute lowers n, runs it and finishes the frame. Materialized
// instances are detached. When opaque predicates run in memory, the
// parents reachable through reference navigations are loaded first so
// dotted paths read the same values SQL would join.
func (c *Context) Execute(ctx context.Context, n expr.Node) (*Result, error) {
	plan, err := c.compiler.CompileQuery(n)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.ExecuteSQL(ctx, plan.SQL, plan.Params...)
	if err != nil {
		return nil, err
	}

	res := &Result{Frame: plan.Frame, Shape: plan.Shape}
	if plan.InMemory() {
		res.Warnings = expr.Validate(n).Warnings
		slog.Debug("query finished in memory", "frame", plan.Frame, "rows", len(rows.Rows), "warnings", res.Warnings)
	}
	switch plan.Shape {
	case sqlgen.ShapeScalar:
		if err := scalar(plan, rows, res); err != nil {
			return nil, err
		}
		return res, nil
	case sqlgen.ShapeRecords:
		res.Records, err = records(plan, rows)
		if err != nil {
			return nil, err
		}
		return res, finishRecords(n, res)
	}

	insts, matches, err := materialize(plan, rows)
	if err != nil {
		return nil, err
	}
	if plan.InMemory() {
		if err := c.loadReferences(ctx, insts); err != nil {
			return nil, err
		}
	}
	insts, matches = residual(plan, insts, matches)
	return res, finishEntities(n, plan, insts, matches, res)
}

func scalar(plan *sqlgen.Plan, rows *store.Result, res *Result) error {
	if len(rows.Rows) != 1 || len(rows.Rows[0]) != 1 {
		return fmt.Errorf("%s: expected one scalar row, got %d", plan.Frame, len(rows.Rows))
	}
	v, ok := rows.Rows[0][0].(int64)
	if !ok {
		return fmt.Errorf("%s: unexpected scalar %T", plan.Frame, rows.Rows[0][0])
	}
	if plan.Frame == expr.NodeCount {
		res.Count = v
	} else {
		res.Bool = v != 0
	}
	return nil
}

func records(plan *sqlgen.Plan, rows *store.Result) ([]expr.Values, error) {
	out := make([]expr.Values, 0, len(rows.Rows))
	for _, row := range rows.Rows {
		rec := make(expr.Values, len(plan.Columns))
		for i, col := range plan.Columns {
			v, err := sqlgen.DecodeValue(col.DataType(), row[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", col.Name, err)
			}
			rec[col.Path] = v
		}
		out = append(out, rec)
	}
	return out, nil
}

func finishRecords(n expr.Node, res *Result) error {
	switch x := n.(type) {
	case *expr.ForEachExpression:
		for _, rec := range res.Records {
			if err := x.Func()(rec); err != nil {
				return err
			}
		}
	case *expr.FirstExpression, *expr.SingleExpression:
		return fmt.Errorf("%s: projected rows are not entities", n.NodeType())
	}
	return nil
}

// materialize turns entity rows into detached instances. matches holds
// the MatchColumn of each row when the plan selects one.
func materialize(plan *sqlgen.Plan, rows *store.Result) ([]*tracker.Instance, []bool, error) {
	insts := make([]*tracker.Instance, 0, len(rows.Rows))
	var matches []bool
	for _, row := range rows.Rows {
		values := make(map[string]ir.IRValue)
		refKeys := make(map[string]ir.IRValue)
		for i, col := range plan.Columns {
			v, err := sqlgen.DecodeValue(col.DataType(), row[i])
			if err != nil {
				return nil, nil, fmt.Errorf("column %s: %w", col.Name, err)
			}
			if col.Field.IsNavigation() {
				refKeys[col.Field.Name] = v
			} else {
				values[col.Field.Name] = v
			}
		}
		insts = append(insts, tracker.Materialize(plan.Element, values, refKeys))

		if plan.Match {
			m, _ := row[len(plan.Columns)].(int64)
			matches = append(matches, m != 0)
		}
	}
	return insts, matches, nil
}

// loadReferences links the parent of every stored reference of insts, and
// of the parents they reach, one lookup per target entity and level.
func (c *Context) loadReferences(ctx context.Context, insts []*tracker.Instance) error {
	loaded := make(map[*schema.Entity]map[any]*tracker.Instance)
	for len(insts) > 0 {
		var targets []*schema.Entity
		wanted := make(map[*schema.Entity][]any)
		seen := make(map[*schema.Entity]map[any]bool)
		for _, inst := range insts {
			for _, f := range inst.Entity().References() {
				k, ok := refParam(inst, f)
				target := f.Target()
				if !ok || seen[target][k] {
					continue
				}
				if _, done := loaded[target][k]; done {
					continue
				}
				if seen[target] == nil {
					seen[target] = make(map[any]bool)
					targets = append(targets, target)
				}
				seen[target][k] = true
				wanted[target] = append(wanted[target], k)
			}
		}

		var fetched []*tracker.Instance
		for _, target := range targets {
			if loaded[target] == nil {
				loaded[target] = make(map[any]*tracker.Instance)
			}
			for keys := range slices.Chunk(wanted[target], keyBatch) {
				parents, err := c.fetchByKeys(ctx, target, keys)
				if err != nil {
					return fmt.Errorf("load %s references: %w", target.Name, err)
				}
				for _, p := range parents {
					k, _ := ir.ToParam(p.Key())
					loaded[target][k] = p
				}
				fetched = append(fetched, parents...)
			}
		}

		for _, inst := range insts {
			for _, f := range inst.Entity().References() {
				k, ok := refParam(inst, f)
				if !ok {
					continue
				}
				if p, found := loaded[f.Target()][k]; found {
					if err := inst.LoadRef(f.Name, p); err != nil {
						return err
					}
				}
			}
		}
		insts = fetched
	}
	return nil
}

// refParam returns the stored foreign key of an unloaded reference.
func refParam(inst *tracker.Instance, f *schema.Field) (any, bool) {
	if inst.Ref(f.Name) != nil {
		return nil, false
	}
	k := inst.RefKey(f.Name)
	if ir.IsNull(k) {
		return nil, false
	}
	p, err := ir.ToParam(k)
	if err != nil {
		return nil, false
	}
	return p, true
}

func (c *Context) fetchByKeys(ctx context.Context, e *schema.Entity, keys []any) ([]*tracker.Instance, error) {
	plan, err := c.compiler.SelectByKeys(e, keys)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.ExecuteSQL(ctx, plan.SQL, plan.Params...)
	if err != nil {
		return nil, err
	}
	insts, _, err := materialize(plan, rows)
	return insts, err
}

// residual applies the opaque filters and the in-memory paging.
func residual(plan *sqlgen.Plan, insts []*tracker.Instance, matches []bool) ([]*tracker.Instance, []bool) {
	if len(plan.Residual) == 0 && plan.Offset == 0 && plan.Limit < 0 {
		return insts, matches
	}
	var kept []*tracker.Instance
	var keptMatches []bool
	for i, inst := range insts {
		if !acceptAll(plan.Residual, inst) {
			continue
		}
		kept = append(kept, inst)
		if matches != nil {
			keptMatches = append(keptMatches, matches[i])
		}
	}

	lo := min(plan.Offset, len(kept))
	hi := len(kept)
	if plan.Limit >= 0 {
		hi = min(lo+plan.Limit, hi)
	}
	kept = kept[lo:hi]
	if keptMatches != nil {
		keptMatches = keptMatches[lo:hi]
	}
	return kept, keptMatches
}

func acceptAll(funcs []*expr.Func, r expr.Record) bool {
	for _, f := range funcs {
		if !f.Fn(r) {
			return false
		}
	}
	return true
}

func finishEntities(n expr.Node, plan *sqlgen.Plan, insts []*tracker.Instance, matches []bool, res *Result) error {
	satisfies := func(i int) bool {
		if plan.Match && !matches[i] {
			return false
		}
		return acceptAll(plan.FrameResidual, insts[i])
	}

	switch x := n.(type) {
	case *expr.CountExpression:
		res.Count = int64(len(insts))
	case *expr.SomeExpression:
		for i := range insts {
			if satisfies(i) {
				res.Bool = true
				break
			}
		}
	case *expr.EveryExpression:
		res.Bool = true
		for i := range insts {
			if !satisfies(i) {
				res.Bool = false
				break
			}
		}
	case *expr.FirstExpression:
		if len(insts) == 0 {
			return &CardinalityError{Frame: expr.NodeFirst}
		}
		res.Instance = insts[0]
	case *expr.SingleExpression:
		if len(insts) != 1 {
			return &CardinalityError{Frame: expr.NodeSingle, Rows: min(len(insts), 2)}
		}
		res.Instance = insts[0]
	case *expr.ForEachExpression:
		res.Instances = insts
		for _, inst := range insts {
			if err := x.Func()(inst); err != nil {
				return err
			}
		}
	default:
		res.Instances = insts
	}
	return nil
}
