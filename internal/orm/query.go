package orm

import (
	"context"
	"fmt"

	"github.com/roach88/entql/internal/expr"
	"github.com/roach88/entql/internal/sqlgen"
	"github.com/roach88/entql/internal/tracker"
)

// Query is a fluent builder over an entity set. Each chaining call
// returns a new Query; the receiver is not changed. The first building
// error is kept and returned by the frame call, before any statement runs.
type Query struct {
	c    *Context
	node expr.Source
	err  error
}

func (q *Query) then(build func(expr.Source) (expr.Source, error)) *Query {
	if q.err != nil {
		return q
	}
	n, err := build(q.node)
	if err != nil {
		return &Query{c: q.c, err: err}
	}
	return &Query{c: q.c, node: n}
}

// Where filters by p. An unknown path or a value of the wrong type is not
// returned here; check Err or the error of the frame call.
func (q *Query) Where(p expr.Predicate) *Query {
	return q.then(func(src expr.Source) (expr.Source, error) { return expr.NewFilter(src, p) })
}

// OrderBy sorts ascending by path. Later calls add lower-priority keys.
// A path that cannot be sorted on is reported by Err.
func (q *Query) OrderBy(path string) *Query {
	return q.then(func(src expr.Source) (expr.Source, error) { return expr.NewOrder(src, path, false) })
}

// OrderByDesc sorts descending by path.
func (q *Query) OrderByDesc(path string) *Query {
	return q.then(func(src expr.Source) (expr.Source, error) { return expr.NewOrder(src, path, true) })
}

// Skip drops the first n rows.
func (q *Query) Skip(n int) *Query {
	return q.then(func(src expr.Source) (expr.Source, error) { return expr.NewSkip(src, n) })
}

// Take keeps at most n rows.
func (q *Query) Take(n int) *Query {
	return q.then(func(src expr.Source) (expr.Source, error) { return expr.NewTake(src, n) })
}

// Select projects rows onto paths. Read the result with Records.
func (q *Query) Select(paths ...string) *Query {
	return q.then(func(src expr.Source) (expr.Source, error) { return expr.NewProjection(src, paths...) })
}

// Expression returns the tree built so far.
func (q *Query) Expression() (expr.Source, error) {
	return q.node, q.err
}

// Err returns the first building error, if any. Once set, later chaining
// calls are no-ops and every frame call returns it.
func (q *Query) Err() error { return q.err }

func (q *Query) run(ctx context.Context, frame func(expr.Source) (expr.Node, error)) (*Result, error) {
	if q.err != nil {
		return nil, q.err
	}
	n, err := frame(q.node)
	if err != nil {
		return nil, err
	}
	return q.c.Execute(ctx, n)
}

// ToArray returns the matching instances, detached.
func (q *Query) ToArray(ctx context.Context) ([]*tracker.Instance, error) {
	res, err := q.run(ctx, func(src expr.Source) (expr.Node, error) { return expr.NewToArray(src) })
	if err != nil {
		return nil, err
	}
	if res.Shape == sqlgen.ShapeRecords {
		return nil, fmt.Errorf("orm: query is projected; read it with Records")
	}
	return res.Instances, nil
}

// Records returns projected rows. The query must end in Select.
func (q *Query) Records(ctx context.Context) ([]expr.Values, error) {
	res, err := q.run(ctx, func(src expr.Source) (expr.Node, error) { return expr.NewToArray(src) })
	if err != nil {
		return nil, err
	}
	if res.Shape != sqlgen.ShapeRecords {
		return nil, fmt.Errorf("orm: query has no projection; read it with ToArray")
	}
	return res.Records, nil
}

// ForEach calls fn for each matching row in order, stopping at the first
// error.
func (q *Query) ForEach(ctx context.Context, fn func(expr.Record) error) error {
	_, err := q.run(ctx, func(src expr.Source) (expr.Node, error) { return expr.NewForEach(src, fn) })
	return err
}

// First returns the first matching instance. An empty result is a
// *CardinalityError.
func (q *Query) First(ctx context.Context) (*tracker.Instance, error) {
	res, err := q.run(ctx, func(src expr.Source) (expr.Node, error) { return expr.NewFirst(src) })
	if err != nil {
		return nil, err
	}
	return res.Instance, nil
}

// Single returns the only matching instance. Zero or several matches are
// a *CardinalityError.
func (q *Query) Single(ctx context.Context) (*tracker.Instance, error) {
	res, err := q.run(ctx, func(src expr.Source) (expr.Node, error) { return expr.NewSingle(src) })
	if err != nil {
		return nil, err
	}
	return res.Instance, nil
}

// Count returns the number of matching rows.
func (q *Query) Count(ctx context.Context) (int64, error) {
	res, err := q.run(ctx, func(src expr.Source) (expr.Node, error) { return expr.NewCount(src) })
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Some reports whether any row satisfies p; with a nil p, whether there
// is any row.
func (q *Query) Some(ctx context.Context, p expr.Predicate) (bool, error) {
	res, err := q.run(ctx, func(src expr.Source) (expr.Node, error) { return expr.NewSome(src, p) })
	if err != nil {
		return false, err
	}
	return res.Bool, nil
}

// Every reports whether all rows satisfy p. It is true for no rows.
func (q *Query) Every(ctx context.Context, p expr.Predicate) (bool, error) {
	res, err := q.run(ctx, func(src expr.Source) (expr.Node, error) { return expr.NewEvery(src, p) })
	if err != nil {
		return false, err
	}
	return res.Bool, nil
}
