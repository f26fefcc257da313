package expr

import "fmt"

// Call is one step of a dynamically built chain. Use the Call helpers
// (Filter, Count, ...) rather than filling it in directly.
type Call struct {
	Op    NodeType
	Pred  Predicate
	Paths []string
	Desc  bool
	N     int
	Fn    func(Record) error
}

// Filter appends a FilterExpression.
func Filter(p Predicate) Call { return Call{Op: NodeFilter, Pred: p} }

// Project appends a ProjectionExpression.
func Project(paths ...string) Call { return Call{Op: NodeProjection, Paths: paths} }

// OrderBy appends an ascending OrderExpression.
func OrderBy(path string) Call { return Call{Op: NodeOrderBy, Paths: []string{path}} }

// OrderByDesc appends a descending OrderExpression.
func OrderByDesc(path string) Call { return Call{Op: NodeOrderBy, Paths: []string{path}, Desc: true} }

// Skip appends a SkipExpression.
func Skip(n int) Call { return Call{Op: NodeSkip, N: n} }

// Take appends a TakeExpression.
func Take(n int) Call { return Call{Op: NodeTake, N: n} }

// Count appends a CountExpression.
func Count() Call { return Call{Op: NodeCount} }

// Single appends a SingleExpression.
func Single() Call { return Call{Op: NodeSingle} }

// First appends a FirstExpression.
func First() Call { return Call{Op: NodeFirst} }

// ForEach appends a ForEachExpression.
func ForEach(fn func(Record) error) Call { return Call{Op: NodeForEach, Fn: fn} }

// ToArray appends a ToArrayExpression.
func ToArray() Call { return Call{Op: NodeToArray} }

// Some appends a SomeExpression; p may be nil.
func Some(p Predicate) Call { return Call{Op: NodeSome, Pred: p} }

// Every appends an EveryExpression; p may be nil.
func Every(p Predicate) Call { return Call{Op: NodeEvery, Pred: p} }

// Build applies calls in order, each using the previous node as its
// source. A call after a frame operator fails with *ChainError; operand
// problems fail with *TypeMismatchError.
//
//	q, err := expr.Build(blogs, expr.Filter(expr.Eq("Name", "Comment")), expr.Count())
func Build(set *EntitySetExpression, calls ...Call) (Node, error) {
	if set == nil {
		return nil, mismatch(NodeEntitySet, "", "entity set is nil")
	}

	var cur Node = set
	for i, c := range calls {
		if cur.IsTerminated() {
			return nil, &ChainError{Index: i, Operator: c.Op, Frame: cur.NodeType()}
		}
		src := cur.(Source)

		next, err := apply(src, c)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		cur = next
	}
	return cur, nil
}

func apply(src Source, c Call) (Node, error) {
	switch c.Op {
	case NodeFilter:
		return NewFilter(src, c.Pred)
	case NodeProjection:
		return NewProjection(src, c.Paths...)
	case NodeOrderBy:
		if len(c.Paths) != 1 {
			return nil, mismatch(NodeOrderBy, "", "exactly one path is required")
		}
		return NewOrder(src, c.Paths[0], c.Desc)
	case NodeSkip:
		return NewSkip(src, c.N)
	case NodeTake:
		return NewTake(src, c.N)
	case NodeCount:
		return NewCount(src)
	case NodeSingle:
		return NewSingle(src)
	case NodeFirst:
		return NewFirst(src)
	case NodeForEach:
		return NewForEach(src, c.Fn)
	case NodeToArray:
		return NewToArray(src)
	case NodeSome:
		return NewSome(src, c.Pred)
	case NodeEvery:
		return NewEvery(src, c.Pred)
	}
	return nil, mismatch(c.Op, "", "operator cannot be chained")
}
