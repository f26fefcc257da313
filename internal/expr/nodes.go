package expr

import (
	"github.com/roach88/entql/internal/schema"
)

// NodeType discriminates expression nodes.
type NodeType int

const (
	NodeEntitySet NodeType = iota
	NodeFilter
	NodeProjection
	NodeOrderBy
	NodeSkip
	NodeTake
	NodeCount
	NodeSingle
	NodeFirst
	NodeForEach
	NodeToArray
	NodeSome
	NodeEvery
)

var nodeTypeNames = [...]string{
	NodeEntitySet:  "EntitySet",
	NodeFilter:     "Filter",
	NodeProjection: "Projection",
	NodeOrderBy:    "OrderBy",
	NodeSkip:       "Skip",
	NodeTake:       "Take",
	NodeCount:      "Count",
	NodeSingle:     "Single",
	NodeFirst:      "First",
	NodeForEach:    "ForEach",
	NodeToArray:    "ToArray",
	NodeSome:       "Some",
	NodeEvery:      "Every",
}

func (t NodeType) String() string {
	if t >= 0 && int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return "Unknown"
}

// IsFrame reports whether t is a terminal frame operator.
func (t NodeType) IsFrame() bool { return t >= NodeCount && t <= NodeEvery }

// ResultType is the shape of a node's result.
type ResultType int

const (
	ResultCollection ResultType = iota
	ResultEntity
	ResultInteger
	ResultBoolean
)

func (r ResultType) String() string {
	switch r {
	case ResultCollection:
		return "Collection"
	case ResultEntity:
		return "Entity"
	case ResultInteger:
		return "Integer"
	case ResultBoolean:
		return "Boolean"
	}
	return "Unknown"
}

// Node is an immutable expression tree node.
//
// This is a sealed interface. Node type and result type are fixed at
// construction and nodes expose no setters.
type Node interface {
	NodeType() NodeType
	ResultType() ResultType

	// IsTerminated reports whether the node is a frame operator, after
	// which nothing may be chained.
	IsTerminated() bool

	// Source returns the node this one wraps; nil for an entity set.
	Source() Source

	node()
}

// Source is a node producing a collection that further operators may
// consume.
type Source interface {
	Node

	// Element returns the entity type of the rows, or nil once a
	// projection has replaced them with plain records.
	Element() *schema.Entity

	// EntitySet returns the entity set at the root of the chain.
	EntitySet() *schema.EntitySet

	source()
}

// Frame is a terminal operator.
type Frame interface {
	Node
	frame()
}

// chained is embedded by every node with a source.
type chained struct {
	src Source
}

func (c chained) Source() Source               { return c.src }
func (c chained) EntitySet() *schema.EntitySet { return c.src.EntitySet() }
func (chained) node()                          {}
func (chained) IsTerminated() bool             { return false }
func (chained) ResultType() ResultType         { return ResultCollection }
func (c chained) passElement() *schema.Entity  { return c.src.Element() }

// terminal is embedded by frame operators.
type terminal struct {
	chained
}

func (terminal) IsTerminated() bool { return true }
func (terminal) frame()             {}

func checkSource(op NodeType, src Source, needEntity bool) error {
	if src == nil {
		return mismatch(op, "", "source is nil")
	}
	if src.ResultType() != ResultCollection {
		return mismatch(op, "", "source %s is not a collection", src.NodeType())
	}
	if needEntity && src.Element() == nil {
		return mismatch(op, "", "source no longer carries %s entities after a projection",
			src.EntitySet().ElementName())
	}
	return nil
}

// EntitySetExpression is the root of every chain: all rows of one set.
type EntitySetExpression struct {
	set *schema.EntitySet
}

// NewEntitySet starts a chain over set. The set must belong to a defined
// context.
func NewEntitySet(set *schema.EntitySet) (*EntitySetExpression, error) {
	if set == nil {
		return nil, mismatch(NodeEntitySet, "", "entity set is nil")
	}
	if set.Element() == nil {
		return nil, mismatch(NodeEntitySet, set.Name, "element type %q is not resolved", set.ElementName())
	}
	return &EntitySetExpression{set: set}, nil
}

func (*EntitySetExpression) NodeType() NodeType             { return NodeEntitySet }
func (*EntitySetExpression) ResultType() ResultType         { return ResultCollection }
func (*EntitySetExpression) IsTerminated() bool             { return false }
func (*EntitySetExpression) Source() Source                 { return nil }
func (e *EntitySetExpression) Element() *schema.Entity      { return e.set.Element() }
func (e *EntitySetExpression) EntitySet() *schema.EntitySet { return e.set }
func (*EntitySetExpression) node()                          {}
func (*EntitySetExpression) source()                        {}

// FilterExpression keeps the rows satisfying a predicate.
type FilterExpression struct {
	chained
	pred Predicate
}

// NewFilter filters src by pred.
func NewFilter(src Source, pred Predicate) (*FilterExpression, error) {
	if err := checkSource(NodeFilter, src, true); err != nil {
		return nil, err
	}
	if err := checkPredicate(NodeFilter, src.Element(), pred, true); err != nil {
		return nil, err
	}
	return &FilterExpression{chained: chained{src: src}, pred: pred}, nil
}

func (*FilterExpression) NodeType() NodeType        { return NodeFilter }
func (f *FilterExpression) Predicate() Predicate    { return f.pred }
func (f *FilterExpression) Element() *schema.Entity { return f.passElement() }
func (*FilterExpression) source()                   {}

// ProjectionExpression maps each entity to a record of the given paths.
// The result no longer carries entities.
type ProjectionExpression struct {
	chained
	paths []Path
}

// NewProjection projects src onto paths. Paths may traverse reference
// navigations (e.g. "Blog.Name").
func NewProjection(src Source, paths ...string) (*ProjectionExpression, error) {
	if err := checkSource(NodeProjection, src, true); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, mismatch(NodeProjection, "", "no paths to project")
	}
	if chainHasOpaque(src) {
		return nil, mismatch(NodeProjection, "", "cannot project after an opaque predicate")
	}

	seen := make(map[string]bool, len(paths))
	resolved := make([]Path, 0, len(paths))
	for _, raw := range paths {
		if seen[raw] {
			return nil, mismatch(NodeProjection, raw, "path is projected twice")
		}
		seen[raw] = true
		p, err := ResolvePath(src.Element(), raw)
		if err != nil {
			return nil, mismatch(NodeProjection, raw, "%v", err)
		}
		resolved = append(resolved, p)
	}
	return &ProjectionExpression{chained: chained{src: src}, paths: resolved}, nil
}

func (*ProjectionExpression) NodeType() NodeType      { return NodeProjection }
func (*ProjectionExpression) Element() *schema.Entity { return nil }
func (*ProjectionExpression) source()                 {}

// Paths returns the projected paths in order.
func (p *ProjectionExpression) Paths() []Path {
	out := make([]Path, len(p.paths))
	copy(out, p.paths)
	return out
}

// OrderExpression sorts rows by one path. Successive orderings refine the
// earlier ones: the first OrderBy in a chain is the primary sort key.
type OrderExpression struct {
	chained
	path Path
	desc bool
}

// NewOrder orders src by path, descending when desc is set.
func NewOrder(src Source, path string, desc bool) (*OrderExpression, error) {
	if err := checkSource(NodeOrderBy, src, true); err != nil {
		return nil, err
	}
	p, err := ResolvePath(src.Element(), path)
	if err != nil {
		return nil, mismatch(NodeOrderBy, path, "%v", err)
	}
	return &OrderExpression{chained: chained{src: src}, path: p, desc: desc}, nil
}

func (*OrderExpression) NodeType() NodeType        { return NodeOrderBy }
func (o *OrderExpression) Path() Path              { return o.path }
func (o *OrderExpression) Descending() bool        { return o.desc }
func (o *OrderExpression) Element() *schema.Entity { return o.passElement() }
func (*OrderExpression) source()                   {}

// SkipExpression drops the first N rows.
type SkipExpression struct {
	chained
	n int
}

// NewSkip skips n rows of src.
func NewSkip(src Source, n int) (*SkipExpression, error) {
	if err := checkSource(NodeSkip, src, false); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, mismatch(NodeSkip, "", "count must not be negative (got %d)", n)
	}
	return &SkipExpression{chained: chained{src: src}, n: n}, nil
}

func (*SkipExpression) NodeType() NodeType        { return NodeSkip }
func (s *SkipExpression) N() int                  { return s.n }
func (s *SkipExpression) Element() *schema.Entity { return s.passElement() }
func (*SkipExpression) source()                   {}

// TakeExpression keeps at most N rows.
type TakeExpression struct {
	chained
	n int
}

// NewTake limits src to n rows.
func NewTake(src Source, n int) (*TakeExpression, error) {
	if err := checkSource(NodeTake, src, false); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, mismatch(NodeTake, "", "count must not be negative (got %d)", n)
	}
	return &TakeExpression{chained: chained{src: src}, n: n}, nil
}

func (*TakeExpression) NodeType() NodeType        { return NodeTake }
func (t *TakeExpression) N() int                  { return t.n }
func (t *TakeExpression) Element() *schema.Entity { return t.passElement() }
func (*TakeExpression) source()                   {}

// CountExpression yields the number of rows.
type CountExpression struct{ terminal }

// NewCount counts the rows of src.
func NewCount(src Source) (*CountExpression, error) {
	if err := checkSource(NodeCount, src, false); err != nil {
		return nil, err
	}
	return &CountExpression{terminal{chained{src: src}}}, nil
}

func (*CountExpression) NodeType() NodeType     { return NodeCount }
func (*CountExpression) ResultType() ResultType { return ResultInteger }

// SingleExpression yields the only row; executing it fails unless exactly
// one row matches.
type SingleExpression struct{ terminal }

// NewSingle selects the single entity of src.
func NewSingle(src Source) (*SingleExpression, error) {
	if err := checkSource(NodeSingle, src, true); err != nil {
		return nil, err
	}
	return &SingleExpression{terminal{chained{src: src}}}, nil
}

func (*SingleExpression) NodeType() NodeType     { return NodeSingle }
func (*SingleExpression) ResultType() ResultType { return ResultEntity }

// FirstExpression yields the first row; executing it fails when there is
// none.
type FirstExpression struct{ terminal }

// NewFirst selects the first entity of src.
func NewFirst(src Source) (*FirstExpression, error) {
	if err := checkSource(NodeFirst, src, true); err != nil {
		return nil, err
	}
	return &FirstExpression{terminal{chained{src: src}}}, nil
}

func (*FirstExpression) NodeType() NodeType     { return NodeFirst }
func (*FirstExpression) ResultType() ResultType { return ResultEntity }

// ForEachExpression calls a function for every row. A non-nil error from
// the function stops the iteration and is returned by the executor.
type ForEachExpression struct {
	terminal
	fn func(Record) error
}

// NewForEach iterates src with fn.
func NewForEach(src Source, fn func(Record) error) (*ForEachExpression, error) {
	if err := checkSource(NodeForEach, src, false); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, mismatch(NodeForEach, "", "callback is nil")
	}
	return &ForEachExpression{terminal: terminal{chained{src: src}}, fn: fn}, nil
}

func (*ForEachExpression) NodeType() NodeType         { return NodeForEach }
func (f *ForEachExpression) Func() func(Record) error { return f.fn }

// ToArrayExpression materializes all rows.
type ToArrayExpression struct{ terminal }

// NewToArray materializes src.
func NewToArray(src Source) (*ToArrayExpression, error) {
	if err := checkSource(NodeToArray, src, false); err != nil {
		return nil, err
	}
	return &ToArrayExpression{terminal{chained{src: src}}}, nil
}

func (*ToArrayExpression) NodeType() NodeType { return NodeToArray }

// SomeExpression yields whether any row (satisfying the optional
// predicate) exists.
type SomeExpression struct {
	terminal
	pred Predicate
}

// NewSome tests src for a row satisfying pred; a nil pred tests for any
// row at all.
func NewSome(src Source, pred Predicate) (*SomeExpression, error) {
	if err := checkSource(NodeSome, src, pred != nil); err != nil {
		return nil, err
	}
	if pred != nil {
		if err := checkPredicate(NodeSome, src.Element(), pred, true); err != nil {
			return nil, err
		}
	}
	return &SomeExpression{terminal: terminal{chained{src: src}}, pred: pred}, nil
}

func (*SomeExpression) NodeType() NodeType     { return NodeSome }
func (*SomeExpression) ResultType() ResultType { return ResultBoolean }
func (s *SomeExpression) Predicate() Predicate { return s.pred }

// EveryExpression yields whether every row satisfies the predicate. It is
// true for an empty source, and for a nil predicate.
type EveryExpression struct {
	terminal
	pred Predicate
}

// NewEvery tests every row of src against pred.
func NewEvery(src Source, pred Predicate) (*EveryExpression, error) {
	if err := checkSource(NodeEvery, src, pred != nil); err != nil {
		return nil, err
	}
	if pred != nil {
		if err := checkPredicate(NodeEvery, src.Element(), pred, true); err != nil {
			return nil, err
		}
	}
	return &EveryExpression{terminal: terminal{chained{src: src}}, pred: pred}, nil
}

func (*EveryExpression) NodeType() NodeType     { return NodeEvery }
func (*EveryExpression) ResultType() ResultType { return ResultBoolean }
func (e *EveryExpression) Predicate() Predicate { return e.pred }

// Chain returns the nodes from the root entity set to n, in order.
func Chain(n Node) []Node {
	var rev []Node
	for cur := n; cur != nil; {
		rev = append(rev, cur)
		src := cur.Source()
		if src == nil {
			break
		}
		cur = src
	}
	out := make([]Node, len(rev))
	for i, node := range rev {
		out[len(rev)-1-i] = node
	}
	return out
}

func chainHasOpaque(src Source) bool {
	for _, n := range Chain(src) {
		if f, ok := n.(*FilterExpression); ok && HasOpaque(f.pred) {
			return true
		}
	}
	return false
}
