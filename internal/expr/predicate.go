package expr

import (
	"fmt"

	"github.com/roach88/entql/internal/ir"
	"github.com/roach88/entql/internal/schema"
)

// Predicate is a filter condition over the element entity of a collection.
//
// This is a sealed interface; only types in this package implement it, so
// the SQL lowering can switch over it exhaustively.
type Predicate interface {
	predicateNode()
}

// Op is a comparison operator.
type Op string

const (
	OpEq   Op = "="
	OpNe   Op = "<>"
	OpLt   Op = "<"
	OpLe   Op = "<="
	OpGt   Op = ">"
	OpGe   Op = ">="
	OpLike Op = "LIKE"
)

func (o Op) valid() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpLike:
		return true
	}
	return false
}

// Compare compares the value at Path with a literal. Comparing with
// ir.IRNull under OpEq or OpNe tests for NULL.
type Compare struct {
	Path  string
	Op    Op
	Value ir.IRValue

	err error // set by helpers when the literal could not be converted
}

func (*Compare) predicateNode() {}

// And holds when every operand holds. An empty And always holds.
type And struct {
	Predicates []Predicate
}

func (*And) predicateNode() {}

// Or holds when any operand holds. An empty Or never holds.
type Or struct {
	Predicates []Predicate
}

func (*Or) predicateNode() {}

// Not negates its operand.
type Not struct {
	Predicate Predicate
}

func (*Not) predicateNode() {}

// Any holds when at least one member of the collection navigation Nav
// satisfies Where (or, with a nil Where, when the collection is non-empty).
type Any struct {
	Nav   string
	Where Predicate
}

func (*Any) predicateNode() {}

// All holds when every member of the collection navigation Nav satisfies
// Where. It holds for an empty collection.
type All struct {
	Nav   string
	Where Predicate
}

func (*All) predicateNode() {}

// Func is an opaque predicate. It is never lowered to SQL; queries holding
// one fetch the SQL-filtered rows and apply Fn in memory.
type Func struct {
	Name string
	Fn   func(Record) bool
}

func (*Func) predicateNode() {}

func compare(path string, op Op, v any) *Compare {
	val, err := ir.FromAny(v)
	return &Compare{Path: path, Op: op, Value: val, err: err}
}

// Eq builds path = v. v may be an ir.IRValue or a plain Go scalar.
func Eq(path string, v any) *Compare { return compare(path, OpEq, v) }

// Ne builds path <> v.
func Ne(path string, v any) *Compare { return compare(path, OpNe, v) }

// Lt builds path < v.
func Lt(path string, v any) *Compare { return compare(path, OpLt, v) }

// Le builds path <= v.
func Le(path string, v any) *Compare { return compare(path, OpLe, v) }

// Gt builds path > v.
func Gt(path string, v any) *Compare { return compare(path, OpGt, v) }

// Ge builds path >= v.
func Ge(path string, v any) *Compare { return compare(path, OpGe, v) }

// Like builds path LIKE pattern.
func Like(path, pattern string) *Compare { return compare(path, OpLike, pattern) }

// IsNull builds path IS NULL.
func IsNull(path string) *Compare { return &Compare{Path: path, Op: OpEq, Value: ir.IRNull{}} }

// NotNull builds path IS NOT NULL.
func NotNull(path string) *Compare { return &Compare{Path: path, Op: OpNe, Value: ir.IRNull{}} }

// AndOf combines predicates with AND.
func AndOf(ps ...Predicate) *And { return &And{Predicates: ps} }

// OrOf combines predicates with OR.
func OrOf(ps ...Predicate) *Or { return &Or{Predicates: ps} }

// NotOf negates p.
func NotOf(p Predicate) *Not { return &Not{Predicate: p} }

// AnyOf builds an existential test over a collection navigation.
func AnyOf(nav string, where Predicate) *Any { return &Any{Nav: nav, Where: where} }

// AllOf builds a universal test over a collection navigation.
func AllOf(nav string, where Predicate) *All { return &All{Nav: nav, Where: where} }

// Where wraps a Go function as an opaque predicate. name labels it in
// warnings and logs.
func Where(name string, fn func(Record) bool) *Func { return &Func{Name: name, Fn: fn} }

// checkPredicate type-checks p against e. top is true while p sits in a
// top-level conjunction, the only place Func is accepted.
func checkPredicate(op NodeType, e *schema.Entity, p Predicate, top bool) error {
	switch pred := p.(type) {
	case nil:
		return mismatch(op, "", "predicate is nil")
	case *Compare:
		return checkCompare(op, e, pred)
	case *And:
		for _, sub := range pred.Predicates {
			if err := checkPredicate(op, e, sub, top); err != nil {
				return err
			}
		}
	case *Or:
		for _, sub := range pred.Predicates {
			if err := checkPredicate(op, e, sub, false); err != nil {
				return err
			}
		}
	case *Not:
		return checkPredicate(op, e, pred.Predicate, false)
	case *Any:
		target, err := collectionTarget(op, e, pred.Nav)
		if err != nil {
			return err
		}
		if pred.Where != nil {
			return checkPredicate(op, target, pred.Where, false)
		}
	case *All:
		target, err := collectionTarget(op, e, pred.Nav)
		if err != nil {
			return err
		}
		if pred.Where == nil {
			return mismatch(op, pred.Nav, "All requires a predicate")
		}
		return checkPredicate(op, target, pred.Where, false)
	case *Func:
		if pred.Fn == nil {
			return mismatch(op, pred.Name, "opaque predicate has no function")
		}
		if !top {
			return mismatch(op, pred.Name, "opaque predicates may only appear as top-level AND operands")
		}
	default:
		return mismatch(op, "", "unknown predicate type %T", p)
	}
	return nil
}

func collectionTarget(op NodeType, e *schema.Entity, nav string) (*schema.Entity, error) {
	f, ok := e.Field(nav)
	if !ok {
		return nil, mismatch(op, nav, "%s has no field %q", e.Name, nav)
	}
	if f.Kind != schema.KindCollection {
		return nil, mismatch(op, nav, "%s.%s is not a collection navigation", e.Name, nav)
	}
	if f.Target() == nil {
		return nil, mismatch(op, nav, "%s.%s is not resolved; define its context first", e.Name, nav)
	}
	return f.Target(), nil
}

func checkCompare(op NodeType, e *schema.Entity, c *Compare) error {
	if c.err != nil {
		return mismatch(op, c.Path, "%v", c.err)
	}
	if !c.Op.valid() {
		return mismatch(op, c.Path, "unknown operator %q", c.Op)
	}
	p, err := ResolvePath(e, c.Path)
	if err != nil {
		return mismatch(op, c.Path, "%v", err)
	}

	if ir.IsNull(c.Value) {
		if c.Op != OpEq && c.Op != OpNe {
			return mismatch(op, c.Path, "NULL can only be compared with = or <>")
		}
		return nil
	}

	dt := p.DataType()
	if c.Op == OpLike {
		if _, ok := c.Value.(ir.IRString); !ok || (dt != schema.TypeString && dt != schema.TypeGUID) {
			return mismatch(op, c.Path, "LIKE needs a string field and a string pattern")
		}
		return nil
	}
	if !dt.Accepts(c.Value) {
		return mismatch(op, c.Path, "cannot compare %s field with %s", dt, describe(c.Value))
	}
	if dt == schema.TypeBool && c.Op != OpEq && c.Op != OpNe {
		return mismatch(op, c.Path, "bool fields support only = and <>")
	}
	return nil
}

func describe(v ir.IRValue) string {
	switch v.(type) {
	case ir.IRInt:
		return "int"
	case ir.IRString:
		return "string"
	case ir.IRBool:
		return "bool"
	case ir.IRTime:
		return "datetime"
	case ir.IRArray:
		return "array"
	case ir.IRObject:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// SplitOpaque separates the top-level Func conjuncts of p from the rest.
// rest is nil when nothing lowerable remains.
func SplitOpaque(p Predicate) (rest Predicate, funcs []*Func) {
	switch pred := p.(type) {
	case *Func:
		return nil, []*Func{pred}
	case *And:
		var kept []Predicate
		for _, sub := range pred.Predicates {
			r, fs := SplitOpaque(sub)
			funcs = append(funcs, fs...)
			if r != nil {
				kept = append(kept, r)
			}
		}
		if len(funcs) == 0 {
			return p, nil
		}
		switch len(kept) {
		case 0:
			return nil, funcs
		case 1:
			return kept[0], funcs
		}
		return &And{Predicates: kept}, funcs
	}
	return p, nil
}

// HasOpaque reports whether p holds a Func anywhere.
func HasOpaque(p Predicate) bool {
	switch pred := p.(type) {
	case *Func:
		return true
	case *And:
		for _, sub := range pred.Predicates {
			if HasOpaque(sub) {
				return true
			}
		}
	case *Or:
		for _, sub := range pred.Predicates {
			if HasOpaque(sub) {
				return true
			}
		}
	case *Not:
		return HasOpaque(pred.Predicate)
	case *Any:
		return HasOpaque(pred.Where)
	case *All:
		return HasOpaque(pred.Where)
	}
	return false
}
