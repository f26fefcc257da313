package expr

import (
	"encoding/hex"

	"github.com/roach88/entql/internal/ir"
)

// Equal reports whether a and b are structurally equal: same node types
// over equal sources with equal operands. Opaque predicates are equal only
// to themselves (pointer identity), and so are ForEach nodes.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.NodeType() != b.NodeType() {
		return false
	}

	switch x := a.(type) {
	case *EntitySetExpression:
		return x.set == b.(*EntitySetExpression).set
	case *FilterExpression:
		y := b.(*FilterExpression)
		return equalPredicate(x.pred, y.pred) && Equal(x.src, y.src)
	case *ProjectionExpression:
		y := b.(*ProjectionExpression)
		if len(x.paths) != len(y.paths) {
			return false
		}
		for i := range x.paths {
			if x.paths[i].Raw != y.paths[i].Raw {
				return false
			}
		}
		return Equal(x.src, y.src)
	case *OrderExpression:
		y := b.(*OrderExpression)
		return x.path.Raw == y.path.Raw && x.desc == y.desc && Equal(x.src, y.src)
	case *SkipExpression:
		y := b.(*SkipExpression)
		return x.n == y.n && Equal(x.src, y.src)
	case *TakeExpression:
		y := b.(*TakeExpression)
		return x.n == y.n && Equal(x.src, y.src)
	case *ForEachExpression:
		return x == b.(*ForEachExpression)
	case *SomeExpression:
		y := b.(*SomeExpression)
		return equalPredicate(x.pred, y.pred) && Equal(x.src, y.src)
	case *EveryExpression:
		y := b.(*EveryExpression)
		return equalPredicate(x.pred, y.pred) && Equal(x.src, y.src)
	case *CountExpression, *SingleExpression, *FirstExpression, *ToArrayExpression:
		return Equal(a.Source(), b.Source())
	}
	return false
}

func equalPredicate(a, b Predicate) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *Compare:
		y, ok := b.(*Compare)
		return ok && x.Path == y.Path && x.Op == y.Op && ir.Equal(x.Value, y.Value)
	case *And:
		y, ok := b.(*And)
		return ok && equalPredicates(x.Predicates, y.Predicates)
	case *Or:
		y, ok := b.(*Or)
		return ok && equalPredicates(x.Predicates, y.Predicates)
	case *Not:
		y, ok := b.(*Not)
		return ok && equalPredicate(x.Predicate, y.Predicate)
	case *Any:
		y, ok := b.(*Any)
		return ok && x.Nav == y.Nav && equalPredicate(x.Where, y.Where)
	case *All:
		y, ok := b.(*All)
		return ok && x.Nav == y.Nav && equalPredicate(x.Where, y.Where)
	case *Func:
		y, ok := b.(*Func)
		return ok && x == y
	}
	return false
}

func equalPredicates(a, b []Predicate) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalPredicate(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Fingerprint returns a content hash identifying the tree. Equal trees
// share a fingerprint. ok is false when the tree holds an opaque predicate
// or a ForEach callback, which have no content to hash.
func Fingerprint(n Node) (fp string, ok bool) {
	var nodes []ir.IRValue
	for _, node := range Chain(n) {
		obj, ok := nodeValue(node)
		if !ok {
			return "", false
		}
		nodes = append(nodes, obj)
	}
	h, err := ir.Hash(ir.DomainQuery, ir.IRArray(nodes))
	if err != nil {
		return "", false
	}
	return h, true
}

func nodeValue(n Node) (ir.IRValue, bool) {
	obj := ir.IRObject{"op": ir.IRString(n.NodeType().String())}
	switch x := n.(type) {
	case *EntitySetExpression:
		obj["set"] = ir.IRString(x.set.Name)
	case *FilterExpression:
		p, ok := predicateValue(x.pred)
		if !ok {
			return nil, false
		}
		obj["where"] = p
	case *ProjectionExpression:
		paths := make(ir.IRArray, len(x.paths))
		for i, p := range x.paths {
			paths[i] = ir.IRString(p.Raw)
		}
		obj["paths"] = paths
	case *OrderExpression:
		obj["path"] = ir.IRString(x.path.Raw)
		obj["desc"] = ir.IRBool(x.desc)
	case *SkipExpression:
		obj["n"] = ir.IRInt(x.n)
	case *TakeExpression:
		obj["n"] = ir.IRInt(x.n)
	case *ForEachExpression:
		return nil, false
	case *SomeExpression:
		p, ok := predicateValue(x.pred)
		if !ok {
			return nil, false
		}
		obj["where"] = p
	case *EveryExpression:
		p, ok := predicateValue(x.pred)
		if !ok {
			return nil, false
		}
		obj["where"] = p
	}
	return obj, true
}

func predicateValue(p Predicate) (ir.IRValue, bool) {
	switch x := p.(type) {
	case nil:
		return ir.IRNull{}, true
	case *Compare:
		return ir.IRObject{
			"cmp":  ir.IRString(x.Op),
			"path": ir.IRString(x.Path),
			"v":    literalValue(x.Value),
		}, true
	case *And:
		return listValue("and", x.Predicates)
	case *Or:
		return listValue("or", x.Predicates)
	case *Not:
		inner, ok := predicateValue(x.Predicate)
		if !ok {
			return nil, false
		}
		return ir.IRObject{"not": inner}, true
	case *Any:
		inner, ok := predicateValue(x.Where)
		if !ok {
			return nil, false
		}
		return ir.IRObject{"any": ir.IRString(x.Nav), "where": inner}, true
	case *All:
		inner, ok := predicateValue(x.Where)
		if !ok {
			return nil, false
		}
		return ir.IRObject{"all": ir.IRString(x.Nav), "where": inner}, true
	}
	return nil, false
}

func listValue(key string, ps []Predicate) (ir.IRValue, bool) {
	arr := make(ir.IRArray, len(ps))
	for i, sub := range ps {
		v, ok := predicateValue(sub)
		if !ok {
			return nil, false
		}
		arr[i] = v
	}
	return ir.IRObject{key: arr}, true
}

// literalValue tags a literal with its kind. Strings are hex encoded so
// that canonical NFC normalization cannot merge distinct parameters.
func literalValue(v ir.IRValue) ir.IRValue {
	switch x := v.(type) {
	case ir.IRString:
		return ir.IRObject{"s": ir.IRString(hex.EncodeToString([]byte(x)))}
	case ir.IRTime:
		return ir.IRObject{"t": x}
	case nil:
		return ir.IRNull{}
	}
	return v
}
