package expr

import "fmt"

// ValidationResult reports how much of a tree lowers to SQL.
type ValidationResult struct {
	// Lowerable is true when the whole tree compiles to SQL with no
	// in-memory residual.
	Lowerable bool

	// Warnings names each part evaluated in memory. Empty when
	// Lowerable is true.
	Warnings []string
}

// Validate walks a tree and reports the opaque predicates that will run in
// memory after the SQL. Such trees execute correctly but fetch more rows
// than a fully lowered one and cannot use the compiled-statement cache.
//
// Validate is a pure function with no side effects.
func Validate(n Node) ValidationResult {
	v := &validator{warnings: []string{}}
	for _, node := range Chain(n) {
		switch x := node.(type) {
		case *FilterExpression:
			v.predicate(x.NodeType(), x.pred)
		case *SomeExpression:
			v.predicate(x.NodeType(), x.pred)
		case *EveryExpression:
			v.predicate(x.NodeType(), x.pred)
		case *ForEachExpression:
			// The callback runs per materialized row; the query lowers fully.
		}
	}
	return ValidationResult{
		Lowerable: len(v.warnings) == 0,
		Warnings:  v.warnings,
	}
}

type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) predicate(op NodeType, p Predicate) {
	_, funcs := SplitOpaque(p)
	for _, f := range funcs {
		name := f.Name
		if name == "" {
			name = "<anonymous>"
		}
		v.addWarning("%s: opaque predicate %s is evaluated in memory", op, name)
	}
}
