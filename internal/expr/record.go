package expr

import "github.com/roach88/entql/internal/ir"

// Record is a read-only view of one row flowing through a query. Paths
// name fields of the row's element entity; a reference field yields the
// key of the referenced entity.
type Record interface {
	Value(path string) ir.IRValue
}

// Values is a Record backed by a map. Projected rows use it.
type Values map[string]ir.IRValue

// Value returns the value at path, or IRNull when absent.
func (v Values) Value(path string) ir.IRValue {
	if val, ok := v[path]; ok && val != nil {
		return val
	}
	return ir.IRNull{}
}
