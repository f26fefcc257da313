package sqlgen

import (
	"fmt"
	"strings"

	"github.com/roach88/entql/internal/ir"
	"github.com/roach88/entql/internal/schema"
	"github.com/roach88/entql/internal/tracker"
)

// WriteOp identifies the kind of a write statement.
type WriteOp int

const (
	OpInsert WriteOp = iota
	OpUpdate
	OpDelete
)

func (op WriteOp) String() string {
	switch op {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("WriteOp(%d)", int(op))
}

// Statement is one lowered write for one instance.
type Statement struct {
	Op       WriteOp
	SQL      string
	Params   []any
	Instance *tracker.Instance
}

// KeyRef is a parameter standing for the key of another instance. It is
// used when that instance is inserted in the same save and its key is
// only known once its own INSERT has run.
type KeyRef struct {
	Instance *tracker.Instance
}

// Resolve replaces KeyRef parameters with the keys reported by lookup.
func (s *Statement) Resolve(lookup func(*tracker.Instance) (ir.IRValue, bool)) ([]any, error) {
	out := make([]any, len(s.Params))
	for i, p := range s.Params {
		ref, ok := p.(KeyRef)
		if !ok {
			out[i] = p
			continue
		}
		key, ok := lookup(ref.Instance)
		if !ok || ir.IsNull(key) {
			return nil, fmt.Errorf("%s: key of %s is not known yet", s.Op, ref.Instance.Entity().Name)
		}
		v, err := ir.ToParam(key)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Insert lowers inst to an INSERT of every insertable column; unset
// columns are written as NULL. Computed fields (including a computed key)
// are left to storage.
func (c *Compiler) Insert(inst *tracker.Instance) (*Statement, error) {
	e := inst.Entity()
	table, err := c.table(e)
	if err != nil {
		return nil, err
	}

	key := e.Key()
	if !key.Computed && ir.IsNull(inst.Key()) {
		return nil, fmt.Errorf("cannot insert %s: key %s is not set", e.Name, key.Name)
	}

	fields := e.InsertableFields()
	populated := false
	cols := make([]string, 0, len(fields))
	marks := make([]string, 0, len(fields))
	params := make([]any, 0, len(fields))
	for _, f := range fields {
		p, err := fieldParam(inst, f)
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", e.Name, err)
		}
		if !f.Key && p != nil {
			populated = true
		}
		cols = append(cols, quote(f.Column))
		marks = append(marks, "?")
		params = append(params, p)
	}
	if !populated {
		return nil, &EmptyEntityError{Entity: e.Name}
	}

	return &Statement{
		Op: OpInsert,
		SQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(cols, ", "), strings.Join(marks, ", ")),
		Params:   params,
		Instance: inst,
	}, nil
}

// Update lowers the changed columns of inst. It returns nil when nothing
// changed.
func (c *Compiler) Update(inst *tracker.Instance) (*Statement, error) {
	changed := inst.Changed()
	if len(changed) == 0 {
		return nil, nil
	}
	e := inst.Entity()
	table, err := c.table(e)
	if err != nil {
		return nil, err
	}

	sets := make([]string, 0, len(changed))
	params := make([]any, 0, len(changed)+1)
	for _, f := range changed {
		p, err := fieldParam(inst, f)
		if err != nil {
			return nil, fmt.Errorf("update %s: %w", e.Name, err)
		}
		sets = append(sets, quote(f.Column)+" = ?")
		params = append(params, p)
	}
	where, key, err := keyCondition(inst)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", e.Name, err)
	}

	return &Statement{
		Op:       OpUpdate,
		SQL:      fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), where),
		Params:   append(params, key),
		Instance: inst,
	}, nil
}

// Delete lowers the removal of inst by key.
func (c *Compiler) Delete(inst *tracker.Instance) (*Statement, error) {
	e := inst.Entity()
	table, err := c.table(e)
	if err != nil {
		return nil, err
	}
	where, key, err := keyCondition(inst)
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", e.Name, err)
	}
	return &Statement{
		Op:       OpDelete,
		SQL:      fmt.Sprintf("DELETE FROM %s WHERE %s", table, where),
		Params:   []any{key},
		Instance: inst,
	}, nil
}

func keyCondition(inst *tracker.Instance) (string, any, error) {
	key := inst.Entity().Key()
	if ir.IsNull(inst.Key()) {
		return "", nil, fmt.Errorf("key %s is not set", key.Name)
	}
	v, err := ir.ToParam(inst.Key())
	if err != nil {
		return "", nil, err
	}
	return quote(key.Column) + " = ?", v, nil
}

// fieldParam returns the parameter for one stored field. A reference to
// a parent whose key is not assigned yet becomes a KeyRef.
func fieldParam(inst *tracker.Instance, f *schema.Field) (any, error) {
	if f.Kind == schema.KindReference {
		parent := inst.Ref(f.Name)
		if parent != nil && ir.IsNull(parent.Key()) {
			return KeyRef{Instance: parent}, nil
		}
		return ir.ToParam(inst.RefKey(f.Name))
	}
	return ir.ToParam(inst.Get(f.Name))
}
