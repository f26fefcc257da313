package tracker

import (
	"fmt"
	"strings"

	"github.com/roach88/entql/internal/ir"
	"github.com/roach88/entql/internal/schema"
)

// State is the change-tracking state of an instance.
type State int

const (
	// Detached instances are not tracked by any context.
	Detached State = iota

	// Added instances are inserted by the next save.
	Added

	// Unchanged instances are attached and match storage.
	Unchanged

	// Modified instances are attached with pending field changes.
	Modified

	// Removed instances are deleted by the next save.
	Removed
)

func (s State) String() string {
	switch s {
	case Detached:
		return "Detached"
	case Added:
		return "Added"
	case Unchanged:
		return "Unchanged"
	case Modified:
		return "Modified"
	case Removed:
		return "Removed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Instance is one entity value with change tracking.
//
// Scalars are held as ir values. A reference holds either the loaded
// parent instance or, for materialized rows, just the parent's key.
// Assigning a reference keeps the inverse collection of the old and new
// parents consistent; only the child is marked Modified.
//
// Instances are not safe for concurrent mutation.
type Instance struct {
	entity *schema.Entity
	state  State
	owner  *Tracker

	// stored is set once the instance's row is known to exist: it was
	// materialized, attached or saved.
	stored bool

	values  map[string]ir.IRValue
	refs    map[string]*Instance
	refKeys map[string]ir.IRValue
	colls   map[string][]*Instance
	changed map[string]bool
}

// New creates a detached instance of e.
func New(e *schema.Entity) *Instance {
	return &Instance{
		entity:  e,
		values:  make(map[string]ir.IRValue),
		refs:    make(map[string]*Instance),
		refKeys: make(map[string]ir.IRValue),
		colls:   make(map[string][]*Instance),
		changed: make(map[string]bool),
	}
}

// Materialize creates a detached instance from stored values. refKeys maps
// reference field names to the stored foreign-key values.
func Materialize(e *schema.Entity, values, refKeys map[string]ir.IRValue) *Instance {
	inst := New(e)
	inst.stored = true
	for k, v := range values {
		inst.values[k] = v
	}
	for k, v := range refKeys {
		inst.refKeys[k] = v
	}
	return inst
}

// Entity returns the instance's entity type.
func (i *Instance) Entity() *schema.Entity { return i.entity }

// State returns the tracking state.
func (i *Instance) State() State { return i.state }

// Key returns the key value, IRNull while unassigned.
func (i *Instance) Key() ir.IRValue {
	return i.Get(i.entity.Key().Name)
}

// Get returns the value of a scalar field, or the referenced key for a
// reference field. Unset fields read as IRNull.
func (i *Instance) Get(name string) ir.IRValue {
	f, ok := i.entity.Field(name)
	if !ok {
		return ir.IRNull{}
	}
	if f.Kind == schema.KindReference {
		return i.RefKey(name)
	}
	if v, ok := i.values[name]; ok {
		return v
	}
	return ir.IRNull{}
}

// IsSet reports whether a scalar field has been assigned, even to null.
func (i *Instance) IsSet(name string) bool {
	_, ok := i.values[name]
	return ok
}

// Set assigns a scalar field. v may be an ir.IRValue or a plain Go value.
func (i *Instance) Set(name string, v any) error {
	f, err := i.field(name, schema.KindScalar)
	if err != nil {
		return err
	}
	val, err := ir.FromAny(v)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", i.entity.Name, name, err)
	}
	if !f.DataType.Accepts(val) {
		return fmt.Errorf("%s.%s: %s field cannot hold %T", i.entity.Name, name, f.DataType, val)
	}
	if f.Key && i.state != Detached && i.state != Added && !ir.Equal(i.Get(name), val) {
		return &StateError{Entity: i.entity.Name, Op: "rekey", State: i.state, Message: "the key of a tracked instance is immutable"}
	}

	old, had := i.values[name]
	i.values[name] = val
	if !had || !ir.Equal(old, val) {
		i.markChanged(name)
	}
	return nil
}

// MustSet is like Set but panics on error. It returns i for chaining.
func (i *Instance) MustSet(name string, v any) *Instance {
	if err := i.Set(name, v); err != nil {
		panic(err)
	}
	return i
}

// Ref returns the loaded parent of a reference field, nil if none is
// loaded.
func (i *Instance) Ref(name string) *Instance {
	return i.refs[name]
}

// RefKey returns the key of the referenced parent: the loaded parent's key
// when there is one, otherwise the stored foreign-key value.
func (i *Instance) RefKey(name string) ir.IRValue {
	if parent, ok := i.refs[name]; ok {
		if parent == nil {
			return ir.IRNull{}
		}
		return parent.Key()
	}
	if v, ok := i.refKeys[name]; ok {
		return v
	}
	return ir.IRNull{}
}

// SetRef assigns a reference navigation; nil clears it. The child moves
// between the inverse collections of the old and new parent. When i is
// tracked, a detached parent joins the same context: attached when its
// row is stored, added otherwise.
func (i *Instance) SetRef(name string, parent *Instance) error {
	f, err := i.field(name, schema.KindReference)
	if err != nil {
		return err
	}
	if parent != nil && parent.entity != f.Target() {
		return fmt.Errorf("%s.%s: expected %s, got %s", i.entity.Name, name, f.Target().Name, parent.entity.Name)
	}

	old, loaded := i.refs[name]
	if loaded && old == parent {
		return nil
	}
	if !loaded && parent == nil && ir.IsNull(i.refKeys[name]) {
		return nil
	}

	if inv := f.Inverse(); inv != nil {
		if old != nil {
			old.colls[inv.Name] = without(old.colls[inv.Name], i)
		}
		if parent != nil && !contains(parent.colls[inv.Name], i) {
			parent.colls[inv.Name] = append(parent.colls[inv.Name], i)
		}
	}

	i.refs[name] = parent
	delete(i.refKeys, name)
	i.markChanged(name)

	if parent != nil && i.owner != nil && parent.state == Detached {
		if err := i.owner.track(parent); err != nil {
			return err
		}
	}
	return nil
}

// LoadRef links a fetched parent into a reference whose foreign key is
// already known. Nothing is marked changed and the parent's inverse
// collection is left as loaded.
func (i *Instance) LoadRef(name string, parent *Instance) error {
	f, err := i.field(name, schema.KindReference)
	if err != nil {
		return err
	}
	if parent == nil || parent.entity != f.Target() {
		return fmt.Errorf("%s.%s: cannot load %v", i.entity.Name, name, parent)
	}
	if !ir.Equal(parent.Key(), i.RefKey(name)) {
		return fmt.Errorf("%s.%s: loaded key %v does not match stored key %v", i.entity.Name, name, parent.Key(), i.RefKey(name))
	}
	i.refs[name] = parent
	delete(i.refKeys, name)
	return nil
}

// Collection returns the members of a collection navigation.
func (i *Instance) Collection(name string) []*Instance {
	out := make([]*Instance, len(i.colls[name]))
	copy(out, i.colls[name])
	return out
}

// SetCollection replaces the members of a collection navigation by
// assigning each child's inverse reference: members no longer listed are
// cleared, new members are re-parented to i. When i is tracked, detached
// children join its context and i is marked Modified. The parent's row
// has no column for the collection, so only the children are written.
func (i *Instance) SetCollection(name string, children []*Instance) error {
	f, err := i.field(name, schema.KindCollection)
	if err != nil {
		return err
	}
	inv := f.Inverse()

	changed := false
	for _, child := range i.Collection(name) {
		if !contains(children, child) {
			if err := child.SetRef(inv.Name, nil); err != nil {
				return err
			}
			changed = true
		}
	}
	for _, child := range children {
		if child == nil {
			continue
		}
		added, err := i.adopt(inv, child)
		if err != nil {
			return err
		}
		changed = changed || added
	}
	if changed {
		i.markChanged(name)
	}
	return nil
}

// AddTo appends child to a collection navigation of i. See SetCollection
// for how tracking spreads.
func (i *Instance) AddTo(name string, child *Instance) error {
	f, err := i.field(name, schema.KindCollection)
	if err != nil {
		return err
	}
	if child == nil {
		return fmt.Errorf("%s.%s: cannot add a nil instance", i.entity.Name, name)
	}
	added, err := i.adopt(f.Inverse(), child)
	if err != nil {
		return err
	}
	if added {
		i.markChanged(name)
	}
	return nil
}

// adopt re-parents child to i through the inverse reference inv and
// reports whether child was not a member before. A detached child of a
// tracked parent is tracked first, so the reassignment is recorded.
func (i *Instance) adopt(inv *schema.Field, child *Instance) (bool, error) {
	if child.entity != inv.Owner() {
		return false, fmt.Errorf("%s: expected %s, got %s", i.entity.Name, inv.Owner().Name, child.entity.Name)
	}
	if contains(i.colls[inv.Inverse().Name], child) && child.refs[inv.Name] == i {
		return false, nil
	}
	if i.owner != nil && child.state == Detached {
		if err := i.owner.track(child); err != nil {
			return false, err
		}
	}
	return true, child.SetRef(inv.Name, i)
}

// Changed returns the stored fields modified since the instance was last
// attached or saved, in declaration order.
func (i *Instance) Changed() []*schema.Field {
	var out []*schema.Field
	for _, f := range i.entity.Columns() {
		if i.changed[f.Name] {
			out = append(out, f)
		}
	}
	return out
}

// Value implements expr.Record. A single segment reads a field as Get
// does; a dotted path follows loaded references and reads IRNull past an
// unloaded one.
func (i *Instance) Value(path string) ir.IRValue {
	head, rest, dotted := strings.Cut(path, ".")
	if !dotted {
		return i.Get(head)
	}
	parent := i.refs[head]
	if parent == nil {
		return ir.IRNull{}
	}
	return parent.Value(rest)
}

func (i *Instance) String() string {
	return fmt.Sprintf("%s(%s=%v, %s)", i.entity.Name, i.entity.Key().Name, i.Key(), i.state)
}

func (i *Instance) field(name string, kind schema.FieldKind) (*schema.Field, error) {
	f, ok := i.entity.Field(name)
	if !ok {
		return nil, fmt.Errorf("%s has no field %q", i.entity.Name, name)
	}
	if f.Kind != kind {
		return nil, fmt.Errorf("%s.%s is a %s field, not %s", i.entity.Name, name, f.Kind, kind)
	}
	return f, nil
}

func (i *Instance) markChanged(name string) {
	switch i.state {
	case Unchanged:
		i.state = Modified
		i.changed[name] = true
	case Modified:
		i.changed[name] = true
	}
}

// persisted reports whether a cascade should attach i rather than add it.
func (i *Instance) persisted() bool {
	return i.stored && !ir.IsNull(i.Key())
}

func (i *Instance) acceptChanges() {
	clear(i.changed)
}

func contains(list []*Instance, inst *Instance) bool {
	for _, x := range list {
		if x == inst {
			return true
		}
	}
	return false
}

func without(list []*Instance, inst *Instance) []*Instance {
	out := list[:0:0]
	for _, x := range list {
		if x != inst {
			out = append(out, x)
		}
	}
	return out
}
