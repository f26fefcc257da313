package tracker

import (
	"fmt"

	"github.com/roach88/entql/internal/ir"
	"github.com/roach88/entql/internal/schema"
)

// Tracker records the instances of one context and their states.
//
// Transitions:
//
//	Detached --Add--> Added --save--> Unchanged
//	Detached (stored row) --reached by a navigation--> Unchanged
//	Detached --Attach--> Unchanged --mutate--> Modified --save--> Unchanged
//	Unchanged|Modified --Remove--> Removed --save--> Detached
type Tracker struct {
	model   *schema.Model
	entries []*Instance
}

// NewTracker creates an empty tracker for model.
func NewTracker(model *schema.Model) *Tracker {
	return &Tracker{model: model}
}

// Entries returns the tracked instances in the order they were tracked.
func (t *Tracker) Entries() []*Instance {
	out := make([]*Instance, len(t.entries))
	copy(out, t.entries)
	return out
}

// Add marks inst for insertion. Detached instances reachable through its
// navigations join too: those whose rows are stored (materialized or
// saved earlier) are attached, the rest are added. Adding an already
// Added instance is a no-op.
func (t *Tracker) Add(inst *Instance) error {
	if err := t.check("add", inst); err != nil {
		return err
	}
	switch inst.state {
	case Added:
		return nil
	case Detached:
	default:
		return &StateError{Entity: inst.entity.Name, Op: "add", State: inst.state, Message: "instance is already attached"}
	}

	inst.state = Added
	inst.owner = t
	t.entries = append(t.entries, inst)
	return t.cascade(inst)
}

// track brings a detached instance reached through a navigation into the
// tracker: attached when its row is stored, added otherwise.
func (t *Tracker) track(inst *Instance) error {
	if !inst.persisted() {
		return t.Add(inst)
	}
	if err := t.Attach(inst); err != nil {
		return err
	}
	return t.cascade(inst)
}

func (t *Tracker) cascade(inst *Instance) error {
	for _, f := range inst.entity.References() {
		if parent := inst.refs[f.Name]; parent != nil && parent.state == Detached {
			if err := t.track(parent); err != nil {
				return err
			}
		}
	}
	for _, f := range inst.entity.Collections() {
		for _, child := range inst.colls[f.Name] {
			if child.state == Detached {
				if err := t.track(child); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Attach starts tracking inst as Unchanged: it is assumed to match
// storage. Attaching an instance this tracker already tracks is a no-op.
func (t *Tracker) Attach(inst *Instance) error {
	if err := t.check("attach", inst); err != nil {
		return err
	}
	if inst.owner == t {
		return nil
	}
	if ir.IsNull(inst.Key()) {
		return &StateError{Entity: inst.entity.Name, Op: "attach", State: inst.state, Message: "key is not set"}
	}

	inst.state = Unchanged
	inst.owner = t
	inst.stored = true
	inst.acceptChanges()
	t.entries = append(t.entries, inst)
	return nil
}

// Remove marks an attached instance for deletion. Only Unchanged and
// Modified instances can be removed.
func (t *Tracker) Remove(inst *Instance) error {
	if err := t.check("remove", inst); err != nil {
		return err
	}
	if inst.owner != t || (inst.state != Unchanged && inst.state != Modified) {
		return &StateError{Entity: inst.entity.Name, Op: "remove", State: inst.state, Message: "only attached instances can be removed"}
	}
	inst.state = Removed
	return nil
}

func (t *Tracker) check(op string, inst *Instance) error {
	if inst == nil {
		return fmt.Errorf("tracker: cannot %s a nil instance", op)
	}
	if _, ok := t.model.SetFor(inst.entity); !ok {
		return fmt.Errorf("tracker: entity %s is not part of context %s", inst.entity.Name, t.model.Name)
	}
	if inst.owner != nil && inst.owner != t {
		return &StateError{Entity: inst.entity.Name, Op: op, State: inst.state, Message: "instance is tracked by another context"}
	}
	return nil
}

// DirtySet groups the pending changes of one entity set.
type DirtySet struct {
	Added    []*Instance
	Modified []*Instance
	Removed  []*Instance
}

// Empty reports whether nothing is pending.
func (d DirtySet) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Removed) == 0
}

// DirtySet returns the pending changes for set, each category in tracking
// order.
func (t *Tracker) DirtySet(set *schema.EntitySet) DirtySet {
	var d DirtySet
	for _, inst := range t.entries {
		if inst.entity != set.Element() {
			continue
		}
		switch inst.state {
		case Added:
			d.Added = append(d.Added, inst)
		case Modified:
			d.Modified = append(d.Modified, inst)
		case Removed:
			d.Removed = append(d.Removed, inst)
		}
	}
	return d
}

// HasChanges reports whether any set has pending changes.
func (t *Tracker) HasChanges() bool {
	for _, inst := range t.entries {
		switch inst.state {
		case Added, Modified, Removed:
			return true
		}
	}
	return false
}

// Commit applies a successful save. keys holds the generated keys of
// Added instances. Added and Modified instances become Unchanged; Removed
// instances become Detached and are forgotten.
func (t *Tracker) Commit(keys map[*Instance]ir.IRValue) {
	kept := t.entries[:0]
	for _, inst := range t.entries {
		switch inst.state {
		case Added:
			if k, ok := keys[inst]; ok {
				inst.values[inst.entity.Key().Name] = k
			}
			inst.state = Unchanged
			inst.stored = true
		case Modified:
			inst.state = Unchanged
		case Removed:
			inst.state = Detached
			inst.owner = nil
			inst.stored = false
			inst.acceptChanges()
			continue
		}
		inst.acceptChanges()
		kept = append(kept, inst)
	}
	clear(t.entries[len(kept):])
	t.entries = kept
}
