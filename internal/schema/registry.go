package schema

import (
	"fmt"
	"strings"

	"github.com/roach88/entql/internal/ir"
)

// SetSpec declares an entity set inside DefineContext.
type SetSpec struct {
	Name        string
	ElementType string
}

// Registry holds entity, entity-set and context declarations.
//
// A Registry is not safe for concurrent definition; declare the schema
// once at startup and share the resulting *Model.
type Registry struct {
	entities map[string]*Entity
	order    []string
	sets     map[string]*EntitySet
	contexts map[string]*Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]*Entity),
		sets:     make(map[string]*EntitySet),
		contexts: make(map[string]*Model),
	}
}

// Entity looks up a declared entity.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Entities returns declared entities in declaration order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entities[name])
	}
	return out
}

// Context looks up a defined context model.
func (r *Registry) Context(name string) (*Model, bool) {
	m, ok := r.contexts[name]
	return m, ok
}

// DefineEntity declares an entity type.
//
// Checks performed here: a non-empty unique entity name, unique field
// names, exactly one key field which must be scalar, known scalar data
// types, no computed navigations, and inverse properties only on
// navigations. References to other entities are checked by DefineContext.
func (r *Registry) DefineEntity(name string, specs ...FieldSpec) (*Entity, error) {
	if strings.TrimSpace(name) == "" {
		return nil, newMetadataError("<entity>", "", "entity name is required")
	}
	if _, exists := r.entities[name]; exists {
		return nil, newMetadataError(name, "", "entity is already defined")
	}

	e := &Entity{
		Name:   name,
		byName: make(map[string]*Field, len(specs)),
	}

	for _, spec := range specs {
		f, err := buildField(e, spec)
		if err != nil {
			return nil, err
		}
		if _, dup := e.byName[f.Name]; dup {
			return nil, newMetadataError(name, f.Name, "field is declared more than once")
		}
		if f.Key {
			if e.key != nil {
				return nil, newMetadataError(name, f.Name,
					"key field must be unique within the entity (already keyed by %s)", e.key.Name)
			}
			e.key = f
		}
		e.fields = append(e.fields, f)
		e.byName[f.Name] = f
	}

	if e.key == nil {
		return nil, newMetadataError(name, "", "entity declares no key field")
	}

	r.entities[name] = e
	r.order = append(r.order, name)
	return e, nil
}

func buildField(owner *Entity, spec FieldSpec) (*Field, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, newMetadataError(owner.Name, "<field>", "field name is required")
	}
	if spec.DataType == "" {
		return nil, newMetadataError(owner.Name, spec.Name, "dataType is required")
	}

	f := &Field{
		Name:        spec.Name,
		Key:         spec.Key,
		Computed:    spec.Computed,
		Required:    spec.Required,
		owner:       owner,
		inverseName: spec.InverseProperty,
		columnSet:   spec.Column != "",
	}

	dt := DataType(spec.DataType)
	switch {
	case dt.IsScalar():
		f.Kind = KindScalar
		f.DataType = dt
		f.Column = spec.Name
		if spec.Column != "" {
			f.Column = spec.Column
		}
		if spec.InverseProperty != "" {
			return nil, newMetadataError(owner.Name, spec.Name, "inverseProperty is only valid on navigation properties")
		}
		if spec.ElementType != "" {
			return nil, newMetadataError(owner.Name, spec.Name, "elementType is only valid on navigation properties")
		}
		if spec.Key && dt == TypeBool {
			return nil, newMetadataError(owner.Name, spec.Name, "bool fields cannot be keys")
		}
		if spec.Computed && spec.Key && dt != TypeInt {
			return nil, newMetadataError(owner.Name, spec.Name, "computed keys must be int (got %s)", dt)
		}
	case dt == TypeArray:
		if spec.ElementType == "" {
			return nil, newMetadataError(owner.Name, spec.Name, "collection navigation requires elementType")
		}
		if spec.Column != "" {
			return nil, newMetadataError(owner.Name, spec.Name, "collection navigations are not stored and cannot map a column")
		}
		f.Kind = KindCollection
		f.DataType = TypeArray
		f.targetName = spec.ElementType
	default:
		if spec.ElementType != "" && spec.ElementType != spec.DataType {
			return nil, newMetadataError(owner.Name, spec.Name,
				"elementType %q does not match reference dataType %q", spec.ElementType, spec.DataType)
		}
		f.Kind = KindReference
		f.DataType = dt
		f.targetName = spec.DataType
		f.Column = spec.Column
	}

	if f.Kind != KindScalar {
		if spec.Key {
			return nil, newMetadataError(owner.Name, spec.Name, "navigation properties cannot be keys")
		}
		if spec.Computed {
			return nil, newMetadataError(owner.Name, spec.Name, "navigation properties cannot be computed")
		}
	}

	return f, nil
}

// DefineEntitySet declares a named set of elementType entities. The
// element type may be declared later; DefineContext resolves it.
func (r *Registry) DefineEntitySet(name, elementType string) (*EntitySet, error) {
	if strings.TrimSpace(name) == "" {
		return nil, newMetadataError("<entity set>", "", "entity set name is required")
	}
	if elementType == "" {
		return nil, newMetadataError(name, "", "entity set requires an elementType")
	}
	if existing, ok := r.sets[name]; ok {
		if existing.elementName != elementType {
			return nil, newMetadataError(name, "",
				"entity set is already defined with elementType %q", existing.elementName)
		}
		return existing, nil
	}

	s := &EntitySet{Name: name, elementName: elementType}
	if e, ok := r.entities[elementType]; ok {
		s.element = e
	}
	r.sets[name] = s
	return s, nil
}

// staged holds resolution results until the whole context validates.
type staged struct {
	target  *Entity
	inverse *Field
	column  string
}

// DefineContext validates a group of entity sets and returns the model.
// Sets named in specs are declared on the fly (or must match an existing
// declaration). All navigations of all member entities are resolved here;
// on error nothing is committed.
func (r *Registry) DefineContext(name string, specs ...SetSpec) (*Model, error) {
	if strings.TrimSpace(name) == "" {
		return nil, newMetadataError("<context>", "", "context name is required")
	}
	if _, exists := r.contexts[name]; exists {
		return nil, newMetadataError(name, "", "context is already defined")
	}
	if len(specs) == 0 {
		return nil, newMetadataError(name, "", "context declares no entity sets")
	}

	m := &Model{
		Name:     name,
		byName:   make(map[string]*EntitySet, len(specs)),
		byEntity: make(map[*Entity]*EntitySet, len(specs)),
	}

	var newSets []*EntitySet
	for _, spec := range specs {
		if _, dup := m.byName[spec.Name]; dup {
			return nil, newMetadataError(name, spec.Name, "entity set is listed more than once")
		}
		set, ok := r.sets[spec.Name]
		switch {
		case ok && spec.ElementType != "" && set.elementName != spec.ElementType:
			return nil, newMetadataError(name, spec.Name,
				"entity set is already defined with elementType %q", set.elementName)
		case !ok:
			if spec.ElementType == "" {
				return nil, newMetadataError(name, spec.Name, "entity set requires an elementType")
			}
			set = &EntitySet{Name: spec.Name, elementName: spec.ElementType}
			newSets = append(newSets, set)
		}

		element, defined := r.entities[set.elementName]
		if !defined {
			return nil, newMetadataError(name, spec.Name, "elementType %q is not defined", set.elementName)
		}
		if other, taken := m.byEntity[element]; taken {
			return nil, newMetadataError(name, spec.Name,
				"entity %s is already exposed by entity set %s", element.Name, other.Name)
		}

		m.sets = append(m.sets, set)
		m.byName[set.Name] = set
		m.byEntity[element] = set
	}

	resolved := make(map[*Field]staged)
	for _, set := range m.sets {
		if err := r.resolveEntity(m, r.entities[set.elementName], resolved); err != nil {
			return nil, err
		}
	}

	// Commit.
	for f, st := range resolved {
		f.target = st.target
		f.inverse = st.inverse
		if f.Kind == KindReference {
			f.Column = st.column
		}
	}
	for _, set := range m.sets {
		set.element = r.entities[set.elementName]
	}
	for _, set := range newSets {
		r.sets[set.Name] = set
	}
	r.contexts[name] = m
	return m, nil
}

func (r *Registry) resolveEntity(m *Model, e *Entity, resolved map[*Field]staged) error {
	columns := make(map[string]string)
	for _, f := range e.fields {
		if f.Kind == KindScalar {
			if prev, clash := columns[f.Column]; clash {
				return newMetadataError(e.Name, f.Name, "column %q is already used by %s", f.Column, prev)
			}
			columns[f.Column] = f.Name
		}
	}

	for _, f := range e.fields {
		if f.Kind == KindScalar {
			continue
		}

		target, ok := r.entities[f.targetName]
		if !ok {
			return newMetadataError(e.Name, f.Name, "elementType %q is not defined", f.targetName)
		}
		if _, inModel := m.byEntity[target]; !inModel {
			return newMetadataError(e.Name, f.Name,
				"entity %s has no entity set in context %s", target.Name, m.Name)
		}

		st := staged{target: target}
		if f.inverseName != "" {
			inv, ok := target.byName[f.inverseName]
			if !ok {
				return newMetadataError(e.Name, f.Name,
					"inverseProperty %q does not exist on %s", f.inverseName, target.Name)
			}
			if inv.Kind == KindScalar {
				return newMetadataError(e.Name, f.Name,
					"inverseProperty %s.%s is not a navigation property", target.Name, inv.Name)
			}
			if inv.targetName != e.Name {
				return newMetadataError(e.Name, f.Name,
					"inverseProperty %s.%s points at %s, not %s", target.Name, inv.Name, inv.targetName, e.Name)
			}
			if inv.inverseName != f.Name {
				return newMetadataError(e.Name, f.Name,
					"inverseProperty %s.%s does not declare %s as its inverse", target.Name, inv.Name, f.Name)
			}
			switch {
			case f.Kind == KindCollection && inv.Kind == KindCollection:
				return newMetadataError(e.Name, f.Name, "many-to-many navigations are not supported")
			case f.Kind == KindReference && inv.Kind == KindReference:
				return newMetadataError(e.Name, f.Name, "one-to-one navigations are not supported")
			}
			st.inverse = inv
		} else if f.Kind == KindCollection {
			return newMetadataError(e.Name, f.Name, "collection navigation requires an inverseProperty")
		}

		if f.Kind == KindReference {
			st.column = f.Column
			if !f.columnSet {
				st.column = ForeignKeyColumn(target.Name, target.key.Name)
			}
			if prev, clash := columns[st.column]; clash {
				return newMetadataError(e.Name, f.Name,
					"foreign-key column %q is already used by %s", st.column, prev)
			}
			columns[st.column] = f.Name
		}

		resolved[f] = st
	}
	return nil
}

// String renders a short description of the model, used by the CLI.
func (m *Model) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "context %s", m.Name)
	for _, s := range m.sets {
		fmt.Fprintf(&b, "\n  %s: %s", s.Name, s.elementName)
	}
	return b.String()
}

// Fingerprint returns a content hash of the model and its storage
// columns. Two models that lower to the same tables share it.
func (m *Model) Fingerprint() string {
	sets := make(ir.IRArray, 0, len(m.sets))
	for _, s := range m.sets {
		fields := make(ir.IRArray, 0, len(s.element.fields))
		for _, f := range s.element.fields {
			fields = append(fields, ir.IRObject{
				"name":     ir.IRString(f.Name),
				"kind":     ir.IRString(f.Kind.String()),
				"dataType": ir.IRString(string(f.DataType)),
				"column":   ir.IRString(f.Column),
				"key":      ir.IRBool(f.Key),
				"computed": ir.IRBool(f.Computed),
				"required": ir.IRBool(f.Required),
			})
		}
		sets = append(sets, ir.IRObject{
			"name":    ir.IRString(s.Name),
			"element": ir.IRString(s.element.Name),
			"fields":  fields,
		})
	}
	return ir.MustHash(ir.DomainSchema, ir.IRObject{
		"context": ir.IRString(m.Name),
		"sets":    sets,
	})
}
