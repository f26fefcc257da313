package schema

import "github.com/roach88/entql/internal/ir"

// DataType names a scalar column type. Navigation fields carry the name of
// the target entity instead.
type DataType string

// Scalar data types understood by the lowering engine.
const (
	TypeInt      DataType = "int"
	TypeString   DataType = "string"
	TypeBool     DataType = "bool"
	TypeDateTime DataType = "datetime"
	TypeGUID     DataType = "guid"

	// TypeArray marks a collection navigation; ElementType names the entity.
	TypeArray DataType = "Array"
)

// IsScalar reports whether t is one of the scalar data types.
func (t DataType) IsScalar() bool {
	switch t {
	case TypeInt, TypeString, TypeBool, TypeDateTime, TypeGUID:
		return true
	}
	return false
}

// Accepts reports whether v is a legal value for a field of type t.
// IRNull is accepted by every type.
func (t DataType) Accepts(v ir.IRValue) bool {
	switch v.(type) {
	case nil, ir.IRNull:
		return true
	case ir.IRInt:
		return t == TypeInt
	case ir.IRString:
		return t == TypeString || t == TypeGUID
	case ir.IRBool:
		return t == TypeBool
	case ir.IRTime:
		return t == TypeDateTime
	}
	return false
}

// FieldSpec is the declaration of one entity field, as written by callers
// (or decoded from CUE).
type FieldSpec struct {
	Name            string
	DataType        string
	Key             bool
	Computed        bool
	Required        bool
	ElementType     string
	InverseProperty string

	// Column overrides the storage column. For reference navigations it
	// replaces the <Parent>__<Key> foreign-key convention.
	Column string
}

// FieldKind distinguishes scalar columns from navigation properties.
type FieldKind int

const (
	KindScalar FieldKind = iota
	KindReference
	KindCollection
)

func (k FieldKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindReference:
		return "reference"
	case KindCollection:
		return "collection"
	default:
		return "unknown"
	}
}

// Field is a resolved field descriptor.
type Field struct {
	Name     string
	Kind     FieldKind
	DataType DataType // scalar type; TypeArray or the target name for navigations
	Key      bool
	Computed bool
	Required bool

	// Column is the storage column: the field name for scalars, the
	// foreign-key column for references, empty for collections.
	Column string

	owner       *Entity
	targetName  string
	target      *Entity
	inverseName string
	inverse     *Field
	columnSet   bool
}

// Owner returns the entity declaring the field.
func (f *Field) Owner() *Entity { return f.owner }

// Target returns the entity a navigation points at (nil for scalars, or
// before the owning context was defined).
func (f *Field) Target() *Entity { return f.target }

// Inverse returns the reciprocal navigation, if declared.
func (f *Field) Inverse() *Field { return f.inverse }

// IsNavigation reports whether f is a reference or collection navigation.
func (f *Field) IsNavigation() bool { return f.Kind != KindScalar }

// HasColumn reports whether f is stored in its owner's table.
func (f *Field) HasColumn() bool { return f.Kind != KindCollection }

// Entity is a resolved entity type.
type Entity struct {
	Name string

	fields []*Field
	byName map[string]*Field
	key    *Field
}

// Fields returns all fields in declaration order.
func (e *Entity) Fields() []*Field {
	out := make([]*Field, len(e.fields))
	copy(out, e.fields)
	return out
}

// Field looks up a field by name.
func (e *Entity) Field(name string) (*Field, bool) {
	f, ok := e.byName[name]
	return f, ok
}

// Key returns the key field.
func (e *Entity) Key() *Field { return e.key }

// Columns returns the fields stored in the entity's table: scalars and
// reference navigations, in declaration order.
func (e *Entity) Columns() []*Field {
	var out []*Field
	for _, f := range e.fields {
		if f.HasColumn() {
			out = append(out, f)
		}
	}
	return out
}

// InsertableFields returns the columns an INSERT may populate: computed
// fields (including a computed key) are excluded.
func (e *Entity) InsertableFields() []*Field {
	var out []*Field
	for _, f := range e.Columns() {
		if !f.Computed {
			out = append(out, f)
		}
	}
	return out
}

// References returns the reference navigations (foreign keys) of e.
func (e *Entity) References() []*Field {
	var out []*Field
	for _, f := range e.fields {
		if f.Kind == KindReference {
			out = append(out, f)
		}
	}
	return out
}

// Collections returns the collection navigations of e.
func (e *Entity) Collections() []*Field {
	var out []*Field
	for _, f := range e.fields {
		if f.Kind == KindCollection {
			out = append(out, f)
		}
	}
	return out
}

// EntitySet is a named, queryable collection of one entity type. Its name
// is the table name.
type EntitySet struct {
	Name string

	elementName string
	element     *Entity
}

// Element returns the entity type of the set's members.
func (s *EntitySet) Element() *Entity { return s.element }

// ElementName returns the declared element type name.
func (s *EntitySet) ElementName() string { return s.elementName }

// Model is a validated context: a group of entity sets whose entity graph
// is closed (every navigation target has a set in the same model).
type Model struct {
	Name string

	sets     []*EntitySet
	byName   map[string]*EntitySet
	byEntity map[*Entity]*EntitySet
}

// Sets returns the entity sets in declaration order.
func (m *Model) Sets() []*EntitySet {
	out := make([]*EntitySet, len(m.sets))
	copy(out, m.sets)
	return out
}

// Set looks up an entity set by name.
func (m *Model) Set(name string) (*EntitySet, bool) {
	s, ok := m.byName[name]
	return s, ok
}

// SetFor returns the entity set holding entities of type e.
func (m *Model) SetFor(e *Entity) (*EntitySet, bool) {
	s, ok := m.byEntity[e]
	return s, ok
}

// ForeignKeyColumn returns the conventional foreign-key column for a
// reference to parentEntity keyed by keyField: "<ParentEntity>__<KeyField>",
// e.g. ForeignKeyColumn("Blog", "Id") == "Blog__Id".
func ForeignKeyColumn(parentEntity, keyField string) string {
	return parentEntity + "__" + keyField
}
