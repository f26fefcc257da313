package expr

import (
	"fmt"
	"strings"

	"github.com/roach88/entql/internal/schema"
)

// Path is a dotted field path resolved against an entity. Every segment
// but the last is a reference navigation; the last is a scalar field or a
// reference (which compares by the referenced key).
type Path struct {
	Raw   string
	Via   []*schema.Field
	Field *schema.Field
}

// DataType returns the type values at the path must have: the scalar type,
// or the key type of the referenced entity for a reference.
func (p Path) DataType() schema.DataType {
	if p.Field.Kind == schema.KindReference {
		return p.Field.Target().Key().DataType
	}
	return p.Field.DataType
}

// IsLocal reports whether the path names a column of the root entity.
func (p Path) IsLocal() bool { return len(p.Via) == 0 }

// ResolvePath resolves path against e.
func ResolvePath(e *schema.Entity, path string) (Path, error) {
	if e == nil {
		return Path{}, fmt.Errorf("no entity to resolve against")
	}
	if path == "" {
		return Path{}, fmt.Errorf("empty path")
	}

	segments := strings.Split(path, ".")
	cur := e
	p := Path{Raw: path}
	for i, seg := range segments {
		f, ok := cur.Field(seg)
		if !ok {
			return Path{}, fmt.Errorf("%s has no field %q", cur.Name, seg)
		}
		last := i == len(segments)-1
		switch f.Kind {
		case schema.KindCollection:
			return Path{}, fmt.Errorf("%s.%s is a collection; use Any or All", cur.Name, seg)
		case schema.KindReference:
			if f.Target() == nil {
				return Path{}, fmt.Errorf("%s.%s is not resolved; define its context first", cur.Name, seg)
			}
			if last {
				p.Field = f
				return p, nil
			}
			p.Via = append(p.Via, f)
			cur = f.Target()
		default:
			if !last {
				return Path{}, fmt.Errorf("%s.%s is not a navigation", cur.Name, seg)
			}
			p.Field = f
		}
	}
	return p, nil
}
