// Package testutil provides fixtures shared by package tests: the Blog /
// BlogPost context and deterministic id generators.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/entql/internal/schema"
)

// BlogCUE declares the Blog / BlogPost context in CUE. BlogModel builds
// the same model through the registry API.
const BlogCUE = `
entity: Blog: {
	Id: {dataType: "int", key: true, computed: true}
	Name: {dataType: "string"}
	Posts: {dataType: "Array", elementType: "BlogPost", inverseProperty: "Blog"}
}

entity: BlogPost: {
	Id: {dataType: "int", key: true, computed: true}
	Title: {dataType: "string"}
	Body: {dataType: "string"}
	CreatedAt: {dataType: "datetime"}
	Blog: {dataType: "Blog", inverseProperty: "Posts"}
}

context: BlogContext: {
	Blogs: {elementType: "Blog"}
	BlogPosts: {elementType: "BlogPost"}
}
`

// BlogModel defines and returns the BlogContext model: Blogs (Blog) and
// BlogPosts (BlogPost), linked by Blog.Posts / BlogPost.Blog with the
// foreign key stored in BlogPosts.Blog__Id.
func BlogModel(t testing.TB) *schema.Model {
	t.Helper()

	r := schema.NewRegistry()
	_, err := r.DefineEntity("Blog",
		schema.FieldSpec{Name: "Id", DataType: "int", Key: true, Computed: true},
		schema.FieldSpec{Name: "Name", DataType: "string"},
		schema.FieldSpec{Name: "Posts", DataType: "Array", ElementType: "BlogPost", InverseProperty: "Blog"},
	)
	require.NoError(t, err)

	_, err = r.DefineEntity("BlogPost",
		schema.FieldSpec{Name: "Id", DataType: "int", Key: true, Computed: true},
		schema.FieldSpec{Name: "Title", DataType: "string"},
		schema.FieldSpec{Name: "Body", DataType: "string"},
		schema.FieldSpec{Name: "CreatedAt", DataType: "datetime"},
		schema.FieldSpec{Name: "Blog", DataType: "Blog", InverseProperty: "Posts"},
	)
	require.NoError(t, err)

	m, err := r.DefineContext("BlogContext",
		schema.SetSpec{Name: "Blogs", ElementType: "Blog"},
		schema.SetSpec{Name: "BlogPosts", ElementType: "BlogPost"},
	)
	require.NoError(t, err)
	return m
}

// NoteModel defines a context with a guid-keyed entity and a string-keyed
// parent: Users (User, key Email) and Notes (Note, key Id guid, reference
// Author without inverse, bool Pinned).
func NoteModel(t testing.TB) *schema.Model {
	t.Helper()

	r := schema.NewRegistry()
	_, err := r.DefineEntity("User",
		schema.FieldSpec{Name: "Email", DataType: "string", Key: true},
		schema.FieldSpec{Name: "Display", DataType: "string"},
	)
	require.NoError(t, err)

	_, err = r.DefineEntity("Note",
		schema.FieldSpec{Name: "Id", DataType: "guid", Key: true},
		schema.FieldSpec{Name: "Text", DataType: "string", Required: true},
		schema.FieldSpec{Name: "Pinned", DataType: "bool"},
		schema.FieldSpec{Name: "Author", DataType: "User"},
	)
	require.NoError(t, err)

	m, err := r.DefineContext("NoteContext",
		schema.SetSpec{Name: "Users", ElementType: "User"},
		schema.SetSpec{Name: "Notes", ElementType: "Note"},
	)
	require.NoError(t, err)
	return m
}

// Set returns the named entity set of m, failing the test if absent.
func Set(t testing.TB, m *schema.Model, name string) *schema.EntitySet {
	t.Helper()
	s, ok := m.Set(name)
	require.True(t, ok, "entity set %s", name)
	return s
}
