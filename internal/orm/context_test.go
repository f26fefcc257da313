package orm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entql/internal/ir"
	"github.com/roach88/entql/internal/sqlgen"
	"github.com/roach88/entql/internal/store"
	"github.com/roach88/entql/internal/testutil"
	"github.com/roach88/entql/internal/tracker"
)

func TestOpen_CreatesTables(t *testing.T) {
	f := newBlogFixture(t)
	assert.Equal(t, int64(2), f.count(t,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('Blogs', 'BlogPosts')`))
	assert.Equal(t, 2, f.writes("ddl"))
}

func TestOpen_CreationModes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modes.db")
	model := testutil.BlogModel(t)
	ctx := context.Background()

	db, err := store.Open(path)
	require.NoError(t, err)
	defer db.Close()

	c, err := Open(ctx, db, model)
	require.NoError(t, err)
	require.NoError(t, c.MustSet("Blogs").Add(c.MustSet("Blogs").New().MustSet("Name", "kept")))
	require.NoError(t, c.SaveChanges(ctx))

	// IfNotExists keeps rows.
	c, err = Open(ctx, db, model)
	require.NoError(t, err)
	n, err := c.MustSet("Blogs").Query().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// DropAllExisting starts over.
	c, err = Open(ctx, db, model, WithCreationMode(sqlgen.DropAllExisting))
	require.NoError(t, err)
	n, err = c.MustSet("Blogs").Query().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, nil, testutil.BlogModel(t))
	assert.Error(t, err)

	f := newBlogFixture(t)
	_, err = Open(ctx, f.db, testutil.NoteModel(t), WithCompiler(f.c.Compiler()))
	assert.ErrorContains(t, err, "compiler was built for context BlogContext")
}

func TestSet(t *testing.T) {
	f := newBlogFixture(t)

	blogs, err := f.c.Set("Blogs")
	require.NoError(t, err)
	assert.Equal(t, "Blogs", blogs.Name())
	assert.Equal(t, "Blog", blogs.Element().Name)
	assert.Equal(t, blogs.Element(), blogs.Expression().Element())

	_, err = f.c.Set("Nope")
	assert.ErrorContains(t, err, `no entity set "Nope"`)
	assert.Panics(t, func() { f.c.MustSet("Nope") })
}

func TestEntitySet_RejectsForeignInstances(t *testing.T) {
	f := newBlogFixture(t)
	blogs, posts := f.c.MustSet("Blogs"), f.c.MustSet("BlogPosts")

	assert.ErrorContains(t, blogs.Add(posts.New()), "does not belong to entity set Blogs")
	assert.Error(t, blogs.Attach(nil))
	assert.Error(t, posts.Remove(blogs.New()))
}

func TestRemove_DetachedFails(t *testing.T) {
	f := newBlogFixture(t)
	blogs := f.c.MustSet("Blogs")

	err := blogs.Remove(blogs.New().MustSet("Name", "never attached"))
	require.Error(t, err)
	assert.True(t, tracker.IsStateError(err))
	assert.False(t, f.c.HasChanges())
}

func TestAttach_SaveIssuesNoWrites(t *testing.T) {
	f := newBlogFixture(t)
	blogs := f.c.MustSet("Blogs")

	blog := tracker.Materialize(blogs.Element(),
		map[string]ir.IRValue{"Id": ir.IRInt(1), "Name": ir.IRString("Comment")}, nil)
	require.NoError(t, blogs.Attach(blog))
	require.NoError(t, blogs.Attach(blog))

	require.NoError(t, f.c.SaveChanges(f.ctx))
	assert.Equal(t, 0, f.allWrites())
	assert.Equal(t, tracker.Unchanged, blog.State())
}
