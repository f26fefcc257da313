package sqlgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entql/internal/ir"
	"github.com/roach88/entql/internal/testutil"
	"github.com/roach88/entql/internal/tracker"
)

func TestInsert(t *testing.T) {
	f := newBlogFixture(t)
	blog := tracker.Materialize(testutil.Set(t, f.model, "Blogs").Element(),
		map[string]ir.IRValue{"Id": ir.IRInt(3), "Name": ir.IRString("Comment")}, nil)
	post := tracker.New(testutil.Set(t, f.model, "BlogPosts").Element()).MustSet("Title", "Hello")
	require.NoError(t, post.SetRef("Blog", blog))

	stmt, err := f.c.Insert(post)
	require.NoError(t, err)
	assert.Equal(t, OpInsert, stmt.Op)
	assert.Same(t, post, stmt.Instance)
	assertGolden(t, "insert_post", render(stmt.SQL, stmt.Params))
}

func TestInsert_NullDatetimeAndOrphan(t *testing.T) {
	f := newBlogFixture(t)
	post := tracker.New(testutil.Set(t, f.model, "BlogPosts").Element()).
		MustSet("Title", "orphan").
		MustSet("CreatedAt", ir.IRNull{})

	stmt, err := f.c.Insert(post)
	require.NoError(t, err)
	assert.Equal(t, []any{"orphan", nil, nil, nil}, stmt.Params)
}

func TestInsert_DatetimeParam(t *testing.T) {
	f := newBlogFixture(t)
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("x", 3600))
	post := tracker.New(testutil.Set(t, f.model, "BlogPosts").Element()).MustSet("CreatedAt", at)

	stmt, err := f.c.Insert(post)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T11:30:00.000000000Z", stmt.Params[2])
}

func TestInsert_EmptyEntity(t *testing.T) {
	f := newBlogFixture(t)
	blog := tracker.New(testutil.Set(t, f.model, "Blogs").Element())

	_, err := f.c.Insert(blog)
	require.Error(t, err)
	assert.True(t, IsEmptyEntity(err))
	assert.Contains(t, err.Error(), "no fields contain values")

	// Explicit null is still empty.
	blog.MustSet("Name", nil)
	_, err = f.c.Insert(blog)
	assert.True(t, IsEmptyEntity(err))
}

func TestInsert_PendingParentKey(t *testing.T) {
	f := newBlogFixture(t)
	blog := tracker.New(testutil.Set(t, f.model, "Blogs").Element()).MustSet("Name", "new")
	post := tracker.New(testutil.Set(t, f.model, "BlogPosts").Element())
	require.NoError(t, post.SetRef("Blog", blog))

	// The reference alone populates the post.
	stmt, err := f.c.Insert(post)
	require.NoError(t, err)
	assert.Equal(t, KeyRef{Instance: blog}, stmt.Params[3])

	_, err = stmt.Resolve(func(*tracker.Instance) (ir.IRValue, bool) { return nil, false })
	assert.ErrorContains(t, err, "key of Blog is not known yet")

	params, err := stmt.Resolve(func(inst *tracker.Instance) (ir.IRValue, bool) {
		if inst == blog {
			return ir.IRInt(42), true
		}
		return nil, false
	})
	require.NoError(t, err)
	assert.Equal(t, []any{nil, nil, nil, int64(42)}, params)
}

func TestInsert_ClientKey(t *testing.T) {
	m := testutil.NoteModel(t)
	c := NewCompiler(m)
	note := tracker.New(testutil.Set(t, m, "Notes").Element()).MustSet("Text", "hi")

	_, err := c.Insert(note)
	assert.ErrorContains(t, err, "key Id is not set")

	note.MustSet("Id", "00000000-0000-0000-0000-000000000001")
	note.MustSet("Pinned", true)
	stmt, err := c.Insert(note)
	require.NoError(t, err)
	assertGolden(t, "insert_note", render(stmt.SQL, stmt.Params))
}

func TestUpdate_Reparent(t *testing.T) {
	f := newBlogFixture(t)
	tr := tracker.NewTracker(f.model)
	blogs := testutil.Set(t, f.model, "Blogs").Element()
	b1 := tracker.Materialize(blogs, map[string]ir.IRValue{"Id": ir.IRInt(1)}, nil)
	b2 := tracker.Materialize(blogs, map[string]ir.IRValue{"Id": ir.IRInt(2)}, nil)
	post := tracker.Materialize(testutil.Set(t, f.model, "BlogPosts").Element(),
		map[string]ir.IRValue{"Id": ir.IRInt(10), "Title": ir.IRString("t")},
		map[string]ir.IRValue{"Blog": ir.IRInt(1)})
	for _, inst := range []*tracker.Instance{b1, b2, post} {
		require.NoError(t, tr.Attach(inst))
	}

	stmt, err := f.c.Update(post)
	require.NoError(t, err)
	assert.Nil(t, stmt)

	require.NoError(t, post.SetRef("Blog", b2))
	stmt, err = f.c.Update(post)
	require.NoError(t, err)
	assert.Equal(t, OpUpdate, stmt.Op)
	assertGolden(t, "update_reparent", render(stmt.SQL, stmt.Params))

	// Parents are untouched.
	for _, b := range []*tracker.Instance{b1, b2} {
		s, err := f.c.Update(b)
		require.NoError(t, err)
		assert.Nil(t, s)
	}
}

func TestUpdate_ClearReference(t *testing.T) {
	f := newBlogFixture(t)
	tr := tracker.NewTracker(f.model)
	post := tracker.Materialize(testutil.Set(t, f.model, "BlogPosts").Element(),
		map[string]ir.IRValue{"Id": ir.IRInt(10)},
		map[string]ir.IRValue{"Blog": ir.IRInt(1)})
	require.NoError(t, tr.Attach(post))
	require.NoError(t, post.SetRef("Blog", nil))
	require.NoError(t, post.Set("Title", "renamed"))

	stmt, err := f.c.Update(post)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "BlogPosts" SET "Title" = ?, "Blog__Id" = ? WHERE "Id" = ?`, stmt.SQL)
	assert.Equal(t, []any{"renamed", nil, int64(10)}, stmt.Params)
}

func TestDelete(t *testing.T) {
	f := newBlogFixture(t)
	blogs := testutil.Set(t, f.model, "Blogs").Element()

	stmt, err := f.c.Delete(tracker.Materialize(blogs, map[string]ir.IRValue{"Id": ir.IRInt(5)}, nil))
	require.NoError(t, err)
	assert.Equal(t, OpDelete, stmt.Op)
	assert.Equal(t, `DELETE FROM "Blogs" WHERE "Id" = ?`, stmt.SQL)
	assert.Equal(t, []any{int64(5)}, stmt.Params)

	_, err = f.c.Delete(tracker.New(blogs))
	assert.ErrorContains(t, err, "key Id is not set")
}
