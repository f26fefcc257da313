package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// createTestStore opens a file database in a temp dir.
func createTestStore(t *testing.T, opts ...Option) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

// createBlogTables creates a parent/child pair of tables.
func createBlogTables(t *testing.T, d *DB) {
	t.Helper()
	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE TABLE "Blogs" ("Id" INTEGER PRIMARY KEY AUTOINCREMENT, "Name" TEXT)`,
		`CREATE TABLE "BlogPosts" ("Id" INTEGER PRIMARY KEY AUTOINCREMENT, "Title" TEXT, "Blog__Id" INTEGER REFERENCES "Blogs" ("Id") ON DELETE SET NULL)`,
	} {
		_, err := d.ExecuteSQL(ctx, stmt)
		require.NoError(t, err)
	}
}

// pragma reads a single pragma value.
func (d *DB) pragma(ctx context.Context, name string) (string, error) {
	var value string
	if err := d.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return "", &StorageError{Op: "pragma", SQL: "PRAGMA " + name, Err: err}
	}
	return value, nil
}
