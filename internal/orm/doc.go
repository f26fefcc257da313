// Package orm is the entity context: it ties a schema model, the change
// tracker, the SQL lowering engine and the SQLite store together.
//
// A typical session:
//
//	c, err := orm.Open(ctx, db, model)
//	blogs, _ := c.Set("Blogs")
//	blog := blogs.New().MustSet("Name", "Comment")
//	_ = blogs.Add(blog)
//	err = c.SaveChanges(ctx)
//	n, err := blogs.Query().Where(expr.Eq("Name", "Comment")).Count(ctx)
//
// Building a query never touches storage; errors from building surface at
// the frame call before any statement runs. SaveChanges runs every pending
// write inside one transaction and applies the state transitions only
// after it commits.
//
// A Context is not safe for concurrent use. Callers serialize saves.
package orm
