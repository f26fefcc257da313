// Package sqlgen lowers expression trees and tracked instances to
// parameterized SQLite statements.
//
// Lowering rules:
//
//   - Values are always bound as ? parameters, never interpolated.
//   - Every row-returning statement ends in ORDER BY with the key column as
//     the final tiebreaker, so results are deterministic.
//   - Reference paths (BlogPost.Blog.Name) become LEFT JOINs on the
//     <Parent>__<Key> foreign-key column; Any/All over a collection become
//     correlated EXISTS / NOT EXISTS subqueries.
//   - An operator that must see the result of an earlier Skip/Take (a later
//     Filter or OrderBy) wraps the statement so far in a derived table.
//
// Opaque predicates (expr.Func) are not lowered. The plan carries them as
// a residual; the SQL fetches rows that satisfy the lowerable part and the
// executor finishes the frame in memory.
package sqlgen
