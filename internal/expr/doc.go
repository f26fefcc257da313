// Package expr defines the query expression tree: immutable nodes built
// over an entity set and lowered to SQL by package sqlgen.
//
// A tree is a chain. It starts at an EntitySetExpression and grows by
// wrapping the previous node:
//
//	EntitySet(Blogs) -> Filter(Name = "Comment") -> Count
//
// Nodes come in two sealed families:
//
//   - Source nodes (EntitySet, Filter, Projection, OrderBy, Skip, Take)
//     produce a collection and may be the source of another node.
//   - Frame nodes (Count, Single, First, ForEach, ToArray, Some, Every)
//     terminate the chain. They do not implement Source, so a constructor
//     cannot be handed a frame; the dynamic Build helper reports the same
//     mistake as a *ChainError.
//
// Constructors type-check eagerly. A predicate path that does not resolve
// against the element entity, a value of the wrong data type, or an
// entity-shaped operator applied after a projection all fail with a
// *TypeMismatchError before any SQL is produced.
//
// Predicates are declarative (Compare, And, Or, Not, Any, All) so they can
// be lowered to SQL. Func is the escape hatch: an opaque Go function that
// is evaluated in memory after the SQL runs. Func may only appear as a
// top-level conjunct of a Filter, Some or Every predicate.
package expr
