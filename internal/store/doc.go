// Package store is the SQLite storage collaborator: it opens the
// database, runs lowered statements and groups them into transactions.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes (file databases only)
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout: wait for locks, 5 seconds unless overridden
//   - foreign_keys=ON: enforce referential integrity
//
// The pool is limited to one connection. Statements of one transaction
// run in the order they are issued on that connection.
//
// Every driver failure is returned as a *StorageError. Statements are
// logged at Debug level and, when a *Metrics is supplied, counted and
// timed per statement kind.
package store
