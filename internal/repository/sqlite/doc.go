// Package sqlite implements the repository contracts on SQLite.
//
// The store keeps a single open connection: SQLite serializes writers
// anyway, and an in-memory database only exists for the connection that
// created it. Transactions started by WithinTransaction travel in the
// context, so repository calls made inside fn use the transaction.
package sqlite
