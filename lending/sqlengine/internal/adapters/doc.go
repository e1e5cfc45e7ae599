// Package adapters provide database adapter implementations for the lending SQL store.
//
// This package implements the adapter pattern to support pgx.Pool, sql.DB and sqlx.DB.
// All adapters provide equivalent functionality through the DBAdapter interface: parameterized
// queries, statements and transactions. The sql.DB adapter also carries SQLite connections.
package adapters
