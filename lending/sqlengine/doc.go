// Package sqlengine provides the SQL implementation of the lending stores: the book inventory,
// the borrow ledger and the borrower lookup, all reachable inside one transaction.
//
// It supports PostgreSQL through pgx.Pool, sql.DB (lib/pq) and sqlx.DB, and SQLite through
// mattn/go-sqlite3. Queries are built with goqu using the matching dialect.
//
// Key features:
//   - Compare-and-modify copy counts (reserve never drops below zero, release never exceeds the total)
//   - At most one ACTIVE or OVERDUE loan per borrower and title, enforced by a partial unique index
//   - Row locks on titles and loan records (PostgreSQL), single writer connection (SQLite)
//   - Storage races surface as lending.ErrConcurrencyConflict so callers can retry
//   - Configurable table names, logging, metrics and tracing
//
// Usage examples:
//
//	pool, _ := pgxpool.New(context.Background(), dsn)
//	store, _ := sqlengine.NewStoreFromPGXPool(pool, sqlengine.WithLogger(logger))
//	_ = store.Migrate(ctx)
//
//	db, _ := sqlengine.OpenSQLite("lending.db")
//	store, _ := sqlengine.NewStoreFromSQLite(db)
//
//	err := store.WithinTransaction(ctx, func(ctx context.Context, tx lending.TxScope) error {
//		return tx.ReserveCopy(ctx, titleID)
//	})
package sqlengine
