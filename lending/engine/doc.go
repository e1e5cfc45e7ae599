// Package engine implements the lending engine: borrowing and returning copies of titles.
//
// The engine is a stateless orchestrator over a lending.Transactor. Each operation reads the state
// it needs inside one storage transaction, hands it to a pure decide function (DecideBorrow,
// DecideReturn) and writes the outcome in the same transaction. A transaction that loses a
// concurrency race (lending.ErrConcurrencyConflict) is rolled back and retried with exponential
// backoff; domain failures are returned to the caller as *lending.Error values and never retried.
//
// Usage:
//
//	store, _ := sqlengine.NewStoreFromSQLite(db)
//	lendingEngine, _ := engine.New(store, engine.WithLogger(slog.Default()))
//
//	record, err := lendingEngine.Borrow(ctx, borrowerID, titleID, 14)
//	if errors.Is(err, lending.ErrNoCopyAvailable) {
//		// tell the borrower
//	}
package engine
