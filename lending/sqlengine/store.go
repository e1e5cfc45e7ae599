package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/SouthernStars/book-manage-system/lending"
	"github.com/SouthernStars/book-manage-system/lending/sqlengine/internal/adapters"
)

// Dialect selects the SQL flavor the Store speaks.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

const (
	defaultTitlesTableName    = "titles"
	defaultBorrowersTableName = "borrowers"
	defaultLoansTableName     = "loan_records"
)

const (
	logMsgBuildQueryFailed     = "failed to build query"
	logMsgDBQueryFailed        = "database query execution failed"
	logMsgDBExecFailed         = "database statement execution failed"
	logMsgCloseRowsFailed      = "failed to close database rows"
	logMsgScanRowFailed        = "failed to scan database row"
	logMsgRowsAffectedFailed   = "failed to get rows affected count"
	logMsgBeginTxFailed        = "failed to begin transaction"
	logMsgCommitTxFailed       = "failed to commit transaction"
	logMsgRollbackFailed       = "failed to roll back transaction"
	logMsgConcurrencyConflict  = "concurrency conflict detected"
	logMsgSQLExecuted          = "executed sql for: "
	logMsgOperation            = "lending store operation: "
	logMsgTransactionCommitted = "transaction committed"
	logMsgCopyReserved         = "copy reserved"
	logMsgCopyReleased         = "copy released"
	logMsgLoanCreated          = "loan created"
	logMsgLoanReturned         = "loan returned"
	logMsgLoanMarkedOverdue    = "loan marked overdue"
	logMsgTitleAdded           = "title added"
	logMsgCopiesChanged        = "copies changed"
	logMsgBorrowerRegistered   = "borrower registered"
	logMsgBorrowerUpdated      = "borrower updated"
	logMsgSchemaMigrated       = "schema migrated"
	logAttrError               = "error"
	logAttrQuery               = "query"
	logAttrAction              = "action"
	logAttrDurationMS          = "duration_ms"
	logAttrTitleID             = "title_id"
	logAttrBorrowerID          = "borrower_id"
	logAttrRecordID            = "record_id"
	logAttrRowsAffected        = "rows_affected"
	logAttrDelta               = "delta"
	logAttrFineCents           = "fine_cents"
	logAttrDialect             = "dialect"
	colID                      = "id"
	colISBN                    = "isbn"
	colName                    = "name"
	colAuthor                  = "author"
	colTotalCopies             = "total_copies"
	colAvailableCopies         = "available_copies"
	colEnabled                 = "enabled"
	colBorrowerID              = "borrower_id"
	colTitleID                 = "title_id"
	colBorrowDate              = "borrow_date"
	colDueDate                 = "due_date"
	colReturnDate              = "return_date"
	colStatus                  = "status"
	colFineCents               = "fine_cents"
)

// Store implements lending.Transactor over a SQL database.
// Every read and write runs inside WithinTransaction; the exported catalog helpers open their own transaction.
type Store struct {
	db               adapters.DBAdapter
	dialect          Dialect
	builder          goqu.DialectWrapper
	titlesTable      string
	borrowersTable   string
	loansTable       string
	logger           lending.Logger
	contextualLogger lending.ContextualLogger
	metricsCollector lending.MetricsCollector
	tracingCollector lending.TracingCollector
}

// NewStoreFromPGXPool creates a new PostgreSQL Store using a pgx Pool with optional configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil {
		return nil, lending.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), DialectPostgres, options...)
}

// NewStoreFromSQLDB creates a new PostgreSQL Store using a sql.DB (lib/pq driver) with optional configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, lending.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), DialectPostgres, options...)
}

// NewStoreFromSQLX creates a new PostgreSQL Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, lending.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), DialectPostgres, options...)
}

// NewStoreFromSQLite creates a new SQLite Store. The sql.DB should come from OpenSQLite.
func NewStoreFromSQLite(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, lending.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), DialectSQLite, options...)
}

func newStore(db adapters.DBAdapter, dialect Dialect, options ...Option) (*Store, error) {
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, lending.ErrUnsupportedDialect
	}

	s := &Store{
		db:             db,
		dialect:        dialect,
		builder:        goqu.Dialect(string(dialect)),
		titlesTable:    defaultTitlesTableName,
		borrowersTable: defaultBorrowersTableName,
		loansTable:     defaultLoansTableName,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Dialect returns the SQL flavor of the Store.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// WithinTransaction runs fn inside one database transaction.
// The transaction commits when fn returns nil and rolls back on any error or panic.
// Serialization failures and deadlocks surface as lending.ErrConcurrencyConflict.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx lending.TxScope) error) (err error) {
	tracer, ctx := s.startTransactionTracing(ctx)
	metrics := s.startTransactionMetrics(ctx)
	start := time.Now()

	dbTx, beginErr := s.db.Begin(ctx)
	if beginErr != nil {
		s.logError(ctx, logMsgBeginTxFailed, beginErr)
		err = s.classify(lending.ErrBeginningTransactionFailed, beginErr)
		tracer.finish(err, time.Since(start))
		metrics.record(err, time.Since(start))

		return err
	}

	committed := false
	defer func() {
		if r := recover(); r != nil {
			s.rollback(ctx, dbTx)
			panic(r)
		}

		if !committed {
			s.rollback(ctx, dbTx)
		}

		duration := time.Since(start)
		tracer.finish(err, duration)
		metrics.record(err, duration)
	}()

	if err = fn(ctx, &txScope{store: s, q: dbTx}); err != nil {
		if errors.Is(err, lending.ErrConcurrencyConflict) {
			s.logOperation(ctx, logMsgConcurrencyConflict, logAttrError, err.Error())
		}

		return err
	}

	if commitErr := dbTx.Commit(ctx); commitErr != nil {
		s.logError(ctx, logMsgCommitTxFailed, commitErr)
		err = s.classify(lending.ErrCommittingTransactionFailed, commitErr)

		return err
	}

	committed = true
	s.logDebug(ctx, logMsgOperation+logMsgTransactionCommitted, logAttrDurationMS, s.toMilliseconds(time.Since(start)))

	return nil
}

func (s *Store) rollback(ctx context.Context, dbTx adapters.DBTx) {
	// The caller's context may already be canceled; the rollback must still reach the database.
	if rollbackErr := dbTx.Rollback(context.WithoutCancel(ctx)); rollbackErr != nil {
		s.logWarn(ctx, logMsgRollbackFailed, logAttrError, rollbackErr.Error())
	}
}

// txScope implements lending.TxScope on top of one open transaction.
type txScope struct {
	store *Store
	q     adapters.Querier
}

var _ lending.TxScope = (*txScope)(nil)
var _ lending.Transactor = (*Store)(nil)

// sqlBuilder is satisfied by goqu select, insert and update datasets.
type sqlBuilder interface {
	ToSQL() (string, []any, error)
}

func (s *Store) buildSQL(ctx context.Context, action string, builder sqlBuilder) (string, []any, error) {
	sqlQuery, args, err := builder.ToSQL()
	if err != nil {
		s.logError(ctx, logMsgBuildQueryFailed, err, logAttrAction, action)
		return "", nil, errors.Join(lending.ErrBuildingQueryFailed, err)
	}

	return sqlQuery, args, nil
}

// queryRows runs a select built by goqu. The caller must close the returned rows.
func (s *Store) queryRows(ctx context.Context, q adapters.Querier, action string, builder sqlBuilder) (adapters.DBRows, error) {
	sqlQuery, args, err := s.buildSQL(ctx, action, builder)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, queryErr := q.Query(ctx, sqlQuery, args...)
	s.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if queryErr != nil {
		s.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, s.classify(lending.ErrQueryingFailed, queryErr)
	}

	return rows, nil
}

// execStatement runs an insert or update built by goqu and returns the number of affected rows.
func (s *Store) execStatement(ctx context.Context, q adapters.Querier, action string, builder sqlBuilder) (int64, error) {
	sqlQuery, args, err := s.buildSQL(ctx, action, builder)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	result, execErr := q.Exec(ctx, sqlQuery, args...)
	s.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if execErr != nil {
		s.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return 0, s.classify(lending.ErrExecutingFailed, execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		s.logError(ctx, logMsgRowsAffectedFailed, rowsAffectedErr)
		return 0, errors.Join(lending.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	return rowsAffected, nil
}

// closeRows safely closes database rows and logs any errors.
func (s *Store) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

// collectRows scans every row with scan and checks the iteration error.
func collectRows[T any](ctx context.Context, s *Store, rows adapters.DBRows, scan func(adapters.DBRows) (T, error)) ([]T, error) {
	defer s.closeRows(ctx, rows)

	items := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			s.logError(ctx, logMsgScanRowFailed, err)
			return nil, errors.Join(lending.ErrScanningDBRowFailed, err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		s.logError(ctx, logMsgDBQueryFailed, err)
		return nil, s.classify(lending.ErrQueryingFailed, err)
	}

	return items, nil
}

// countRows runs a COUNT(*) select and returns the single value.
func (s *Store) countRows(ctx context.Context, q adapters.Querier, action string, builder sqlBuilder) (int, error) {
	rows, err := s.queryRows(ctx, q, action, builder)
	if err != nil {
		return 0, err
	}

	counts, err := collectRows(ctx, s, rows, func(r adapters.DBRows) (int, error) {
		var count int
		scanErr := r.Scan(&count)

		return count, scanErr
	})
	if err != nil {
		return 0, err
	}

	if len(counts) == 0 {
		return 0, nil
	}

	return counts[0], nil
}

// from starts a prepared select on table.
func (s *Store) from(table string) *goqu.SelectDataset {
	return s.builder.From(table).Prepared(true)
}

// update starts a prepared update on table.
func (s *Store) update(table string) *goqu.UpdateDataset {
	return s.builder.Update(table).Prepared(true)
}

// insert starts a prepared insert on table.
func (s *Store) insert(table string) *goqu.InsertDataset {
	return s.builder.Insert(table).Prepared(true)
}

// forUpdate adds a row lock to the select on dialects that support it.
// SQLite transactions start with BEGIN IMMEDIATE and hold the database write lock instead.
func (s *Store) forUpdate(ds *goqu.SelectDataset) *goqu.SelectDataset {
	if s.dialect == DialectPostgres {
		return ds.ForUpdate(exp.Wait)
	}

	return ds
}
