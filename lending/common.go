package lending

import (
	"errors"
)

var ErrNilDatabaseConnection = errors.New("database connection must not be nil")
var ErrEmptyTableNameSupplied = errors.New("empty table name supplied")
var ErrUnsupportedDialect = errors.New("unsupported sql dialect")

// ErrConcurrencyConflict signals that a transaction lost a race against a concurrent writer
// (serialization failure, deadlock, busy database). Operations failing with it can be retried safely.
var ErrConcurrencyConflict = errors.New("concurrency conflict, transaction was aborted")

var ErrBuildingQueryFailed = errors.New("building query failed")
var ErrQueryingFailed = errors.New("querying failed")
var ErrExecutingFailed = errors.New("executing statement failed")
var ErrScanningDBRowFailed = errors.New("scanning db row failed")
var ErrGettingRowsAffectedFailed = errors.New("getting rows affected failed")
var ErrBeginningTransactionFailed = errors.New("beginning transaction failed")
var ErrCommittingTransactionFailed = errors.New("committing transaction failed")
