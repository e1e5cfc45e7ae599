package lending

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InventoryStore keeps per-title copy counts.
// ReserveCopy and ReleaseCopy are atomic compare-and-modify steps: under concurrent calls on the
// same title, available copies never drop below zero and never exceed the total.
type InventoryStore interface {
	// GetTitle returns ErrTitleNotFound for unknown titles.
	GetTitle(ctx context.Context, titleID uuid.UUID) (Title, error)

	// LockTitle reads the title and holds a row lock on it until the transaction ends, where the backend supports it.
	LockTitle(ctx context.Context, titleID uuid.UUID) (Title, error)

	// ReserveCopy decrements available copies by one or fails with ErrNoCopyAvailable (or ErrTitleNotFound).
	ReserveCopy(ctx context.Context, titleID uuid.UUID) error

	// ReleaseCopy increments available copies by one or fails with ErrInventoryOverflow (or ErrTitleNotFound).
	ReleaseCopy(ctx context.Context, titleID uuid.UUID) error

	// ListAvailableTitles returns titles with at least one available copy.
	ListAvailableTitles(ctx context.Context) ([]Title, error)
}

// BorrowLedger is the persistent, queryable set of LoanRecords.
type BorrowLedger interface {
	// FindActiveLoan returns the ACTIVE or OVERDUE record for the pair, reporting false if none exists.
	FindActiveLoan(ctx context.Context, borrowerID, titleID uuid.UUID) (LoanRecord, bool, error)

	// CreateLoan persists a new ACTIVE record. It fails with ErrDuplicateActiveLoan if the pair already holds one.
	CreateLoan(ctx context.Context, record LoanRecord) error

	// GetLoan returns ErrRecordNotFound for unknown ids.
	GetLoan(ctx context.Context, recordID uuid.UUID) (LoanRecord, error)

	// LockLoan is GetLoan holding a row lock until the transaction ends, where the backend supports it.
	LockLoan(ctx context.Context, recordID uuid.UUID) (LoanRecord, error)

	// MarkReturned sets the return date, fine and RETURNED status on a record that is not yet RETURNED.
	MarkReturned(ctx context.Context, recordID uuid.UUID, returnDate time.Time, fine float64) (LoanRecord, error)

	// MarkOverdue moves an ACTIVE record whose due date is before asOf to OVERDUE and reports whether it changed.
	MarkOverdue(ctx context.Context, recordID uuid.UUID, asOf time.Time) (bool, error)

	// ListOverdue returns ACTIVE or OVERDUE records with a due date strictly before asOf.
	ListOverdue(ctx context.Context, asOf time.Time) ([]LoanRecord, error)

	// ListActiveLoans returns the ACTIVE or OVERDUE records of a borrower.
	ListActiveLoans(ctx context.Context, borrowerID uuid.UUID) ([]LoanRecord, error)

	// ListLoansByBorrower returns every record of a borrower, returned ones included.
	ListLoansByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]LoanRecord, error)

	// ListLoans returns every record in the ledger, returned ones included.
	ListLoans(ctx context.Context) ([]LoanRecord, error)

	// CountActiveLoansByTitle returns how many ACTIVE or OVERDUE records exist for a title.
	CountActiveLoansByTitle(ctx context.Context, titleID uuid.UUID) (int, error)

	// Stats counts ACTIVE or OVERDUE records, and the subset of those past due as of asOf.
	Stats(ctx context.Context, asOf time.Time) (LoanStats, error)
}

// BorrowerDirectory answers the two questions the core asks about borrowers: do they exist, are they enabled.
type BorrowerDirectory interface {
	// LookupBorrower returns ErrBorrowerNotFound for unknown ids.
	LookupBorrower(ctx context.Context, borrowerID uuid.UUID) (Borrower, error)
}

// TxScope is the set of store operations available inside one transaction.
type TxScope interface {
	InventoryStore
	BorrowLedger
	BorrowerDirectory
}

// Transactor runs fn inside a single storage transaction.
// The transaction commits if fn returns nil and rolls back otherwise, leaving no partial effects.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx TxScope) error) error
}
