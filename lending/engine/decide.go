package engine

import (
	"time"

	"github.com/SouthernStars/book-manage-system/lending"
)

// BorrowState is what the borrow decision needs to know, read inside the borrow transaction.
type BorrowState struct {
	Borrower      lending.Borrower
	Title         lending.Title
	TitleFound    bool
	HasActiveLoan bool
}

// ValidateBorrow checks the parts of a BorrowCommand that do not depend on stored state.
func ValidateBorrow(command BorrowCommand) error {
	if command.LoanDays <= 0 {
		return lending.ErrInvalidLoanPeriod.With("loan_days", command.LoanDays)
	}

	return nil
}

// DecideBorrow is a pure function that decides whether the borrow may proceed and, if so,
// returns the record to create. The command must already have passed ValidateBorrow.
//
// Business Rules:
//
//	GIVEN: an existing borrower
//	WHEN: the borrower asks for a copy of a title for LoanDays days
//	THEN: a new ACTIVE record due on BorrowDate + LoanDays
//	ERROR: BorrowerDisabled if the borrower is disabled
//	ERROR: TitleNotFound if the title does not exist
//	ERROR: AlreadyBorrowed if the pair already holds an ACTIVE or OVERDUE record
//	ERROR: NoCopyAvailable if the title has no available copy
//
// The store still reserves the copy with an atomic compare-and-decrement; the availability
// check here only avoids a pointless write.
func DecideBorrow(state BorrowState, command BorrowCommand) (lending.LoanRecord, error) {
	if !state.Borrower.Enabled {
		return lending.LoanRecord{}, lending.ErrBorrowerDisabled.With(logAttrBorrowerID, command.BorrowerID)
	}

	if !state.TitleFound {
		return lending.LoanRecord{}, lending.ErrTitleNotFound.With(logAttrTitleID, command.TitleID)
	}

	if state.HasActiveLoan {
		return lending.LoanRecord{}, lending.ErrAlreadyBorrowed.
			With(logAttrBorrowerID, command.BorrowerID).
			With(logAttrTitleID, command.TitleID)
	}

	if state.Title.AvailableCopies <= 0 {
		return lending.LoanRecord{}, lending.ErrNoCopyAvailable.With(logAttrTitleID, command.TitleID)
	}

	return lending.LoanRecord{
		ID:         command.RecordID,
		BorrowerID: command.BorrowerID,
		TitleID:    command.TitleID,
		BorrowDate: lending.DateOf(command.BorrowDate),
		DueDate:    lending.DueDateFor(command.BorrowDate, command.LoanDays),
		Status:     lending.StatusActive,
	}, nil
}

// ReturnDecision carries what MarkReturned needs.
type ReturnDecision struct {
	ReturnDate time.Time
	Fine       float64
}

// DecideReturn is a pure function deciding the outcome of returning record.
//
// Business Rules:
//
//	GIVEN: a loan record
//	WHEN: its copy is handed back on ReturnDate
//	THEN: the record becomes RETURNED with fine = days late x finePerDay (zero when on time or early)
//	ERROR: AlreadyReturned if the record is RETURNED already
//
// Whether the overdue sweep reclassified the record beforehand makes no difference to the fine.
func DecideReturn(record lending.LoanRecord, command ReturnCommand, finePerDay float64) (ReturnDecision, error) {
	if !record.Status.CanTransitionTo(lending.StatusReturned) {
		return ReturnDecision{}, lending.ErrAlreadyReturned.With(logAttrRecordID, record.ID)
	}

	returnDate := lending.DateOf(command.ReturnDate)

	return ReturnDecision{
		ReturnDate: returnDate,
		Fine:       lending.ComputeFine(record.DueDate, returnDate, finePerDay),
	}, nil
}
