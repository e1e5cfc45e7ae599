package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/SouthernStars/book-manage-system/lending"
)

// BorrowCommand is the intent of a borrower to take one copy of a title home for LoanDays days.
type BorrowCommand struct {
	RecordID   uuid.UUID
	BorrowerID uuid.UUID
	TitleID    uuid.UUID
	LoanDays   int
	BorrowDate time.Time
}

// BuildBorrowCommand creates a BorrowCommand. The record id is chosen up front, so every retry
// of the command writes the same record.
func BuildBorrowCommand(recordID, borrowerID, titleID uuid.UUID, loanDays int, now time.Time) BorrowCommand {
	return BorrowCommand{
		RecordID:   recordID,
		BorrowerID: borrowerID,
		TitleID:    titleID,
		LoanDays:   loanDays,
		BorrowDate: lending.DateOf(now),
	}
}

// ReturnCommand is the intent to hand back the copy of one loan.
type ReturnCommand struct {
	RecordID   uuid.UUID
	ReturnDate time.Time
}

// BuildReturnCommand creates a ReturnCommand dated on the calendar day of now.
func BuildReturnCommand(recordID uuid.UUID, now time.Time) ReturnCommand {
	return ReturnCommand{
		RecordID:   recordID,
		ReturnDate: lending.DateOf(now),
	}
}
