package lending

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LoanStatus is the lifecycle state of a LoanRecord.
// Allowed transitions: ACTIVE -> OVERDUE, ACTIVE -> RETURNED, OVERDUE -> RETURNED. RETURNED is terminal.
type LoanStatus uint8

const (
	StatusActive LoanStatus = iota + 1
	StatusOverdue
	StatusReturned
)

const (
	statusActiveText   = "ACTIVE"
	statusOverdueText  = "OVERDUE"
	statusReturnedText = "RETURNED"
)

func (s LoanStatus) String() string {
	switch s {
	case StatusActive:
		return statusActiveText
	case StatusOverdue:
		return statusOverdueText
	case StatusReturned:
		return statusReturnedText
	default:
		return fmt.Sprintf("LoanStatus(%d)", uint8(s))
	}
}

// ParseLoanStatus maps the stored representation back to a LoanStatus.
func ParseLoanStatus(text string) (LoanStatus, error) {
	switch text {
	case statusActiveText:
		return StatusActive, nil
	case statusOverdueText:
		return StatusOverdue, nil
	case statusReturnedText:
		return StatusReturned, nil
	default:
		return 0, fmt.Errorf("unknown loan status %q", text)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s LoanStatus) MarshalText() ([]byte, error) {
	switch s {
	case StatusActive, StatusOverdue, StatusReturned:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("invalid loan status %d", uint8(s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *LoanStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseLoanStatus(string(text))
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}

// CanTransitionTo reports whether moving from s to next is an allowed lifecycle step.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	switch s {
	case StatusActive:
		return next == StatusOverdue || next == StatusReturned
	case StatusOverdue:
		return next == StatusReturned
	default:
		return false
	}
}

// Holding reports whether a record in this status still holds a copy.
func (s LoanStatus) Holding() bool {
	return s == StatusActive || s == StatusOverdue
}

// Title is a catalogued work with a copy count.
type Title struct {
	ID              uuid.UUID `json:"id"`
	ISBN            string    `json:"isbn"`
	Name            string    `json:"name"`
	Author          string    `json:"author"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
}

// LentCopies returns the number of copies currently held by borrowers.
func (t Title) LentCopies() int {
	return t.TotalCopies - t.AvailableCopies
}

// Borrower is the subset of a borrower profile the lending core consults.
type Borrower struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Enabled bool      `json:"enabled"`
}

// LoanRecord is the persistent evidence of one loan.
// ReturnDate and FineAmount stay nil until the record is returned.
type LoanRecord struct {
	ID         uuid.UUID  `json:"id"`
	BorrowerID uuid.UUID  `json:"borrower_id"`
	TitleID    uuid.UUID  `json:"title_id"`
	BorrowDate time.Time  `json:"borrow_date"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	Status     LoanStatus `json:"status"`
	FineAmount *float64   `json:"fine_amount,omitempty"`
}

// IsPastDue reports whether a still held record's due date lies strictly before asOf (calendar days).
func (r LoanRecord) IsPastDue(asOf time.Time) bool {
	return r.Status.Holding() && DateOf(r.DueDate).Before(DateOf(asOf))
}

// LoanStats summarizes the ledger.
type LoanStats struct {
	ActiveLoans  int `json:"active_loans"`
	OverdueLoans int `json:"overdue_loans"`
}
