package lending

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies domain failures so callers can map them without inspecting messages.
type ErrorKind uint8

const (
	KindNotFound ErrorKind = iota + 1
	KindConflict
	KindInvariantViolation
	KindInvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindInvariantViolation:
		return "InvariantViolation"
	case KindInvalidInput:
		return "InvalidInput"
	default:
		return "Unknown"
	}
}

// Error is a classified domain failure.
// Two errors are considered the same by errors.Is when their Code matches,
// so detailed copies created with With still match the package sentinels.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]string
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return e.Code + ": " + e.Message
	}

	keys := make([]string, 0, len(e.Details))
	for key := range e.Details {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", key, e.Details[key]))
	}

	return e.Code + ": " + e.Message + " (" + strings.Join(parts, ", ") + ")"
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Code == e.Code
}

// With returns a copy of e carrying an additional detail.
func (e *Error) With(key string, value any) *Error {
	details := make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = fmt.Sprint(value)

	return &Error{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Details: details,
	}
}

var (
	ErrBorrowerNotFound = &Error{Kind: KindNotFound, Code: "BORROWER_NOT_FOUND", Message: "borrower does not exist"}
	ErrTitleNotFound    = &Error{Kind: KindNotFound, Code: "TITLE_NOT_FOUND", Message: "title does not exist"}
	ErrRecordNotFound   = &Error{Kind: KindNotFound, Code: "RECORD_NOT_FOUND", Message: "loan record does not exist"}

	ErrBorrowerDisabled      = &Error{Kind: KindConflict, Code: "BORROWER_DISABLED", Message: "borrower is disabled"}
	ErrAlreadyBorrowed       = &Error{Kind: KindConflict, Code: "ALREADY_BORROWED", Message: "borrower already holds an active loan for this title"}
	ErrDuplicateActiveLoan   = &Error{Kind: KindConflict, Code: "DUPLICATE_ACTIVE_LOAN", Message: "an active loan for this borrower and title already exists"}
	ErrNoCopyAvailable       = &Error{Kind: KindConflict, Code: "NO_COPY_AVAILABLE", Message: "no copy of this title is available"}
	ErrAlreadyReturned       = &Error{Kind: KindConflict, Code: "ALREADY_RETURNED", Message: "loan record was already returned"}
	ErrTitleAlreadyExists    = &Error{Kind: KindConflict, Code: "TITLE_ALREADY_EXISTS", Message: "title already exists"}
	ErrBorrowerAlreadyExists = &Error{Kind: KindConflict, Code: "BORROWER_ALREADY_EXISTS", Message: "borrower already exists"}

	ErrInventoryOverflow  = &Error{Kind: KindInvariantViolation, Code: "INVENTORY_OVERFLOW", Message: "available copies would exceed total copies"}
	ErrInventoryUnderflow = &Error{Kind: KindInvariantViolation, Code: "INVENTORY_UNDERFLOW", Message: "available copies would drop below zero"}

	ErrInvalidLoanPeriod = &Error{Kind: KindInvalidInput, Code: "INVALID_LOAN_PERIOD", Message: "loan period must be a positive number of days"}
	ErrInvalidCopyCount  = &Error{Kind: KindInvalidInput, Code: "INVALID_COPY_COUNT", Message: "copy count must be positive"}
)

// AsError returns the first *Error found in err's chain.
func AsError(err error) (*Error, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr, true
	}

	return nil, false
}

// KindOf returns the kind of the first *Error found in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	if domainErr, ok := AsError(err); ok {
		return domainErr.Kind, true
	}

	return 0, false
}

func IsNotFound(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindNotFound
}

func IsConflict(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindConflict
}

func IsInvariantViolation(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindInvariantViolation
}

func IsInvalidInput(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindInvalidInput
}
