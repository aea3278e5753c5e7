package loans

import (
	"errors"

	pkgerrors "github.com/angelmondragon/library-loans-backend/pkg/errors"
)

// Named lending conditions. Service methods return them wrapped in a
// *pkgerrors.Error, so errors.Is still matches.
var (
	ErrBookNotFound                 = errors.New("book not found")
	ErrBorrowerNotFound             = errors.New("borrower not found")
	ErrLoanNotFound                 = errors.New("loan not found")
	ErrNoCopiesAvailable            = errors.New("no copies available")
	ErrBorrowerAlreadyHasActiveLoan = errors.New("borrower already has an active loan")
	ErrInvalidDueDate               = errors.New("invalid due date")
	ErrLoanAlreadyReturned          = errors.New("loan already returned")
)

// Store-level conditions. These never leave the service untranslated.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("concurrent write conflict")
)

const (
	ReasonBookNotFound                 = "BOOK_NOT_FOUND"
	ReasonBorrowerNotFound             = "BORROWER_NOT_FOUND"
	ReasonLoanNotFound                 = "LOAN_NOT_FOUND"
	ReasonNoCopiesAvailable            = "NO_COPIES_AVAILABLE"
	ReasonBorrowerAlreadyHasActiveLoan = "BORROWER_ALREADY_HAS_ACTIVE_LOAN"
	ReasonInvalidDueDate               = "INVALID_DUE_DATE"
	ReasonLoanAlreadyReturned          = "LOAN_ALREADY_RETURNED"
)

type condition struct {
	code   pkgerrors.Code
	reason string
}

var conditions = map[error]condition{
	ErrBookNotFound:                 {pkgerrors.CodeNotFound, ReasonBookNotFound},
	ErrBorrowerNotFound:             {pkgerrors.CodeNotFound, ReasonBorrowerNotFound},
	ErrLoanNotFound:                 {pkgerrors.CodeNotFound, ReasonLoanNotFound},
	ErrNoCopiesAvailable:            {pkgerrors.CodeStateConflict, ReasonNoCopiesAvailable},
	ErrBorrowerAlreadyHasActiveLoan: {pkgerrors.CodeStateConflict, ReasonBorrowerAlreadyHasActiveLoan},
	ErrInvalidDueDate:               {pkgerrors.CodeValidation, ReasonInvalidDueDate},
	ErrLoanAlreadyReturned:          {pkgerrors.CodeStateConflict, ReasonLoanAlreadyReturned},
}

// lendingError wraps a named condition into the API error type.
func lendingError(sentinel error, message string) error {
	c, ok := conditions[sentinel]
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, sentinel, message)
	}
	if message == "" {
		message = sentinel.Error()
	}
	return pkgerrors.Wrap(c.code, sentinel, message).
		WithReason(c.reason).
		WithDetails(map[string]any{"reason": c.reason})
}

// Reason returns the condition name carried by err, or "" when err is not a
// lending condition.
func Reason(err error) string {
	for sentinel, c := range conditions {
		if errors.Is(err, sentinel) {
			return c.reason
		}
	}
	return ""
}

func storeError(err error, message string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
