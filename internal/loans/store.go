package loans

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
	"github.com/angelmondragon/library-loans-backend/pkg/enums"
)

// Store is the ledger storage the lending rules run against. Lookups return
// ErrNotFound for missing rows; the conditional writes return ErrConflict when
// a concurrent writer invalidated their precondition.
type Store interface {
	GetBook(ctx context.Context, id uuid.UUID) (*models.Book, error)
	GetBorrower(ctx context.Context, id uuid.UUID) (*models.Borrower, error)
	CountActiveLoans(ctx context.Context, scope ActiveLoanScope) (int64, error)
	// InsertLoanIfInvariantsHold re-checks stock and the one-active-loan rule
	// and inserts loan in a single atomic unit.
	InsertLoanIfInvariantsHold(ctx context.Context, loan *models.Loan) (*models.Loan, error)
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	// UpdateLoanReturn flips an active loan to returned. A loan that is
	// already returned yields ErrConflict.
	UpdateLoanReturn(ctx context.Context, id uuid.UUID, returnedAt time.Time) (*models.Loan, error)
	ListLoans(ctx context.Context, filter LoanFilter) ([]models.Loan, error)
}

// ActiveLoanScope selects active loans by book or by borrower. Exactly one of
// the ids is expected to be set.
type ActiveLoanScope struct {
	BookID     uuid.UUID
	BorrowerID uuid.UUID
}

func ByBook(id uuid.UUID) ActiveLoanScope {
	return ActiveLoanScope{BookID: id}
}

func ByBorrower(id uuid.UUID) ActiveLoanScope {
	return ActiveLoanScope{BorrowerID: id}
}

// LoanFilter narrows ListLoans. Zero values mean "any".
type LoanFilter struct {
	Status     enums.LoanStatus
	BookID     uuid.UUID
	BorrowerID uuid.UUID
	Limit      int
}

func (f LoanFilter) matches(l models.Loan) bool {
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	if f.BookID != uuid.Nil && l.BookID != f.BookID {
		return false
	}
	if f.BorrowerID != uuid.Nil && l.BorrowerID != f.BorrowerID {
		return false
	}
	return true
}
