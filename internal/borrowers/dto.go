package borrowers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
)

type CreateBorrowerInput struct {
	IDCardNumber string
	Name         string
	Email        string
}

// UpdateBorrowerInput holds the optional fields for a partial update.
type UpdateBorrowerInput struct {
	IDCardNumber *string
	Name         *string
	Email        *string
}

type ListBorrowersInput struct {
	Search string
	Limit  int
	Cursor string
}

// BorrowerDTO is a borrower with their current lending state.
type BorrowerDTO struct {
	ID            uuid.UUID  `json:"id"`
	IDCardNumber  string     `json:"id_card_number"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	HasActiveLoan bool       `json:"has_active_loan"`
	ActiveLoanID  *uuid.UUID `json:"active_loan_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type BorrowerListDTO struct {
	Borrowers  []BorrowerDTO `json:"borrowers"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type RosterSummary struct {
	TotalBorrowers       int64 `json:"total_borrowers"`
	BorrowersWithLoan    int64 `json:"borrowers_with_loan"`
	BorrowersWithoutLoan int64 `json:"borrowers_without_loan"`
}

func newBorrowerDTO(borrower models.Borrower, activeLoanID *uuid.UUID) BorrowerDTO {
	return BorrowerDTO{
		ID:            borrower.ID,
		IDCardNumber:  borrower.IDCardNumber,
		Name:          borrower.Name,
		Email:         borrower.Email,
		HasActiveLoan: activeLoanID != nil,
		ActiveLoanID:  activeLoanID,
		CreatedAt:     borrower.CreatedAt,
		UpdatedAt:     borrower.UpdatedAt,
	}
}
