package loans

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-loans-backend/internal/availability"
	"github.com/angelmondragon/library-loans-backend/internal/overdue"
	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
	"github.com/angelmondragon/library-loans-backend/pkg/enums"
)

// CreateLoanInput carries the fields a caller supplies to lend a copy.
type CreateLoanInput struct {
	BookID     uuid.UUID
	BorrowerID uuid.UUID
	DueDate    time.Time
	// DueOnDay marks DueDate as a calendar day; only its year, month and day
	// are read and the loan falls due at the end of that day.
	DueOnDay bool
}

// ListLoansInput selects a loan listing view.
type ListLoansInput struct {
	View       enums.LoanView
	BookID     uuid.UUID
	BorrowerID uuid.UUID
	Limit      int
}

// LoanDTO is a loan with its read-time derived fields attached.
type LoanDTO struct {
	ID          uuid.UUID        `json:"id"`
	BookID      uuid.UUID        `json:"book_id"`
	BorrowerID  uuid.UUID        `json:"borrower_id"`
	Status      enums.LoanStatus `json:"status"`
	BorrowedAt  time.Time        `json:"borrowed_at"`
	DueDate     time.Time        `json:"due_date"`
	ReturnedAt  *time.Time       `json:"returned_at"`
	Overdue     bool             `json:"overdue"`
	DaysOverdue int              `json:"days_overdue"`
	Book        *BookSummary     `json:"book,omitempty"`
	Borrower    *BorrowerSummary `json:"borrower,omitempty"`
}

type BookSummary struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	ISBN            string    `json:"isbn"`
	Stock           int       `json:"stock"`
	AvailableCopies int       `json:"available_copies"`
}

type BorrowerSummary struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	IDCardNumber  string    `json:"id_card_number"`
	Email         string    `json:"email"`
	HasActiveLoan bool      `json:"has_active_loan"`
}

// StatsDTO holds the dashboard tallies. Overdue loans are also active.
type StatsDTO struct {
	TotalLoans    int `json:"total_loans"`
	ActiveLoans   int `json:"active_loans"`
	OverdueLoans  int `json:"overdue_loans"`
	ReturnedLoans int `json:"returned_loans"`
}

// activeCounts answers "how many active loans" per book and borrower for a
// batch of DTOs, computed once from the active loan set.
type activeCounts struct {
	loans      []models.Loan
	byBook     map[uuid.UUID]int64
	byBorrower map[uuid.UUID]int64
}

func newActiveCounts(active []models.Loan) *activeCounts {
	return &activeCounts{
		loans:      active,
		byBook:     make(map[uuid.UUID]int64),
		byBorrower: make(map[uuid.UUID]int64),
	}
}

func (c *activeCounts) forBook(id uuid.UUID) int64 {
	if n, ok := c.byBook[id]; ok {
		return n
	}
	n := availability.CountActiveForBook(c.loans, id)
	c.byBook[id] = n
	return n
}

func (c *activeCounts) forBorrower(id uuid.UUID) int64 {
	if n, ok := c.byBorrower[id]; ok {
		return n
	}
	n := availability.CountActiveForBorrower(c.loans, id)
	c.byBorrower[id] = n
	return n
}

func newLoanDTO(loan models.Loan, now time.Time, bookActive, borrowerActive int64) LoanDTO {
	st := overdue.Evaluate(loan, now)
	dto := LoanDTO{
		ID:          loan.ID,
		BookID:      loan.BookID,
		BorrowerID:  loan.BorrowerID,
		Status:      loan.Status,
		BorrowedAt:  loan.BorrowedAt,
		DueDate:     loan.DueDate,
		ReturnedAt:  loan.ReturnedAt,
		Overdue:     st.Overdue,
		DaysOverdue: st.DaysOverdue,
	}
	if loan.Book != nil {
		dto.Book = &BookSummary{
			ID:              loan.Book.ID,
			Title:           loan.Book.Title,
			ISBN:            loan.Book.ISBN,
			Stock:           loan.Book.Stock,
			AvailableCopies: availability.AvailableCopies(loan.Book.Stock, bookActive),
		}
	}
	if loan.Borrower != nil {
		dto.Borrower = &BorrowerSummary{
			ID:            loan.Borrower.ID,
			Name:          loan.Borrower.Name,
			IDCardNumber:  loan.Borrower.IDCardNumber,
			Email:         loan.Borrower.Email,
			HasActiveLoan: availability.HasActiveLoan(borrowerActive),
		}
	}
	return dto
}
