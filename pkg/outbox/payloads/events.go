package payloads

import (
	"time"

	"github.com/google/uuid"
)

// LoanCreatedEvent is emitted when a copy is lent to a borrower.
type LoanCreatedEvent struct {
	LoanID     uuid.UUID `json:"loan_id"`
	BookID     uuid.UUID `json:"book_id"`
	BorrowerID uuid.UUID `json:"borrower_id"`
	BorrowedAt time.Time `json:"borrowed_at"`
	DueDate    time.Time `json:"due_date"`
}

// LoanReturnedEvent is emitted when a lent copy comes back.
type LoanReturnedEvent struct {
	LoanID      uuid.UUID `json:"loan_id"`
	BookID      uuid.UUID `json:"book_id"`
	BorrowerID  uuid.UUID `json:"borrower_id"`
	ReturnedAt  time.Time `json:"returned_at"`
	WasOverdue  bool      `json:"was_overdue"`
	DaysOverdue int       `json:"days_overdue"`
}

// Subject is the loan the event describes. It must match the outbox row's
// aggregate id.
func (e LoanCreatedEvent) Subject() uuid.UUID { return e.LoanID }

func (e LoanReturnedEvent) Subject() uuid.UUID { return e.LoanID }
