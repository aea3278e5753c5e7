package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-loans-backend/pkg/enums"
)

// Loan is one entry of the lending ledger. Rows are never deleted.
type Loan struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	BookID     uuid.UUID        `gorm:"column:book_id;type:uuid;not null"`
	BorrowerID uuid.UUID        `gorm:"column:borrower_id;type:uuid;not null"`
	Status     enums.LoanStatus `gorm:"column:status;type:loan_status;not null;default:'active'"`
	BorrowedAt time.Time        `gorm:"column:borrowed_at;not null"`
	DueDate    time.Time        `gorm:"column:due_date;not null"`
	ReturnedAt *time.Time       `gorm:"column:returned_at"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`

	Book     *Book     `gorm:"foreignKey:BookID;references:ID"`
	Borrower *Borrower `gorm:"foreignKey:BorrowerID;references:ID"`
}

// IsActive reports whether the loan has not been returned yet.
func (l Loan) IsActive() bool {
	return l.Status == enums.LoanStatusActive
}
