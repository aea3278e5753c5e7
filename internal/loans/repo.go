package loans

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/library-loans-backend/internal/availability"
	"github.com/angelmondragon/library-loans-backend/internal/overdue"
	dbpkg "github.com/angelmondragon/library-loans-backend/pkg/db"
	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
	"github.com/angelmondragon/library-loans-backend/pkg/enums"
	"github.com/angelmondragon/library-loans-backend/pkg/outbox"
	"github.com/angelmondragon/library-loans-backend/pkg/outbox/payloads"
)

// activeBorrowerIndex is the partial unique index that backs the
// one-active-loan rule in Postgres.
const activeBorrowerIndex = "ux_loans_active_borrower"

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type repository struct {
	db     *gorm.DB
	events eventEmitter
}

// NewRepository builds the gorm-backed ledger store. events may be nil, in
// which case no outbox rows are written.
func NewRepository(db *gorm.DB, events eventEmitter) Store {
	return &repository{db: db, events: events}
}

func (r *repository) GetBook(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	var book models.Book
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&book).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &book, nil
}

func (r *repository) GetBorrower(ctx context.Context, id uuid.UUID) (*models.Borrower, error) {
	var borrower models.Borrower
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&borrower).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &borrower, nil
}

func (r *repository) CountActiveLoans(ctx context.Context, scope ActiveLoanScope) (int64, error) {
	return countActive(r.db.WithContext(ctx), scope)
}

func (r *repository) InsertLoanIfInvariantsHold(ctx context.Context, loan *models.Loan) (*models.Loan, error) {
	if loan == nil {
		return nil, errors.New("loan required")
	}
	if loan.ID == uuid.Nil {
		loan.ID = uuid.New()
	}

	var book models.Book
	var borrower models.Borrower
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("id = ?", loan.BookID).First(&book).Error; err != nil {
			return conflictIfMissing(err)
		}
		if err := forUpdate(tx).Where("id = ?", loan.BorrowerID).First(&borrower).Error; err != nil {
			return conflictIfMissing(err)
		}

		bookActive, err := countActive(tx, ByBook(loan.BookID))
		if err != nil {
			return err
		}
		if !availability.HasCopyAvailable(book.Stock, bookActive) {
			return ErrConflict
		}
		borrowerActive, err := countActive(tx, ByBorrower(loan.BorrowerID))
		if err != nil {
			return err
		}
		if availability.HasActiveLoan(borrowerActive) {
			return ErrConflict
		}

		if err := tx.Omit(clause.Associations).Create(loan).Error; err != nil {
			if dbpkg.IsUniqueViolation(err, activeBorrowerIndex) {
				return ErrConflict
			}
			return err
		}

		return r.emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLoanCreated,
			AggregateType: enums.AggregateLoan,
			AggregateID:   loan.ID,
			OccurredAt:    loan.BorrowedAt,
			Data: payloads.LoanCreatedEvent{
				LoanID:     loan.ID,
				BookID:     loan.BookID,
				BorrowerID: loan.BorrowerID,
				BorrowedAt: loan.BorrowedAt,
				DueDate:    loan.DueDate,
			},
		})
	})
	if err != nil {
		return nil, translateTxError(err)
	}

	loan.Book = &book
	loan.Borrower = &borrower
	return loan, nil
}

func (r *repository) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Preload("Book", unscoped).
		Preload("Borrower", unscoped).
		Where("id = ?", id).
		First(&loan).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &loan, nil
}

func (r *repository) UpdateLoanReturn(ctx context.Context, id uuid.UUID, returnedAt time.Time) (*models.Loan, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var loan models.Loan
		if err := forUpdate(tx).Where("id = ?", id).First(&loan).Error; err != nil {
			return translateNotFound(err)
		}

		res := tx.Model(&models.Loan{}).
			Where("id = ? AND status = ?", id, enums.LoanStatusActive).
			Updates(map[string]any{
				"status":      enums.LoanStatusReturned,
				"returned_at": returnedAt,
				"updated_at":  returnedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		st := overdue.Evaluate(loan, returnedAt)
		return r.emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLoanReturned,
			AggregateType: enums.AggregateLoan,
			AggregateID:   loan.ID,
			OccurredAt:    returnedAt,
			Data: payloads.LoanReturnedEvent{
				LoanID:      loan.ID,
				BookID:      loan.BookID,
				BorrowerID:  loan.BorrowerID,
				ReturnedAt:  returnedAt,
				WasOverdue:  st.Overdue,
				DaysOverdue: st.DaysOverdue,
			},
		})
	})
	if err != nil {
		return nil, translateTxError(err)
	}
	return r.GetLoan(ctx, id)
}

func (r *repository) ListLoans(ctx context.Context, filter LoanFilter) ([]models.Loan, error) {
	query := r.db.WithContext(ctx).
		Preload("Book", unscoped).
		Preload("Borrower", unscoped)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.BookID != uuid.Nil {
		query = query.Where("book_id = ?", filter.BookID)
	}
	if filter.BorrowerID != uuid.Nil {
		query = query.Where("borrower_id = ?", filter.BorrowerID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.Loan
	err := query.
		Order("borrowed_at DESC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if r.events == nil {
		return nil
	}
	event.Source = "loans"
	return r.events.Emit(ctx, tx, event)
}

// unscoped keeps soft-deleted books and borrowers visible on historic loans.
func unscoped(db *gorm.DB) *gorm.DB {
	return db.Unscoped()
}

func countActive(db *gorm.DB, scope ActiveLoanScope) (int64, error) {
	query := db.Model(&models.Loan{}).Where("status = ?", enums.LoanStatusActive)
	if scope.BookID != uuid.Nil {
		query = query.Where("book_id = ?", scope.BookID)
	}
	if scope.BorrowerID != uuid.Nil {
		query = query.Where("borrower_id = ?", scope.BorrowerID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// forUpdate adds a row lock on Postgres. sqlite has no FOR UPDATE and relies
// on its single-writer transactions instead.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// conflictIfMissing treats a row vanishing mid-transaction as a conflict; the
// caller re-reads to find out what changed.
func conflictIfMissing(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrConflict
	}
	return err
}

func translateTxError(err error) error {
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		return err
	}
	if dbpkg.IsRetryableTxError(err) {
		return ErrConflict
	}
	return err
}
