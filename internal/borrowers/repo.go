package borrowers

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
	"github.com/angelmondragon/library-loans-backend/pkg/enums"
	"github.com/angelmondragon/library-loans-backend/pkg/pagination"
)

// Repository persists registered borrowers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, borrower *models.Borrower) (*models.Borrower, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Borrower, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Borrower, error)
	List(ctx context.Context, query ListQuery) (*ListResult, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, borrower *models.Borrower) (*models.Borrower, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ActiveLoanIDs(ctx context.Context, borrowerIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
	CountWithActiveLoan(ctx context.Context) (int64, error)
}

type ListQuery struct {
	Search     string
	Pagination pagination.Params
}

type ListResult struct {
	Borrowers  []models.Borrower
	NextCursor string
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a borrowers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, borrower *models.Borrower) (*models.Borrower, error) {
	if borrower.ID == uuid.Nil {
		borrower.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(borrower).Error; err != nil {
		return nil, err
	}
	return borrower, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Borrower, error) {
	var borrower models.Borrower
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&borrower).Error; err != nil {
		return nil, err
	}
	return &borrower, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Borrower, error) {
	query := r.db.WithContext(ctx)
	if query.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var borrower models.Borrower
	if err := query.Where("id = ?", id).First(&borrower).Error; err != nil {
		return nil, err
	}
	return &borrower, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) (*ListResult, error) {
	qb := r.db.WithContext(ctx).Model(&models.Borrower{})
	if term := strings.TrimSpace(query.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		qb = qb.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(id_card_number) LIKE ?", like, like, like)
	}
	qb, err := pagination.Scope(qb, query.Pagination)
	if err != nil {
		return nil, err
	}

	var rows []models.Borrower
	if err := qb.Find(&rows).Error; err != nil {
		return nil, err
	}

	page, next := pagination.Page(rows, query.Pagination, func(row models.Borrower) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return &ListResult{Borrowers: page, NextCursor: next}, nil
}

func (r *repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Borrower{}).Count(&count).Error
	return count, err
}

func (r *repository) Update(ctx context.Context, borrower *models.Borrower) (*models.Borrower, error) {
	if err := r.db.WithContext(ctx).Save(borrower).Error; err != nil {
		return nil, err
	}
	return borrower, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Borrower{}).Error
}

// ActiveLoanIDs maps each borrower holding a book to the loan they hold.
func (r *repository) ActiveLoanIDs(ctx context.Context, borrowerIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	out := make(map[uuid.UUID]uuid.UUID, len(borrowerIDs))
	if len(borrowerIDs) == 0 {
		return out, nil
	}
	var loans []models.Loan
	err := r.db.WithContext(ctx).
		Select("id", "borrower_id").
		Where("status = ? AND borrower_id IN ?", enums.LoanStatusActive, borrowerIDs).
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	for _, loan := range loans {
		out[loan.BorrowerID] = loan.ID
	}
	return out, nil
}

func (r *repository) CountWithActiveLoan(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Joins("JOIN borrowers ON borrowers.id = loans.borrower_id AND borrowers.deleted_at IS NULL").
		Where("loans.status = ?", enums.LoanStatusActive).
		Distinct("loans.borrower_id").
		Count(&count).Error
	return count, err
}
