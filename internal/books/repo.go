package books

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

// Repository persists catalogue books.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, book *models.Book) (*models.Book, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Book, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Book, error)
	List(ctx context.Context, query ListQuery) (*ListResult, error)
	All(ctx context.Context) ([]models.Book, error)
	Update(ctx context.Context, book *models.Book) (*models.Book, error)
	Delete(ctx context.Context, id uuid.UUID) error
	CountActiveLoans(ctx context.Context, bookID uuid.UUID) (int64, error)
	ActiveLoanCounts(ctx context.Context, bookIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

// ListQuery filters and pages the catalogue.
type ListQuery struct {
	Search     string
	Pagination pagination.Params
}

// ListResult is one page of books.
type ListResult struct {
	Books      []models.Book
	NextCursor string
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a books repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, book *models.Book) (*models.Book, error) {
	if book.ID == uuid.Nil {
		book.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		return nil, err
	}
	return book, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	var book models.Book
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&book).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// FindByIDForUpdate locks the book row on Postgres so stock edits and deletes
// serialize with loan inserts, which take the same lock.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	query := r.db.WithContext(ctx)
	if query.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var book models.Book
	if err := query.Where("id = ?", id).First(&book).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) (*ListResult, error) {
	qb := r.db.WithContext(ctx).Model(&models.Book{})
	if term := strings.TrimSpace(query.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		qb = qb.Where("LOWER(title) LIKE ? OR LOWER(isbn) LIKE ?", like, like)
	}
	qb, err := pagination.Scope(qb, query.Pagination)
	if err != nil {
		return nil, err
	}

	var rows []models.Book
	if err := qb.Find(&rows).Error; err != nil {
		return nil, err
	}

	page, next := pagination.Page(rows, query.Pagination, func(row models.Book) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return &ListResult{Books: page, NextCursor: next}, nil
}

func (r *repository) All(ctx context.Context) ([]models.Book, error) {
	var rows []models.Book
	err := r.db.WithContext(ctx).Order("title ASC").Find(&rows).Error
	return rows, err
}

func (r *repository) Update(ctx context.Context, book *models.Book) (*models.Book, error) {
	if err := r.db.WithContext(ctx).Save(book).Error; err != nil {
		return nil, err
	}
	return book, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Book{}).Error
}

func (r *repository) CountActiveLoans(ctx context.Context, bookID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("book_id = ? AND status = ?", bookID, enums.LoanStatusActive).
		Count(&count).Error
	return count, err
}

func (r *repository) ActiveLoanCounts(ctx context.Context, bookIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(bookIDs))
	if len(bookIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		BookID uuid.UUID
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Select("book_id, COUNT(*) AS count").
		Where("status = ? AND book_id IN ?", enums.LoanStatusActive, bookIDs).
		Group("book_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.BookID] = row.Count
	}
	return counts, nil
}
