package books

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-loans-backend/internal/availability"
	"github.com/angelmondragon/library-loans-backend/pkg/db"
	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/library-loans-backend/pkg/errors"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
	"github.com/angelmondragon/library-loans-backend/pkg/pagination"
)

const isbnConstraint = "ux_books_isbn"

var (
	ErrBookHasActiveLoans    = errors.New("book has active loans")
	ErrStockBelowActiveLoans = errors.New("stock below active loans")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages the book catalogue.
type Service interface {
	Create(ctx context.Context, input CreateBookInput) (*BookDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*BookDTO, error)
	List(ctx context.Context, input ListBooksInput) (*BookListDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateBookInput) (*BookDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Summary(ctx context.Context) (*CatalogSummary, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	logger *logger.Logger
}

// NewService builds the catalogue service.
func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("books repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, logger: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateBookInput) (*BookDTO, error) {
	title := strings.TrimSpace(input.Title)
	isbn := strings.TrimSpace(input.ISBN)
	if err := validateBook(title, isbn, input.Stock); err != nil {
		return nil, err
	}

	book, err := s.repo.Create(ctx, &models.Book{Title: title, ISBN: isbn, Stock: input.Stock})
	if err != nil {
		return nil, translateWriteError(err, "create book")
	}

	ctx = s.logger.WithBookID(ctx, book.ID.String())
	s.logger.Info(ctx, "book.created")

	dto := newBookDTO(*book, 0)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*BookDTO, error) {
	book, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateLookupError(err)
	}
	active, err := s.repo.CountActiveLoans(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active loans")
	}
	dto := newBookDTO(*book, active)
	return &dto, nil
}

func (s *service) List(ctx context.Context, input ListBooksInput) (*BookListDTO, error) {
	if _, err := pagination.ParseCursor(input.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	result, err := s.repo.List(ctx, ListQuery{
		Search:     input.Search,
		Pagination: pagination.Params{Limit: input.Limit, Cursor: input.Cursor},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list books")
	}

	ids := make([]uuid.UUID, 0, len(result.Books))
	for _, book := range result.Books {
		ids = append(ids, book.ID)
	}
	counts, err := s.repo.ActiveLoanCounts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active loans")
	}

	out := &BookListDTO{Books: make([]BookDTO, 0, len(result.Books)), NextCursor: result.NextCursor}
	for _, book := range result.Books {
		out.Books = append(out.Books, newBookDTO(book, counts[book.ID]))
	}
	return out, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateBookInput) (*BookDTO, error) {
	var (
		updated *models.Book
		active  int64
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		book, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return translateLookupError(err)
		}

		if input.Title != nil {
			book.Title = strings.TrimSpace(*input.Title)
		}
		if input.ISBN != nil {
			book.ISBN = strings.TrimSpace(*input.ISBN)
		}
		if input.Stock != nil {
			book.Stock = *input.Stock
		}
		if err := validateBook(book.Title, book.ISBN, book.Stock); err != nil {
			return err
		}

		active, err = repo.CountActiveLoans(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active loans")
		}
		if !availability.CanLowerStockTo(book.Stock, active) {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrStockBelowActiveLoans,
				fmt.Sprintf("stock cannot drop below %d copies currently on loan", active)).
				WithReason("STOCK_BELOW_ACTIVE_LOANS")
		}

		updated, err = repo.Update(ctx, book)
		if err != nil {
			return translateWriteError(err, "update book")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logger.WithBookID(ctx, id.String())
	s.logger.Info(ctx, "book.updated")

	dto := newBookDTO(*updated, active)
	return &dto, nil
}

// Delete soft-deletes a book. Books with copies on loan stay in the catalogue.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindByIDForUpdate(ctx, id); err != nil {
			return translateLookupError(err)
		}
		active, err := repo.CountActiveLoans(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active loans")
		}
		if active > 0 {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrBookHasActiveLoans, "book has copies on loan").
				WithReason("BOOK_HAS_ACTIVE_LOANS")
		}
		if err := repo.Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete book")
		}
		return nil
	})
	if err != nil {
		return err
	}

	ctx = s.logger.WithBookID(ctx, id.String())
	s.logger.Info(ctx, "book.deleted")
	return nil
}

func (s *service) Summary(ctx context.Context) (*CatalogSummary, error) {
	all, err := s.repo.All(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list books")
	}
	ids := make([]uuid.UUID, 0, len(all))
	for _, book := range all {
		ids = append(ids, book.ID)
	}
	counts, err := s.repo.ActiveLoanCounts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active loans")
	}

	summary := &CatalogSummary{TotalBooks: len(all)}
	for _, book := range all {
		summary.TotalCopies += book.Stock
		if availability.HasCopyAvailable(book.Stock, counts[book.ID]) {
			summary.AvailableBooks++
		}
	}
	return summary, nil
}

func validateBook(title, isbn string, stock int) error {
	switch {
	case title == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	case isbn == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "isbn is required")
	case stock < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "stock must not be negative")
	}
	return nil
}

func translateLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "book not found").WithReason("BOOK_NOT_FOUND")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load book")
}

func translateWriteError(err error, msg string) error {
	if db.IsUniqueViolation(err, isbnConstraint) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a book with this isbn already exists").
			WithReason("DUPLICATE_ISBN")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
