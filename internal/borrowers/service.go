package borrowers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-loans-backend/pkg/db"
	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/library-loans-backend/pkg/errors"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
	"github.com/angelmondragon/library-loans-backend/pkg/pagination"
)

const idCardConstraint = "ux_borrowers_id_card_number"

var ErrBorrowerHasActiveLoan = errors.New("borrower has an active loan")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages library borrowers.
type Service interface {
	Create(ctx context.Context, input CreateBorrowerInput) (*BorrowerDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*BorrowerDTO, error)
	List(ctx context.Context, input ListBorrowersInput) (*BorrowerListDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateBorrowerInput) (*BorrowerDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Summary(ctx context.Context) (*RosterSummary, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	logger *logger.Logger
}

func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("borrowers repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, logger: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateBorrowerInput) (*BorrowerDTO, error) {
	borrower := &models.Borrower{
		IDCardNumber: strings.TrimSpace(input.IDCardNumber),
		Name:         strings.TrimSpace(input.Name),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
	}
	if err := validateBorrower(borrower); err != nil {
		return nil, err
	}

	created, err := s.repo.Create(ctx, borrower)
	if err != nil {
		return nil, translateWriteError(err, "create borrower")
	}

	ctx = s.logger.WithBorrowerID(ctx, created.ID.String())
	s.logger.Info(ctx, "borrower.created")

	dto := newBorrowerDTO(*created, nil)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*BorrowerDTO, error) {
	borrower, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateLookupError(err)
	}
	active, err := s.repo.ActiveLoanIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active loan")
	}
	dto := newBorrowerDTO(*borrower, loanRef(active, id))
	return &dto, nil
}

func (s *service) List(ctx context.Context, input ListBorrowersInput) (*BorrowerListDTO, error) {
	if _, err := pagination.ParseCursor(input.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	result, err := s.repo.List(ctx, ListQuery{
		Search:     input.Search,
		Pagination: pagination.Params{Limit: input.Limit, Cursor: input.Cursor},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list borrowers")
	}

	ids := make([]uuid.UUID, 0, len(result.Borrowers))
	for _, borrower := range result.Borrowers {
		ids = append(ids, borrower.ID)
	}
	active, err := s.repo.ActiveLoanIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active loans")
	}

	out := &BorrowerListDTO{Borrowers: make([]BorrowerDTO, 0, len(result.Borrowers)), NextCursor: result.NextCursor}
	for _, borrower := range result.Borrowers {
		out.Borrowers = append(out.Borrowers, newBorrowerDTO(borrower, loanRef(active, borrower.ID)))
	}
	return out, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateBorrowerInput) (*BorrowerDTO, error) {
	var (
		updated *models.Borrower
		active  map[uuid.UUID]uuid.UUID
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		borrower, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return translateLookupError(err)
		}
		if input.IDCardNumber != nil {
			borrower.IDCardNumber = strings.TrimSpace(*input.IDCardNumber)
		}
		if input.Name != nil {
			borrower.Name = strings.TrimSpace(*input.Name)
		}
		if input.Email != nil {
			borrower.Email = strings.ToLower(strings.TrimSpace(*input.Email))
		}
		if err := validateBorrower(borrower); err != nil {
			return err
		}

		if updated, err = repo.Update(ctx, borrower); err != nil {
			return translateWriteError(err, "update borrower")
		}
		active, err = repo.ActiveLoanIDs(ctx, []uuid.UUID{id})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active loan")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logger.WithBorrowerID(ctx, id.String())
	s.logger.Info(ctx, "borrower.updated")

	dto := newBorrowerDTO(*updated, loanRef(active, id))
	return &dto, nil
}

// Delete soft-deletes a borrower who holds no book.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindByIDForUpdate(ctx, id); err != nil {
			return translateLookupError(err)
		}
		active, err := repo.ActiveLoanIDs(ctx, []uuid.UUID{id})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active loan")
		}
		if loanID, ok := active[id]; ok {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrBorrowerHasActiveLoan, "borrower must return their book first").
				WithReason("BORROWER_HAS_ACTIVE_LOAN").
				WithDetails(map[string]any{"loan_id": loanID})
		}
		if err := repo.Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete borrower")
		}
		return nil
	})
	if err != nil {
		return err
	}

	ctx = s.logger.WithBorrowerID(ctx, id.String())
	s.logger.Info(ctx, "borrower.deleted")
	return nil
}

func (s *service) Summary(ctx context.Context) (*RosterSummary, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count borrowers")
	}
	withLoan, err := s.repo.CountWithActiveLoan(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count borrowers with loans")
	}
	return &RosterSummary{
		TotalBorrowers:       total,
		BorrowersWithLoan:    withLoan,
		BorrowersWithoutLoan: total - withLoan,
	}, nil
}

func loanRef(active map[uuid.UUID]uuid.UUID, borrowerID uuid.UUID) *uuid.UUID {
	loanID, ok := active[borrowerID]
	if !ok {
		return nil
	}
	return &loanID
}

func validateBorrower(b *models.Borrower) error {
	switch {
	case b.IDCardNumber == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "id card number is required")
	case b.Name == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	case !strings.Contains(b.Email, "@"):
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid email")
	}
	return nil
}

func translateLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "borrower not found").WithReason("BORROWER_NOT_FOUND")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load borrower")
}

func translateWriteError(err error, msg string) error {
	if db.IsUniqueViolation(err, idCardConstraint) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a borrower with this id card number already exists").
			WithReason("DUPLICATE_ID_CARD")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
