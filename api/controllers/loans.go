package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/library-loans-backend/api/responses"
	"github.com/angelmondragon/library-loans-backend/api/validators"
	booksvc "github.com/angelmondragon/library-loans-backend/internal/books"
	borrowersvc "github.com/angelmondragon/library-loans-backend/internal/borrowers"
	loansvc "github.com/angelmondragon/library-loans-backend/internal/loans"
	"github.com/angelmondragon/library-loans-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-loans-backend/pkg/errors"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
)

const maxLoanListLimit = 1000

type createLoanRequest struct {
	Loan *loanFields `json:"loan" validate:"required"`
}

type loanFields struct {
	BookID     string `json:"book_id" validate:"required,uuid"`
	BorrowerID string `json:"borrower_id" validate:"required,uuid"`
	DueDate    string `json:"due_date" validate:"required"`
}

func (r createLoanRequest) toInput() (loansvc.CreateLoanInput, error) {
	bookID, err := uuid.Parse(r.Loan.BookID)
	if err != nil {
		return loansvc.CreateLoanInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid book_id")
	}
	borrowerID, err := uuid.Parse(r.Loan.BorrowerID)
	if err != nil {
		return loansvc.CreateLoanInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid borrower_id")
	}
	due, dateOnly, err := validators.ParseDueDate("due_date", r.Loan.DueDate)
	if err != nil {
		return loansvc.CreateLoanInput{}, err
	}
	return loansvc.CreateLoanInput{BookID: bookID, BorrowerID: borrowerID, DueDate: due, DueOnDay: dateOnly}, nil
}

// ListLoans serves GET /loans. The status query selects all, active, overdue or returned.
func ListLoans(svc loansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return listLoans(svc, logg, "")
}

func ListActiveLoans(svc loansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return listLoans(svc, logg, enums.LoanViewActive)
}

func ListOverdueLoans(svc loansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return listLoans(svc, logg, enums.LoanViewOverdue)
}

func listLoans(svc loansvc.Service, logg *logger.Logger, fixed enums.LoanView) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loan service unavailable"))
			return
		}

		view := fixed
		if view == "" {
			parsed, err := enums.ParseLoanView(r.URL.Query().Get("status"))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
					WithDetails(map[string]any{"field": "status"}))
				return
			}
			view = parsed
		}

		bookID, err := validators.ParseQueryUUID(r, "book_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		borrowerID, err := validators.ParseQueryUUID(r, "borrower_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, maxLoanListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loans, err := svc.ListLoans(r.Context(), loansvc.ListLoansInput{
			View:       view,
			BookID:     bookID,
			BorrowerID: borrowerID,
			Limit:      limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loans)
	}
}

func GetLoan(svc loansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loan service unavailable"))
			return
		}
		id, err := parsePathUUID(r, "loanId", "loan id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loan, err := svc.GetLoan(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loan)
	}
}

func CreateLoan(svc loansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loan service unavailable"))
			return
		}

		var payload createLoanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		loan, err := svc.CreateLoan(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, loan)
	}
}

func ReturnLoan(svc loansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loan service unavailable"))
			return
		}
		id, err := parsePathUUID(r, "loanId", "loan id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loan, err := svc.ReturnLoan(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loan)
	}
}

type dashboardStats struct {
	TotalLoans           int   `json:"total_loans"`
	ActiveLoans          int   `json:"active_loans"`
	OverdueLoans         int   `json:"overdue_loans"`
	ReturnedLoans        int   `json:"returned_loans"`
	TotalBooks           int   `json:"total_books"`
	AvailableBooks       int   `json:"available_books"`
	TotalBorrowers       int64 `json:"total_borrowers"`
	BorrowersWithoutLoan int64 `json:"borrowers_without_loan"`
}

// LoanStats gathers the loan tallies with the catalog and roster summaries.
func LoanStats(loans loansvc.Service, books booksvc.Service, borrowers borrowersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if loans == nil || books == nil || borrowers == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stats services unavailable"))
			return
		}

		var (
			loanStats *loansvc.StatsDTO
			catalog   *booksvc.CatalogSummary
			roster    *borrowersvc.RosterSummary
		)
		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() (err error) {
			loanStats, err = loans.Stats(ctx)
			return err
		})
		g.Go(func() (err error) {
			catalog, err = books.Summary(ctx)
			return err
		})
		g.Go(func() (err error) {
			roster, err = borrowers.Summary(ctx)
			return err
		})
		if err := g.Wait(); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, dashboardStats{
			TotalLoans:           loanStats.TotalLoans,
			ActiveLoans:          loanStats.ActiveLoans,
			OverdueLoans:         loanStats.OverdueLoans,
			ReturnedLoans:        loanStats.ReturnedLoans,
			TotalBooks:           catalog.TotalBooks,
			AvailableBooks:       catalog.AvailableBooks,
			TotalBorrowers:       roster.TotalBorrowers,
			BorrowersWithoutLoan: roster.BorrowersWithoutLoan,
		})
	}
}
