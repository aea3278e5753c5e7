package loans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-loans-backend/internal/availability"
	"github.com/angelmondragon/library-loans-backend/internal/overdue"
	"github.com/angelmondragon/library-loans-backend/pkg/clock"
	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
	"github.com/angelmondragon/library-loans-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-loans-backend/pkg/errors"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
	"github.com/angelmondragon/library-loans-backend/pkg/metrics"
)

const (
	// MaxLoanDuration is the lending policy ceiling between borrow and due date.
	MaxLoanDuration = 30 * 24 * time.Hour

	defaultLockTimeout = 5 * time.Second
	maxConflictRetries = 1
)

// Service owns the lending rules: creating and returning loans and reporting
// them with their derived fields.
type Service interface {
	CreateLoan(ctx context.Context, input CreateLoanInput) (*LoanDTO, error)
	ReturnLoan(ctx context.Context, loanID uuid.UUID) (*LoanDTO, error)
	GetLoan(ctx context.Context, loanID uuid.UUID) (*LoanDTO, error)
	ListLoans(ctx context.Context, input ListLoansInput) ([]LoanDTO, error)
	Stats(ctx context.Context) (*StatsDTO, error)
}

type ServiceParams struct {
	Store   Store
	Clock   clock.Clock
	Logger  *logger.Logger
	Metrics *metrics.LoanMetrics
	// MaxLoanDuration may shorten the policy window; it cannot extend it.
	MaxLoanDuration time.Duration
	LockTimeout     time.Duration
	// Location is the library's calendar for date-only due dates. Defaults to UTC.
	Location *time.Location
}

type service struct {
	store       Store
	clock       clock.Clock
	logg        *logger.Logger
	metrics     *metrics.LoanMetrics
	locks       *keyedLock
	maxLoan     time.Duration
	lockTimeout time.Duration
	location    *time.Location
}

// NewService builds the lending service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("loan store required")
	}
	maxLoan := params.MaxLoanDuration
	if maxLoan <= 0 {
		maxLoan = MaxLoanDuration
	}
	if maxLoan > MaxLoanDuration {
		return nil, fmt.Errorf("max loan duration %s exceeds the %s policy", maxLoan, MaxLoanDuration)
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.System()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	lockTimeout := params.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	location := params.Location
	if location == nil {
		location = time.UTC
	}
	return &service{
		store:       params.Store,
		clock:       clk,
		logg:        logg,
		metrics:     params.Metrics,
		locks:       newKeyedLock(),
		maxLoan:     maxLoan,
		lockTimeout: lockTimeout,
		location:    location,
	}, nil
}

func (s *service) CreateLoan(ctx context.Context, input CreateLoanInput) (*LoanDTO, error) {
	if input.BookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book_id is required")
	}
	if input.BorrowerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "borrower_id is required")
	}
	ctx = s.logg.WithBookID(ctx, input.BookID.String())
	ctx = s.logg.WithBorrowerID(ctx, input.BorrowerID.String())

	// Book scope first, then borrower scope.
	release, err := s.lockScopes(ctx, bookKey(input.BookID.String()), borrowerKey(input.BorrowerID.String()))
	if err != nil {
		return nil, err
	}
	defer release()

	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		now := s.clock.Now()
		if err := s.checkCreatePreconditions(ctx, input, now); err != nil {
			return nil, s.reject(ctx, err)
		}

		loan := &models.Loan{
			ID:         uuid.New(),
			BookID:     input.BookID,
			BorrowerID: input.BorrowerID,
			Status:     enums.LoanStatusActive,
			BorrowedAt: now,
			DueDate:    s.dueInstant(input),
		}
		created, err := s.store.InsertLoanIfInvariantsHold(ctx, loan)
		if err == nil {
			s.metrics.IncCreated()
			s.logg.Info(s.logg.WithLoanID(ctx, created.ID.String()), "loan.created")
			return s.describe(ctx, *created, now)
		}
		if !errors.Is(err, ErrConflict) {
			return nil, storeError(err, "failed to record loan")
		}
		s.metrics.IncConflict()
		s.logg.Warn(ctx, fmt.Sprintf("loan.create store conflict on attempt %d", attempt+1))
	}

	// Retries exhausted: a final re-read names whichever rule now fails.
	if err := s.checkCreatePreconditions(ctx, input, s.clock.Now()); err != nil {
		return nil, s.reject(ctx, err)
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "loan could not be committed due to concurrent activity")
}

// checkCreatePreconditions evaluates the lending rules in their fixed order.
func (s *service) checkCreatePreconditions(ctx context.Context, input CreateLoanInput, now time.Time) error {
	book, err := s.store.GetBook(ctx, input.BookID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return lendingError(ErrBookNotFound, "")
		}
		return storeError(err, "failed to load book")
	}
	if _, err := s.store.GetBorrower(ctx, input.BorrowerID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return lendingError(ErrBorrowerNotFound, "")
		}
		return storeError(err, "failed to load borrower")
	}

	bookActive, err := s.store.CountActiveLoans(ctx, ByBook(input.BookID))
	if err != nil {
		return storeError(err, "failed to count active loans for book")
	}
	if !availability.HasCopyAvailable(book.Stock, bookActive) {
		return lendingError(ErrNoCopiesAvailable, fmt.Sprintf("no copies of %q are available", book.Title))
	}

	borrowerActive, err := s.store.CountActiveLoans(ctx, ByBorrower(input.BorrowerID))
	if err != nil {
		return storeError(err, "failed to count active loans for borrower")
	}
	if availability.HasActiveLoan(borrowerActive) {
		return lendingError(ErrBorrowerAlreadyHasActiveLoan, "")
	}

	return s.validateDueDate(input, now)
}

// validateDueDate bounds an instant by now < due <= now+window. A calendar day
// is bounded on the library's calendar instead: today < day <= today+window.
func (s *service) validateDueDate(input CreateLoanInput, now time.Time) error {
	if input.DueDate.IsZero() {
		return lendingError(ErrInvalidDueDate, "due_date is required")
	}
	maxDays := int(s.maxLoan / (24 * time.Hour))
	tooLate := lendingError(ErrInvalidDueDate, fmt.Sprintf("due_date must be within %d days", maxDays))

	if input.DueOnDay {
		today := calendarDay(now.In(s.location))
		day := calendarDay(input.DueDate)
		if !day.After(today) {
			return lendingError(ErrInvalidDueDate, "due_date must be after today")
		}
		if day.After(today.AddDate(0, 0, maxDays)) {
			return tooLate
		}
		return nil
	}

	if !input.DueDate.After(now) {
		return lendingError(ErrInvalidDueDate, "due_date must be in the future")
	}
	if input.DueDate.After(now.Add(s.maxLoan)) {
		return tooLate
	}
	return nil
}

// dueInstant is the stored due date. A calendar day falls due at the last
// microsecond of that day in the library's time zone.
func (s *service) dueInstant(input CreateLoanInput) time.Time {
	if !input.DueOnDay {
		return input.DueDate.UTC()
	}
	y, m, d := input.DueDate.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, s.location).Add(-time.Microsecond).UTC()
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *service) ReturnLoan(ctx context.Context, loanID uuid.UUID) (*LoanDTO, error) {
	if loanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id is required")
	}
	ctx = s.logg.WithLoanID(ctx, loanID.String())

	release, err := s.lockScopes(ctx, loanKey(loanID.String()))
	if err != nil {
		return nil, err
	}
	defer release()

	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.reject(ctx, lendingError(ErrLoanNotFound, ""))
		}
		return nil, storeError(err, "failed to load loan")
	}
	if !loan.IsActive() {
		return nil, s.reject(ctx, lendingError(ErrLoanAlreadyReturned, ""))
	}

	now := s.clock.Now()
	returned, err := s.store.UpdateLoanReturn(ctx, loanID, now)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, s.reject(ctx, lendingError(ErrLoanNotFound, ""))
		case errors.Is(err, ErrConflict):
			s.metrics.IncConflict()
			return nil, s.translateReturnConflict(ctx, loanID)
		default:
			return nil, storeError(err, "failed to record return")
		}
	}

	s.metrics.IncReturned()
	s.logg.Info(ctx, "loan.returned")
	return s.describe(ctx, *returned, now)
}

// translateReturnConflict re-reads the loan so a lost race surfaces as the
// lending condition the caller would have hit had it arrived second.
func (s *service) translateReturnConflict(ctx context.Context, loanID uuid.UUID) error {
	current, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.reject(ctx, lendingError(ErrLoanNotFound, ""))
		}
		return storeError(err, "failed to reload loan")
	}
	if !current.IsActive() {
		return s.reject(ctx, lendingError(ErrLoanAlreadyReturned, ""))
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "loan return could not be committed due to concurrent activity")
}

func (s *service) GetLoan(ctx context.Context, loanID uuid.UUID) (*LoanDTO, error) {
	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, lendingError(ErrLoanNotFound, "")
		}
		return nil, storeError(err, "failed to load loan")
	}
	return s.describe(ctx, *loan, s.clock.Now())
}

func (s *service) ListLoans(ctx context.Context, input ListLoansInput) ([]LoanDTO, error) {
	view := input.View
	if view == "" {
		view = enums.LoanViewAll
	}
	filter := LoanFilter{
		BookID:     input.BookID,
		BorrowerID: input.BorrowerID,
		Limit:      input.Limit,
	}
	switch view {
	case enums.LoanViewAll:
	case enums.LoanViewActive:
		filter.Status = enums.LoanStatusActive
	case enums.LoanViewOverdue:
		filter.Status = enums.LoanStatusActive
		// overdue is derived, so the limit applies after classification
		filter.Limit = 0
	case enums.LoanViewReturned:
		filter.Status = enums.LoanStatusReturned
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown loan view %q", view))
	}

	rows, err := s.store.ListLoans(ctx, filter)
	if err != nil {
		return nil, storeError(err, "failed to list loans")
	}
	now := s.clock.Now()
	if view == enums.LoanViewOverdue {
		rows = overdue.Filter(rows, now)
		if input.Limit > 0 && len(rows) > input.Limit {
			rows = rows[:input.Limit]
		}
	}

	active, err := s.store.ListLoans(ctx, LoanFilter{Status: enums.LoanStatusActive})
	if err != nil {
		return nil, storeError(err, "failed to list active loans")
	}
	counts := newActiveCounts(active)

	out := make([]LoanDTO, 0, len(rows))
	for _, loan := range rows {
		out = append(out, newLoanDTO(loan, now, counts.forBook(loan.BookID), counts.forBorrower(loan.BorrowerID)))
	}
	return out, nil
}

func (s *service) Stats(ctx context.Context) (*StatsDTO, error) {
	rows, err := s.store.ListLoans(ctx, LoanFilter{})
	if err != nil {
		return nil, storeError(err, "failed to list loans")
	}
	c := overdue.Tally(rows, s.clock.Now())
	return &StatsDTO{
		TotalLoans:    c.Total,
		ActiveLoans:   c.Active,
		OverdueLoans:  c.Overdue,
		ReturnedLoans: c.Returned,
	}, nil
}

// describe attaches derived fields to a single loan using fresh counts.
func (s *service) describe(ctx context.Context, loan models.Loan, now time.Time) (*LoanDTO, error) {
	bookActive, err := s.store.CountActiveLoans(ctx, ByBook(loan.BookID))
	if err != nil {
		return nil, storeError(err, "failed to count active loans for book")
	}
	borrowerActive, err := s.store.CountActiveLoans(ctx, ByBorrower(loan.BorrowerID))
	if err != nil {
		return nil, storeError(err, "failed to count active loans for borrower")
	}
	dto := newLoanDTO(loan, now, bookActive, borrowerActive)
	return &dto, nil
}

func (s *service) lockScopes(ctx context.Context, keys ...string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	release, err := s.locks.acquireAll(lockCtx, keys...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "lending scope busy, retry shortly")
	}
	return release, nil
}

func (s *service) reject(ctx context.Context, err error) error {
	if reason := Reason(err); reason != "" {
		s.metrics.IncRejected(reason)
		s.logg.Info(s.logg.WithField(ctx, "reason", reason), "loan.rejected")
	}
	return err
}
