package loans

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-loans-backend/internal/availability"
	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
	"github.com/angelmondragon/library-loans-backend/pkg/enums"
)

// MemoryStore is an in-process Store. Every method runs under one mutex, so
// the conditional writes are trivially atomic. Used by tests and local tools.
type MemoryStore struct {
	mu        sync.RWMutex
	books     map[uuid.UUID]models.Book
	borrowers map[uuid.UUID]models.Borrower
	loans     map[uuid.UUID]models.Loan
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:     make(map[uuid.UUID]models.Book),
		borrowers: make(map[uuid.UUID]models.Borrower),
		loans:     make(map[uuid.UUID]models.Loan),
	}
}

// PutBook inserts or replaces a book, assigning an id when missing.
func (s *MemoryStore) PutBook(book models.Book) models.Book {
	if book.ID == uuid.Nil {
		book.ID = uuid.New()
	}
	s.mu.Lock()
	s.books[book.ID] = book
	s.mu.Unlock()
	return book
}

// PutBorrower inserts or replaces a borrower, assigning an id when missing.
func (s *MemoryStore) PutBorrower(borrower models.Borrower) models.Borrower {
	if borrower.ID == uuid.Nil {
		borrower.ID = uuid.New()
	}
	s.mu.Lock()
	s.borrowers[borrower.ID] = borrower
	s.mu.Unlock()
	return borrower
}

func (s *MemoryStore) GetBook(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	book, ok := s.books[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &book, nil
}

func (s *MemoryStore) GetBorrower(ctx context.Context, id uuid.UUID) (*models.Borrower, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	borrower, ok := s.borrowers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &borrower, nil
}

func (s *MemoryStore) CountActiveLoans(ctx context.Context, scope ActiveLoanScope) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countActiveLocked(scope), nil
}

func (s *MemoryStore) InsertLoanIfInvariantsHold(ctx context.Context, loan *models.Loan) (*models.Loan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[loan.BookID]
	if !ok {
		return nil, ErrConflict
	}
	borrower, ok := s.borrowers[loan.BorrowerID]
	if !ok {
		return nil, ErrConflict
	}
	if !availability.HasCopyAvailable(book.Stock, s.countActiveLocked(ByBook(loan.BookID))) {
		return nil, ErrConflict
	}
	if availability.HasActiveLoan(s.countActiveLocked(ByBorrower(loan.BorrowerID))) {
		return nil, ErrConflict
	}

	stored := *loan
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.Book, stored.Borrower = nil, nil
	stored.CreatedAt = stored.BorrowedAt
	stored.UpdatedAt = stored.BorrowedAt
	s.loans[stored.ID] = stored

	out := stored
	out.Book = &book
	out.Borrower = &borrower
	return &out, nil
}

func (s *MemoryStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	loan, ok := s.loans[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := s.hydrateLocked(loan)
	return &out, nil
}

func (s *MemoryStore) UpdateLoanReturn(ctx context.Context, id uuid.UUID, returnedAt time.Time) (*models.Loan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans[id]
	if !ok {
		return nil, ErrNotFound
	}
	if loan.Status != enums.LoanStatusActive {
		return nil, ErrConflict
	}
	ts := returnedAt
	loan.Status = enums.LoanStatusReturned
	loan.ReturnedAt = &ts
	loan.UpdatedAt = returnedAt
	s.loans[id] = loan

	out := s.hydrateLocked(loan)
	return &out, nil
}

func (s *MemoryStore) ListLoans(ctx context.Context, filter LoanFilter) ([]models.Loan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Loan, 0, len(s.loans))
	for _, loan := range s.loans {
		if filter.matches(loan) {
			out = append(out, s.hydrateLocked(loan))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BorrowedAt.Equal(out[j].BorrowedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].BorrowedAt.After(out[j].BorrowedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) countActiveLocked(scope ActiveLoanScope) int64 {
	var n int64
	for _, loan := range s.loans {
		if !loan.IsActive() {
			continue
		}
		if scope.BookID != uuid.Nil && loan.BookID != scope.BookID {
			continue
		}
		if scope.BorrowerID != uuid.Nil && loan.BorrowerID != scope.BorrowerID {
			continue
		}
		n++
	}
	return n
}

func (s *MemoryStore) hydrateLocked(loan models.Loan) models.Loan {
	if book, ok := s.books[loan.BookID]; ok {
		loan.Book = &book
	}
	if borrower, ok := s.borrowers[loan.BorrowerID]; ok {
		loan.Borrower = &borrower
	}
	return loan
}
