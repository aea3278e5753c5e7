package loans

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/library-loans-backend/internal/availability"
	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
	"github.com/angelmondragon/library-loans-backend/pkg/enums"
)

const contenders = 32

func TestConcurrentCreateLastCopy(t *testing.T) {
	f := newFixture(t)
	book := f.book(1)
	borrowers := make([]models.Borrower, contenders)
	for i := range borrowers {
		borrowers[i] = f.borrower()
	}

	var wg sync.WaitGroup
	var successes, noCopies, other int32
	start := make(chan struct{})
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(borrowerID uuid.UUID) {
			defer wg.Done()
			<-start
			_, err := f.svc.CreateLoan(context.Background(), CreateLoanInput{
				BookID:     book.ID,
				BorrowerID: borrowerID,
				DueDate:    testNow.Add(7 * 24 * time.Hour),
			})
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case errors.Is(err, ErrNoCopiesAvailable):
				atomic.AddInt32(&noCopies, 1)
			default:
				atomic.AddInt32(&other, 1)
			}
		}(borrowers[i].ID)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	assert.Equal(t, int32(contenders-1), noCopies)
	assert.Zero(t, other)
	assertStockBound(t, f.store, book)
}

func TestConcurrentCreateSameBorrower(t *testing.T) {
	f := newFixture(t)
	borrower := f.borrower()
	books := make([]models.Book, contenders)
	for i := range books {
		books[i] = f.book(2)
	}

	var wg sync.WaitGroup
	var successes, alreadyActive, other int32
	start := make(chan struct{})
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(bookID uuid.UUID) {
			defer wg.Done()
			<-start
			_, err := f.svc.CreateLoan(context.Background(), CreateLoanInput{
				BookID:     bookID,
				BorrowerID: borrower.ID,
				DueDate:    testNow.Add(7 * 24 * time.Hour),
			})
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case errors.Is(err, ErrBorrowerAlreadyHasActiveLoan):
				atomic.AddInt32(&alreadyActive, 1)
			default:
				atomic.AddInt32(&other, 1)
			}
		}(books[i].ID)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	assert.Equal(t, int32(contenders-1), alreadyActive)
	assert.Zero(t, other)

	active, err := f.store.CountActiveLoans(context.Background(), ByBorrower(borrower.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)
}

func TestConcurrentReturnSameLoan(t *testing.T) {
	f := newFixture(t)
	book := f.book(1)
	borrower := f.borrower()
	loan, err := f.svc.CreateLoan(context.Background(), CreateLoanInput{BookID: book.ID, BorrowerID: borrower.ID, DueDate: testNow.Add(24 * time.Hour)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var successes, already int32
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ReturnLoan(context.Background(), loan.ID)
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case errors.Is(err, ErrLoanAlreadyReturned):
				atomic.AddInt32(&already, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	assert.Equal(t, int32(contenders-1), already)
}

// The store must hold the invariants on its own, for callers that bypass the
// service's in-process locks (for example a second API replica).
func TestMemoryStoreInsertIsAtomic(t *testing.T) {
	store := NewMemoryStore()
	book := store.PutBook(models.Book{Title: "Solo", ISBN: "s", Stock: 1})

	var wg sync.WaitGroup
	var successes, conflicts int32
	for i := 0; i < contenders; i++ {
		borrower := store.PutBorrower(models.Borrower{IDCardNumber: uuid.NewString()})
		wg.Add(1)
		go func(borrowerID uuid.UUID) {
			defer wg.Done()
			_, err := store.InsertLoanIfInvariantsHold(context.Background(), &models.Loan{
				BookID: book.ID, BorrowerID: borrowerID, Status: enums.LoanStatusActive,
				BorrowedAt: testNow, DueDate: testNow.Add(time.Hour),
			})
			if err == nil {
				atomic.AddInt32(&successes, 1)
			} else if errors.Is(err, ErrConflict) {
				atomic.AddInt32(&conflicts, 1)
			}
		}(borrower.ID)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	assert.Equal(t, int32(contenders-1), conflicts)
}

func assertStockBound(t *testing.T, store *MemoryStore, book models.Book) {
	t.Helper()
	active, err := store.CountActiveLoans(context.Background(), ByBook(book.ID))
	require.NoError(t, err)
	available := availability.AvailableCopies(book.Stock, active)
	assert.GreaterOrEqual(t, available, 0)
	assert.LessOrEqual(t, available, book.Stock)
	assert.LessOrEqual(t, active, int64(book.Stock))
}
