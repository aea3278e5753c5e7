package books

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-loans-backend/pkg/db"
	"github.com/angelmondragon/library-loans-backend/pkg/db/dbtest"
	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
	"github.com/angelmondragon/library-loans-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-loans-backend/pkg/errors"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), db.NewFromGorm(conn), nil)
	require.NoError(t, err)
	return svc, conn
}

func lendCopies(t *testing.T, conn *gorm.DB, bookID uuid.UUID, n int) {
	t.Helper()
	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		borrower := models.Borrower{ID: uuid.New(), IDCardNumber: uuid.NewString(), Name: "Reader", Email: "reader@example.com"}
		require.NoError(t, conn.Create(&borrower).Error)
		loan := models.Loan{
			ID: uuid.New(), BookID: bookID, BorrowerID: borrower.ID, Status: enums.LoanStatusActive,
			BorrowedAt: now, DueDate: now.Add(72 * time.Hour),
		}
		require.NoError(t, conn.Omit("Book", "Borrower").Create(&loan).Error)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, db.NewFromGorm(nil), nil)
	require.Error(t, err)
	_, err = NewService(NewRepository(nil), nil, nil)
	require.Error(t, err)
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []CreateBookInput{
		{Title: " ", ISBN: "978-0", Stock: 1},
		{Title: "Dune", ISBN: "", Stock: 1},
		{Title: "Dune", ISBN: "978-0", Stock: -1},
	}
	for _, input := range cases {
		_, err := svc.Create(ctx, input)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "input %+v", input)
	}
}

func TestCreateAndGetReportAvailability(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateBookInput{Title: "  Dune ", ISBN: "978-0441013593", Stock: 3})
	require.NoError(t, err)
	assert.Equal(t, "Dune", created.Title)
	assert.Equal(t, 3, created.AvailableCopies)

	lendCopies(t, conn, created.ID, 2)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)
	assert.Equal(t, 1, got.AvailableCopies)

	_, err = svc.Get(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCreateRejectsDuplicateISBN(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateBookInput{Title: "Dune", ISBN: "978-0441013593", Stock: 1})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateBookInput{Title: "Dune (reprint)", ISBN: "978-0441013593", Stock: 1})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	assert.Equal(t, "DUPLICATE_ISBN", typed.Reason())
}

func TestUpdateCannotDropStockBelowActiveLoans(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	book, err := svc.Create(ctx, CreateBookInput{Title: "Emma", ISBN: "978-0141439587", Stock: 3})
	require.NoError(t, err)
	lendCopies(t, conn, book.ID, 2)

	one := 1
	_, err = svc.Update(ctx, book.ID, UpdateBookInput{Stock: &one})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStockBelowActiveLoans)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	two := 2
	title := "Emma (annotated)"
	updated, err := svc.Update(ctx, book.ID, UpdateBookInput{Stock: &two, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Stock)
	assert.Equal(t, 0, updated.AvailableCopies)
	assert.Equal(t, title, updated.Title)
}

func TestDeleteGuardsActiveLoans(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	lent, err := svc.Create(ctx, CreateBookInput{Title: "Persuasion", ISBN: "978-0141439686", Stock: 1})
	require.NoError(t, err)
	lendCopies(t, conn, lent.ID, 1)

	err = svc.Delete(ctx, lent.ID)
	assert.ErrorIs(t, err, ErrBookHasActiveLoans)

	idle, err := svc.Create(ctx, CreateBookInput{Title: "Sanditon", ISBN: "978-0140431988", Stock: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, idle.ID))

	_, err = svc.Get(ctx, idle.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var raw models.Book
	require.NoError(t, conn.Unscoped().Where("id = ?", idle.ID).First(&raw).Error)
	assert.True(t, raw.DeletedAt.Valid)

	// the isbn frees up once the row is soft-deleted
	_, err = svc.Create(ctx, CreateBookInput{Title: "Sanditon", ISBN: "978-0140431988", Stock: 2})
	require.NoError(t, err)
}

func TestListPaginatesAndSearches(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	titles := []string{"Anna Karenina", "War and Peace", "Resurrection", "The Cossacks", "Hadji Murat"}
	for i, title := range titles {
		book := models.Book{ID: uuid.New(), Title: title, ISBN: uuid.NewString(), Stock: 1, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, conn.Create(&book).Error)
	}

	first, err := svc.List(ctx, ListBooksInput{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Books, 2)
	assert.Equal(t, "Hadji Murat", first.Books[0].Title)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.List(ctx, ListBooksInput{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Books, 2)
	assert.Equal(t, "Resurrection", second.Books[0].Title)

	third, err := svc.List(ctx, ListBooksInput{Limit: 2, Cursor: second.NextCursor})
	require.NoError(t, err)
	require.Len(t, third.Books, 1)
	assert.Empty(t, third.NextCursor)

	found, err := svc.List(ctx, ListBooksInput{Search: "peace"})
	require.NoError(t, err)
	require.Len(t, found.Books, 1)
	assert.Equal(t, "War and Peace", found.Books[0].Title)

	_, err = svc.List(ctx, ListBooksInput{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSummaryCountsAvailableBooks(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	full, err := svc.Create(ctx, CreateBookInput{Title: "Ulysses", ISBN: "978-0679722762", Stock: 1})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateBookInput{Title: "Dubliners", ISBN: "978-0140186475", Stock: 2})
	require.NoError(t, err)
	lendCopies(t, conn, full.ID, 1)

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalBooks)
	assert.Equal(t, 3, summary.TotalCopies)
	assert.Equal(t, 1, summary.AvailableBooks)
}
