package controllers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	booksvc "github.com/angelmondragon/library-loans-backend/internal/books"
	pkgerrors "github.com/angelmondragon/library-loans-backend/pkg/errors"
)

func TestCreateBook(t *testing.T) {
	logg := testLogger()

	t.Run("success", func(t *testing.T) {
		svc := &stubBookService{}
		rec, env := serve(t, http.MethodPost, "/books", "/books", jsonBody(`{"book":{"title":"Dune","isbn":"9780441013593","stock":3}}`), CreateBook(svc, logg))

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, booksvc.CreateBookInput{Title: "Dune", ISBN: "9780441013593", Stock: 3}, svc.created)

		var book booksvc.BookDTO
		require.NoError(t, json.Unmarshal(env.Data, &book))
		assert.Equal(t, 3, book.AvailableCopies)
	})

	t.Run("zero stock is allowed", func(t *testing.T) {
		svc := &stubBookService{}
		rec, _ := serve(t, http.MethodPost, "/books", "/books", jsonBody(`{"book":{"title":"Dune","isbn":"1","stock":0}}`), CreateBook(svc, logg))
		require.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("missing stock", func(t *testing.T) {
		rec, env := serve(t, http.MethodPost, "/books", "/books", jsonBody(`{"book":{"title":"Dune","isbn":"1"}}`), CreateBook(&stubBookService{}, logg))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "is required", env.Error.Details["stock"])
	})

	t.Run("negative stock", func(t *testing.T) {
		rec, _ := serve(t, http.MethodPost, "/books", "/books", jsonBody(`{"book":{"title":"Dune","isbn":"1","stock":-2}}`), CreateBook(&stubBookService{}, logg))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unwrapped body", func(t *testing.T) {
		rec, _ := serve(t, http.MethodPost, "/books", "/books", jsonBody(`{"title":"Dune"}`), CreateBook(&stubBookService{}, logg))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate isbn", func(t *testing.T) {
		svc := &stubBookService{err: pkgerrors.New(pkgerrors.CodeConflict, "isbn already catalogued").WithReason("DUPLICATE_ISBN")}
		rec, env := serve(t, http.MethodPost, "/books", "/books", jsonBody(`{"book":{"title":"Dune","isbn":"1","stock":1}}`), CreateBook(svc, logg))
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "DUPLICATE_ISBN", env.Error.Reason)
	})
}

func TestListBooksPassesQuery(t *testing.T) {
	svc := &stubBookService{}
	rec, env := serve(t, http.MethodGet, "/books", "/books?q=%20dune%20&limit=10&cursor=abc", nil, ListBooks(svc, testLogger()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, booksvc.ListBooksInput{Search: "dune", Limit: 10, Cursor: "abc"}, svc.listed)

	var list booksvc.BookListDTO
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, "next", list.NextCursor)
	assert.Len(t, list.Books, 1)
}

func TestListBooksRejectsBadLimit(t *testing.T) {
	rec, _ := serve(t, http.MethodGet, "/books", "/books?limit=1000", nil, ListBooks(&stubBookService{}, testLogger()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBook(t *testing.T) {
	id := uuid.New()
	rec, env := serve(t, http.MethodGet, "/books/{bookId}", "/books/"+id.String(), nil, GetBook(&stubBookService{}, testLogger()))
	require.Equal(t, http.StatusOK, rec.Code)

	var book booksvc.BookDTO
	require.NoError(t, json.Unmarshal(env.Data, &book))
	assert.Equal(t, id, book.ID)

	rec, _ = serve(t, http.MethodGet, "/books/{bookId}", "/books/not-a-uuid", nil, GetBook(&stubBookService{}, testLogger()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	missing := &stubBookService{err: pkgerrors.New(pkgerrors.CodeNotFound, "book not found").WithReason("BOOK_NOT_FOUND")}
	rec, env = serve(t, http.MethodGet, "/books/{bookId}", "/books/"+id.String(), nil, GetBook(missing, testLogger()))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "BOOK_NOT_FOUND", env.Error.Reason)
}

func TestUpdateBookPartial(t *testing.T) {
	svc := &stubBookService{}
	id := uuid.New()
	rec, _ := serve(t, http.MethodPut, "/books/{bookId}", "/books/"+id.String(), jsonBody(`{"book":{"stock":5}}`), UpdateBook(svc, testLogger()))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.updated.Stock)
	assert.Equal(t, 5, *svc.updated.Stock)
	assert.Nil(t, svc.updated.Title)
	assert.Nil(t, svc.updated.ISBN)
}

func TestUpdateBookStockBelowActiveLoans(t *testing.T) {
	svc := &stubBookService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "stock cannot drop below copies on loan").WithReason("STOCK_BELOW_ACTIVE_LOANS")}
	rec, env := serve(t, http.MethodPut, "/books/{bookId}", "/books/"+uuid.NewString(), jsonBody(`{"book":{"stock":0}}`), UpdateBook(svc, testLogger()))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "STOCK_BELOW_ACTIVE_LOANS", env.Error.Reason)
}

func TestDeleteBook(t *testing.T) {
	svc := &stubBookService{}
	id := uuid.New()
	rec, _ := serve(t, http.MethodDelete, "/books/{bookId}", "/books/"+id.String(), nil, DeleteBook(svc, testLogger()))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, id, svc.deleted)

	blocked := &stubBookService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "book has copies on loan").WithReason("BOOK_HAS_ACTIVE_LOANS")}
	rec, env := serve(t, http.MethodDelete, "/books/{bookId}", "/books/"+id.String(), nil, DeleteBook(blocked, testLogger()))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "BOOK_HAS_ACTIVE_LOANS", env.Error.Reason)
}

func TestBookHandlersWithoutService(t *testing.T) {
	rec, _ := serve(t, http.MethodGet, "/books", "/books", nil, ListBooks(nil, testLogger()))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
