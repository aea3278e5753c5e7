package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	booksvc "github.com/angelmondragon/library-loans-backend/internal/books"
	borrowersvc "github.com/angelmondragon/library-loans-backend/internal/borrowers"
	loansvc "github.com/angelmondragon/library-loans-backend/internal/loans"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Reason  string         `json:"reason"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func serve(t *testing.T, method, pattern, target string, body io.Reader, h http.HandlerFunc) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

type stubBookService struct {
	created booksvc.CreateBookInput
	updated booksvc.UpdateBookInput
	listed  booksvc.ListBooksInput
	deleted uuid.UUID
	err     error
	summary booksvc.CatalogSummary
}

func (s *stubBookService) Create(_ context.Context, input booksvc.CreateBookInput) (*booksvc.BookDTO, error) {
	s.created = input
	if s.err != nil {
		return nil, s.err
	}
	return &booksvc.BookDTO{ID: uuid.New(), Title: input.Title, ISBN: input.ISBN, Stock: input.Stock, AvailableCopies: input.Stock}, nil
}

func (s *stubBookService) Get(_ context.Context, id uuid.UUID) (*booksvc.BookDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &booksvc.BookDTO{ID: id, Title: "Dune"}, nil
}

func (s *stubBookService) List(_ context.Context, input booksvc.ListBooksInput) (*booksvc.BookListDTO, error) {
	s.listed = input
	if s.err != nil {
		return nil, s.err
	}
	return &booksvc.BookListDTO{Books: []booksvc.BookDTO{{ID: uuid.New(), Title: "Dune"}}, NextCursor: "next"}, nil
}

func (s *stubBookService) Update(_ context.Context, id uuid.UUID, input booksvc.UpdateBookInput) (*booksvc.BookDTO, error) {
	s.updated = input
	if s.err != nil {
		return nil, s.err
	}
	return &booksvc.BookDTO{ID: id}, nil
}

func (s *stubBookService) Delete(_ context.Context, id uuid.UUID) error {
	s.deleted = id
	return s.err
}

func (s *stubBookService) Summary(context.Context) (*booksvc.CatalogSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &s.summary, nil
}

type stubBorrowerService struct {
	created borrowersvc.CreateBorrowerInput
	err     error
	summary borrowersvc.RosterSummary
}

func (s *stubBorrowerService) Create(_ context.Context, input borrowersvc.CreateBorrowerInput) (*borrowersvc.BorrowerDTO, error) {
	s.created = input
	if s.err != nil {
		return nil, s.err
	}
	return &borrowersvc.BorrowerDTO{ID: uuid.New(), Name: input.Name, IDCardNumber: input.IDCardNumber, Email: input.Email}, nil
}

func (s *stubBorrowerService) Get(_ context.Context, id uuid.UUID) (*borrowersvc.BorrowerDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &borrowersvc.BorrowerDTO{ID: id}, nil
}

func (s *stubBorrowerService) List(context.Context, borrowersvc.ListBorrowersInput) (*borrowersvc.BorrowerListDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &borrowersvc.BorrowerListDTO{}, nil
}

func (s *stubBorrowerService) Update(_ context.Context, id uuid.UUID, _ borrowersvc.UpdateBorrowerInput) (*borrowersvc.BorrowerDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &borrowersvc.BorrowerDTO{ID: id}, nil
}

func (s *stubBorrowerService) Delete(context.Context, uuid.UUID) error {
	return s.err
}

func (s *stubBorrowerService) Summary(context.Context) (*borrowersvc.RosterSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &s.summary, nil
}

type stubLoanService struct {
	created  loansvc.CreateLoanInput
	listed   loansvc.ListLoansInput
	returned uuid.UUID
	err      error
	stats    loansvc.StatsDTO
}

func (s *stubLoanService) CreateLoan(_ context.Context, input loansvc.CreateLoanInput) (*loansvc.LoanDTO, error) {
	s.created = input
	if s.err != nil {
		return nil, s.err
	}
	return &loansvc.LoanDTO{ID: uuid.New(), BookID: input.BookID, BorrowerID: input.BorrowerID, DueDate: input.DueDate}, nil
}

func (s *stubLoanService) ReturnLoan(_ context.Context, id uuid.UUID) (*loansvc.LoanDTO, error) {
	s.returned = id
	if s.err != nil {
		return nil, s.err
	}
	now := time.Now().UTC()
	return &loansvc.LoanDTO{ID: id, ReturnedAt: &now}, nil
}

func (s *stubLoanService) GetLoan(_ context.Context, id uuid.UUID) (*loansvc.LoanDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &loansvc.LoanDTO{ID: id}, nil
}

func (s *stubLoanService) ListLoans(_ context.Context, input loansvc.ListLoansInput) ([]loansvc.LoanDTO, error) {
	s.listed = input
	if s.err != nil {
		return nil, s.err
	}
	return []loansvc.LoanDTO{}, nil
}

func (s *stubLoanService) Stats(context.Context) (*loansvc.StatsDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &s.stats, nil
}

var errBoom = errors.New("boom")

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}
