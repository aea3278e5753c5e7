package controllers

import (
	"net/http"

	"github.com/angelmondragon/library-loans-backend/api/responses"
	"github.com/angelmondragon/library-loans-backend/api/validators"
	booksvc "github.com/angelmondragon/library-loans-backend/internal/books"
	pkgerrors "github.com/angelmondragon/library-loans-backend/pkg/errors"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
	"github.com/angelmondragon/library-loans-backend/pkg/pagination"
)

const maxSearchLength = 120

type createBookRequest struct {
	Book *bookFields `json:"book" validate:"required"`
}

type bookFields struct {
	Title string `json:"title" validate:"required,max=255"`
	ISBN  string `json:"isbn" validate:"required,max=32"`
	Stock *int   `json:"stock" validate:"required,gte=0"`
}

type updateBookRequest struct {
	Book *bookPatch `json:"book" validate:"required"`
}

type bookPatch struct {
	Title *string `json:"title,omitempty" validate:"omitempty,max=255"`
	ISBN  *string `json:"isbn,omitempty" validate:"omitempty,max=32"`
	Stock *int    `json:"stock,omitempty" validate:"omitempty,gte=0"`
}

func ListBooks(svc booksvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "book service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), booksvc.ListBooksInput{
			Search: validators.SanitizeString(r.URL.Query().Get("q"), maxSearchLength),
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func GetBook(svc booksvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "book service unavailable"))
			return
		}
		id, err := parsePathUUID(r, "bookId", "book id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		book, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, book)
	}
}

func CreateBook(svc booksvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "book service unavailable"))
			return
		}

		var payload createBookRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		book, err := svc.Create(r.Context(), booksvc.CreateBookInput{
			Title: payload.Book.Title,
			ISBN:  payload.Book.ISBN,
			Stock: *payload.Book.Stock,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, book)
	}
}

func UpdateBook(svc booksvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "book service unavailable"))
			return
		}
		id, err := parsePathUUID(r, "bookId", "book id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateBookRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		book, err := svc.Update(r.Context(), id, booksvc.UpdateBookInput{
			Title: payload.Book.Title,
			ISBN:  payload.Book.ISBN,
			Stock: payload.Book.Stock,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, book)
	}
}

func DeleteBook(svc booksvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "book service unavailable"))
			return
		}
		id, err := parsePathUUID(r, "bookId", "book id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
