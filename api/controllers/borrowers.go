package controllers

import (
	"net/http"

	"github.com/angelmondragon/library-loans-backend/api/responses"
	"github.com/angelmondragon/library-loans-backend/api/validators"
	borrowersvc "github.com/angelmondragon/library-loans-backend/internal/borrowers"
	pkgerrors "github.com/angelmondragon/library-loans-backend/pkg/errors"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
	"github.com/angelmondragon/library-loans-backend/pkg/pagination"
)

type createBorrowerRequest struct {
	Borrower *borrowerFields `json:"borrower" validate:"required"`
}

type borrowerFields struct {
	IDCardNumber string `json:"id_card_number" validate:"required,max=64"`
	Name         string `json:"name" validate:"required,max=255"`
	Email        string `json:"email" validate:"required,email"`
}

type updateBorrowerRequest struct {
	Borrower *borrowerPatch `json:"borrower" validate:"required"`
}

type borrowerPatch struct {
	IDCardNumber *string `json:"id_card_number,omitempty" validate:"omitempty,max=64"`
	Name         *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
}

func ListBorrowers(svc borrowersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "borrower service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), borrowersvc.ListBorrowersInput{
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

func GetBorrower(svc borrowersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "borrower service unavailable"))
			return
		}
		id, err := parsePathUUID(r, "borrowerId", "borrower id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		borrower, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, borrower)
	}
}

func CreateBorrower(svc borrowersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "borrower service unavailable"))
			return
		}

		var payload createBorrowerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		borrower, err := svc.Create(r.Context(), borrowersvc.CreateBorrowerInput{
			IDCardNumber: payload.Borrower.IDCardNumber,
			Name:         payload.Borrower.Name,
			Email:        payload.Borrower.Email,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, borrower)
	}
}

func UpdateBorrower(svc borrowersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "borrower service unavailable"))
			return
		}
		id, err := parsePathUUID(r, "borrowerId", "borrower id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateBorrowerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		borrower, err := svc.Update(r.Context(), id, borrowersvc.UpdateBorrowerInput{
			IDCardNumber: payload.Borrower.IDCardNumber,
			Name:         payload.Borrower.Name,
			Email:        payload.Borrower.Email,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, borrower)
	}
}

func DeleteBorrower(svc borrowersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "borrower service unavailable"))
			return
		}
		id, err := parsePathUUID(r, "borrowerId", "borrower id")
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
