// Package availability derives copy availability and active-loan flags from
// the current loan set. Nothing here is cached; callers recompute per request.
package availability

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
)

// AvailableCopies returns stock minus active loans, clamped to [0, stock].
func AvailableCopies(stock int, activeLoans int64) int {
	if stock <= 0 {
		return 0
	}
	available := int64(stock) - activeLoans
	if available < 0 {
		return 0
	}
	if available > int64(stock) {
		return stock
	}
	return int(available)
}

// HasCopyAvailable reports whether at least one copy can be lent.
func HasCopyAvailable(stock int, activeLoans int64) bool {
	return AvailableCopies(stock, activeLoans) > 0
}

// HasActiveLoan reports whether a borrower currently holds a loan.
func HasActiveLoan(activeLoans int64) bool {
	return activeLoans > 0
}

// CanLowerStockTo reports whether stock can be set to newStock without
// dropping below the copies currently out on loan.
func CanLowerStockTo(newStock int, activeLoans int64) bool {
	return newStock >= 0 && int64(newStock) >= activeLoans
}

// CountActiveForBook counts active loans referencing bookID.
func CountActiveForBook(loans []models.Loan, bookID uuid.UUID) int64 {
	var n int64
	for i := range loans {
		if loans[i].BookID == bookID && loans[i].IsActive() {
			n++
		}
	}
	return n
}

// CountActiveForBorrower counts active loans held by borrowerID.
func CountActiveForBorrower(loans []models.Loan, borrowerID uuid.UUID) int64 {
	var n int64
	for i := range loans {
		if loans[i].BorrowerID == borrowerID && loans[i].IsActive() {
			n++
		}
	}
	return n
}
