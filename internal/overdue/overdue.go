// Package overdue classifies loans as overdue at read time. Overdue is never
// stored; a loan becomes overdue purely by the passage of time.
package overdue

import (
	"time"

	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
)

const day = 24 * time.Hour

// Status is the derived overdue state of a loan at a given instant.
type Status struct {
	Overdue     bool
	DaysOverdue int
}

// Evaluate reports whether loan is overdue at now. A loan due at T is not
// overdue at T and is overdue at T+1ns; DaysOverdue counts whole elapsed days.
func Evaluate(loan models.Loan, now time.Time) Status {
	if !loan.IsActive() || !now.After(loan.DueDate) {
		return Status{}
	}
	return Status{
		Overdue:     true,
		DaysOverdue: int(now.Sub(loan.DueDate) / day),
	}
}

// IsOverdue is shorthand for Evaluate(loan, now).Overdue.
func IsOverdue(loan models.Loan, now time.Time) bool {
	return Evaluate(loan, now).Overdue
}

// Counts tallies a loan set the same way listings classify it.
type Counts struct {
	Total    int
	Active   int
	Overdue  int
	Returned int
}

// Tally classifies every loan at now. Overdue loans are also counted as active.
func Tally(loans []models.Loan, now time.Time) Counts {
	c := Counts{Total: len(loans)}
	for i := range loans {
		if !loans[i].IsActive() {
			c.Returned++
			continue
		}
		c.Active++
		if IsOverdue(loans[i], now) {
			c.Overdue++
		}
	}
	return c
}

// Filter returns the overdue subset of loans at now, preserving order.
func Filter(loans []models.Loan, now time.Time) []models.Loan {
	out := make([]models.Loan, 0, len(loans))
	for i := range loans {
		if IsOverdue(loans[i], now) {
			out = append(out, loans[i])
		}
	}
	return out
}
