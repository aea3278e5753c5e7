package enums

import "slices"

// LoanStatus maps to the loan_status enum in Postgres. A loan only ever moves
// from active to returned.
type LoanStatus string

const (
	LoanStatusActive   LoanStatus = "active"
	LoanStatusReturned LoanStatus = "returned"
)

var loanStatuses = []LoanStatus{LoanStatusActive, LoanStatusReturned}

func (s LoanStatus) IsValid() bool {
	return slices.Contains(loanStatuses, s)
}

func ParseLoanStatus(value string) (LoanStatus, error) {
	return parse(loanStatuses, value, "loan status")
}

// LoanView selects which loans a listing returns. Overdue is derived at read
// time, so it is a view and not a stored status.
type LoanView string

const (
	LoanViewAll      LoanView = "all"
	LoanViewActive   LoanView = "active"
	LoanViewOverdue  LoanView = "overdue"
	LoanViewReturned LoanView = "returned"
)

var loanViews = []LoanView{LoanViewAll, LoanViewActive, LoanViewOverdue, LoanViewReturned}

// ParseLoanView accepts an empty value as LoanViewAll.
func ParseLoanView(value string) (LoanView, error) {
	if value == "" {
		return LoanViewAll, nil
	}
	return parse(loanViews, value, "loan view")
}
