package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/library-loans-backend/internal/loans"
	"github.com/angelmondragon/library-loans-backend/internal/overdue"
	"github.com/angelmondragon/library-loans-backend/pkg/clock"
	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
	"github.com/angelmondragon/library-loans-backend/pkg/enums"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
)

// overdueLogLimit caps the per-loan warnings written by one run.
const overdueLogLimit = 50

type activeLoanLister interface {
	ListLoans(ctx context.Context, filter loans.LoanFilter) ([]models.Loan, error)
}

type snapshotRecorder interface {
	SetSnapshot(active, overdue int)
}

type OverdueSnapshotJobParams struct {
	Logger  *logger.Logger
	Loans   activeLoanLister
	Clock   clock.Clock
	Metrics snapshotRecorder
}

// NewOverdueSnapshotJob builds the job that refreshes the active and overdue
// loan gauges and logs the loans currently past due.
func NewOverdueSnapshotJob(params OverdueSnapshotJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Loans == nil {
		return nil, fmt.Errorf("loan lister required")
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &overdueSnapshotJob{
		logg:    params.Logger,
		loans:   params.Loans,
		clock:   clk,
		metrics: params.Metrics,
	}, nil
}

type overdueSnapshotJob struct {
	logg    *logger.Logger
	loans   activeLoanLister
	clock   clock.Clock
	metrics snapshotRecorder
}

func (j *overdueSnapshotJob) Name() string { return "overdue-snapshot" }

func (j *overdueSnapshotJob) Run(ctx context.Context) error {
	active, err := j.loans.ListLoans(ctx, loans.LoanFilter{Status: enums.LoanStatusActive})
	if err != nil {
		return fmt.Errorf("list active loans: %w", err)
	}

	now := j.clock.Now()
	counts := overdue.Tally(active, now)
	if j.metrics != nil {
		j.metrics.SetSnapshot(counts.Active, counts.Overdue)
	}

	for i, loan := range overdue.Filter(active, now) {
		if i == overdueLogLimit {
			break
		}
		status := overdue.Evaluate(loan, now)
		loanCtx := j.logg.WithLoanID(ctx, loan.ID.String())
		loanCtx = j.logg.WithBorrowerID(loanCtx, loan.BorrowerID.String())
		loanCtx = j.logg.WithFields(loanCtx, map[string]any{
			"due_date":     loan.DueDate,
			"days_overdue": status.DaysOverdue,
		})
		j.logg.Warn(loanCtx, "loan.overdue")
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"active_loans":  counts.Active,
		"overdue_loans": counts.Overdue,
	})
	j.logg.Info(logCtx, "overdue snapshot complete")
	return nil
}
