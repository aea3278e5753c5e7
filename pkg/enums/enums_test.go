package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLoanStatus(t *testing.T) {
	status, err := ParseLoanStatus("returned")
	require.NoError(t, err)
	assert.Equal(t, LoanStatusReturned, status)
	assert.True(t, status.IsValid())

	_, err = ParseLoanStatus("overdue")
	assert.Error(t, err)
	assert.False(t, LoanStatus("lost").IsValid())
}

func TestParseLoanView(t *testing.T) {
	view, err := ParseLoanView("")
	require.NoError(t, err)
	assert.Equal(t, LoanViewAll, view)

	view, err = ParseLoanView("overdue")
	require.NoError(t, err)
	assert.Equal(t, LoanViewOverdue, view)

	_, err = ParseLoanView("late")
	assert.Error(t, err)
}

func TestOutboxEnums(t *testing.T) {
	assert.True(t, EventLoanCreated.IsValid())
	assert.True(t, AggregateLoan.IsValid())

	_, err := ParseOutboxEventType("order_created")
	assert.Error(t, err)

	agg, err := ParseOutboxAggregateType("loan")
	require.NoError(t, err)
	assert.Equal(t, AggregateLoan, agg)
}

func TestParseOutboxDLQErrorReason(t *testing.T) {
	reason, err := ParseOutboxDLQErrorReason("max_attempts")
	require.NoError(t, err)
	assert.Equal(t, OutboxDLQReasonMaxAttempts, reason)
	assert.True(t, OutboxDLQReasonNonRetryable.IsValid())

	_, err = ParseOutboxDLQErrorReason("timeout")
	assert.Error(t, err)
	assert.False(t, OutboxDLQErrorReason("").IsValid())
}
