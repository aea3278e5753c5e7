package enums

import "slices"

// OutboxAggregateType is the aggregate_type column of outbox_events.
type OutboxAggregateType string

const AggregateLoan OutboxAggregateType = "loan"

var aggregateTypes = []OutboxAggregateType{AggregateLoan}

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(aggregateTypes, a)
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(aggregateTypes, value, "aggregate type")
}

// OutboxEventType names a loan ledger event. The value doubles as the
// event_type attribute on published messages.
type OutboxEventType string

const (
	EventLoanCreated  OutboxEventType = "loan_created"
	EventLoanReturned OutboxEventType = "loan_returned"
)

var eventTypes = []OutboxEventType{EventLoanCreated, EventLoanReturned}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(eventTypes, e)
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(eventTypes, value, "event type")
}

// OutboxDLQErrorReason says why a row landed in outbox_dlq.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = []OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}

func (r OutboxDLQErrorReason) IsValid() bool {
	return slices.Contains(dlqReasons, r)
}

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	return parse(dlqReasons, value, "dlq error reason")
}
