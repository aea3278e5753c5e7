package loanevents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/library-loans-backend/pkg/enums"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
	"github.com/angelmondragon/library-loans-backend/pkg/metrics"
	"github.com/angelmondragon/library-loans-backend/pkg/outbox"
	"github.com/angelmondragon/library-loans-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/library-loans-backend/pkg/outbox/payloads"
)

type memoryStore struct {
	keys map[string]bool
	err  error
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if m.keys[key] {
		return "1", nil
	}
	return "", nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "lib:idempotency:" + scope + ":" + id
}

func newTestConsumer(t *testing.T, store *memoryStore) (*Consumer, *bytes.Buffer) {
	t.Helper()
	manager, err := idempotency.NewManager(store, time.Hour)
	require.NoError(t, err)
	var buf bytes.Buffer
	return &Consumer{
		idempotency: manager,
		metrics:     metrics.NewLoanEventMetrics(prometheus.NewRegistry()),
		logg:        logger.New(logger.Options{ServiceName: "worker", Output: &buf}),
	}, &buf
}

func loanMessage(t *testing.T, eventType enums.OutboxEventType, eventID uuid.UUID, payload any) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Data:       data,
	})
	require.NoError(t, err)
	return &pubsub.Message{
		ID:         "msg-" + eventID.String()[:8],
		Data:       envelope,
		Attributes: map[string]string{"event_type": string(eventType), "event_id": eventID.String()},
	}
}

func TestProcessLoanCreated(t *testing.T) {
	consumer, buf := newTestConsumer(t, &memoryStore{keys: map[string]bool{}})
	loanID := uuid.New()

	result := consumer.process(context.Background(), loanMessage(t, enums.EventLoanCreated, uuid.New(), payloads.LoanCreatedEvent{
		LoanID:     loanID,
		BookID:     uuid.New(),
		BorrowerID: uuid.New(),
		BorrowedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		DueDate:    time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	}))

	assert.Equal(t, outcomeHandled, result.outcome)
	assert.False(t, result.nack)
	assert.Contains(t, buf.String(), "loan.activity.borrowed")
	assert.Contains(t, buf.String(), loanID.String())
}

func TestProcessLateReturnWarns(t *testing.T) {
	consumer, buf := newTestConsumer(t, &memoryStore{keys: map[string]bool{}})

	result := consumer.process(context.Background(), loanMessage(t, enums.EventLoanReturned, uuid.New(), payloads.LoanReturnedEvent{
		LoanID:      uuid.New(),
		BookID:      uuid.New(),
		BorrowerID:  uuid.New(),
		ReturnedAt:  time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC),
		WasOverdue:  true,
		DaysOverdue: 5,
	}))

	assert.Equal(t, outcomeHandled, result.outcome)
	assert.Contains(t, buf.String(), "loan.activity.returned")
	assert.Contains(t, buf.String(), "loan.returned_late")
	assert.Contains(t, buf.String(), `"days_overdue":5`)
}

func TestProcessOnTimeReturnDoesNotWarn(t *testing.T) {
	consumer, buf := newTestConsumer(t, &memoryStore{keys: map[string]bool{}})

	result := consumer.process(context.Background(), loanMessage(t, enums.EventLoanReturned, uuid.New(), payloads.LoanReturnedEvent{
		LoanID:     uuid.New(),
		ReturnedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}))

	assert.Equal(t, outcomeHandled, result.outcome)
	assert.NotContains(t, buf.String(), "loan.returned_late")
}

func TestProcessDuplicateDelivery(t *testing.T) {
	consumer, _ := newTestConsumer(t, &memoryStore{keys: map[string]bool{}})
	msg := loanMessage(t, enums.EventLoanCreated, uuid.New(), payloads.LoanCreatedEvent{LoanID: uuid.New()})

	first := consumer.process(context.Background(), msg)
	second := consumer.process(context.Background(), msg)

	assert.Equal(t, outcomeHandled, first.outcome)
	assert.Equal(t, outcomeDuplicate, second.outcome)
	assert.False(t, second.nack)
}

func TestProcessSkipsUnknownEventType(t *testing.T) {
	consumer, _ := newTestConsumer(t, &memoryStore{keys: map[string]bool{}})

	result := consumer.process(context.Background(), &pubsub.Message{
		ID:         "msg-1",
		Data:       []byte(`{}`),
		Attributes: map[string]string{"event_type": "book_deleted"},
	})

	assert.Equal(t, outcomeSkipped, result.outcome)
	assert.False(t, result.nack)
}

func TestProcessMalformedPayloadIsAcked(t *testing.T) {
	consumer, _ := newTestConsumer(t, &memoryStore{keys: map[string]bool{}})

	result := consumer.process(context.Background(), loanMessage(t, enums.EventLoanCreated, uuid.New(), map[string]any{"loan_id": "not-a-uuid"}))
	assert.Equal(t, outcomeFailed, result.outcome)
	assert.False(t, result.nack)

	result = consumer.process(context.Background(), &pubsub.Message{
		ID:         "msg-2",
		Data:       []byte(`not json`),
		Attributes: map[string]string{"event_type": string(enums.EventLoanReturned)},
	})
	assert.Equal(t, outcomeFailed, result.outcome)
	assert.False(t, result.nack)
}

func TestProcessNacksWhenIdempotencyStoreFails(t *testing.T) {
	consumer, _ := newTestConsumer(t, &memoryStore{keys: map[string]bool{}, err: errors.New("redis down")})

	result := consumer.process(context.Background(), loanMessage(t, enums.EventLoanCreated, uuid.New(), payloads.LoanCreatedEvent{LoanID: uuid.New()}))

	assert.Equal(t, outcomeFailed, result.outcome)
	assert.True(t, result.nack)
}

func TestNewConsumerValidation(t *testing.T) {
	manager, err := idempotency.NewManager(&memoryStore{keys: map[string]bool{}}, time.Hour)
	require.NoError(t, err)

	_, err = NewConsumer(nil, manager, nil, logger.Nop())
	assert.Error(t, err)
}
