package loanevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/library-loans-backend/pkg/enums"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
	"github.com/angelmondragon/library-loans-backend/pkg/metrics"
	"github.com/angelmondragon/library-loans-backend/pkg/outbox"
	"github.com/angelmondragon/library-loans-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/library-loans-backend/pkg/outbox/payloads"
)

// ConsumerName scopes the processed-event keys in redis.
const ConsumerName = "loan-activity"

const (
	outcomeHandled   = "handled"
	outcomeDuplicate = "duplicate"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

var errMalformed = errors.New("malformed loan event")

// Consumer reads loan lifecycle events published from the outbox and writes
// them to the activity log. Late returns are logged at warn level and counted.
type Consumer struct {
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	metrics      *metrics.LoanEventMetrics
	logg         *logger.Logger
}

func NewConsumer(subscription *pubsub.Subscriber, manager *idempotency.Manager, m *metrics.LoanEventMetrics, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("loans subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: subscription,
		idempotency:  manager,
		metrics:      m,
		logg:         logg,
	}, nil
}

// Run receives messages until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	outcome string
	nack    bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	result := c.handle(ctx, logCtx, eventType, msg.Data)
	c.metrics.IncConsumed(string(eventType), result.outcome)
	return result
}

func (c *Consumer) handle(ctx, logCtx context.Context, eventType enums.OutboxEventType, data []byte) processResult {
	if !eventType.IsValid() {
		c.logg.Info(logCtx, "loan_events.skipped")
		return processResult{outcome: outcomeSkipped}
	}

	envelope, eventID, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "loan_events.decode_envelope", err)
		return processResult{outcome: outcomeFailed}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, ConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "loan_events.idempotency_check", err)
		return processResult{outcome: outcomeFailed, nack: true}
	}
	if already {
		c.logg.Info(logCtx, "loan_events.duplicate")
		return processResult{outcome: outcomeDuplicate}
	}

	switch eventType {
	case enums.EventLoanCreated:
		err = c.handleCreated(logCtx, envelope)
	case enums.EventLoanReturned:
		err = c.handleReturned(logCtx, envelope)
	}
	if err != nil {
		// Redelivery cannot fix a malformed payload, so it is acked and the claim kept.
		c.logg.Error(logCtx, "loan_events.handle", err)
		return processResult{outcome: outcomeFailed}
	}
	return processResult{outcome: outcomeHandled}
}

func (c *Consumer) handleCreated(logCtx context.Context, envelope outbox.PayloadEnvelope) error {
	var payload payloads.LoanCreatedEvent
	if err := decodePayload(envelope.Data, &payload); err != nil {
		return err
	}
	if payload.LoanID == uuid.Nil {
		return fmt.Errorf("%w: loan_id missing", errMalformed)
	}
	logCtx = c.logg.WithFields(c.logg.WithLoanID(logCtx, payload.LoanID.String()), map[string]any{
		"book_id":     payload.BookID.String(),
		"borrower_id": payload.BorrowerID.String(),
		"borrowed_at": payload.BorrowedAt.UTC().Format(time.RFC3339),
		"due_date":    payload.DueDate.UTC().Format(time.RFC3339),
	})
	c.logg.Info(logCtx, "loan.activity.borrowed")
	return nil
}

func (c *Consumer) handleReturned(logCtx context.Context, envelope outbox.PayloadEnvelope) error {
	var payload payloads.LoanReturnedEvent
	if err := decodePayload(envelope.Data, &payload); err != nil {
		return err
	}
	if payload.LoanID == uuid.Nil {
		return fmt.Errorf("%w: loan_id missing", errMalformed)
	}
	logCtx = c.logg.WithFields(c.logg.WithLoanID(logCtx, payload.LoanID.String()), map[string]any{
		"book_id":     payload.BookID.String(),
		"borrower_id": payload.BorrowerID.String(),
		"returned_at": payload.ReturnedAt.UTC().Format(time.RFC3339),
	})
	c.logg.Info(logCtx, "loan.activity.returned")

	if payload.WasOverdue {
		c.logg.Warn(c.logg.WithField(logCtx, "days_overdue", payload.DaysOverdue), "loan.returned_late")
		c.metrics.IncLateReturn()
	}
	return nil
}

func decodePayload(data json.RawMessage, dest any) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}
