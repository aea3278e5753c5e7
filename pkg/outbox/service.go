package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
	"github.com/angelmondragon/library-loans-backend/pkg/enums"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
)

const defaultEventVersion = 1

// DomainEvent is what a repository hands to Emit. Data is marshalled into the
// envelope; zero Version and OccurredAt are filled in.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Source        string
	Data          any
	Version       int
	OccurredAt    time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit writes event inside tx so it exists exactly when the loan change that
// produced it commits.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	switch {
	case tx == nil:
		return errTxRequired
	case !event.EventType.IsValid():
		return fmt.Errorf("outbox: unknown event type %q", event.EventType)
	}

	envelope, err := newEnvelope(event)
	if err != nil {
		return fmt.Errorf("outbox: build %s envelope: %w", event.EventType, err)
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("outbox: encode %s envelope: %w", event.EventType, err)
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       body,
	}); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, logger.Fields{
			"event_id":     envelope.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
		}), "outbox.queued")
	}
	return nil
}

func newEnvelope(event DomainEvent) (PayloadEnvelope, error) {
	if event.Data == nil {
		return PayloadEnvelope{}, errors.New("event data required")
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, err
	}
	env := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt.UTC(),
		Source:     event.Source,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = defaultEventVersion
	}
	if event.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	return env, nil
}
