package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-loans-backend/pkg/clock"
	"github.com/angelmondragon/library-loans-backend/pkg/config"
	"github.com/angelmondragon/library-loans-backend/pkg/db/models"
	"github.com/angelmondragon/library-loans-backend/pkg/enums"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
	"github.com/angelmondragon/library-loans-backend/pkg/metrics"
	"github.com/angelmondragon/library-loans-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxStore interface {
	ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	Retire(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error
	CountPending(ctx context.Context) (int64, error)
}

type deadLetterSink interface {
	Insert(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherSource func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Clock       clock.Clock
	DB          txRunner
	PubSub      topicSource
	Repository  outboxStore
	Registry    eventResolver
	Publishers  publisherSource
	DeadLetters deadLetterSink
	Metrics     *metrics.OutboxMetrics
}

// Service drains outbox_events onto the loans topic. Rows are locked per batch
// so several publishers can run side by side.
type Service struct {
	logg         *logger.Logger
	clock        clock.Clock
	db           txRunner
	repo         outboxStore
	pubsub       topicSource
	registry     eventResolver
	deadLetters  deadLetterSink
	publisherFor publisherSource
	metrics      *metrics.OutboxMetrics
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("transaction runner is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub topic source is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event resolver is required")
	case params.DeadLetters == nil:
		return nil, errors.New("dead letter sink is required")
	}

	publishers := params.Publishers
	if publishers == nil {
		publishers = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.System()
	}

	cfg := params.Config.Outbox
	svc := &Service{
		logg:         params.Logger,
		clock:        clk,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		deadLetters:  params.DeadLetters,
		publisherFor: publishers,
		metrics:      params.Metrics,
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		pollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}
	if svc.batchSize <= 0 {
		svc.batchSize = defaultBatchSize
	}
	if svc.maxAttempts <= 0 {
		svc.maxAttempts = defaultMaxAttempts
	}
	if svc.pollInterval <= 0 {
		svc.pollInterval = defaultPollInterval
	}
	return svc, nil
}

// delivery is what happened to one outbox row during a batch.
type delivery int

const (
	delivered delivery = iota
	retrying
	parked
)

type batchSummary struct {
	delivered int
	retrying  int
	parked    int
}

func (b *batchSummary) add(d delivery) {
	switch d {
	case delivered:
		b.delivered++
	case retrying:
		b.retrying++
	case parked:
		b.parked++
	}
}

func (b batchSummary) total() int {
	return b.delivered + b.retrying + b.parked
}

// checkDependencies pings the database and Pub/Sub concurrently.
func (s *Service) checkDependencies(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := s.db.Ping(gctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := s.pubsub.Ping(gctx); err != nil {
			return fmt.Errorf("pubsub ping failed: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Run polls until ctx is canceled. A full batch is followed immediately by the
// next one; an empty batch waits one poll interval; a failed batch backs off.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		s.logg.Error(ctx, "outbox.dependencies_unavailable", err)
		return err
	}

	backoff := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox.publisher.stopping")
			return err
		}

		processed, err := s.processBatch(ctx)
		wait := s.pollInterval
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch_failed", err)
			backoff = min(backoff*2, maxBackoff)
			wait = backoff
		case processed:
			backoff = s.pollInterval
			s.recordPending(ctx)
			continue
		default:
			backoff = s.pollInterval
			s.recordPending(ctx)
		}

		if err := sleep(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

// processBatch publishes one locked batch inside a transaction. It reports
// whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var summary batchSummary
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.ClaimPending(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		for _, event := range events {
			outcome, err := s.deliver(ctx, tx, event)
			if err != nil {
				return err
			}
			summary.add(outcome)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if summary.total() > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"delivered": summary.delivered,
			"retrying":  summary.retrying,
			"parked":    summary.parked,
		}), "outbox.batch.complete")
	}
	return summary.total() > 0, nil
}

// deliver publishes a single row and records the result on it. The returned
// error is only set when bookkeeping fails, which aborts the batch.
func (s *Service) deliver(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (delivery, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"loan_id":       event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	})

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return parked, s.park(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id": resolved.Envelope.EventID,
		"topic":    resolved.Descriptor.Topic,
	})

	publishErr := s.publishResolved(ctx, event, resolved)
	if publishErr == nil {
		if err := s.repo.MarkPublished(tx, event.ID, s.clock.Now()); err != nil {
			return delivered, fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Debug(ctx, "outbox.published")
		return delivered, nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(publishErr, &nonRetry) {
		return parked, s.park(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, publishErr)
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		err := fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, publishErr)
		return parked, s.park(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, err)
	}

	s.logg.Warn(s.logg.WithField(ctx, "error", publishErr.Error()), "outbox.publish_retry")
	s.metrics.IncRetried(string(event.EventType))
	if err := s.repo.RecordFailure(tx, event.ID, publishErr); err != nil {
		return retrying, fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return retrying, nil
}

// park copies the row into outbox_dlq and stops it from being fetched again.
func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"error":        cause.Error(),
		"error_reason": reason,
	}), "outbox.dead_lettered")

	message := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.clock.Now(),
	}
	if err := s.deadLetters.Insert(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.Retire(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.IncDeadLettered(string(event.EventType), string(reason))
	return nil
}

func (s *Service) recordPending(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	pending, err := s.repo.CountPending(ctx)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "outbox.pending_count_failed")
		return
	}
	s.metrics.SetPending(pending)
}

// messageFor builds the Pub/Sub message for a row. The stored envelope is sent
// as is; attributes let subscribers route without decoding the body.
func messageFor(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"schema_version": strconv.Itoa(resolved.Envelope.Version),
			"source":         resolved.Envelope.Source,
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func (s *Service) publishResolved(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, messageFor(event, resolved))
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func withJitter(d time.Duration) time.Duration {
	return d + rand.N(jitterWindow)
}

// gcpPublisher adapts *pubsub.Publisher to the publisher interface so tests
// can substitute results.
type gcpPublisher struct {
	inner *gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{inner: p}
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.inner.Publish(ctx, msg)
}
