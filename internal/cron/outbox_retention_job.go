package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/library-loans-backend/pkg/clock"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
)

const defaultOutboxRetention = 30 * 24 * time.Hour

type publishedPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure the prune. Window defaults to 30 days.
type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository publishedPruner
	Window     time.Duration
	Clock      clock.Clock
}

// OutboxRetentionJob deletes delivered outbox rows older than Window. Pending
// and dead-lettered rows are kept.
type OutboxRetentionJob struct {
	logg   *logger.Logger
	repo   publishedPruner
	window time.Duration
	clock  clock.Clock
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (*OutboxRetentionJob, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &OutboxRetentionJob{
		logg:   params.Logger,
		repo:   params.Repository,
		window: params.Window,
		clock:  params.Clock,
	}
	if job.window <= 0 {
		job.window = defaultOutboxRetention
	}
	if job.clock == nil {
		job.clock = clock.System()
	}
	return job, nil
}

func (j *OutboxRetentionJob) Name() string { return "outbox-retention" }

func (j *OutboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.clock.Now().UTC().Add(-j.window)
	deleted, err := j.repo.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune outbox before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	j.logg.Info(j.logg.WithFields(ctx, logger.Fields{
		"cutoff":  cutoff,
		"deleted": deleted,
	}), "cron.outbox_pruned")
	return nil
}
