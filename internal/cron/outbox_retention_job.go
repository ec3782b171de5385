package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/brindes-backend/pkg/logger"
)

const defaultOutboxRetention = 30 * 24 * time.Hour

type publishedEventPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OutboxRetentionJob deletes outbox events published longer ago than the
// retention window. Unpublished events are never touched.
type OutboxRetentionJob struct {
	logg      *logger.Logger
	pruner    publishedEventPruner
	retention time.Duration
	now       func() time.Time
}

func NewOutboxRetentionJob(logg *logger.Logger, pruner publishedEventPruner, retention time.Duration) (*OutboxRetentionJob, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if pruner == nil {
		return nil, errors.New("outbox repository required")
	}
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	return &OutboxRetentionJob{logg: logg, pruner: pruner, retention: retention, now: time.Now}, nil
}

func (j *OutboxRetentionJob) Name() string { return "outbox-retention" }

func (j *OutboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.pruner.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune published events: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "outbox.retention_pruned")
	return nil
}
