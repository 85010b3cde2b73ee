package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultDLQRetentionDays    = 90
	defaultExhaustedAttempts   = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type dlqPruner interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Outbox        outboxPruner
	RetentionDays int
	// MaxAttempts marks unpublished rows as exhausted; it should match the
	// publisher's terminal attempt count.
	MaxAttempts int
}

// NewOutboxRetentionJob prunes recorded webhook events and exhausted rows.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultExhaustedAttempts
	}
	return &retentionJob{
		name:      "outbox-retention",
		logg:      params.Logger,
		db:        params.DB,
		retention: retentionDays(params.RetentionDays, defaultOutboxRetentionDays),
		now:       time.Now,
		prune: func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return params.Outbox.DeletePublishedBefore(ctx, tx, cutoff, attempts)
		},
	}, nil
}

type DLQRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	DLQ           dlqPruner
	RetentionDays int
}

// NewDLQRetentionJob prunes dead-lettered webhook events once they are old
// enough to no longer need manual replay.
func NewDLQRetentionJob(params DLQRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.DLQ == nil {
		return nil, fmt.Errorf("dlq repository required")
	}
	return &retentionJob{
		name:      "outbox-dlq-retention",
		logg:      params.Logger,
		db:        params.DB,
		retention: retentionDays(params.RetentionDays, defaultDLQRetentionDays),
		now:       time.Now,
		prune:     params.DLQ.DeleteFailedBefore,
	}, nil
}

type retentionJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	retention int
	now       func() time.Time
	prune     func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.cutoff()
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.prune(ctx, tx, cutoff)
		deleted = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	}), "retention cleanup complete")
	return nil
}

func (j *retentionJob) cutoff() time.Time {
	return j.now().UTC().AddDate(0, 0, -j.retention)
}

func retentionDays(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
