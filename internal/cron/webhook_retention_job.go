package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/nomadair/nomadair-backend/pkg/db/models"
	"github.com/nomadair/nomadair-backend/pkg/logger"
)

const webhookRetentionDays = 90

// WebhookRetentionJobParams configure the audit-trail pruning job.
type WebhookRetentionJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Retention int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// NewWebhookRetentionJob prunes supplier webhook audit rows older than the
// retention window. The rows are a debugging trail, not booking state; the
// reconciled effects live on the bookings themselves.
func NewWebhookRetentionJob(params WebhookRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = webhookRetentionDays
	}
	return &webhookRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		retention: retention,
		now:       time.Now,
	}, nil
}

type webhookRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	retention int
	now       func() time.Time
}

func (j *webhookRetentionJob) Name() string { return "webhook-retention" }

func (j *webhookRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).
			Where("created_at < ?", cutoff).
			Delete(&models.SupplierWebhookEvent{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return fmt.Errorf("webhook retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "webhook retention complete")
	return nil
}
