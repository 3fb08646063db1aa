package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/nomadair/nomadair-backend/pkg/db/models"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/logger"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

const defaultPaymentPendingTTL = 24 * time.Hour

// PaymentTTLJobParams configure the stale payment sweep.
type PaymentTTLJobParams struct {
	Logger *logger.Logger
	Repo   paymentSweepRepo
	TTL    time.Duration
}

type paymentSweepRepo interface {
	FindStalePaymentPending(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to enums.BookingStatus) error
	MergeProviderData(ctx context.Context, id uuid.UUID, patch types.JSONMap) error
}

// NewPaymentTTLJob builds the cron job that fails bookings stuck awaiting
// payment beyond the configured TTL, so abandoned checkouts do not linger in
// a state the webhook reconciler could still confirm.
func NewPaymentTTLJob(params PaymentTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPaymentPendingTTL
	}
	return &paymentTTLJob{
		logg: params.Logger,
		repo: params.Repo,
		ttl:  ttl,
		now:  time.Now,
	}, nil
}

type paymentTTLJob struct {
	logg *logger.Logger
	repo paymentSweepRepo
	ttl  time.Duration
	now  func() time.Time
}

func (j *paymentTTLJob) Name() string { return "payment-ttl" }

func (j *paymentTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.repo.FindStalePaymentPending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query stale payment-pending bookings: %w", err)
	}

	var errs error
	expired := 0
	for _, booking := range stale {
		if err := j.expire(ctx, booking); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire booking %s: %w", booking.ID, err))
			continue
		}
		expired++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"found":   len(stale),
		"expired": expired,
	})
	j.logg.Info(logCtx, "payment ttl sweep complete")
	return errs
}

func (j *paymentTTLJob) expire(ctx context.Context, booking models.Booking) error {
	patch := types.JSONMap{
		"payment_expiry": map[string]any{
			"expired_at": j.now().UTC().Format(time.RFC3339),
			"reason":     "payment not completed within ttl",
		},
	}
	if err := j.repo.MergeProviderData(ctx, booking.ID, patch); err != nil {
		return err
	}

	err := j.repo.UpdateStatus(ctx, booking.ID, enums.BookingStatusFailed)
	if err != nil {
		// A payment webhook can land between the query and the write; the
		// booking is no longer stale, so leave it alone.
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
			logCtx := j.logg.WithBookingID(ctx, booking.ID.String())
			j.logg.Info(logCtx, "booking moved on before expiry, skipping")
			return nil
		}
		return err
	}
	return nil
}
