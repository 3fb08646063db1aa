package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nomadair/nomadair-backend/internal/bookings"
	"github.com/nomadair/nomadair-backend/internal/notifications"
	"github.com/nomadair/nomadair-backend/internal/suppliers"
	"github.com/nomadair/nomadair-backend/pkg/config"
	"github.com/nomadair/nomadair-backend/pkg/db/models"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/logger"
	"github.com/nomadair/nomadair-backend/pkg/retry"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

// Notifier is the slice of the notifications service the orchestrator needs.
type Notifier interface {
	Enqueue(ctx context.Context, request notifications.Request)
}

// SupplierRegistry resolves the client for a booking's provider.
type SupplierRegistry interface {
	For(provider enums.Provider) (suppliers.Supplier, error)
}

// Result reports one orchestration outcome. AlreadyCreated means the booking
// was linked to a supplier order before this call and no supplier request was
// made.
type Result struct {
	Booking        *models.Booking
	AlreadyCreated bool
}

// Orchestrator drives the one irreversible step of the lifecycle: placing the
// order with the supplier. Everything it writes back goes through the
// repository's merge/first-writer-wins primitives so a concurrent webhook
// cannot be clobbered.
type Orchestrator struct {
	repo     bookings.Repository
	registry SupplierRegistry
	notifier Notifier
	policy   retry.Policy
	logg     *logger.Logger
	now      func() time.Time
}

func NewOrchestrator(repo bookings.Repository, registry SupplierRegistry, notifier Notifier, cfg config.RetryConfig, logg *logger.Logger) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		registry: registry,
		notifier: notifier,
		policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    cfg.MaxDelay,
		},
		logg: logg,
		now:  time.Now,
	}
}

// CreateSupplierOrder places the supplier order for a paid booking. The call
// is idempotent: a booking that already carries a providerBookingId returns
// immediately with zero supplier calls.
func (o *Orchestrator) CreateSupplierOrder(ctx context.Context, bookingID uuid.UUID) (*Result, error) {
	ctx = o.logg.WithBookingID(ctx, bookingID.String())

	booking, err := o.repo.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, err
	}
	ctx = o.logg.WithProvider(ctx, string(booking.Provider))

	if booking.ProviderBookingID != nil {
		o.logg.Info(ctx, "supplier order already exists, skipping creation")
		return &Result{Booking: booking, AlreadyCreated: true}, nil
	}

	if err := orderPreconditions(booking); err != nil {
		return nil, err
	}

	supplier, err := o.registry.For(booking.Provider)
	if err != nil {
		return nil, err
	}

	input := suppliers.CreateOrderInput{
		BookingReference: booking.Reference,
		OfferID:          offerID(booking),
		TripData:         booking.BookingData,
		Passengers:       booking.PassengerInfo,
		Amount:           booking.TotalAmount,
		Currency:         booking.Currency,
	}

	var order *suppliers.Order
	attemptErrors := types.JSONMap{}
	attempt := 0
	err = retry.Do(ctx, o.policy, func(ctx context.Context) error {
		attempt++
		created, callErr := supplier.CreateOrder(ctx, input)
		if callErr != nil {
			o.logg.Warn(o.logg.WithField(ctx, "attempt", attempt), "supplier order attempt failed: "+callErr.Error())
			attemptErrors[o.now().UTC().Format(time.RFC3339Nano)] = attemptRecord(attempt, callErr)
			return callErr
		}
		order = created
		return nil
	})
	if err != nil {
		return nil, o.recordFailure(ctx, booking, attemptErrors, err)
	}

	return o.recordSuccess(ctx, booking, order)
}

func (o *Orchestrator) recordSuccess(ctx context.Context, booking *models.Booking, order *suppliers.Order) (*Result, error) {
	if err := o.repo.SetProviderBookingID(ctx, booking.ID, order.ProviderBookingID); err != nil {
		return nil, err
	}
	patch := types.JSONMap{
		"order_response":  map[string]any(order.RawResponse),
		"order_placed_at": o.now().UTC().Format(time.RFC3339),
	}
	if err := o.repo.MergeProviderData(ctx, booking.ID, patch); err != nil {
		return nil, err
	}
	if err := o.repo.UpdateStatus(ctx, booking.ID, enums.BookingStatusConfirmed); err != nil {
		return nil, err
	}

	updated, err := o.repo.FindByID(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	o.logg.Info(ctx, "supplier order created")

	o.notifier.Enqueue(ctx, notifications.Request{
		Kind:      enums.NotificationBookingConfirmation,
		BookingID: updated.ID,
		Recipient: contactEmail(updated),
		Payload: types.JSONMap{
			"reference":   updated.Reference,
			"totalAmount": updated.TotalAmount.StringFixed(2),
			"currency":    updated.Currency,
		},
	})
	return &Result{Booking: updated}, nil
}

func (o *Orchestrator) recordFailure(ctx context.Context, booking *models.Booking, attemptErrors types.JSONMap, cause error) error {
	patch := types.JSONMap{"order_errors": map[string]any(attemptErrors)}
	if err := o.repo.MergeProviderData(ctx, booking.ID, patch); err != nil {
		o.logg.Error(ctx, "record order error trail", err)
	}
	if err := o.repo.UpdateStatus(ctx, booking.ID, enums.BookingStatusFailed); err != nil {
		o.logg.Error(ctx, "mark booking failed", err)
	}
	o.logg.Error(ctx, "supplier order creation failed", cause)

	if typed := pkgerrors.As(cause); typed != nil && !pkgerrors.MetadataFor(typed.Code()).Retryable {
		return cause
	}
	return pkgerrors.Wrap(pkgerrors.CodeRetryExhausted, cause, "supplier order creation failed after retries")
}

func orderPreconditions(booking *models.Booking) error {
	if booking.CancelledAt != nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "booking is cancelled")
	}
	if booking.PaymentStatus != enums.PaymentStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			"payment has not completed (payment status "+string(booking.PaymentStatus)+")")
	}
	switch booking.Status {
	case enums.BookingStatusPaymentPending, enums.BookingStatusConfirmed:
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			"booking status "+string(booking.Status)+" does not allow order creation")
	}
}

func attemptRecord(attempt int, err error) map[string]any {
	record := map[string]any{
		"attempt": attempt,
		"message": err.Error(),
	}
	if typed := pkgerrors.As(err); typed != nil {
		record["code"] = string(typed.Code())
		if details := typed.Details(); details != nil {
			record["details"] = details
		}
	}
	return record
}

func offerID(booking *models.Booking) string {
	if v, ok := booking.BookingData["offer_id"].(string); ok {
		return v
	}
	return ""
}

func contactEmail(booking *models.Booking) string {
	if v, ok := booking.PassengerInfo["email"].(string); ok {
		return v
	}
	if contact, ok := booking.PassengerInfo["contact"].(map[string]any); ok {
		if v, ok := contact["email"].(string); ok {
			return v
		}
	}
	return ""
}
