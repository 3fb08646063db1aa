package cancellations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nomadair/nomadair-backend/internal/bookings"
	"github.com/nomadair/nomadair-backend/internal/notifications"
	"github.com/nomadair/nomadair-backend/internal/orders"
	"github.com/nomadair/nomadair-backend/internal/suppliers"
	"github.com/nomadair/nomadair-backend/pkg/config"
	"github.com/nomadair/nomadair-backend/pkg/db/models"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/logger"
	"github.com/nomadair/nomadair-backend/pkg/retry"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

// CancelInput identifies the booking and who asked.
type CancelInput struct {
	BookingID   uuid.UUID
	RequestedBy enums.CancelledBy
}

// Result reports the cancellation and its refund classification. Exactly one
// of the three routes applies: cash (a manual payout is now owed), airline
// credits (voucher recorded, no money moves here), or none.
type Result struct {
	Booking           *models.Booking
	RefundRoute       enums.RefundRoute
	RefundAmount      *decimal.Decimal
	HasAirlineCredits bool
}

// Engine applies the cancellation eligibility rules and runs the two-phase
// supplier protocol. A supplier failure leaves the booking CONFIRMED; the
// customer is never told "cancelled" while the supplier still holds a live
// reservation.
type Engine struct {
	repo     bookings.Repository
	registry orders.SupplierRegistry
	notifier orders.Notifier
	cfg      config.CancellationConfig
	policy   retry.Policy
	logg     *logger.Logger
	now      func() time.Time
}

func NewEngine(repo bookings.Repository, registry orders.SupplierRegistry, notifier orders.Notifier, cfg config.CancellationConfig, retryCfg config.RetryConfig, logg *logger.Logger) *Engine {
	return &Engine{
		repo:     repo,
		registry: registry,
		notifier: notifier,
		cfg:      cfg,
		policy: retry.Policy{
			MaxAttempts: retryCfg.MaxAttempts,
			BaseDelay:   retryCfg.BaseDelay,
			MaxDelay:    retryCfg.MaxDelay,
		},
		logg: logg,
		now:  time.Now,
	}
}

// Cancel runs the full flow: eligibility, supplier quote, expiry check,
// confirmation, refund classification, bookkeeping, email.
func (e *Engine) Cancel(ctx context.Context, input CancelInput) (*Result, error) {
	ctx = e.logg.WithBookingID(ctx, input.BookingID.String())

	booking, err := e.repo.FindByID(ctx, input.BookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, err
	}
	ctx = e.logg.WithProvider(ctx, string(booking.Provider))

	if err := e.checkEligibility(ctx, booking); err != nil {
		return nil, err
	}

	supplier, err := e.registry.For(booking.Provider)
	if err != nil {
		return nil, err
	}

	confirmed, err := e.executeCancellation(ctx, supplier, booking)
	if err != nil {
		// The booking stays CONFIRMED so the flow can be retried.
		e.recordFailure(ctx, booking, err)
		return nil, err
	}

	return e.recordCancellation(ctx, booking, confirmed, input.RequestedBy)
}

func (e *Engine) checkEligibility(ctx context.Context, booking *models.Booking) error {
	if booking.Status == enums.BookingStatusCancelled || booking.CancelledAt != nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "booking is already cancelled")
	}
	if booking.ProviderBookingID == nil || booking.Status != enums.BookingStatusConfirmed {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			"only confirmed bookings with a supplier order can be cancelled (status "+string(booking.Status)+")")
	}

	if err := e.checkDepartureWindow(ctx, booking); err != nil {
		return err
	}

	switch refundability(booking) {
	case fareNonRefundable:
		return pkgerrors.New(pkgerrors.CodeBusinessRejection, "fare is non-refundable")
	case fareUnknown:
		if !e.cfg.FailOpenOnUnknownData() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"fare conditions unavailable and unknown-data policy is reject")
		}
		e.logg.Warn(ctx, "fare conditions unknown, proceeding with cancellation")
	}
	return nil
}

func (e *Engine) checkDepartureWindow(ctx context.Context, booking *models.Booking) error {
	departure := departureTime(booking)
	if departure == nil {
		if !e.cfg.FailOpenOnUnknownData() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"departure time unavailable and unknown-data policy is reject")
		}
		e.logg.Warn(ctx, "departure time not found in booking payloads, skipping window check")
		return nil
	}

	now := e.now().UTC()
	if !departure.After(now) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "departure time has already passed")
	}
	window := time.Duration(e.cfg.MinHoursBeforeDeparture) * time.Hour
	if remaining := departure.Sub(now); remaining < window {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cancellation requires at least %dh before departure, departure is in %.1fh",
				e.cfg.MinHoursBeforeDeparture, remaining.Hours()))
	}
	return nil
}

// executeCancellation runs the two-phase protocol: quote, inspect expiry,
// confirm. Both supplier calls share the bounded retry policy.
func (e *Engine) executeCancellation(ctx context.Context, supplier suppliers.Supplier, booking *models.Booking) (*suppliers.CancellationQuote, error) {
	var quote *suppliers.CancellationQuote
	err := retry.Do(ctx, e.policy, func(ctx context.Context) error {
		created, callErr := supplier.CreateCancellationQuote(ctx, *booking.ProviderBookingID)
		if callErr != nil {
			return callErr
		}
		quote = created
		return nil
	})
	if err != nil {
		return nil, wrapSupplierError(err, "cancellation quote failed")
	}

	if quote.ExpiresAt != nil && !quote.ExpiresAt.After(e.now().UTC()) {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRejection,
			"cancellation quote has expired, request a new cancellation")
	}

	if quote.Confirmed {
		return quote, nil
	}

	var confirmed *suppliers.CancellationQuote
	err = retry.Do(ctx, e.policy, func(ctx context.Context) error {
		result, callErr := supplier.ConfirmCancellation(ctx, quote.QuoteID)
		if callErr != nil {
			return callErr
		}
		confirmed = result
		return nil
	})
	if err != nil {
		return nil, wrapSupplierError(err, "cancellation confirmation failed")
	}
	return confirmed, nil
}

func (e *Engine) recordCancellation(ctx context.Context, booking *models.Booking, confirmed *suppliers.CancellationQuote, requestedBy enums.CancelledBy) (*Result, error) {
	route, amount := classifyRefund(confirmed)

	patch := types.JSONMap{
		"cancellation_response":     map[string]any(confirmed.RawResponse),
		"cancellation_confirmed_at": e.now().UTC().Format(time.RFC3339),
	}
	if err := e.repo.MergeProviderData(ctx, booking.ID, patch); err != nil {
		return nil, err
	}

	if requestedBy == "" {
		requestedBy = enums.CancelledByUser
	}
	record := bookings.CancellationRecord{
		CancelledAt:       e.now().UTC(),
		CancelledBy:       requestedBy,
		RefundRoute:       route,
		HasAirlineCredits: route == enums.RefundRouteAirlineCredits,
	}
	switch route {
	case enums.RefundRouteCash:
		record.RefundAmount = amount
		record.RefundStatus = enums.RefundStatusPending
	default:
		record.RefundStatus = enums.RefundStatusNone
	}
	if err := e.repo.MarkCancelled(ctx, booking.ID, record); err != nil {
		return nil, err
	}

	updated, err := e.repo.FindByID(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	e.logg.Info(e.logg.WithField(ctx, "refund_route", string(route)), "booking cancelled")

	e.notifier.Enqueue(ctx, notifications.Request{
		Kind:      enums.NotificationBookingCancellation,
		BookingID: updated.ID,
		Recipient: contactEmail(updated),
		Payload:   cancellationEmailPayload(updated, route, amount),
	})

	return &Result{
		Booking:           updated,
		RefundRoute:       route,
		RefundAmount:      record.RefundAmount,
		HasAirlineCredits: record.HasAirlineCredits,
	}, nil
}

func (e *Engine) recordFailure(ctx context.Context, booking *models.Booking, cause error) {
	trail := map[string]any{"message": cause.Error()}
	if typed := pkgerrors.As(cause); typed != nil {
		trail["code"] = string(typed.Code())
		if details := typed.Details(); details != nil {
			trail["details"] = details
		}
	}
	patch := types.JSONMap{
		"cancellation_errors": map[string]any{
			e.now().UTC().Format(time.RFC3339Nano): trail,
		},
	}
	if err := e.repo.MergeProviderData(ctx, booking.ID, patch); err != nil {
		e.logg.Error(ctx, "record cancellation error trail", err)
	}
	e.logg.Error(ctx, "supplier cancellation failed, booking left confirmed", cause)
}

// classifyRefund maps the supplier's confirmed quote onto the three refund
// routes.
func classifyRefund(confirmed *suppliers.CancellationQuote) (enums.RefundRoute, *decimal.Decimal) {
	if confirmed.AirlineCredits {
		return enums.RefundRouteAirlineCredits, nil
	}
	if confirmed.RefundAmount.IsPositive() {
		amount := confirmed.RefundAmount
		return enums.RefundRouteCash, &amount
	}
	return enums.RefundRouteNone, nil
}

// CompleteRefund marks an owed cash refund as paid out after the manual
// processor action.
func (e *Engine) CompleteRefund(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	ctx = e.logg.WithBookingID(ctx, bookingID.String())
	if err := e.repo.CompleteRefund(ctx, bookingID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, err
	}
	e.logg.Info(ctx, "refund marked completed")
	return e.repo.FindByID(ctx, bookingID)
}

func wrapSupplierError(err error, message string) error {
	if typed := pkgerrors.As(err); typed != nil && !pkgerrors.MetadataFor(typed.Code()).Retryable {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeRetryExhausted, err, message)
}

func cancellationEmailPayload(booking *models.Booking, route enums.RefundRoute, amount *decimal.Decimal) types.JSONMap {
	payload := types.JSONMap{
		"reference":   booking.Reference,
		"refundRoute": string(route),
	}
	if amount != nil {
		payload["refundAmount"] = amount.StringFixed(2)
		payload["currency"] = booking.Currency
	}
	return payload
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
