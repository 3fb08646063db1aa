package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nomadair/nomadair-backend/internal/bookings"
	"github.com/nomadair/nomadair-backend/pkg/db/models"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/logger"
	"github.com/nomadair/nomadair-backend/pkg/metrics"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

// Result values recorded per processed event.
const (
	ResultApplied   = "applied"
	ResultDuplicate = "duplicate"
	ResultUnmatched = "unmatched"
	ResultIgnored   = "ignored"
)

// offerFallbackWindow bounds the recent-booking scan when an event arrives
// before the synchronous path linked the supplier order id.
const offerFallbackWindow = 24 * time.Hour

// Event is one normalized supplier callback.
type Event struct {
	Provider          enums.Provider
	EventID           string
	Type              enums.WebhookEventType
	ProviderBookingID string
	OfferID           string
	Payload           types.JSONMap
	Raw               json.RawMessage
}

// DuplicateGuard is the redis-backed dedup check. It is a first line of
// defense only; every merge below stays idempotent because guard entries
// expire.
type DuplicateGuard interface {
	CheckAndMark(ctx context.Context, provider, eventID string) (bool, error)
	Delete(ctx context.Context, provider, eventID string) error
}

// Reconciler folds supplier events into bookings. Events for unknown bookings
// are logged and acknowledged, never thrown: delivery is at-least-once and a
// crash here only provokes redelivery of something we cannot match anyway.
type Reconciler struct {
	repo    bookings.Repository
	db      *gorm.DB
	guard   DuplicateGuard
	metrics *metrics.SupplierMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewReconciler(repo bookings.Repository, db *gorm.DB, guard DuplicateGuard, m *metrics.SupplierMetrics, logg *logger.Logger) *Reconciler {
	return &Reconciler{
		repo:    repo,
		db:      db,
		guard:   guard,
		metrics: m,
		logg:    logg,
		now:     time.Now,
	}
}

// Process applies one event. A non-nil error means infrastructure failed and
// the supplier should redeliver; business-level misses (unknown booking,
// unknown type, disallowed transition) are acknowledged.
func (r *Reconciler) Process(ctx context.Context, event Event) (string, error) {
	ctx = r.logg.WithProvider(ctx, string(event.Provider))
	ctx = r.logg.WithEventType(ctx, string(event.Type))

	if event.EventID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "webhook event id required")
	}

	duplicate, err := r.guard.CheckAndMark(ctx, string(event.Provider), event.EventID)
	if err != nil {
		// Redis being down must not drop events; the merges below are
		// idempotent anyway.
		r.logg.Error(ctx, "webhook duplicate guard unavailable", err)
	}
	if duplicate {
		r.logg.Info(ctx, "duplicate webhook delivery skipped")
		r.metrics.IncWebhookEvent(string(event.Provider), string(event.Type), ResultDuplicate)
		return ResultDuplicate, nil
	}

	result, booking, err := r.apply(ctx, event)
	if err != nil {
		// Release the mark so the redelivery is reprocessed.
		if delErr := r.guard.Delete(ctx, string(event.Provider), event.EventID); delErr != nil {
			r.logg.Error(ctx, "release webhook guard", delErr)
		}
		return "", err
	}

	r.recordEvent(ctx, event, booking, result)
	r.metrics.IncWebhookEvent(string(event.Provider), string(event.Type), result)
	return result, nil
}

func (r *Reconciler) apply(ctx context.Context, event Event) (string, *models.Booking, error) {
	if !event.Type.IsValid() {
		r.logg.Warn(ctx, "unknown webhook event type acknowledged")
		return ResultIgnored, nil, nil
	}

	booking, err := r.lookup(ctx, event)
	if err != nil {
		return "", nil, err
	}
	if booking == nil {
		r.logg.Warn(ctx, "webhook did not match any booking")
		return ResultUnmatched, nil, nil
	}
	ctx = r.logg.WithBookingID(ctx, booking.ID.String())

	switch event.Type {
	case enums.WebhookEventOrderCreated:
		err = r.applyOrderCreated(ctx, booking, event)
	case enums.WebhookEventOrderCreationFailed:
		err = r.applyOrderCreationFailed(ctx, booking, event)
	case enums.WebhookEventOrderUpdated, enums.WebhookEventOrderAirlineChange:
		err = r.mergeTrace(ctx, booking, event)
	case enums.WebhookEventCancellationCreated:
		err = r.mergeTrace(ctx, booking, event)
	case enums.WebhookEventCancellationConfirmed:
		err = r.applyCancellationConfirmed(ctx, booking, event)
	}
	if err != nil {
		return "", nil, err
	}
	return ResultApplied, booking, nil
}

func (r *Reconciler) lookup(ctx context.Context, event Event) (*models.Booking, error) {
	if event.ProviderBookingID != "" {
		booking, err := r.repo.FindByProviderBookingID(ctx, event.ProviderBookingID)
		if err == nil {
			return booking, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if event.OfferID != "" {
		since := r.now().UTC().Add(-offerFallbackWindow)
		booking, err := r.repo.FindRecentByOfferID(ctx, event.Provider, event.OfferID, since)
		if err == nil {
			return booking, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// applyOrderCreated links the supplier order and confirms the booking. Both
// writes are no-ops on duplicate delivery: the link is first-writer-wins and
// the transition is already satisfied.
func (r *Reconciler) applyOrderCreated(ctx context.Context, booking *models.Booking, event Event) error {
	if event.ProviderBookingID != "" {
		if err := r.repo.SetProviderBookingID(ctx, booking.ID, event.ProviderBookingID); err != nil {
			return err
		}
	}
	if err := r.mergeTrace(ctx, booking, event); err != nil {
		return err
	}
	return r.gatedTransition(ctx, booking, enums.BookingStatusConfirmed)
}

func (r *Reconciler) applyOrderCreationFailed(ctx context.Context, booking *models.Booking, event Event) error {
	if err := r.mergeTrace(ctx, booking, event); err != nil {
		return err
	}
	return r.gatedTransition(ctx, booking, enums.BookingStatusFailed)
}

func (r *Reconciler) applyCancellationConfirmed(ctx context.Context, booking *models.Booking, event Event) error {
	if err := r.mergeTrace(ctx, booking, event); err != nil {
		return err
	}

	route, amount := refundFromPayload(event.Payload)
	record := bookings.CancellationRecord{
		CancelledAt:       r.now().UTC(),
		CancelledBy:       enums.CancelledBySupplier,
		RefundRoute:       route,
		HasAirlineCredits: route == enums.RefundRouteAirlineCredits,
	}
	if route == enums.RefundRouteCash {
		record.RefundAmount = amount
		record.RefundStatus = enums.RefundStatusPending
	} else {
		record.RefundStatus = enums.RefundStatusNone
	}

	err := r.repo.MarkCancelled(ctx, booking.ID, record)
	if err != nil {
		// Already cancelled by the synchronous path or an earlier delivery.
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
			r.logg.Info(ctx, "cancellation already recorded, webhook acknowledged")
			return nil
		}
		return err
	}
	return nil
}

// mergeTrace appends the event payload into providerData keyed by event id,
// so replays and out-of-order arrivals each leave a distinct trace and a
// duplicate delivery overwrites only its own entry.
func (r *Reconciler) mergeTrace(ctx context.Context, booking *models.Booking, event Event) error {
	entry := map[string]any{
		"type":        string(event.Type),
		"received_at": r.now().UTC().Format(time.RFC3339),
	}
	if len(event.Payload) > 0 {
		entry["payload"] = map[string]any(event.Payload)
	}
	patch := types.JSONMap{
		"webhook_events": map[string]any{event.EventID: entry},
	}
	return r.repo.MergeProviderData(ctx, booking.ID, patch)
}

// gatedTransition applies a status change only when the machine allows it;
// disallowed transitions are logged and acknowledged, because a late event
// must not fight a fresher state.
func (r *Reconciler) gatedTransition(ctx context.Context, booking *models.Booking, to enums.BookingStatus) error {
	err := r.repo.UpdateStatus(ctx, booking.ID, to)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
			r.logg.Warn(ctx, "webhook transition to "+string(to)+" disallowed by current status, acknowledged")
			return nil
		}
		return err
	}
	return nil
}

func (r *Reconciler) recordEvent(ctx context.Context, event Event, booking *models.Booking, result string) {
	row := &models.SupplierWebhookEvent{
		ID:        uuid.New(),
		Provider:  event.Provider,
		EventID:   event.EventID,
		EventType: event.Type,
		Payload:   event.Raw,
		Result:    result,
	}
	if booking != nil {
		row.BookingID = &booking.ID
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		// A unique hit here means the guard TTL lapsed; the merges above were
		// idempotent, so the audit row simply stays as first recorded.
		r.logg.Warn(ctx, "record webhook event row: "+err.Error())
	}
}

func refundFromPayload(payload types.JSONMap) (enums.RefundRoute, *decimal.Decimal) {
	refundTo, _ := payload["refund_to"].(string)
	if refundTo == "airline_credits" || refundTo == "voucher" {
		return enums.RefundRouteAirlineCredits, nil
	}

	var amount decimal.Decimal
	switch v := payload["refund_amount"].(type) {
	case string:
		parsed, err := decimal.NewFromString(v)
		if err == nil {
			amount = parsed
		}
	case float64:
		amount = decimal.NewFromFloat(v)
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err == nil {
			amount = parsed
		}
	}
	if amount.IsPositive() {
		return enums.RefundRouteCash, &amount
	}
	return enums.RefundRouteNone, nil
}
