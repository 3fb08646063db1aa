package bookings

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/nomadair/nomadair-backend/pkg/db"
	"github.com/nomadair/nomadair-backend/pkg/db/models"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/pagination"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

const (
	referenceCreateAttempts = 5
	offerFallbackScanLimit  = 50
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a bookings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	for attempt := 0; attempt < referenceCreateAttempts; attempt++ {
		if booking.Reference == "" || attempt > 0 {
			reference, err := NewReference()
			if err != nil {
				return nil, err
			}
			booking.Reference = reference
		}
		err := r.db.WithContext(ctx).Create(booking).Error
		if err == nil {
			return booking, nil
		}
		if dbpkg.IsUniqueViolation(err, "") && strings.Contains(err.Error(), "reference") {
			continue
		}
		return nil, err
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "exhausted booking reference attempts")
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) FindByProviderBookingID(ctx context.Context, providerBookingID string) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).Where("provider_booking_id = ?", providerBookingID).First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindRecentByOfferID scans recent unlinked bookings for an embedded offer
// identifier. The scan is bounded; it exists only as the webhook fallback when
// an event races the synchronous order-creation path.
func (r *repository) FindRecentByOfferID(ctx context.Context, provider enums.Provider, offerID string, since time.Time) (*models.Booking, error) {
	if offerID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var candidates []models.Booking
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_booking_id IS NULL AND created_at >= ?", provider, since).
		Order("created_at DESC").
		Limit(offerFallbackScanLimit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if bookingOfferID(&candidates[i]) == offerID {
			return &candidates[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func bookingOfferID(booking *models.Booking) string {
	if v, ok := booking.BookingData["offer_id"].(string); ok && v != "" {
		return v
	}
	if snapshot, ok := booking.ProviderData["offer_snapshot"].(map[string]any); ok {
		if v, ok := snapshot["id"].(string); ok {
			return v
		}
	}
	return ""
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters ListFilters) (*BookingList, error) {
	query := r.db.WithContext(ctx).Model(&models.Booking{})
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.ProductType != nil {
		query = query.Where("product_type = ?", *filters.ProductType)
	}

	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		if cursor != nil {
			query = query.Where(
				"(created_at < ?) OR (created_at = ? AND id < ?)",
				cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
			)
		}
	}

	limit := pagination.LimitWithBuffer(params.Limit)
	var rows []models.Booking
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	pageSize := pagination.NormalizeLimit(params.Limit)
	cursor := ""
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		last := rows[len(rows)-1]
		cursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &BookingList{Items: rows, Cursor: cursor}, nil
}

func (r *repository) FindStalePaymentPending(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	var rows []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.BookingStatusPaymentPending, cutoff).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, to enums.BookingStatus) error {
	return r.transaction(ctx, func(tx *gorm.DB) error {
		booking, err := lockedBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if booking.Status == to {
			return nil
		}
		if !CanTransition(booking.Status, to) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"booking cannot move from "+string(booking.Status)+" to "+string(to))
		}
		return tx.WithContext(ctx).Model(&models.Booking{}).
			Where("id = ?", id).
			Update("status", to).Error
	})
}

func (r *repository) UpdatePaymentState(ctx context.Context, id uuid.UUID, payment enums.PaymentStatus, paymentReference *string) error {
	return r.transaction(ctx, func(tx *gorm.DB) error {
		booking, err := lockedBooking(ctx, tx, id)
		if err != nil {
			return err
		}

		updates := map[string]any{"payment_status": payment}
		if paymentReference != nil {
			updates["payment_reference"] = *paymentReference
		}

		derived, err := StatusFromPaymentState(payment)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "map payment state")
		}
		// A completed payment alone does not confirm the booking; CONFIRMED
		// is earned by the supplier order. Until one is linked the booking
		// holds PAYMENT_PENDING so a placement failure can still mark it
		// FAILED.
		if derived == enums.BookingStatusConfirmed && booking.ProviderBookingID == nil {
			derived = enums.BookingStatusPaymentPending
		}
		if booking.Status != derived {
			if !CanTransition(booking.Status, derived) {
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					"payment state "+string(payment)+" conflicts with booking status "+string(booking.Status))
			}
			updates["status"] = derived
		}

		return tx.WithContext(ctx).Model(&models.Booking{}).
			Where("id = ?", id).
			Updates(updates).Error
	})
}

func (r *repository) SetProviderBookingID(ctx context.Context, id uuid.UUID, providerBookingID string) error {
	if providerBookingID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider booking id required")
	}
	return r.transaction(ctx, func(tx *gorm.DB) error {
		booking, err := lockedBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		// First writer wins; a concurrent path that already linked the
		// supplier order makes this a no-op.
		if booking.ProviderBookingID != nil {
			return nil
		}
		return tx.WithContext(ctx).Model(&models.Booking{}).
			Where("id = ? AND provider_booking_id IS NULL", id).
			Update("provider_booking_id", providerBookingID).Error
	})
}

func (r *repository) MergeProviderData(ctx context.Context, id uuid.UUID, patch types.JSONMap) error {
	if len(patch) == 0 {
		return nil
	}
	return r.transaction(ctx, func(tx *gorm.DB) error {
		booking, err := lockedBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		merged := booking.ProviderData.Merge(patch)
		return tx.WithContext(ctx).Model(&models.Booking{}).
			Where("id = ?", id).
			Update("provider_data", &merged).Error
	})
}

func (r *repository) MarkCancelled(ctx context.Context, id uuid.UUID, record CancellationRecord) error {
	return r.transaction(ctx, func(tx *gorm.DB) error {
		booking, err := lockedBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if booking.CancelledAt != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking already cancelled")
		}
		if !CanTransition(booking.Status, enums.BookingStatusCancelled) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"booking cannot be cancelled from status "+string(booking.Status))
		}

		updates := map[string]any{
			"status":              enums.BookingStatusCancelled,
			"cancelled_at":        record.CancelledAt,
			"cancelled_by":        record.CancelledBy,
			"refund_status":       record.RefundStatus,
			"refund_route":        record.RefundRoute,
			"has_airline_credits": record.HasAirlineCredits,
		}
		if record.RefundAmount != nil {
			updates["refund_amount"] = *record.RefundAmount
		}

		result := tx.WithContext(ctx).Model(&models.Booking{}).
			Where("id = ? AND cancelled_at IS NULL", id).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking already cancelled")
		}
		return nil
	})
}

func (r *repository) CompleteRefund(ctx context.Context, id uuid.UUID) error {
	return r.transaction(ctx, func(tx *gorm.DB) error {
		booking, err := lockedBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if booking.RefundStatus != enums.RefundStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"no pending refund on booking (refund status "+string(booking.RefundStatus)+")")
		}

		updates := map[string]any{"refund_status": enums.RefundStatusCompleted}
		if CanTransition(booking.Status, enums.BookingStatusRefunded) {
			updates["status"] = enums.BookingStatusRefunded
		}

		return tx.WithContext(ctx).Model(&models.Booking{}).
			Where("id = ?", id).
			Updates(updates).Error
	})
}

func (r *repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Booking{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// transaction reuses the bound connection when it already is a transaction.
func (r *repository) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// lockedBooking loads the row for update so concurrent merges serialize.
// SQLite (local runs, tests) serializes writers on its own and rejects the
// locking clause.
func lockedBooking(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Booking, error) {
	query := tx.WithContext(ctx)
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var booking models.Booking
	if err := query.Where("id = ?", id).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}
