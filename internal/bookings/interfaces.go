package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nomadair/nomadair-backend/pkg/db/models"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	"github.com/nomadair/nomadair-backend/pkg/pagination"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

// ListFilters narrows booking listings.
type ListFilters struct {
	UserID      *uuid.UUID
	Status      *enums.BookingStatus
	ProductType *enums.ProductType
}

// BookingList wraps one page of bookings plus the cursor for the next page.
type BookingList struct {
	Items  []models.Booking `json:"items"`
	Cursor string           `json:"cursor"`
}

// CancellationRecord carries the first-writer-wins cancellation bookkeeping.
type CancellationRecord struct {
	CancelledAt       time.Time
	CancelledBy       enums.CancelledBy
	RefundAmount      *decimal.Decimal
	RefundStatus      enums.RefundStatus
	RefundRoute       enums.RefundRoute
	HasAirlineCredits bool
}

// Repository defines persistence operations for the booking aggregate. It is
// the single serialization point for concurrent paths; every mutation
// re-reads current state under the enclosing transaction before acting.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.Booking) (*models.Booking, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindByReference(ctx context.Context, reference string) (*models.Booking, error)
	FindByProviderBookingID(ctx context.Context, providerBookingID string) (*models.Booking, error)
	FindRecentByOfferID(ctx context.Context, provider enums.Provider, offerID string, since time.Time) (*models.Booking, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*BookingList, error)
	FindStalePaymentPending(ctx context.Context, cutoff time.Time) ([]models.Booking, error)

	// UpdateStatus validates the transition against the status machine before
	// writing; a write that skips validation is a defect.
	UpdateStatus(ctx context.Context, id uuid.UUID, to enums.BookingStatus) error
	UpdatePaymentState(ctx context.Context, id uuid.UUID, payment enums.PaymentStatus, paymentReference *string) error

	// SetProviderBookingID is first-writer-wins; a second write with a
	// different id returns the stored one untouched.
	SetProviderBookingID(ctx context.Context, id uuid.UUID, providerBookingID string) error

	// MergeProviderData folds the patch into provider_data under a row lock;
	// existing keys are never dropped.
	MergeProviderData(ctx context.Context, id uuid.UUID, patch types.JSONMap) error

	// MarkCancelled records cancellation bookkeeping exactly once.
	MarkCancelled(ctx context.Context, id uuid.UUID, record CancellationRecord) error
	CompleteRefund(ctx context.Context, id uuid.UUID) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}
