package bookings

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nomadair/nomadair-backend/pkg/db/models"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/pagination"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

const bookingsSchema = `
CREATE TABLE bookings (
	id TEXT PRIMARY KEY,
	reference TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	product_type TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	provider TEXT NOT NULL,
	provider_booking_id TEXT UNIQUE,
	provider_data TEXT,
	base_price NUMERIC NOT NULL DEFAULT 0,
	markup_amount NUMERIC NOT NULL DEFAULT 0,
	service_fee NUMERIC NOT NULL DEFAULT 0,
	conversion_fee NUMERIC NOT NULL DEFAULT 0,
	total_amount NUMERIC NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT 'USD',
	booking_data TEXT,
	passenger_info TEXT,
	payment_status TEXT NOT NULL DEFAULT 'pending',
	payment_reference TEXT,
	cancelled_at DATETIME,
	cancelled_by TEXT,
	refund_amount NUMERIC,
	refund_status TEXT NOT NULL DEFAULT 'none',
	refund_route TEXT,
	has_airline_credits INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME,
	updated_at DATETIME,
	deleted_at DATETIME
);
`

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.Exec(bookingsSchema).Error)
	return conn
}

func seedBooking(t *testing.T, repo Repository, mutate func(*models.Booking)) *models.Booking {
	t.Helper()

	booking := &models.Booking{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		ProductType: enums.ProductTypeFlightInternational,
		Status:      enums.BookingStatusPending,
		Provider:    enums.ProviderDuffel,
		BasePrice:   decimal.RequireFromString("79.00"),
		TotalAmount: decimal.RequireFromString("92.77"),
		Currency:    "GBP",
	}
	if mutate != nil {
		mutate(booking)
	}
	created, err := repo.Create(context.Background(), booking)
	require.NoError(t, err)
	return created
}

func TestRepositoryCreateGeneratesReference(t *testing.T) {
	repo := NewRepository(newTestDB(t))

	booking := seedBooking(t, repo, nil)
	require.True(t, strings.HasPrefix(booking.Reference, "NMD-"))

	found, err := repo.FindByReference(context.Background(), booking.Reference)
	require.NoError(t, err)
	require.Equal(t, booking.ID, found.ID)
}

func TestRepositoryCreateRetriesOnReferenceCollision(t *testing.T) {
	repo := NewRepository(newTestDB(t))

	first := seedBooking(t, repo, func(b *models.Booking) { b.Reference = "NMD-COLLIDE" })
	second := seedBooking(t, repo, func(b *models.Booking) { b.Reference = first.Reference })

	require.NotEqual(t, first.Reference, second.Reference)
	require.True(t, strings.HasPrefix(second.Reference, "NMD-"))
}

func TestRepositoryUpdateStatus(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	booking := seedBooking(t, repo, nil)
	require.NoError(t, repo.UpdateStatus(ctx, booking.ID, enums.BookingStatusPaymentPending))

	found, err := repo.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	require.Equal(t, enums.BookingStatusPaymentPending, found.Status)

	// Repeating the current status is a no-op, not a conflict.
	require.NoError(t, repo.UpdateStatus(ctx, booking.ID, enums.BookingStatusPaymentPending))

	err = repo.UpdateStatus(ctx, booking.ID, enums.BookingStatusRefunded)
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
}

func TestRepositoryUpdatePaymentState(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	booking := seedBooking(t, repo, func(b *models.Booking) {
		b.Status = enums.BookingStatusPaymentPending
	})

	ref := "pay_123"
	require.NoError(t, repo.UpdatePaymentState(ctx, booking.ID, enums.PaymentStatusCompleted, &ref))

	found, err := repo.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	// Payment settled, but no supplier order is linked yet: the booking
	// holds PAYMENT_PENDING until the order exists.
	require.Equal(t, enums.BookingStatusPaymentPending, found.Status)
	require.Equal(t, enums.PaymentStatusCompleted, found.PaymentStatus)
	require.NotNil(t, found.PaymentReference)
	require.Equal(t, ref, *found.PaymentReference)
}

func TestRepositoryUpdatePaymentStateConfirmsLinkedBooking(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	booking := seedBooking(t, repo, func(b *models.Booking) {
		b.Status = enums.BookingStatusPaymentPending
	})
	require.NoError(t, repo.SetProviderBookingID(ctx, booking.ID, "ord_linked"))

	require.NoError(t, repo.UpdatePaymentState(ctx, booking.ID, enums.PaymentStatusCompleted, nil))

	found, err := repo.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	require.Equal(t, enums.BookingStatusConfirmed, found.Status)
}

func TestRepositoryPaidBookingCanStillFail(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	booking := seedBooking(t, repo, func(b *models.Booking) {
		b.Status = enums.BookingStatusPaymentPending
	})
	require.NoError(t, repo.UpdatePaymentState(ctx, booking.ID, enums.PaymentStatusCompleted, nil))

	// Order placement exhausted its retries: FAILED must still be
	// reachable, never a confirmed booking without a supplier order.
	require.NoError(t, repo.UpdateStatus(ctx, booking.ID, enums.BookingStatusFailed))

	found, err := repo.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	require.Equal(t, enums.BookingStatusFailed, found.Status)
	require.Nil(t, found.ProviderBookingID)
}

func TestRepositoryUpdatePaymentStateRejectsConflictingStatus(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	booking := seedBooking(t, repo, func(b *models.Booking) {
		b.Status = enums.BookingStatusRefunded
	})

	err := repo.UpdatePaymentState(ctx, booking.ID, enums.PaymentStatusCompleted, nil)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
}

func TestRepositorySetProviderBookingIDFirstWriterWins(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	booking := seedBooking(t, repo, nil)
	require.NoError(t, repo.SetProviderBookingID(ctx, booking.ID, "ord_abc"))

	// Second writer loses silently.
	require.NoError(t, repo.SetProviderBookingID(ctx, booking.ID, "ord_xyz"))

	found, err := repo.FindByProviderBookingID(ctx, "ord_abc")
	require.NoError(t, err)
	require.Equal(t, booking.ID, found.ID)

	_, err = repo.FindByProviderBookingID(ctx, "ord_xyz")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryMergeProviderDataIsAdditive(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	booking := seedBooking(t, repo, func(b *models.Booking) {
		b.ProviderData = types.JSONMap{"order_response": map[string]any{"id": "ord_1"}}
	})

	require.NoError(t, repo.MergeProviderData(ctx, booking.ID, types.JSONMap{
		"webhook_events": []any{"order.created"},
	}))
	require.NoError(t, repo.MergeProviderData(ctx, booking.ID, types.JSONMap{
		"order_response": map[string]any{"status": "confirmed"},
	}))

	found, err := repo.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	require.Contains(t, found.ProviderData, "webhook_events")

	order, ok := found.ProviderData["order_response"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "ord_1", order["id"])
	require.Equal(t, "confirmed", order["status"])
}

func TestRepositoryMarkCancelledOnce(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	booking := seedBooking(t, repo, func(b *models.Booking) {
		b.Status = enums.BookingStatusConfirmed
	})

	amount := decimal.RequireFromString("92.77")
	record := CancellationRecord{
		CancelledAt:  time.Now().UTC(),
		CancelledBy:  enums.CancelledByUser,
		RefundAmount: &amount,
		RefundStatus: enums.RefundStatusPending,
		RefundRoute:  enums.RefundRouteCash,
	}
	require.NoError(t, repo.MarkCancelled(ctx, booking.ID, record))

	found, err := repo.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	require.Equal(t, enums.BookingStatusCancelled, found.Status)
	require.NotNil(t, found.CancelledAt)
	require.Equal(t, enums.RefundStatusPending, found.RefundStatus)
	require.NotNil(t, found.RefundAmount)
	require.True(t, found.RefundAmount.Equal(amount))

	err = repo.MarkCancelled(ctx, booking.ID, record)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
}

func TestRepositoryCompleteRefund(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	booking := seedBooking(t, repo, func(b *models.Booking) {
		b.Status = enums.BookingStatusCancelled
		b.RefundStatus = enums.RefundStatusPending
	})

	require.NoError(t, repo.CompleteRefund(ctx, booking.ID))

	found, err := repo.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	require.Equal(t, enums.RefundStatusCompleted, found.RefundStatus)
	require.Equal(t, enums.BookingStatusRefunded, found.Status)

	err = repo.CompleteRefund(ctx, booking.ID)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
}

func TestRepositoryFindRecentByOfferID(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	linkedID := "ord_linked"
	seedBooking(t, repo, func(b *models.Booking) {
		b.BookingData = types.JSONMap{"offer_id": "off_linked"}
		b.ProviderBookingID = &linkedID
	})
	target := seedBooking(t, repo, func(b *models.Booking) {
		b.BookingData = types.JSONMap{"offer_id": "off_target"}
	})

	found, err := repo.FindRecentByOfferID(ctx, enums.ProviderDuffel, "off_target", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, target.ID, found.ID)

	// Already-linked bookings are not candidates.
	_, err = repo.FindRecentByOfferID(ctx, enums.ProviderDuffel, "off_linked", time.Now().Add(-time.Hour))
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.FindRecentByOfferID(ctx, enums.ProviderDuffel, "", time.Now().Add(-time.Hour))
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryListPaginates(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	userID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		seedBooking(t, repo, func(b *models.Booking) {
			b.UserID = userID
			b.CreatedAt = ts
			b.UpdatedAt = ts
		})
	}

	page1, err := repo.List(ctx, pagination.Params{Limit: 2}, ListFilters{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, page1.Items, 2)
	require.NotEmpty(t, page1.Cursor)

	page2, err := repo.List(ctx, pagination.Params{Limit: 2, Cursor: page1.Cursor}, ListFilters{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, page2.Items, 2)

	seen := map[uuid.UUID]bool{}
	for _, b := range append(page1.Items, page2.Items...) {
		require.False(t, seen[b.ID], "booking %s returned twice", b.ID)
		seen[b.ID] = true
	}

	page3, err := repo.List(ctx, pagination.Params{Limit: 2, Cursor: page2.Cursor}, ListFilters{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, page3.Items, 1)
	require.Empty(t, page3.Cursor)
}

func TestRepositoryFindStalePaymentPending(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	stale := seedBooking(t, repo, func(b *models.Booking) {
		b.Status = enums.BookingStatusPaymentPending
		b.CreatedAt = old
		b.UpdatedAt = old
	})
	seedBooking(t, repo, func(b *models.Booking) {
		b.Status = enums.BookingStatusPaymentPending
	})
	seedBooking(t, repo, func(b *models.Booking) {
		b.Status = enums.BookingStatusConfirmed
		b.CreatedAt = old
		b.UpdatedAt = old
	})

	rows, err := repo.FindStalePaymentPending(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, stale.ID, rows[0].ID)
}

func TestRepositorySoftDelete(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	booking := seedBooking(t, repo, nil)
	require.NoError(t, repo.SoftDelete(ctx, booking.ID))

	_, err := repo.FindByID(ctx, booking.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.ErrorIs(t, repo.SoftDelete(ctx, booking.ID), gorm.ErrRecordNotFound)
}
