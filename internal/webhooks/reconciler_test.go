package webhooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nomadair/nomadair-backend/internal/bookings"
	"github.com/nomadair/nomadair-backend/pkg/db/models"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/logger"
	"github.com/nomadair/nomadair-backend/pkg/metrics"
	"github.com/nomadair/nomadair-backend/pkg/pagination"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

const webhookEventSchema = `
CREATE TABLE supplier_webhook_events (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	event_id TEXT NOT NULL UNIQUE,
	event_type TEXT NOT NULL,
	payload TEXT,
	booking_id TEXT,
	result TEXT NOT NULL,
	created_at DATETIME
);
`

type stubRepo struct {
	booking *models.Booking

	linked    []string
	merged    []types.JSONMap
	statuses  []enums.BookingStatus
	marked    []bookings.CancellationRecord
	statusErr error
	markErr   error
	cancelled bool
	findErr   error
}

func (s *stubRepo) WithTx(*gorm.DB) bookings.Repository { return s }

func (s *stubRepo) Create(context.Context, *models.Booking) (*models.Booking, error) {
	return nil, nil
}

func (s *stubRepo) FindByID(context.Context, uuid.UUID) (*models.Booking, error) {
	return s.booking, nil
}

func (s *stubRepo) FindByReference(context.Context, string) (*models.Booking, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) FindByProviderBookingID(_ context.Context, providerBookingID string) (*models.Booking, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.booking != nil && s.booking.ProviderBookingID != nil && *s.booking.ProviderBookingID == providerBookingID {
		return s.booking, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) FindRecentByOfferID(_ context.Context, _ enums.Provider, offerID string, _ time.Time) (*models.Booking, error) {
	if s.booking != nil && s.booking.BookingData["offer_id"] == offerID {
		return s.booking, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) List(context.Context, pagination.Params, bookings.ListFilters) (*bookings.BookingList, error) {
	return nil, nil
}

func (s *stubRepo) FindStalePaymentPending(context.Context, time.Time) ([]models.Booking, error) {
	return nil, nil
}

func (s *stubRepo) UpdateStatus(_ context.Context, _ uuid.UUID, to enums.BookingStatus) error {
	if s.statusErr != nil {
		return s.statusErr
	}
	s.statuses = append(s.statuses, to)
	return nil
}

func (s *stubRepo) UpdatePaymentState(context.Context, uuid.UUID, enums.PaymentStatus, *string) error {
	return nil
}

func (s *stubRepo) SetProviderBookingID(_ context.Context, _ uuid.UUID, providerBookingID string) error {
	s.linked = append(s.linked, providerBookingID)
	if s.booking.ProviderBookingID == nil {
		s.booking.ProviderBookingID = &providerBookingID
	}
	return nil
}

func (s *stubRepo) MergeProviderData(_ context.Context, _ uuid.UUID, patch types.JSONMap) error {
	s.merged = append(s.merged, patch)
	return nil
}

func (s *stubRepo) MarkCancelled(_ context.Context, _ uuid.UUID, record bookings.CancellationRecord) error {
	if s.markErr != nil {
		return s.markErr
	}
	if s.cancelled {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "booking already cancelled")
	}
	s.cancelled = true
	s.marked = append(s.marked, record)
	return nil
}

func (s *stubRepo) CompleteRefund(context.Context, uuid.UUID) error { return nil }

func (s *stubRepo) SoftDelete(context.Context, uuid.UUID) error { return nil }

type stubGuard struct {
	seen    map[string]bool
	deleted []string
	err     error
}

func (s *stubGuard) CheckAndMark(_ context.Context, provider, eventID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	key := provider + ":" + eventID
	if s.seen[key] {
		return true, nil
	}
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	s.seen[key] = true
	return false, nil
}

func (s *stubGuard) Delete(_ context.Context, provider, eventID string) error {
	key := provider + ":" + eventID
	s.deleted = append(s.deleted, key)
	delete(s.seen, key)
	return nil
}

func newEventsDB(t *testing.T) *gorm.DB {
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

	require.NoError(t, conn.Exec(webhookEventSchema).Error)
	return conn
}

func newReconciler(t *testing.T, repo *stubRepo, guard *stubGuard) *Reconciler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard})
	return NewReconciler(repo, newEventsDB(t), guard, metrics.NewSupplierMetrics(prometheus.NewRegistry()), logg)
}

func pendingBooking() *models.Booking {
	return &models.Booking{
		ID:          uuid.New(),
		Reference:   "NMD-TEST1234",
		Status:      enums.BookingStatusPaymentPending,
		Provider:    enums.ProviderDuffel,
		BookingData: types.JSONMap{"offer_id": "off_123"},
	}
}

func orderCreatedEvent(eventID string) Event {
	return Event{
		Provider:          enums.ProviderDuffel,
		EventID:           eventID,
		Type:              enums.WebhookEventOrderCreated,
		ProviderBookingID: "ord_999",
		OfferID:           "off_123",
		Payload:           types.JSONMap{"id": "ord_999", "status": "confirmed"},
	}
}

func TestProcessOrderCreatedLinksAndConfirms(t *testing.T) {
	repo := &stubRepo{booking: pendingBooking()}
	reconciler := newReconciler(t, repo, &stubGuard{})

	result, err := reconciler.Process(context.Background(), orderCreatedEvent("evt_1"))
	require.NoError(t, err)
	require.Equal(t, ResultApplied, result)

	require.Equal(t, []string{"ord_999"}, repo.linked)
	require.Equal(t, []enums.BookingStatus{enums.BookingStatusConfirmed}, repo.statuses)
	require.Len(t, repo.merged, 1)

	trace, ok := repo.merged[0]["webhook_events"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, trace, "evt_1")
}

func TestProcessFallsBackToOfferID(t *testing.T) {
	// The event races the synchronous path: booking not yet linked.
	booking := pendingBooking()
	repo := &stubRepo{booking: booking}
	reconciler := newReconciler(t, repo, &stubGuard{})

	event := orderCreatedEvent("evt_2")
	result, err := reconciler.Process(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, ResultApplied, result)
	require.Equal(t, []string{"ord_999"}, repo.linked)
}

func TestProcessDuplicateDeliveryIsIdempotent(t *testing.T) {
	repo := &stubRepo{booking: pendingBooking()}
	guard := &stubGuard{}
	reconciler := newReconciler(t, repo, guard)

	first, err := reconciler.Process(context.Background(), orderCreatedEvent("evt_3"))
	require.NoError(t, err)
	require.Equal(t, ResultApplied, first)

	second, err := reconciler.Process(context.Background(), orderCreatedEvent("evt_3"))
	require.NoError(t, err)
	require.Equal(t, ResultDuplicate, second)

	// Only the first delivery touched the repository.
	require.Len(t, repo.linked, 1)
	require.Len(t, repo.statuses, 1)
}

func TestProcessDuplicateAfterGuardLapse(t *testing.T) {
	// Guard entries expire; replaying the same event must still be safe.
	repo := &stubRepo{booking: pendingBooking()}
	reconciler := newReconciler(t, repo, &stubGuard{})

	event := orderCreatedEvent("evt_4")
	_, err := reconciler.Process(context.Background(), event)
	require.NoError(t, err)

	reconciler.guard = &stubGuard{} // fresh guard, as if the TTL lapsed
	result, err := reconciler.Process(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, ResultApplied, result)

	// Link is first-writer-wins and the trace key is the event id, so state
	// is identical to a single delivery.
	require.Equal(t, []string{"ord_999", "ord_999"}, repo.linked)
	require.Equal(t, "ord_999", *repo.booking.ProviderBookingID)
}

func TestProcessCancellationConfirmed(t *testing.T) {
	orderID := "ord_999"
	booking := pendingBooking()
	booking.Status = enums.BookingStatusConfirmed
	booking.ProviderBookingID = &orderID
	repo := &stubRepo{booking: booking}
	reconciler := newReconciler(t, repo, &stubGuard{})

	event := Event{
		Provider:          enums.ProviderDuffel,
		EventID:           "evt_5",
		Type:              enums.WebhookEventCancellationConfirmed,
		ProviderBookingID: orderID,
		Payload: types.JSONMap{
			"refund_amount": "80.00",
			"refund_to":     "original_form_of_payment",
		},
	}

	result, err := reconciler.Process(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, ResultApplied, result)

	require.Len(t, repo.marked, 1)
	record := repo.marked[0]
	require.Equal(t, enums.CancelledBySupplier, record.CancelledBy)
	require.Equal(t, enums.RefundRouteCash, record.RefundRoute)
	require.Equal(t, enums.RefundStatusPending, record.RefundStatus)
	require.Equal(t, "80.00", record.RefundAmount.StringFixed(2))

	// Second delivery after guard lapse: already cancelled, still acked.
	reconciler.guard = &stubGuard{}
	result, err = reconciler.Process(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, ResultApplied, result)
	require.Len(t, repo.marked, 1)
}

func TestProcessCancellationConfirmedAirlineCredits(t *testing.T) {
	orderID := "ord_999"
	booking := pendingBooking()
	booking.Status = enums.BookingStatusConfirmed
	booking.ProviderBookingID = &orderID
	repo := &stubRepo{booking: booking}
	reconciler := newReconciler(t, repo, &stubGuard{})

	_, err := reconciler.Process(context.Background(), Event{
		Provider:          enums.ProviderDuffel,
		EventID:           "evt_6",
		Type:              enums.WebhookEventCancellationConfirmed,
		ProviderBookingID: orderID,
		Payload:           types.JSONMap{"refund_to": "airline_credits"},
	})
	require.NoError(t, err)

	record := repo.marked[0]
	require.Equal(t, enums.RefundRouteAirlineCredits, record.RefundRoute)
	require.True(t, record.HasAirlineCredits)
	require.Nil(t, record.RefundAmount)
	require.Equal(t, enums.RefundStatusNone, record.RefundStatus)
}

func TestProcessUnmatchedEventIsAcked(t *testing.T) {
	repo := &stubRepo{} // no booking at all
	reconciler := newReconciler(t, repo, &stubGuard{})

	result, err := reconciler.Process(context.Background(), orderCreatedEvent("evt_7"))
	require.NoError(t, err, "unknown bookings must never fail the handler")
	require.Equal(t, ResultUnmatched, result)
	require.Empty(t, repo.merged)
}

func TestProcessUnknownTypeIsAcked(t *testing.T) {
	repo := &stubRepo{booking: pendingBooking()}
	reconciler := newReconciler(t, repo, &stubGuard{})

	result, err := reconciler.Process(context.Background(), Event{
		Provider: enums.ProviderDuffel,
		EventID:  "evt_8",
		Type:     enums.WebhookEventType("order.telepathy"),
	})
	require.NoError(t, err)
	require.Equal(t, ResultIgnored, result)
	require.Empty(t, repo.merged)
}

func TestProcessInfrastructureFailureReleasesGuard(t *testing.T) {
	repo := &stubRepo{booking: pendingBooking(), findErr: errors.New("db down")}
	guard := &stubGuard{}
	reconciler := newReconciler(t, repo, guard)

	_, err := reconciler.Process(context.Background(), orderCreatedEvent("evt_9"))
	require.Error(t, err)
	require.Len(t, guard.deleted, 1, "guard mark must be released so the redelivery is reprocessed")
}

func TestProcessDisallowedTransitionIsAcked(t *testing.T) {
	repo := &stubRepo{
		booking:   pendingBooking(),
		statusErr: pkgerrors.New(pkgerrors.CodeStateConflict, "transition disallowed"),
	}
	reconciler := newReconciler(t, repo, &stubGuard{})

	result, err := reconciler.Process(context.Background(), orderCreatedEvent("evt_10"))
	require.NoError(t, err)
	require.Equal(t, ResultApplied, result)
}
