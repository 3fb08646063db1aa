package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nomadair/nomadair-backend/pkg/db/models"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	"github.com/nomadair/nomadair-backend/pkg/logger"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

const notificationSchema = `
CREATE TABLE notification_logs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	booking_id TEXT NOT NULL,
	recipient TEXT NOT NULL,
	payload TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	error TEXT,
	sent_at DATETIME,
	created_at DATETIME
);
`

type stubMailer struct {
	send func(ctx context.Context, request Request) error
}

func (s *stubMailer) Send(ctx context.Context, request Request) error {
	return s.send(ctx, request)
}

func newNotificationsTestDB(t *testing.T) *gorm.DB {
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

	require.NoError(t, conn.Exec(notificationSchema).Error)
	return conn
}

func newTestService(t *testing.T, db *gorm.DB, mailer Mailer) *Service {
	t.Helper()
	svc := NewService(db, mailer, logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard}))
	svc.dispatch = func(fn func()) { fn() }
	return svc
}

func TestEnqueueDeliversAndMarksSent(t *testing.T) {
	db := newNotificationsTestDB(t)
	var delivered []Request
	svc := newTestService(t, db, &stubMailer{
		send: func(_ context.Context, request Request) error {
			delivered = append(delivered, request)
			return nil
		},
	})

	bookingID := uuid.New()
	svc.Enqueue(context.Background(), Request{
		Kind:      enums.NotificationBookingConfirmation,
		BookingID: bookingID,
		Recipient: "ada@example.com",
		Payload:   types.JSONMap{"reference": "NMD-TEST1234"},
	})

	require.Len(t, delivered, 1)

	var row models.NotificationLog
	require.NoError(t, db.First(&row).Error)
	require.Equal(t, enums.NotificationStatusSent, row.Status)
	require.Equal(t, bookingID, row.BookingID)
	require.NotNil(t, row.SentAt)
	require.Nil(t, row.Error)
}

func TestEnqueueSwallowsDeliveryFailure(t *testing.T) {
	db := newNotificationsTestDB(t)
	svc := newTestService(t, db, &stubMailer{
		send: func(context.Context, Request) error {
			return errors.New("mailer down")
		},
	})

	svc.Enqueue(context.Background(), Request{
		Kind:      enums.NotificationBookingCancellation,
		BookingID: uuid.New(),
		Recipient: "ada@example.com",
	})

	var row models.NotificationLog
	require.NoError(t, db.First(&row).Error)
	require.Equal(t, enums.NotificationStatusFailed, row.Status)
	require.NotNil(t, row.Error)
	require.Contains(t, *row.Error, "mailer down")
	require.Nil(t, row.SentAt)
}

func TestEnqueueSkipsMissingRecipient(t *testing.T) {
	db := newNotificationsTestDB(t)
	svc := newTestService(t, db, &stubMailer{
		send: func(context.Context, Request) error {
			t.Fatal("mailer must not be called")
			return nil
		},
	})

	svc.Enqueue(context.Background(), Request{
		Kind:      enums.NotificationBookingConfirmation,
		BookingID: uuid.New(),
	})

	var count int64
	require.NoError(t, db.Model(&models.NotificationLog{}).Count(&count).Error)
	require.Zero(t, count)
}
