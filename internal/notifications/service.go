package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nomadair/nomadair-backend/pkg/config"
	"github.com/nomadair/nomadair-backend/pkg/db/models"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	"github.com/nomadair/nomadair-backend/pkg/logger"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

// Request is one email side effect. Payload is template data for the mailer;
// no templating happens on this side.
type Request struct {
	Kind      enums.NotificationKind
	BookingID uuid.UUID
	Recipient string
	Payload   types.JSONMap
}

// Mailer delivers one message. The HTTP implementation talks to the external
// mail collaborator.
type Mailer interface {
	Send(ctx context.Context, request Request) error
}

// Service records and dispatches best-effort notifications. Enqueue never
// returns an error to the caller: a lost email must not fail a booking.
type Service struct {
	db     *gorm.DB
	mailer Mailer
	logg   *logger.Logger

	// dispatch is swapped in tests to run synchronously.
	dispatch func(fn func())
}

func NewService(db *gorm.DB, mailer Mailer, logg *logger.Logger) *Service {
	return &Service{
		db:     db,
		mailer: mailer,
		logg:   logg,
		dispatch: func(fn func()) {
			go fn()
		},
	}
}

// Enqueue writes the log row and hands delivery to a goroutine. All failures
// are logged and swallowed.
func (s *Service) Enqueue(ctx context.Context, request Request) {
	if request.Recipient == "" {
		s.logg.Warn(s.logg.WithBookingID(ctx, request.BookingID.String()),
			"notification skipped: no recipient")
		return
	}

	row := &models.NotificationLog{
		ID:        uuid.New(),
		Kind:      request.Kind,
		BookingID: request.BookingID,
		Recipient: request.Recipient,
		Payload:   request.Payload,
		Status:    enums.NotificationStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		s.logg.Error(ctx, "record notification log", err)
		return
	}

	s.dispatch(func() {
		// Detached from the request context; delivery outlives the HTTP call.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.deliver(ctx, row, request)
	})
}

func (s *Service) deliver(ctx context.Context, row *models.NotificationLog, request Request) {
	updates := map[string]any{}
	if err := s.mailer.Send(ctx, request); err != nil {
		s.logg.Error(s.logg.WithBookingID(ctx, request.BookingID.String()), "send notification", err)
		message := err.Error()
		updates["status"] = enums.NotificationStatusFailed
		updates["error"] = message
	} else {
		now := time.Now().UTC()
		updates["status"] = enums.NotificationStatusSent
		updates["sent_at"] = now
	}

	err := s.db.WithContext(ctx).Model(&models.NotificationLog{}).
		Where("id = ?", row.ID).
		Updates(updates).Error
	if err != nil {
		s.logg.Error(ctx, "update notification log", err)
	}
}

// HTTPMailer posts messages to the external mail service.
type HTTPMailer struct {
	baseURL string
	apiKey  string
	from    string
	http    *http.Client
}

func NewHTTPMailer(cfg config.NotificationsConfig) *HTTPMailer {
	return &HTTPMailer{
		baseURL: strings.TrimRight(cfg.MailerBaseURL, "/"),
		apiKey:  cfg.MailerAPIKey,
		from:    cfg.FromAddress,
		http:    &http.Client{Timeout: cfg.SendTimeout},
	}
}

func (m *HTTPMailer) Send(ctx context.Context, request Request) error {
	payload, err := json.Marshal(map[string]any{
		"from":     m.from,
		"to":       request.Recipient,
		"template": string(request.Kind),
		"data":     request.Payload,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mailer returned status %d", resp.StatusCode)
	}
	return nil
}
