package controllers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nomadair/nomadair-backend/api/responses"
	"github.com/nomadair/nomadair-backend/internal/bookings"
	"github.com/nomadair/nomadair-backend/internal/webhooks"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/logger"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

const signatureHeader = "X-Webhook-Signature"

// SupplierSecrets resolves the shared signing secret per provider.
type SupplierSecrets func(provider enums.Provider) string

// WebhookProcessor reconciles one supplier event against booking state.
type WebhookProcessor interface {
	Process(ctx context.Context, event webhooks.Event) (string, error)
}

type supplierEventEnvelope struct {
	ID   string        `json:"id"`
	Type string        `json:"type"`
	Data types.JSONMap `json:"data"`
}

// SupplierWebhook verifies, deduplicates and reconciles supplier callbacks.
// A non-2xx response makes the supplier redeliver, so only infrastructure
// failures return errors; unmatched or stale events are acknowledged.
func SupplierWebhook(reconciler WebhookProcessor, secrets SupplierSecrets, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if reconciler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook reconciler unavailable"))
			return
		}

		provider, err := enums.ParseProvider(chi.URLParam(r, "provider"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown provider"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		secret := ""
		if secrets != nil {
			secret = secrets(provider)
		}
		if err := verifySignature(payload, r.Header.Get(signatureHeader), secret); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var envelope supplierEventEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event payload"))
			return
		}

		event := webhooks.Event{
			Provider:          provider,
			EventID:           envelope.ID,
			Type:              enums.WebhookEventType(envelope.Type),
			ProviderBookingID: eventString(envelope.Data, "order_id", "id"),
			OfferID:           eventString(envelope.Data, "offer_id"),
			Payload:           envelope.Data,
			Raw:               payload,
		}

		result, err := reconciler.Process(ctx, event)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"result": result})
	}
}

type paymentEventRequest struct {
	BookingID        string `json:"bookingId" validate:"required,uuid"`
	PaymentReference string `json:"paymentReference"`
	Status           string `json:"status" validate:"required"`
}

// PaymentWebhook applies payment processor state to the booking. A completed
// payment also kicks off the supplier order; failure to place it is not a
// delivery failure, the reconciler will link the order when the supplier
// calls back.
func PaymentWebhook(repo bookings.Repository, placer OrderPlacer, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if repo == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings repository unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}
		if err := verifySignature(payload, r.Header.Get(signatureHeader), secret); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req paymentEventRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event payload"))
			return
		}

		bookingID, err := uuid.Parse(req.BookingID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid booking id"))
			return
		}
		status, err := enums.ParsePaymentStatus(req.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status"))
			return
		}

		var ref *string
		if trimmed := strings.TrimSpace(req.PaymentReference); trimmed != "" {
			ref = &trimmed
		}

		if err := repo.UpdatePaymentState(ctx, bookingID, status, ref); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if status == enums.PaymentStatusCompleted && placer != nil {
			if _, err := placer.CreateSupplierOrder(ctx, bookingID); err != nil {
				if logg != nil {
					logg.Error(logg.WithBookingID(ctx, bookingID.String()), "order placement after payment failed", err)
				}
			}
		}
		responses.WriteSuccess(w, nil)
	}
}

func verifySignature(payload []byte, header, secret string) error {
	if secret == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "webhook secret not configured")
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(header))) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch")
	}
	return nil
}

func eventString(data types.JSONMap, keys ...string) string {
	for _, key := range keys {
		if value, ok := data[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}
