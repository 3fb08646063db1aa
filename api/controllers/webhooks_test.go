package controllers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	internalorders "github.com/nomadair/nomadair-backend/internal/orders"
	"github.com/nomadair/nomadair-backend/internal/webhooks"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
)

type stubProcessor struct {
	events []webhooks.Event
	result string
	err    error
}

func (s *stubProcessor) Process(_ context.Context, event webhooks.Event) (string, error) {
	s.events = append(s.events, event)
	return s.result, s.err
}

func signPayload(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func signedRequest(target, secret, payload string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(payload))
	req.Header.Set("X-Webhook-Signature", signPayload(secret, payload))
	return req
}

func TestSupplierWebhookRejectsBadSignature(t *testing.T) {
	processor := &stubProcessor{result: webhooks.ResultApplied}
	secrets := func(enums.Provider) string { return "sh-secret" }
	handler := SupplierWebhook(processor, secrets, nil)

	payload := `{"id":"evt_1","type":"order.created","data":{"order_id":"ord_1"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/suppliers/duffel", strings.NewReader(payload))
	req.Header.Set("X-Webhook-Signature", signPayload("wrong-secret", payload))

	resp := serveBookingRoute(handler, "/webhooks/suppliers/{provider}", req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(processor.events) != 0 {
		t.Fatalf("unverified event must not reach the reconciler")
	}
}

func TestSupplierWebhookRequiresSignatureHeader(t *testing.T) {
	processor := &stubProcessor{result: webhooks.ResultApplied}
	secrets := func(enums.Provider) string { return "sh-secret" }
	handler := SupplierWebhook(processor, secrets, nil)

	payload := `{"id":"evt_1","type":"order.created","data":{}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/suppliers/duffel", strings.NewReader(payload))

	resp := serveBookingRoute(handler, "/webhooks/suppliers/{provider}", req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestSupplierWebhookDispatchesVerifiedEvent(t *testing.T) {
	processor := &stubProcessor{result: webhooks.ResultApplied}
	secrets := func(provider enums.Provider) string {
		if provider != enums.ProviderDuffel {
			return ""
		}
		return "sh-secret"
	}
	handler := SupplierWebhook(processor, secrets, nil)

	payload := `{"id":"evt_42","type":"order.created","data":{"order_id":"ord_777","offer_id":"off_1"}}`
	req := signedRequest("/webhooks/suppliers/duffel", "sh-secret", payload)

	resp := serveBookingRoute(handler, "/webhooks/suppliers/{provider}", req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(processor.events) != 1 {
		t.Fatalf("expected one reconciled event, got %d", len(processor.events))
	}
	event := processor.events[0]
	if event.Provider != enums.ProviderDuffel {
		t.Fatalf("provider = %s", event.Provider)
	}
	if event.EventID != "evt_42" || event.Type != enums.WebhookEventOrderCreated {
		t.Fatalf("unexpected event identity: %+v", event)
	}
	if event.ProviderBookingID != "ord_777" || event.OfferID != "off_1" {
		t.Fatalf("event keys not lifted from payload: %+v", event)
	}
	if !strings.Contains(resp.Body.String(), webhooks.ResultApplied) {
		t.Fatalf("expected result in body, got %s", resp.Body.String())
	}
}

func TestSupplierWebhookRejectsUnknownProvider(t *testing.T) {
	handler := SupplierWebhook(&stubProcessor{}, func(enums.Provider) string { return "s" }, nil)

	req := signedRequest("/webhooks/suppliers/carrier-pigeon", "s", `{}`)
	resp := serveBookingRoute(handler, "/webhooks/suppliers/{provider}", req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestPaymentWebhookCompletedPlacesOrder(t *testing.T) {
	bookingID := uuid.New()

	var recordedStatus enums.PaymentStatus
	var recordedRef *string
	repo := &stubControllerRepo{
		updatePaymentState: func(_ context.Context, id uuid.UUID, status enums.PaymentStatus, ref *string) error {
			if id != bookingID {
				t.Fatalf("payment applied to wrong booking %s", id)
			}
			recordedStatus = status
			recordedRef = ref
			return nil
		},
	}
	var placed []uuid.UUID
	placer := &stubPlacer{
		place: func(_ context.Context, id uuid.UUID) (*internalorders.Result, error) {
			placed = append(placed, id)
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "supplier down")
		},
	}
	handler := PaymentWebhook(repo, placer, "pay-secret", nil)

	payload := fmt.Sprintf(`{"bookingId":%q,"paymentReference":"pi_123","status":"completed"}`, bookingID)
	req := signedRequest("/webhooks/payments", "pay-secret", payload)

	resp := serveBookingRoute(handler, "/webhooks/payments", req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 even when placement fails, got %d: %s", resp.Code, resp.Body.String())
	}
	if recordedStatus != enums.PaymentStatusCompleted {
		t.Fatalf("payment status = %s", recordedStatus)
	}
	if recordedRef == nil || *recordedRef != "pi_123" {
		t.Fatalf("payment reference not recorded: %v", recordedRef)
	}
	if len(placed) != 1 || placed[0] != bookingID {
		t.Fatalf("completed payment should trigger order placement, got %v", placed)
	}
}

func TestPaymentWebhookFailedSkipsPlacement(t *testing.T) {
	repo := &stubControllerRepo{
		updatePaymentState: func(context.Context, uuid.UUID, enums.PaymentStatus, *string) error {
			return nil
		},
	}
	placer := &stubPlacer{
		place: func(context.Context, uuid.UUID) (*internalorders.Result, error) {
			t.Fatalf("failed payment must not place an order")
			return nil, nil
		},
	}
	handler := PaymentWebhook(repo, placer, "pay-secret", nil)

	payload := fmt.Sprintf(`{"bookingId":%q,"status":"failed"}`, uuid.New())
	req := signedRequest("/webhooks/payments", "pay-secret", payload)

	resp := serveBookingRoute(handler, "/webhooks/payments", req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestPaymentWebhookRejectsUnknownStatus(t *testing.T) {
	handler := PaymentWebhook(&stubControllerRepo{}, nil, "pay-secret", nil)

	payload := fmt.Sprintf(`{"bookingId":%q,"status":"teleported"}`, uuid.New())
	req := signedRequest("/webhooks/payments", "pay-secret", payload)

	resp := serveBookingRoute(handler, "/webhooks/payments", req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
