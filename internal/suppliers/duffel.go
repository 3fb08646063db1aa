package suppliers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nomadair/nomadair-backend/pkg/config"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/logger"
	"github.com/nomadair/nomadair-backend/pkg/metrics"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

// DuffelClient fulfils flight bookings through the Duffel order API.
type DuffelClient struct {
	transport *transport
}

func NewDuffelClient(cfg config.DuffelConfig, m *metrics.SupplierMetrics, logg *logger.Logger) *DuffelClient {
	return &DuffelClient{
		transport: newTransport(enums.ProviderDuffel, cfg.BaseURL, cfg.AccessToken, cfg.Timeout, m, logg),
	}
}

func (c *DuffelClient) Provider() enums.Provider { return enums.ProviderDuffel }

type duffelEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type duffelOrder struct {
	ID               string `json:"id"`
	BookingReference string `json:"booking_reference"`
	Status           string `json:"status"`
}

type duffelCancellation struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"order_id"`
	RefundAmount   decimal.Decimal `json:"refund_amount"`
	RefundCurrency string          `json:"refund_currency"`
	RefundTo       string          `json:"refund_to"`
	ExpiresAt      *time.Time      `json:"expires_at"`
	ConfirmedAt    *time.Time      `json:"confirmed_at"`
}

func (c *DuffelClient) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if input.OfferID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "flight order requires an offer id")
	}
	passengers, ok := input.Passengers["passengers"]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "flight order requires passenger details")
	}

	body := map[string]any{
		"data": map[string]any{
			"selected_offers": []string{input.OfferID},
			"passengers":      passengers,
			"metadata":        map[string]any{"booking_reference": input.BookingReference},
			"payments": []map[string]any{{
				"type":     "balance",
				"amount":   input.Amount.StringFixed(2),
				"currency": input.Currency,
			}},
		},
	}

	var env duffelEnvelope
	if err := c.transport.doJSON(ctx, "create_order", http.MethodPost, "/air/orders", body, &env); err != nil {
		return nil, err
	}
	return orderFromDuffel(env.Data)
}

func (c *DuffelClient) CreateCancellationQuote(ctx context.Context, providerBookingID string) (*CancellationQuote, error) {
	body := map[string]any{"data": map[string]any{"order_id": providerBookingID}}

	var env duffelEnvelope
	err := c.transport.doJSON(ctx, "create_cancellation_quote", http.MethodPost, "/air/order_cancellations", body, &env)
	if err != nil {
		return nil, err
	}
	return cancellationFromDuffel(env.Data)
}

func (c *DuffelClient) ConfirmCancellation(ctx context.Context, quoteID string) (*CancellationQuote, error) {
	var env duffelEnvelope
	err := c.transport.doJSON(ctx, "confirm_cancellation", http.MethodPost,
		"/air/order_cancellations/"+quoteID+"/actions/confirm", nil, &env)
	if err != nil {
		return nil, err
	}
	return cancellationFromDuffel(env.Data)
}

func orderFromDuffel(data json.RawMessage) (*Order, error) {
	var order duffelOrder
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode duffel order")
	}
	if order.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "duffel order response missing id")
	}
	var raw types.JSONMap
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode duffel order")
	}
	return &Order{
		ProviderBookingID: order.ID,
		Status:            order.Status,
		RawResponse:       raw,
	}, nil
}

func cancellationFromDuffel(data json.RawMessage) (*CancellationQuote, error) {
	var cancellation duffelCancellation
	if err := json.Unmarshal(data, &cancellation); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode duffel cancellation")
	}
	if cancellation.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "duffel cancellation response missing id")
	}
	var raw types.JSONMap
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode duffel cancellation")
	}
	return &CancellationQuote{
		QuoteID:        cancellation.ID,
		OrderID:        cancellation.OrderID,
		RefundAmount:   cancellation.RefundAmount,
		RefundCurrency: cancellation.RefundCurrency,
		RefundMethod:   cancellation.RefundTo,
		AirlineCredits: cancellation.RefundTo == "airline_credits" || cancellation.RefundTo == "voucher",
		ExpiresAt:      cancellation.ExpiresAt,
		Confirmed:      cancellation.ConfirmedAt != nil,
		RawResponse:    raw,
	}, nil
}
