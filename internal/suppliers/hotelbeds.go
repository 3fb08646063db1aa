package suppliers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/nomadair/nomadair-backend/pkg/config"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/logger"
	"github.com/nomadair/nomadair-backend/pkg/metrics"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

// HotelbedsClient fulfils hotel bookings. Hotel cancellations have no
// separate quote resource upstream; the quote phase runs the cancellation in
// simulation mode and the confirm phase repeats it for real, keyed by the
// supplier booking reference.
type HotelbedsClient struct {
	transport *transport
}

func NewHotelbedsClient(cfg config.HotelbedsConfig, m *metrics.SupplierMetrics, logg *logger.Logger) *HotelbedsClient {
	return &HotelbedsClient{
		transport: newTransport(enums.ProviderHotelbeds, cfg.BaseURL, cfg.AccessToken, cfg.Timeout, m, logg),
	}
}

func (c *HotelbedsClient) Provider() enums.Provider { return enums.ProviderHotelbeds }

func (c *HotelbedsClient) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	holder, ok := input.Passengers["holder"]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hotel order requires a holder")
	}
	rooms, ok := input.TripData["rooms"]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hotel order requires room selections")
	}

	body := map[string]any{
		"holder":          holder,
		"rooms":           rooms,
		"clientReference": input.BookingReference,
	}

	var out types.JSONMap
	if err := c.transport.doJSON(ctx, "create_order", http.MethodPost, "/hotel-api/1.0/bookings", body, &out); err != nil {
		return nil, err
	}

	reference, status := hotelbedsReference(out)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "hotelbeds booking response missing reference")
	}
	return &Order{
		ProviderBookingID: reference,
		Status:            status,
		RawResponse:       out,
	}, nil
}

func (c *HotelbedsClient) CreateCancellationQuote(ctx context.Context, providerBookingID string) (*CancellationQuote, error) {
	return c.cancel(ctx, "create_cancellation_quote", providerBookingID, true)
}

func (c *HotelbedsClient) ConfirmCancellation(ctx context.Context, quoteID string) (*CancellationQuote, error) {
	return c.cancel(ctx, "confirm_cancellation", quoteID, false)
}

func (c *HotelbedsClient) cancel(ctx context.Context, operation, reference string, simulate bool) (*CancellationQuote, error) {
	flag := "CANCELLATION"
	if simulate {
		flag = "SIMULATION"
	}
	path := "/hotel-api/1.0/bookings/" + reference + "?cancellationFlag=" + flag

	var out types.JSONMap
	if err := c.transport.doJSON(ctx, operation, http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}

	amount, currency := hotelbedsCancellationAmount(out)
	return &CancellationQuote{
		QuoteID:        reference,
		OrderID:        reference,
		RefundAmount:   amount,
		RefundCurrency: currency,
		RefundMethod:   "original_form_of_payment",
		Confirmed:      !simulate,
		RawResponse:    out,
	}, nil
}

func hotelbedsReference(payload types.JSONMap) (reference, status string) {
	booking, ok := payload["booking"].(map[string]any)
	if !ok {
		return "", ""
	}
	reference, _ = booking["reference"].(string)
	status, _ = booking["status"].(string)
	return reference, status
}

func hotelbedsCancellationAmount(payload types.JSONMap) (decimal.Decimal, string) {
	booking, ok := payload["booking"].(map[string]any)
	if !ok {
		return decimal.Zero, ""
	}
	cancellation, ok := booking["cancellation"].(map[string]any)
	if !ok {
		return decimal.Zero, ""
	}
	currency, _ := cancellation["currency"].(string)
	switch amount := cancellation["amount"].(type) {
	case string:
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, currency
		}
		return parsed, currency
	case float64:
		return decimal.NewFromFloat(amount), currency
	default:
		return decimal.Zero, currency
	}
}
