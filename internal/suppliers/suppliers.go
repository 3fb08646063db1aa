package suppliers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/types"
)

// CreateOrderInput carries everything a supplier needs to place an order. The
// trip and passenger payloads stay opaque; each client lifts the fields its
// API requires.
type CreateOrderInput struct {
	BookingReference string
	OfferID          string
	TripData         types.JSONMap
	Passengers       types.JSONMap
	Amount           decimal.Decimal
	Currency         string
}

// Order is the supplier's view of a placed order.
type Order struct {
	ProviderBookingID string
	Status            string
	RawResponse       types.JSONMap
}

// CancellationQuote is the two-phase cancellation handle. A quote must be
// confirmed before ExpiresAt or the supplier rejects it.
type CancellationQuote struct {
	QuoteID        string
	OrderID        string
	RefundAmount   decimal.Decimal
	RefundCurrency string
	RefundMethod   string
	AirlineCredits bool
	ExpiresAt      *time.Time
	Confirmed      bool
	RawResponse    types.JSONMap
}

// Supplier is the consumer-side contract for one external inventory system.
type Supplier interface {
	Provider() enums.Provider
	CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error)
	CreateCancellationQuote(ctx context.Context, providerBookingID string) (*CancellationQuote, error)
	ConfirmCancellation(ctx context.Context, quoteID string) (*CancellationQuote, error)
}

// Registry resolves the supplier client for a provider.
type Registry struct {
	byProvider map[enums.Provider]Supplier
}

func NewRegistry(clients ...Supplier) *Registry {
	byProvider := make(map[enums.Provider]Supplier, len(clients))
	for _, client := range clients {
		byProvider[client.Provider()] = client
	}
	return &Registry{byProvider: byProvider}
}

func (r *Registry) For(provider enums.Provider) (Supplier, error) {
	client, ok := r.byProvider[provider]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no supplier client for provider "+string(provider))
	}
	return client, nil
}
