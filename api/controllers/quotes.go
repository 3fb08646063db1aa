package controllers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/nomadair/nomadair-backend/api/responses"
	"github.com/nomadair/nomadair-backend/api/validators"
	"github.com/nomadair/nomadair-backend/internal/pricing"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/logger"
)

// QuoteService prices a supplier base amount into a customer total.
type QuoteService interface {
	Quote(ctx context.Context, input pricing.QuoteInput) (*pricing.Quote, error)
}

type quoteRequest struct {
	BasePrice      decimal.Decimal `json:"basePrice" validate:"required"`
	BaseCurrency   string          `json:"baseCurrency" validate:"required,len=3"`
	TargetCurrency string          `json:"targetCurrency" validate:"required,len=3"`
	ProductType    string          `json:"productType" validate:"required,oneof=flight-international flight-domestic hotel car-rental"`
	FinalPrice     bool            `json:"finalPrice"`
}

// CreateQuote prices a booking without persisting anything.
func CreateQuote(svc QuoteService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing service unavailable"))
			return
		}

		var req quoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productType, err := enums.ParseProductType(req.ProductType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product type"))
			return
		}

		quote, err := svc.Quote(r.Context(), pricing.QuoteInput{
			BasePrice:      req.BasePrice,
			BaseCurrency:   req.BaseCurrency,
			TargetCurrency: req.TargetCurrency,
			ProductType:    productType,
			FinalPrice:     req.FinalPrice,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}
