package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nomadair/nomadair-backend/internal/fx"
	"github.com/nomadair/nomadair-backend/pkg/db/models"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/logger"
)

var oneHundred = decimal.NewFromInt(100)

// MarkupLookup resolves the active pricing rule for a product/currency pair.
// Missing config is surfaced as gorm.ErrRecordNotFound; the service maps it to
// a validation failure so no default markup is ever applied silently.
type MarkupLookup interface {
	ActiveConfig(ctx context.Context, productType enums.ProductType, currency string, at time.Time) (*models.MarkupConfig, error)
}

// QuoteInput is the pricing request.
//
// When FinalPrice is true, BasePrice is an all-inclusive amount already
// denominated in TargetCurrency; the service reverse-derives the underlying
// base so markup is not applied twice.
type QuoteInput struct {
	BasePrice      decimal.Decimal
	BaseCurrency   string
	TargetCurrency string
	ProductType    enums.ProductType
	FinalPrice     bool
}

// Quote carries every intermediate amount so a reviewer can reconstruct the
// total by hand.
type Quote struct {
	OriginalAmount   decimal.Decimal `json:"originalAmount"`
	OriginalCurrency string          `json:"originalCurrency"`
	ConvertedAmount  decimal.Decimal `json:"convertedAmount"`
	ConversionFee    decimal.Decimal `json:"conversionFee"`
	ConversionFeePct decimal.Decimal `json:"conversionFeePct"`
	MarkupPct        decimal.Decimal `json:"markupPct"`
	MarkupAmount     decimal.Decimal `json:"markupAmount"`
	ServiceFee       decimal.Decimal `json:"serviceFee"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	Currency         string          `json:"currency"`
}

// Service prices bookings. Pure apart from the two injected collaborators.
type Service struct {
	lookup    MarkupLookup
	converter fx.Converter
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(lookup MarkupLookup, converter fx.Converter, logg *logger.Logger) *Service {
	return &Service{
		lookup:    lookup,
		converter: converter,
		logg:      logg,
		now:       time.Now,
	}
}

// Quote prices one trip. Conversion happens before markup; the conversion
// buffer, markup, and service fee are each rounded to two decimals
// independently.
func (s *Service) Quote(ctx context.Context, input QuoteInput) (*Quote, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	cfg, err := s.lookup.ActiveConfig(ctx, input.ProductType, input.TargetCurrency, s.now().UTC())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("no pricing available for %s in %s", input.ProductType, input.TargetCurrency))
		}
		return nil, err
	}

	if input.FinalPrice {
		return s.repriceFinal(input, cfg)
	}
	return s.price(ctx, input, cfg)
}

func (s *Service) price(ctx context.Context, input QuoteInput, cfg *models.MarkupConfig) (*Quote, error) {
	quote := &Quote{
		OriginalAmount:   input.BasePrice.Round(2),
		OriginalCurrency: input.BaseCurrency,
		Currency:         input.TargetCurrency,
		MarkupPct:        cfg.MarkupPercentage,
		ServiceFee:       cfg.ServiceFeeAmount.Round(2),
	}

	converted := input.BasePrice
	if input.BaseCurrency != input.TargetCurrency {
		amount, err := s.converter.Convert(ctx, input.BasePrice, input.BaseCurrency, input.TargetCurrency)
		if err != nil {
			return nil, err
		}
		converted = amount.Round(2)

		buffer, err := s.converter.ConversionFee(ctx, converted, input.BaseCurrency, input.TargetCurrency)
		if err != nil {
			return nil, err
		}
		quote.ConversionFee = buffer.Fee.Round(2)
		quote.ConversionFeePct = buffer.FeePct
	} else {
		converted = converted.Round(2)
	}
	quote.ConvertedAmount = converted

	priced := converted.Add(quote.ConversionFee)
	quote.MarkupAmount = priced.Mul(cfg.MarkupPercentage).Div(oneHundred).Round(2)
	quote.TotalAmount = priced.Add(quote.MarkupAmount).Add(quote.ServiceFee).Round(2)
	return quote, nil
}

// repriceFinal inverts the markup/fee formula to recover the base from an
// all-inclusive supplier price, then prices that base forward. The quoted
// amount is already in the target currency, so no conversion leg applies.
func (s *Service) repriceFinal(input QuoteInput, cfg *models.MarkupConfig) (*Quote, error) {
	divisor := decimal.NewFromInt(1).Add(cfg.MarkupPercentage.Div(oneHundred))
	base := input.BasePrice.Sub(cfg.ServiceFeeAmount).Div(divisor).Round(2)
	if !base.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			"final price does not cover the configured service fee")
	}

	markup := base.Mul(cfg.MarkupPercentage).Div(oneHundred).Round(2)
	return &Quote{
		OriginalAmount:   input.BasePrice.Round(2),
		OriginalCurrency: input.TargetCurrency,
		ConvertedAmount:  base,
		MarkupPct:        cfg.MarkupPercentage,
		MarkupAmount:     markup,
		ServiceFee:       cfg.ServiceFeeAmount.Round(2),
		TotalAmount:      base.Add(markup).Add(cfg.ServiceFeeAmount).Round(2),
		Currency:         input.TargetCurrency,
	}, nil
}

func validateInput(input QuoteInput) error {
	if !input.BasePrice.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "base price must be positive")
	}
	if !input.ProductType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid product type")
	}
	if !validCurrency(input.BaseCurrency) || !validCurrency(input.TargetCurrency) {
		return pkgerrors.New(pkgerrors.CodeValidation, "currency codes must be 3-letter ISO 4217")
	}
	return nil
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	return code == strings.ToUpper(code)
}
