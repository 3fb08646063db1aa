package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nomadair/nomadair-backend/pkg/config"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
	"github.com/nomadair/nomadair-backend/pkg/logger"
)

// ConversionQuote itemizes the buffer fee charged on top of a conversion.
type ConversionQuote struct {
	Fee          decimal.Decimal `json:"fee"`
	FeePct       decimal.Decimal `json:"feePct"`
	TotalWithFee decimal.Decimal `json:"totalWithFee"`
}

// Converter quotes currency conversions. Rates are queried per request; no
// caching happens on this side of the boundary.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
	ConversionFee(ctx context.Context, amount decimal.Decimal, from, to string) (*ConversionQuote, error)
}

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logg    *logger.Logger
}

// NewClient builds the HTTP converter client from config.
func NewClient(cfg config.FXConfig, logg *logger.Logger) Converter {
	return &client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		logg:    logg,
	}
}

type convertResponse struct {
	Amount decimal.Decimal `json:"amount"`
}

func (c *client) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	var out convertResponse
	if err := c.get(ctx, "/v1/convert", amount, from, to, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Amount, nil
}

func (c *client) ConversionFee(ctx context.Context, amount decimal.Decimal, from, to string) (*ConversionQuote, error) {
	var out ConversionQuote
	if err := c.get(ctx, "/v1/conversion-fee", amount, from, to, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) get(ctx context.Context, path string, amount decimal.Decimal, from, to string, out any) error {
	query := url.Values{}
	query.Set("amount", amount.String())
	query.Set("from", from)
	query.Set("to", to)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build fx request")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fx service unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode fx response")
		}
		return nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unsupported currency pair %s/%s", from, to))
	default:
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("fx service returned status %d", resp.StatusCode))
	}
}
