package fx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nomadair/nomadair-backend/pkg/config"
	pkgerrors "github.com/nomadair/nomadair-backend/pkg/errors"
)

func fxClient(t *testing.T, handler http.HandlerFunc) Converter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.FXConfig{BaseURL: srv.URL, APIKey: "fx-key", Timeout: 5 * time.Second}, nil)
}

func TestConvertSameCurrencySkipsRemoteCall(t *testing.T) {
	converter := fxClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("same-currency conversion must not call out")
	})

	amount, err := converter.Convert(context.Background(), decimal.RequireFromString("42.50"), "USD", "USD")
	require.NoError(t, err)
	require.True(t, amount.Equal(decimal.RequireFromString("42.50")))
}

func TestConvertQueriesService(t *testing.T) {
	converter := fxClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/convert", r.URL.Path)
		require.Equal(t, "100", r.URL.Query().Get("amount"))
		require.Equal(t, "USD", r.URL.Query().Get("from"))
		require.Equal(t, "EUR", r.URL.Query().Get("to"))
		require.Equal(t, "Bearer fx-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"amount":"91.84"}`))
	})

	amount, err := converter.Convert(context.Background(), decimal.NewFromInt(100), "USD", "EUR")
	require.NoError(t, err)
	require.True(t, amount.Equal(decimal.RequireFromString("91.84")))
}

func TestConvertUnsupportedPairIsValidationError(t *testing.T) {
	converter := fxClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	_, err := converter.Convert(context.Background(), decimal.NewFromInt(10), "USD", "XXX")
	require.Error(t, err)
	te := pkgerrors.As(err)
	require.NotNil(t, te)
	require.Equal(t, pkgerrors.CodeValidation, te.Code())
}

func TestConvertOutageIsDependencyError(t *testing.T) {
	converter := fxClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := converter.Convert(context.Background(), decimal.NewFromInt(10), "USD", "EUR")
	require.Error(t, err)
	te := pkgerrors.As(err)
	require.NotNil(t, te)
	require.Equal(t, pkgerrors.CodeDependency, te.Code())
}

func TestConversionFeeParsesQuote(t *testing.T) {
	converter := fxClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/conversion-fee", r.URL.Path)
		w.Write([]byte(`{"fee":"1.84","feePct":"2","totalWithFee":"93.68"}`))
	})

	quote, err := converter.ConversionFee(context.Background(), decimal.RequireFromString("91.84"), "USD", "EUR")
	require.NoError(t, err)
	require.True(t, quote.Fee.Equal(decimal.RequireFromString("1.84")))
	require.True(t, quote.TotalWithFee.Equal(decimal.RequireFromString("93.68")))
}
