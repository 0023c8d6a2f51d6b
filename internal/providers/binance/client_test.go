package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotes-api/internal/models"
	"quotes-api/internal/providers"
)

func TestFetchQuotesBackfillsQuoteVolume(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		switch r.URL.Query().Get("symbol") {
		case "BTCUSDT":
			json.NewEncoder(w).Encode(tickerRow{
				Symbol: "BTCUSDT", LastPrice: "97000.10",
				PriceChangePercent: "0.85", Volume: "12500", QuoteVolume: "1210000000",
			})
		case "ETHUSDT":
			// Base volume missing; the USDT quote volume stands in.
			json.NewEncoder(w).Encode(tickerRow{
				Symbol: "ETHUSDT", LastPrice: "3400",
				PriceChangePercent: "1.1", Volume: "0", QuoteVolume: "820000000",
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	quotes, err := c.FetchQuotes(context.Background(), []string{"BTC", "ETH"}, models.MarketCrypto)
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	byBase := map[string]models.Quote{}
	for _, q := range quotes {
		byBase[q.Symbol] = q
	}
	assert.True(t, byBase["BTC"].Volume.Equal(decimal.NewFromInt(12500)))
	assert.True(t, byBase["ETH"].Volume.Equal(decimal.NewFromInt(820000000)), "zero base volume backfills from quote volume")
	assert.True(t, byBase["BTC"].PriceUSD.Equal(byBase["BTC"].Price))
}

func TestFetchQuotesIgnoresNonCryptoMarkets(t *testing.T) {
	c := NewClient(Config{})
	quotes, err := c.FetchQuotes(context.Background(), []string{"AAPL"}, models.MarketUS)
	assert.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestFetchQuotesDropsFailedPairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	quotes, err := c.FetchQuotes(context.Background(), []string{"ZZZ"}, models.MarketCrypto)
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestFetchQuotesDeadUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	quotes, err := c.FetchQuotes(context.Background(), []string{"BTC", "ETH"}, models.MarketCrypto)
	require.Error(t, err, "an unreachable exchange must fail the batch, not shrink it")
	assert.Empty(t, quotes)

	var pe *providers.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Retryable)
}
