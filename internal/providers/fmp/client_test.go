package fmp

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

func TestFetchQuotesBatchesAndKeepsOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote/AAPL,MSFT,NOPE", r.URL.Path)
		require.Equal(t, "k", r.URL.Query().Get("apikey"))
		// NOPE missing, MSFT before AAPL: the adapter restores request order.
		json.NewEncoder(w).Encode([]quoteRow{
			{Symbol: "MSFT", Name: "Microsoft Corporation", Price: 430.5, ChangesPercentage: -0.2, Volume: 1.8e7, Exchange: "NASDAQ"},
			{Symbol: "AAPL", Name: "Apple Inc.", Price: 230.1, ChangesPercentage: 1.3, Volume: 4.1e7, Exchange: "NASDAQ"},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	quotes, err := c.FetchQuotes(context.Background(), []string{"AAPL", "MSFT", "NOPE"}, models.MarketUS)
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "AAPL", quotes[0].Symbol)
	assert.Equal(t, "MSFT", quotes[1].Symbol)
	assert.True(t, quotes[0].Price.Equal(decimal.NewFromFloat(230.1)))
	assert.Equal(t, "NASDAQ", quotes[0].Exchange)
}

func TestFetchQuotesOnlyServesUS(t *testing.T) {
	c := NewClient(Config{APIKey: "k"})
	for _, m := range []models.Market{models.MarketMX, models.MarketCrypto} {
		quotes, err := c.FetchQuotes(context.Background(), []string{"AMXL"}, m)
		assert.NoError(t, err)
		assert.Empty(t, quotes)
	}
}

func TestFetchQuotesRequiresAPIKey(t *testing.T) {
	c := NewClient(Config{})
	_, err := c.FetchQuotes(context.Background(), []string{"AAPL"}, models.MarketUS)
	var perr *providers.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, providers.ErrorCodeUnauthorized, perr.Code)
}
