package twelvedata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotes-api/internal/models"
	"quotes-api/internal/providers"
)

func boolPtr(b bool) *bool { return &b }

func TestIsSuspect(t *testing.T) {
	tests := []struct {
		name   string
		item   *quoteItem
		market models.Market
		want   bool
	}{
		{
			"us never suspect",
			&quoteItem{Exchange: "NASDAQ", Price: "100", PreviousClose: "100"},
			models.MarketUS,
			false,
		},
		{
			"mx intraday venue trusted",
			&quoteItem{MicCode: "XMEX", Price: "50", PreviousClose: "50"},
			models.MarketMX,
			false,
		},
		{
			"mx closed market",
			&quoteItem{Exchange: "BMV", Price: "50", PreviousClose: "49", IsMarketOpen: boolPtr(false)},
			models.MarketMX,
			true,
		},
		{
			"mx unknown market state",
			&quoteItem{Exchange: "BMV", Price: "50", PreviousClose: "49"},
			models.MarketMX,
			true,
		},
		{
			"mx price equals previous close",
			&quoteItem{Exchange: "BMV", Price: "50", PreviousClose: "50", IsMarketOpen: boolPtr(true)},
			models.MarketMX,
			true,
		},
		{
			"mx open with moving price",
			&quoteItem{Exchange: "BMV", Price: "50.2", PreviousClose: "50", IsMarketOpen: boolPtr(true)},
			models.MarketMX,
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isSuspect(tt.item, tt.market))
		})
	}
}

// requestLog records quote requests by the venue parameter they carried.
type requestLog struct {
	mu   sync.Mutex
	seen []string
}

func (l *requestLog) add(r *http.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case r.URL.Query().Get("mic_code") != "":
		l.seen = append(l.seen, "mic:"+r.URL.Query().Get("mic_code"))
	case r.URL.Query().Get("exchange") != "":
		l.seen = append(l.seen, "exch:"+r.URL.Query().Get("exchange"))
	default:
		l.seen = append(l.seen, "unpinned")
	}
}

func TestFetchQuotesReroutesSuspectMXQuote(t *testing.T) {
	log := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		log.add(r)
		if r.URL.Query().Get("mic_code") == "XMEX" {
			json.NewEncoder(w).Encode(quoteItem{
				Symbol: "WALMEX", Name: "Wal-Mart de México", MicCode: "XMEX",
				Price: "61.30", PreviousClose: "60.80", PercentChange: "0.82",
				Volume: "1200000", IsMarketOpen: boolPtr(true),
			})
			return
		}
		// Home venue answers with last-session data.
		json.NewEncoder(w).Encode(quoteItem{
			Symbol: "WALMEX", Exchange: "BMV",
			Price: "60.80", PreviousClose: "60.80",
			IsMarketOpen: boolPtr(false),
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	quotes, err := c.FetchQuotes(context.Background(), []string{"WALMEX"}, models.MarketMX)
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	q := quotes[0]
	assert.Equal(t, "WALMEX", q.Symbol)
	assert.Equal(t, "XMEX", q.Exchange)
	assert.True(t, q.Price.Equal(decimal.NewFromFloat(61.30)), "rerouted venue price wins, got %s", q.Price)

	assert.Contains(t, log.seen, "exch:BMV")
	assert.Contains(t, log.seen, "mic:XMEX")
}

func TestFetchQuotesRetriesDualListedAlias(t *testing.T) {
	log := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		log.add(r)
		if r.URL.Query().Get("symbol") == "AMXB" {
			json.NewEncoder(w).Encode(quoteItem{
				Symbol: "AMXB", Name: "America Movil B", Exchange: "BMV",
				Price: "16.43", PreviousClose: "16.20", PercentChange: "1.42",
				Volume: "8400000", IsMarketOpen: boolPtr(true),
			})
			return
		}
		// The old ticker is gone from the feed.
		json.NewEncoder(w).Encode(quoteItem{Code: 404, Status: "error", Message: "symbol not found"})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	quotes, err := c.FetchQuotes(context.Background(), []string{"AMXL"}, models.MarketMX)
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	q := quotes[0]
	assert.Equal(t, "AMXL", q.Symbol, "row keeps the canonical symbol")
	assert.Equal(t, "América Móvil, S.A.B. de C.V.", q.Name, "alias-resolved rows use the fixed display name")
	assert.True(t, q.Price.Equal(decimal.NewFromFloat(16.43)))

	// The canonical ticker walked the venue ladder before the alias fired.
	assert.Contains(t, log.seen, "mic:XMEX")
	assert.Contains(t, log.seen, "unpinned")
}

func TestFetchQuotesClosedMarketUsesPreviousClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(quoteItem{
			Symbol: "AAPL", Name: "Apple Inc", Exchange: "NASDAQ",
			Price: "0", Close: "189.90", PreviousClose: "190.50",
			PercentChange: "-0.31", Volume: "52000000",
			IsMarketOpen: boolPtr(false),
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	quotes, err := c.FetchQuotes(context.Background(), []string{"AAPL"}, models.MarketUS)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.True(t, quotes[0].Price.Equal(decimal.NewFromFloat(190.50)))
}

func TestFetchQuotesDropsUnresolvable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(quoteItem{Code: 404, Status: "error", Message: "symbol not found"})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	quotes, err := c.FetchQuotes(context.Background(), []string{"NOPE"}, models.MarketUS)
	require.NoError(t, err)
	assert.Empty(t, quotes, "error rows are omissions, not sentinel quotes")
}

func TestFetchQuotesPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []quoteItem{
				{Symbol: "MSFT", Price: "420", PreviousClose: "418", IsMarketOpen: boolPtr(true)},
				{Symbol: "AAPL", Price: "190", PreviousClose: "189", IsMarketOpen: boolPtr(true)},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	quotes, err := c.FetchQuotes(context.Background(), []string{"AAPL", "MSFT"}, models.MarketUS)
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "AAPL", quotes[0].Symbol)
	assert.Equal(t, "MSFT", quotes[1].Symbol)
}

func TestSparkRejectsDailyGranularity(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/time_series", r.URL.Path)
		calls++
		if calls == 1 {
			// Date-only timestamps answering a minute request.
			json.NewEncoder(w).Encode(seriesResponse{Values: []seriesValue{
				{Datetime: "2026-08-28", Close: "60.10"},
				{Datetime: "2026-08-27", Close: "59.80"},
			}})
			return
		}
		json.NewEncoder(w).Encode(seriesResponse{Values: []seriesValue{
			{Datetime: "2026-08-28 15:59:00", Close: "60.40"},
			{Datetime: "2026-08-28 15:58:00", Close: "60.30"},
			{Datetime: "2026-08-28 15:57:00", Close: "60.20"},
		}})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	closes, err := c.Spark(context.Background(), "WALMEX", models.MarketMX, "1min", 60)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, calls, 2, "daily series must trigger a reroute")
	assert.Equal(t, []float64{60.20, 60.30, 60.40}, closes, "series is oldest first")
}

func TestSparkAcceptsDailyForDailyInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(seriesResponse{Values: []seriesValue{
			{Datetime: "2026-08-28", Close: "190.5"},
			{Datetime: "2026-08-27", Close: "189.9"},
		}})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	closes, err := c.Spark(context.Background(), "AAPL", models.MarketUS, "1day", 30)
	require.NoError(t, err)
	assert.Equal(t, []float64{189.9, 190.5}, closes)
}

func TestCryptoQuotesBatchWithSingleFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quotes":
			// Batch only knows BTC.
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []quoteItem{
					{Symbol: "BTC/USD", Price: "97000", PercentChange: "0.8", Volume: "125000"},
				},
			})
		case "/quote":
			require.Equal(t, "ETH/USD", r.URL.Query().Get("symbol"))
			json.NewEncoder(w).Encode(quoteItem{Symbol: "ETH/USD", Price: "3400", PercentChange: "1.1"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	quotes, err := c.FetchQuotes(context.Background(), []string{"BTC", "ETH"}, models.MarketCrypto)
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	assert.Equal(t, "BTC", quotes[0].Symbol)
	assert.True(t, quotes[0].PriceUSD.Equal(decimal.NewFromInt(97000)))
	assert.Equal(t, "ETH", quotes[1].Symbol)
}

func TestForex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/forex/quote", r.URL.Path)
		require.Equal(t, "USD/MXN", r.URL.Query().Get("symbol"))
		json.NewEncoder(w).Encode(quoteItem{Symbol: "USD/MXN", Price: "17.35"})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	rate, err := c.Forex(context.Background(), "USD", "MXN")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromFloat(17.35)))
}

func TestUnconfiguredClient(t *testing.T) {
	c := NewClient(Config{})
	_, err := c.FetchQuotes(context.Background(), []string{"AAPL"}, models.MarketUS)
	assert.Error(t, err)
}

func TestFetchQuotesDeadUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})

	quotes, err := c.FetchQuotes(context.Background(), []string{"AAPL"}, models.MarketUS)
	require.Error(t, err, "an unreachable upstream must fail the batch, not shrink it")
	assert.Empty(t, quotes)

	quotes, err = c.FetchQuotes(context.Background(), []string{"BTC", "ETH"}, models.MarketCrypto)
	require.Error(t, err)
	assert.Empty(t, quotes)

	var pe *providers.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Retryable)
}
