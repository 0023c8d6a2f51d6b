package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotes-api/internal/models"
)

func testQuote(symbol string, price float64) *models.Quote {
	return &models.Quote{
		Symbol:   symbol,
		Name:     symbol,
		Price:    decimal.NewFromFloat(price),
		Provider: "test",
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "us:AAPL", QuoteKey(models.MarketUS, "aapl"))
	assert.Equal(t, "crypto:BTC", QuoteKey(models.MarketCrypto, "BTC"))
	assert.Equal(t, "spark:mx:AMXL:1min:60", SparkKey(models.MarketMX, "amxl", "1min", 60))
	assert.Equal(t, "fx:USD:MXN", FxKey("usd", "mxn"))
}

func TestQuoteCacheFreshAndStale(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	qc := NewQuoteCache(NewMemoryStore()).WithClock(func() time.Time { return now })

	key := QuoteKey(models.MarketUS, "AAPL")
	qc.Write(ctx, key, testQuote("AAPL", 190.5))

	t.Run("fresh within ttl", func(t *testing.T) {
		got := qc.ReadFresh(ctx, key, 15*time.Second)
		require.NotNil(t, got)
		assert.Equal(t, "AAPL", got.Symbol)
		assert.True(t, got.Price.Equal(decimal.NewFromFloat(190.5)))
	})

	t.Run("expired is not fresh", func(t *testing.T) {
		now = now.Add(16 * time.Second)
		assert.Nil(t, qc.ReadFresh(ctx, key, 15*time.Second))
	})

	t.Run("stale readable at any age", func(t *testing.T) {
		now = now.Add(48 * time.Hour)
		got := qc.ReadStale(ctx, key)
		require.NotNil(t, got)
		assert.Equal(t, "AAPL", got.Symbol)
	})

	t.Run("unknown key", func(t *testing.T) {
		assert.Nil(t, qc.ReadStale(ctx, QuoteKey(models.MarketUS, "MSFT")))
	})
}

func TestQuoteCacheWriteRefusesInvalid(t *testing.T) {
	ctx := context.Background()
	qc := NewQuoteCache(NewMemoryStore())

	key := QuoteKey(models.MarketUS, "AAPL")
	qc.Write(ctx, key, &models.Quote{Symbol: "AAPL", Price: decimal.Zero})
	assert.Nil(t, qc.ReadStale(ctx, key), "zero-price quote must not be cached")

	qc.Write(ctx, key, nil)
	assert.Nil(t, qc.ReadStale(ctx, key))
}

func TestQuoteCacheOverwrite(t *testing.T) {
	ctx := context.Background()
	qc := NewQuoteCache(NewMemoryStore())

	key := QuoteKey(models.MarketMX, "WALMEX")
	qc.Write(ctx, key, testQuote("WALMEX", 60))
	qc.Write(ctx, key, testQuote("WALMEX", 61))

	got := qc.ReadStale(ctx, key)
	require.NotNil(t, got)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(61)))
}

func TestSparkRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	qc := NewQuoteCache(NewMemoryStore()).WithClock(func() time.Time { return now })

	key := SparkKey(models.MarketUS, "AAPL", "1min", 60)
	closes := []float64{189.2, 189.5, 190.1}
	qc.WriteSpark(ctx, key, closes)

	assert.Equal(t, closes, qc.ReadFreshSpark(ctx, key, time.Minute))

	now = now.Add(2 * time.Minute)
	assert.Nil(t, qc.ReadFreshSpark(ctx, key, time.Minute))
}

func TestFxRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	qc := NewQuoteCache(NewMemoryStore()).WithClock(func() time.Time { return now })

	key := FxKey("USD", "MXN")
	qc.WriteFx(ctx, key, &models.FxRate{Base: "USD", Quote: "MXN", Rate: decimal.NewFromFloat(17.3), Source: "twelvedata"})

	got := qc.ReadFreshFx(ctx, key, time.Hour)
	require.NotNil(t, got)
	assert.Equal(t, "twelvedata", got.Source)

	now = now.Add(2 * time.Hour)
	assert.Nil(t, qc.ReadFreshFx(ctx, key, time.Hour))

	stale := qc.ReadStaleFx(ctx, key)
	require.NotNil(t, stale)
	assert.True(t, stale.Rate.Equal(decimal.NewFromFloat(17.3)))
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	val := []byte(`{"a":1}`)
	require.NoError(t, s.Set(ctx, "k", val))
	val[0] = 'X'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), got)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
