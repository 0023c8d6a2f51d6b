package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"quotes-api/internal/models"
	"quotes-api/internal/monitoring"
)

// entry wraps a cached value with the wall-clock time it was written.
// Freshness is decided at read time against the caller's TTL, so one entry
// serves both the fresh path and the stale-fallback path.
type entry struct {
	TS   int64           `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// QuoteCache stores the last successfully normalized quote per symbol. All
// storage-layer errors are swallowed: the cache is best-effort and must never
// fail a resolution.
type QuoteCache struct {
	store Store
	now   func() time.Time
	log   *logrus.Entry
}

// NewQuoteCache wraps a Store. The clock is injectable for tests.
func NewQuoteCache(store Store) *QuoteCache {
	return &QuoteCache{
		store: store,
		now:   time.Now,
		log:   logrus.WithField("component", "quote_cache"),
	}
}

// WithClock overrides the cache clock. Test use only.
func (c *QuoteCache) WithClock(now func() time.Time) *QuoteCache {
	c.now = now
	return c
}

// QuoteKey builds the cache key for a quote.
func QuoteKey(market models.Market, symbol string) string {
	return fmt.Sprintf("%s:%s", market, strings.ToUpper(symbol))
}

// SparkKey builds the cache key for a close-price series. Interval and point
// count are part of the key so different chart resolutions don't collide.
func SparkKey(market models.Market, symbol, interval string, points int) string {
	return fmt.Sprintf("spark:%s:%s:%s:%d", market, strings.ToUpper(symbol), interval, points)
}

// FxKey builds the cache key for an exchange-rate pair.
func FxKey(base, quote string) string {
	return fmt.Sprintf("fx:%s:%s", strings.ToUpper(base), strings.ToUpper(quote))
}

// ReadFresh returns the cached quote if it was written within ttl, nil
// otherwise.
func (c *QuoteCache) ReadFresh(ctx context.Context, key string, ttl time.Duration) *models.Quote {
	q, age := c.read(ctx, key)
	if q == nil || age >= ttl {
		monitoring.CacheMiss("quote")
		return nil
	}
	monitoring.CacheHit("quote")
	return q
}

// ReadStale returns the cached quote regardless of age, nil if the key was
// never written.
func (c *QuoteCache) ReadStale(ctx context.Context, key string) *models.Quote {
	q, _ := c.read(ctx, key)
	return q
}

// Write unconditionally overwrites the entry with the current timestamp.
// Quotes with a non-positive price are refused; they are fetch failures, not
// data.
func (c *QuoteCache) Write(ctx context.Context, key string, q *models.Quote) {
	if !q.Valid() {
		return
	}
	c.write(ctx, key, q)
}

func (c *QuoteCache) read(ctx context.Context, key string) (*models.Quote, time.Duration) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, 0
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, 0
	}
	var q models.Quote
	if err := json.Unmarshal(e.Data, &q); err != nil {
		return nil, 0
	}
	if !q.Valid() {
		return nil, 0
	}
	age := c.now().Sub(time.UnixMilli(e.TS))
	return &q, age
}

func (c *QuoteCache) write(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	raw, err := json.Marshal(entry{TS: c.now().UnixMilli(), Data: data})
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, raw); err != nil {
		c.log.WithError(err).WithField("key", key).Debug("cache write failed")
	}
}

// ReadFreshSpark returns a cached close-price series within ttl, nil
// otherwise.
func (c *QuoteCache) ReadFreshSpark(ctx context.Context, key string, ttl time.Duration) []float64 {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		monitoring.CacheMiss("spark")
		return nil
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil
	}
	if c.now().Sub(time.UnixMilli(e.TS)) >= ttl {
		monitoring.CacheMiss("spark")
		return nil
	}
	var closes []float64
	if err := json.Unmarshal(e.Data, &closes); err != nil {
		return nil
	}
	monitoring.CacheHit("spark")
	return closes
}

// WriteSpark stores a close-price series.
func (c *QuoteCache) WriteSpark(ctx context.Context, key string, closes []float64) {
	if len(closes) == 0 {
		return
	}
	c.write(ctx, key, closes)
}

// ReadFreshFx returns a cached exchange rate within ttl, nil otherwise.
func (c *QuoteCache) ReadFreshFx(ctx context.Context, key string, ttl time.Duration) *models.FxRate {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		monitoring.CacheMiss("fx")
		return nil
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil
	}
	if c.now().Sub(time.UnixMilli(e.TS)) >= ttl {
		monitoring.CacheMiss("fx")
		return nil
	}
	var rate models.FxRate
	if err := json.Unmarshal(e.Data, &rate); err != nil {
		return nil
	}
	if !rate.Rate.IsPositive() {
		return nil
	}
	monitoring.CacheHit("fx")
	return &rate
}

// ReadStaleFx returns a cached exchange rate regardless of age, nil if the
// pair was never written.
func (c *QuoteCache) ReadStaleFx(ctx context.Context, key string) *models.FxRate {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return nil
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil
	}
	var rate models.FxRate
	if err := json.Unmarshal(e.Data, &rate); err != nil || !rate.Rate.IsPositive() {
		return nil
	}
	return &rate
}

// WriteFx stores an exchange rate.
func (c *QuoteCache) WriteFx(ctx context.Context, key string, rate *models.FxRate) {
	if rate == nil || !rate.Rate.IsPositive() {
		return
	}
	c.write(ctx, key, rate)
}
