package resolver

import (
	"context"

	"quotes-api/internal/cache"
	"quotes-api/internal/models"
)

// SparkOptions selects the series resolution.
type SparkOptions struct {
	Interval string
	Points   int
}

// GetSpark resolves a close-price series for charting, oldest first. Results
// are cached under interval+points so different chart resolutions never
// collide. Returns an empty slice when nothing could be fetched.
func (r *Resolver) GetSpark(ctx context.Context, symbol string, market models.Market, opts SparkOptions) []float64 {
	if symbol == "" || !market.Valid() {
		return []float64{}
	}
	if opts.Interval == "" {
		opts.Interval = "1min"
	}
	if opts.Points <= 0 {
		opts.Points = 60
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.SoftDeadline)
	defer cancel()

	key := cache.SparkKey(market, symbol, opts.Interval, opts.Points)
	if closes := r.cache.ReadFreshSpark(ctx, key, r.cfg.SparkTTL); closes != nil {
		return closes
	}

	if r.spark == nil || r.guard.ShouldSkip(r.spark.Name()) {
		return []float64{}
	}
	closes, err := r.spark.Spark(ctx, symbol, market, opts.Interval, opts.Points)
	if err != nil {
		r.guard.RecordFailure(r.spark.Name())
		return []float64{}
	}
	if len(closes) == 0 {
		return []float64{}
	}
	r.guard.RecordSuccess(r.spark.Name())
	r.cache.WriteSpark(ctx, key, closes)
	return closes
}
