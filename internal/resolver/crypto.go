package resolver

import (
	"context"
	"time"

	"quotes-api/internal/cache"
	"quotes-api/internal/models"
	"quotes-api/internal/monitoring"
)

// GetCryptoQuotes resolves crypto quotes by base asset (BTC, ETH, ...).
// Prices are USD; PriceUSD mirrors Price. The cascade broadens only when the
// lead exchange resolved less than the configured coverage share, and the
// static fallback table answers for assets nothing live could price.
func (r *Resolver) GetCryptoQuotes(ctx context.Context, bases []string) []models.Quote {
	start := time.Now()
	defer func() { monitoring.ObserveResolve(string(models.MarketCrypto), time.Since(start)) }()

	if len(bases) == 0 {
		return []models.Quote{}
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.SoftDeadline)
	defer cancel()

	bases = dedupe(bases)
	resolved := make(map[string]models.Quote, len(bases))

	missing := make([]string, 0, len(bases))
	for _, b := range bases {
		if q := r.cache.ReadFresh(ctx, cache.QuoteKey(models.MarketCrypto, b), r.ttl(models.MarketCrypto)); q != nil {
			resolved[key(b)] = *q
			continue
		}
		missing = append(missing, b)
	}

	if len(missing) > 0 && len(r.crypto) > 0 {
		// Lead exchange first.
		r.runCascade(ctx, r.crypto[:1], models.MarketCrypto, missing, resolved)

		rest := r.crypto[1:]
		covered := float64(len(bases)-len(unresolvedOf(bases, resolved))) / float64(len(bases))
		if covered >= r.cfg.CryptoCoverage && len(rest) > 0 {
			// Coverage is healthy; skip the aggregator step and go straight
			// to the thin spot feeds for whatever is left.
			rest = rest[1:]
		}
		r.runCascade(ctx, rest, models.MarketCrypto, unresolvedOf(missing, resolved), resolved)
	}

	r.backfillVolume(ctx, resolved)

	// Stale beats absent, and the static table beats nothing at all. The
	// cascade may have burned the soft deadline, so the read runs on a
	// detached context.
	staleCtx := context.WithoutCancel(ctx)
	for _, b := range missing {
		if _, ok := resolved[key(b)]; ok {
			continue
		}
		if q := r.cache.ReadStale(staleCtx, cache.QuoteKey(models.MarketCrypto, b)); q != nil {
			resolved[key(b)] = *q
			monitoring.StaleServed(string(models.MarketCrypto))
			continue
		}
		if q := r.fallback.Quote(b); q != nil {
			// Approximate placeholder rows are never cached.
			resolved[key(b)] = *q
		}
	}
	return assemble(bases, resolved)
}

// backfillVolume patches rows that resolved without volume (the aggregator
// feeds often omit it) using the lead exchange's 24h ticker. Best-effort:
// prices are never touched and failures are ignored.
func (r *Resolver) backfillVolume(ctx context.Context, resolved map[string]models.Quote) {
	if r.overlay == nil || r.guard.ShouldSkip(r.overlay.Name()) {
		return
	}
	var thin []string
	for b, q := range resolved {
		if q.Provider != r.overlay.Name() && !q.Volume.IsPositive() {
			thin = append(thin, b)
		}
	}
	if len(thin) == 0 {
		return
	}
	quotes, err := r.overlay.FetchQuotes(ctx, thin, models.MarketCrypto)
	if err != nil {
		return
	}
	for _, oq := range quotes {
		q, ok := resolved[key(oq.Symbol)]
		if !ok || !oq.Volume.IsPositive() {
			continue
		}
		q.Volume = oq.Volume
		if q.ChangePct.IsZero() {
			q.ChangePct = oq.ChangePct
		}
		resolved[key(oq.Symbol)] = q
		r.cache.Write(ctx, cache.QuoteKey(models.MarketCrypto, oq.Symbol), &q)
	}
}
