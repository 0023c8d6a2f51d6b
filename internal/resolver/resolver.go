package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"quotes-api/internal/cache"
	"quotes-api/internal/models"
	"quotes-api/internal/monitoring"
	"quotes-api/internal/providers"
	"quotes-api/internal/ratelimit"
)

// Config tunes resolution behavior. Zero values get sensible defaults in New.
type Config struct {
	QuoteTTL       map[models.Market]time.Duration
	SparkTTL       time.Duration
	FxTTL          time.Duration
	SoftDeadline   time.Duration
	CryptoCoverage float64 // minimum resolved share before broadening the crypto cascade
}

const defaultQuoteTTL = 15 * time.Second

// SparkSource fetches a close-price series. Satisfied by the Twelve Data
// client; narrowed to an interface so resolver tests can fake it.
type SparkSource interface {
	Name() string
	Spark(ctx context.Context, symbol string, market models.Market, interval string, points int) ([]float64, error)
}

// ForexSource fetches one exchange-rate pair.
type ForexSource interface {
	Name() string
	Forex(ctx context.Context, base, quote string) (decimal.Decimal, error)
}

// Resolver answers quote, spark and fx lookups by walking provider cascades
// over a shared cache. It never returns an error to callers: the worst
// outcome of any public operation is an empty result.
type Resolver struct {
	cfg   Config
	cache *cache.QuoteCache
	guard *ratelimit.Guard

	equity []providers.Adapter
	index  []providers.Adapter
	crypto []providers.Adapter

	spark       SparkSource
	forex       ForexSource
	fxFallbacks []RateSource
	fallback    *FallbackTable
	overlay     providers.Adapter // backfills exchange data onto aggregator-sourced crypto rows

	log *logrus.Entry
}

// Deps carries the wired adapter sets. Cascade order is the slice order.
type Deps struct {
	Equity []providers.Adapter
	Index  []providers.Adapter
	Crypto []providers.Adapter

	Spark    SparkSource
	Forex    ForexSource
	Fallback *FallbackTable
	Overlay  providers.Adapter
}

// New builds a resolver.
func New(cfg Config, qc *cache.QuoteCache, guard *ratelimit.Guard, deps Deps) *Resolver {
	if cfg.QuoteTTL == nil {
		cfg.QuoteTTL = map[models.Market]time.Duration{}
	}
	if cfg.SparkTTL == 0 {
		cfg.SparkTTL = 60 * time.Second
	}
	if cfg.FxTTL == 0 {
		cfg.FxTTL = time.Hour
	}
	if cfg.SoftDeadline == 0 {
		cfg.SoftDeadline = 10 * time.Second
	}
	if cfg.CryptoCoverage == 0 {
		cfg.CryptoCoverage = 0.5
	}
	if deps.Fallback == nil {
		deps.Fallback = DefaultFallbackTable()
	}
	return &Resolver{
		cfg:      cfg,
		cache:    qc,
		guard:    guard,
		equity:   deps.Equity,
		index:    deps.Index,
		crypto:   deps.Crypto,
		spark:    deps.Spark,
		forex:    deps.Forex,
		fallback: deps.Fallback,
		overlay:  deps.Overlay,
		log:      logrus.WithField("component", "resolver"),
	}
}

func (r *Resolver) ttl(market models.Market) time.Duration {
	if d, ok := r.cfg.QuoteTTL[market]; ok && d > 0 {
		return d
	}
	return defaultQuoteTTL
}

// GetQuotes resolves quotes for the given market. The result preserves the
// input symbol order; symbols that could not be resolved anywhere, including
// the stale cache, are omitted.
func (r *Resolver) GetQuotes(ctx context.Context, market models.Market, syms []string) []models.Quote {
	if !market.Valid() || len(syms) == 0 {
		return []models.Quote{}
	}
	if market == models.MarketCrypto {
		return r.GetCryptoQuotes(ctx, syms)
	}
	start := time.Now()
	defer func() { monitoring.ObserveResolve(string(market), time.Since(start)) }()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.SoftDeadline)
	defer cancel()

	syms = dedupe(syms)
	resolved := make(map[string]models.Quote, len(syms))

	// Fresh cache first; only misses hit the network.
	missing := make([]string, 0, len(syms))
	for _, s := range syms {
		if q := r.cache.ReadFresh(ctx, cache.QuoteKey(market, s), r.ttl(market)); q != nil {
			resolved[key(s)] = *q
			continue
		}
		missing = append(missing, s)
	}

	// Benchmarks and instruments walk separate cascades.
	var indexes, instruments []string
	for _, s := range missing {
		if models.IsIndexSymbol(s) {
			indexes = append(indexes, s)
		} else {
			instruments = append(instruments, s)
		}
	}
	r.runCascade(ctx, r.index, market, indexes, resolved)
	r.runCascade(ctx, r.equity, market, instruments, resolved)

	// Anything still missing falls back to the stale cache; an old price
	// beats an empty row. The cascade may have burned the soft deadline, so
	// the read runs on a detached context.
	staleCtx := context.WithoutCancel(ctx)
	for _, s := range missing {
		if _, ok := resolved[key(s)]; ok {
			continue
		}
		if q := r.cache.ReadStale(staleCtx, cache.QuoteKey(market, s)); q != nil {
			resolved[key(s)] = *q
			monitoring.StaleServed(string(market))
		}
	}
	return assemble(syms, resolved)
}

// runCascade walks the adapter list in order, asking each step only for the
// symbols the previous steps left unresolved. Adapter errors count against
// the rate-limit guard; an adapter in cooldown is skipped without a call.
func (r *Resolver) runCascade(ctx context.Context, adapters []providers.Adapter, market models.Market, syms []string, resolved map[string]models.Quote) {
	remaining := syms
	for _, a := range adapters {
		if len(remaining) == 0 {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if r.guard.ShouldSkip(a.Name()) {
			continue
		}
		quotes, err := a.FetchQuotes(ctx, remaining, market)
		if err != nil {
			r.guard.RecordFailure(a.Name())
			r.log.WithError(err).WithFields(logrus.Fields{
				"provider": a.Name(),
				"market":   market,
			}).Debug("cascade step failed")
			continue
		}
		if len(quotes) > 0 {
			r.guard.RecordSuccess(a.Name())
		}
		for _, q := range quotes {
			if !q.Valid() {
				continue
			}
			q := q
			resolved[key(q.Symbol)] = q
			r.cache.Write(ctx, cache.QuoteKey(market, q.Symbol), &q)
		}
		remaining = unresolvedOf(remaining, resolved)
	}
}

func unresolvedOf(syms []string, resolved map[string]models.Quote) []string {
	var out []string
	for _, s := range syms {
		if _, ok := resolved[key(s)]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// assemble rebuilds the output in the requested order, dropping unresolved
// symbols.
func assemble(syms []string, resolved map[string]models.Quote) []models.Quote {
	out := make([]models.Quote, 0, len(syms))
	for _, s := range syms {
		if q, ok := resolved[key(s)]; ok {
			out = append(out, q)
		}
	}
	return out
}

func dedupe(syms []string) []string {
	seen := make(map[string]bool, len(syms))
	out := make([]string, 0, len(syms))
	for _, s := range syms {
		s = strings.TrimSpace(s)
		if s == "" || seen[key(s)] {
			continue
		}
		seen[key(s)] = true
		out = append(out, s)
	}
	return out
}

func key(s string) string { return strings.ToUpper(s) }
