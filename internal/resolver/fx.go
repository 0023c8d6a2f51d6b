package resolver

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"quotes-api/internal/cache"
	"quotes-api/internal/models"
	"quotes-api/internal/monitoring"
	"quotes-api/internal/providers"
)

// usdMXNFloor is the hardcoded last-resort USD/MXN rate. Stale beats it, but
// a cold cache with every fx upstream down still has to convert something.
var usdMXNFloor = decimal.NewFromInt(18)

// FxFallback fetches a rate from the free open-data endpoints. Two instances
// cover open.er-api.com and exchangerate.host.
type FxFallback struct {
	name       string
	fetch      func(ctx context.Context, c *http.Client, base, quote string) (decimal.Decimal, error)
	httpClient *http.Client
}

func (f *FxFallback) Name() string { return f.name }

func (f *FxFallback) Rate(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	return f.fetch(ctx, f.httpClient, base, quote)
}

// NewOpenERAPI builds the open.er-api.com fallback.
func NewOpenERAPI(timeout time.Duration) *FxFallback {
	if timeout == 0 {
		timeout = 6 * time.Second
	}
	return &FxFallback{
		name:       "open-er-api",
		httpClient: &http.Client{Timeout: timeout},
		fetch: func(ctx context.Context, c *http.Client, base, quote string) (decimal.Decimal, error) {
			var resp struct {
				Result string             `json:"result"`
				Rates  map[string]float64 `json:"rates"`
			}
			u := "https://open.er-api.com/v6/latest/" + url.PathEscape(strings.ToUpper(base))
			if err := providers.GetJSON(ctx, c, "open-er-api", u, &resp); err != nil {
				return decimal.Zero, err
			}
			if resp.Result != "success" {
				return decimal.Zero, providers.NewProviderError("open-er-api", providers.ErrorCodeInvalidData, "non-success result", false)
			}
			rate, ok := resp.Rates[strings.ToUpper(quote)]
			if !ok || rate <= 0 {
				return decimal.Zero, providers.NewProviderError("open-er-api", providers.ErrorCodeNoData, "pair not quoted", false)
			}
			return decimal.NewFromFloat(rate), nil
		},
	}
}

// NewExchangerateHost builds the exchangerate.host fallback.
func NewExchangerateHost(timeout time.Duration) *FxFallback {
	if timeout == 0 {
		timeout = 6 * time.Second
	}
	return &FxFallback{
		name:       "exchangerate-host",
		httpClient: &http.Client{Timeout: timeout},
		fetch: func(ctx context.Context, c *http.Client, base, quote string) (decimal.Decimal, error) {
			var resp struct {
				Success *bool              `json:"success"`
				Rates   map[string]float64 `json:"rates"`
			}
			u := "https://api.exchangerate.host/latest?base=" + url.QueryEscape(strings.ToUpper(base)) +
				"&symbols=" + url.QueryEscape(strings.ToUpper(quote))
			if err := providers.GetJSON(ctx, c, "exchangerate-host", u, &resp); err != nil {
				return decimal.Zero, err
			}
			if resp.Success != nil && !*resp.Success {
				return decimal.Zero, providers.NewProviderError("exchangerate-host", providers.ErrorCodeInvalidData, "non-success result", false)
			}
			rate, ok := resp.Rates[strings.ToUpper(quote)]
			if !ok || rate <= 0 {
				return decimal.Zero, providers.NewProviderError("exchangerate-host", providers.ErrorCodeNoData, "pair not quoted", false)
			}
			return decimal.NewFromFloat(rate), nil
		},
	}
}

// RateSource is the narrow shape of an fx fallback step.
type RateSource interface {
	Name() string
	Rate(ctx context.Context, base, quote string) (decimal.Decimal, error)
}

// fxFallbacks is set at construction; exposed as a field setter so main can
// wire the open-data endpoints without the resolver importing them blindly.
func (r *Resolver) SetFxFallbacks(sources ...RateSource) {
	r.fxFallbacks = sources
}

// GetFxRate resolves an exchange rate through the cascade: fresh cache, the
// primary forex feed, the open-data fallbacks, the stale cache, and finally
// the hardcoded USD/MXN constant. The source field always names where the
// number came from.
func (r *Resolver) GetFxRate(ctx context.Context, base, quote string) models.FxRate {
	base, quote = strings.ToUpper(strings.TrimSpace(base)), strings.ToUpper(strings.TrimSpace(quote))
	if base == "" || quote == "" {
		return models.FxRate{Base: base, Quote: quote, Source: "unavailable"}
	}
	if base == quote {
		return models.FxRate{Base: base, Quote: quote, Rate: decimal.NewFromInt(1), Source: "identity"}
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.SoftDeadline)
	defer cancel()

	cacheKey := cache.FxKey(base, quote)
	if cached := r.cache.ReadFreshFx(ctx, cacheKey, r.cfg.FxTTL); cached != nil {
		return *cached
	}

	if r.forex != nil && !r.guard.ShouldSkip(r.forex.Name()) {
		rate, err := r.forex.Forex(ctx, base, quote)
		if err != nil {
			r.guard.RecordFailure(r.forex.Name())
		} else if rate.IsPositive() {
			r.guard.RecordSuccess(r.forex.Name())
			fx := models.FxRate{Base: base, Quote: quote, Rate: rate, Source: r.forex.Name()}
			r.cache.WriteFx(ctx, cacheKey, &fx)
			return fx
		}
	}

	for _, src := range r.fxFallbacks {
		if r.guard.ShouldSkip(src.Name()) {
			continue
		}
		rate, err := src.Rate(ctx, base, quote)
		if err != nil {
			r.guard.RecordFailure(src.Name())
			continue
		}
		if rate.IsPositive() {
			r.guard.RecordSuccess(src.Name())
			fx := models.FxRate{Base: base, Quote: quote, Rate: rate, Source: src.Name()}
			r.cache.WriteFx(ctx, cacheKey, &fx)
			return fx
		}
	}

	if stale := r.cache.ReadStaleFx(context.WithoutCancel(ctx), cacheKey); stale != nil {
		monitoring.StaleServed("fx")
		return *stale
	}

	if base == "USD" && quote == "MXN" {
		return models.FxRate{Base: base, Quote: quote, Rate: usdMXNFloor, Source: "static"}
	}
	return models.FxRate{Base: base, Quote: quote, Source: "unavailable"}
}
