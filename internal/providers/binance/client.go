package binance

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"quotes-api/internal/models"
	"quotes-api/internal/monitoring"
	"quotes-api/internal/providers"
	"quotes-api/internal/symbols"
)

const Name = "binance"

// Config holds Binance public-API client settings.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	Concurrency int
	RateLimit   int // requests per minute
}

// Client reads the public 24h ticker. No credential is needed, which is why
// it sits first in the crypto cascade.
type Client struct {
	baseURL     string
	concurrency int
	httpClient  *http.Client
	limiter     *rate.Limiter
	log         *logrus.Entry
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.binance.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 6
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 600
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		concurrency: cfg.Concurrency,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimit)), 20),
		log:         logrus.WithField("provider", Name),
	}
}

func (c *Client) Name() string { return Name }

type tickerRow struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
}

// FetchQuotes implements providers.Adapter for the crypto market. Base-coin
// volume is preferred; the USDT quote volume backfills pairs that report
// zero.
func (c *Client) FetchQuotes(ctx context.Context, bases []string, market models.Market) ([]models.Quote, error) {
	if market != models.MarketCrypto {
		return nil, nil
	}

	results := make([]*models.Quote, len(bases))
	errs := make([]error, len(bases))
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	for i, base := range bases {
		wg.Add(1)
		go func(i int, base string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i], errs[i] = c.fetchOne(ctx, base)
		}(i, base)
	}
	wg.Wait()

	var out []models.Quote
	answered := 0
	for i, q := range results {
		if errs[i] == nil || !providers.IsTransport(errs[i]) {
			answered++
		}
		if q != nil {
			out = append(out, *q)
		}
	}
	// A provider that never answered is down, not merely short on symbols.
	if answered == 0 && len(bases) > 0 {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeNetworkError, "all ticker requests failed", true)
	}
	return out, nil
}

func (c *Client) fetchOne(ctx context.Context, base string) (*models.Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeRateLimit, "rate limit wait cancelled", true)
	}
	pair := symbols.ToProviderSymbol(base, models.MarketCrypto, symbols.ProviderBinance)
	u := c.baseURL + "/api/v3/ticker/24hr?symbol=" + url.QueryEscape(pair)

	var row tickerRow
	err := providers.GetJSON(ctx, c.httpClient, Name, u, &row)
	monitoring.ProviderRequest(Name, err == nil)
	if err != nil {
		c.log.WithError(err).WithField("pair", pair).Debug("ticker failed")
		return nil, err
	}

	price := num(row.LastPrice)
	if !price.IsPositive() {
		return nil, nil
	}
	vol := num(row.Volume)
	if !vol.IsPositive() {
		vol = num(row.QuoteVolume)
	}
	return &models.Quote{
		Symbol:    strings.ToUpper(base),
		Name:      models.DisplayName(strings.ToUpper(base), ""),
		Price:     price,
		PriceUSD:  price,
		ChangePct: num(row.PriceChangePercent),
		Volume:    vol,
		Provider:  Name,
		Timestamp: time.Now(),
	}, nil
}

func num(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

var _ providers.Adapter = (*Client)(nil)
