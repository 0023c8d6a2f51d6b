package coinbase

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

const Name = "coinbase"

// Config holds Coinbase public-API client settings.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	Concurrency int
	RateLimit   int // requests per minute
}

// Client reads spot prices from the public v2 endpoint. Spot rows carry no
// change percent or volume; they only exist to keep a price on screen when
// the richer feeds are down.
type Client struct {
	baseURL     string
	concurrency int
	httpClient  *http.Client
	limiter     *rate.Limiter
	log         *logrus.Entry
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.coinbase.com/v2"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 120
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		concurrency: cfg.Concurrency,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimit)), 5),
		log:         logrus.WithField("provider", Name),
	}
}

func (c *Client) Name() string { return Name }

type spotResponse struct {
	Data struct {
		Amount string `json:"amount"`
	} `json:"data"`
}

// FetchQuotes implements providers.Adapter for the crypto market.
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
	if answered == 0 && len(bases) > 0 {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeNetworkError, "all spot requests failed", true)
	}
	return out, nil
}

func (c *Client) fetchOne(ctx context.Context, base string) (*models.Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeRateLimit, "rate limit wait cancelled", true)
	}
	pair := symbols.ToProviderSymbol(base, models.MarketCrypto, symbols.ProviderCoinbase)
	u := c.baseURL + "/prices/" + url.PathEscape(pair) + "/spot"

	var resp spotResponse
	err := providers.GetJSON(ctx, c.httpClient, Name, u, &resp)
	monitoring.ProviderRequest(Name, err == nil)
	if err != nil {
		c.log.WithError(err).WithField("pair", pair).Debug("spot failed")
		return nil, err
	}
	price, perr := decimal.NewFromString(strings.TrimSpace(resp.Data.Amount))
	if perr != nil || !price.IsPositive() {
		return nil, nil
	}
	return &models.Quote{
		Symbol:    strings.ToUpper(base),
		Name:      models.DisplayName(strings.ToUpper(base), ""),
		Price:     price,
		PriceUSD:  price,
		ChangePct: decimal.Zero,
		Volume:    decimal.Zero,
		Provider:  Name,
		Timestamp: time.Now(),
	}, nil
}

var _ providers.Adapter = (*Client)(nil)
