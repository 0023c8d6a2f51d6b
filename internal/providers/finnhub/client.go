package finnhub

import (
	"context"
	"net/http"
	"net/url"
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

const Name = "finnhub"

// Config holds Finnhub client settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	Concurrency int
	RateLimit   int // requests per minute
}

// Client talks to the Finnhub quote endpoint. The API is strictly
// one-symbol-per-request, so batches fan out over a bounded worker set.
type Client struct {
	apiKey      string
	baseURL     string
	concurrency int
	httpClient  *http.Client
	limiter     *rate.Limiter
	log         *logrus.Entry
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://finnhub.io/api/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 6 * time.Second
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 60
	}
	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		concurrency: cfg.Concurrency,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimit)), 5),
		log:         logrus.WithField("provider", Name),
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) Configured() bool { return c.apiKey != "" }

// quoteRow is Finnhub's terse quote shape: current price, percent change,
// previous close.
type quoteRow struct {
	Current       float64 `json:"c"`
	PercentChange float64 `json:"dp"`
	PreviousClose float64 `json:"pc"`
	Volume        float64 `json:"v"`
}

// FetchQuotes implements providers.Adapter.
func (c *Client) FetchQuotes(ctx context.Context, syms []string, market models.Market) ([]models.Quote, error) {
	if market == models.MarketCrypto {
		return nil, nil
	}
	if !c.Configured() {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeUnauthorized, "api key missing", false)
	}

	results := make([]*models.Quote, len(syms))
	errs := make([]error, len(syms))
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	for i, orig := range syms {
		wg.Add(1)
		go func(i int, orig string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i], errs[i] = c.fetchOne(ctx, orig, market)
		}(i, orig)
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
	if answered == 0 && len(syms) > 0 {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeNetworkError, "all quote requests failed", true)
	}
	return out, nil
}

func (c *Client) fetchOne(ctx context.Context, orig string, market models.Market) (*models.Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeRateLimit, "rate limit wait cancelled", true)
	}
	sym := symbols.ToProviderSymbol(orig, market, symbols.ProviderFinnhub)
	u := c.baseURL + "/quote?symbol=" + url.QueryEscape(sym) + "&token=" + url.QueryEscape(c.apiKey)

	var row quoteRow
	err := providers.GetJSON(ctx, c.httpClient, Name, u, &row)
	monitoring.ProviderRequest(Name, err == nil)
	if err != nil {
		c.log.WithError(err).WithField("symbol", orig).Debug("quote failed")
		return nil, err
	}
	// Unknown symbols answer 200 with all-zero fields.
	if row.Current <= 0 {
		return nil, nil
	}
	return &models.Quote{
		Symbol:    orig,
		Name:      models.DisplayName(orig, ""),
		Price:     decimal.NewFromFloat(row.Current),
		ChangePct: decimal.NewFromFloat(row.PercentChange),
		Volume:    decimal.NewFromFloat(row.Volume),
		Provider:  Name,
		Timestamp: time.Now(),
	}, nil
}

var _ providers.Adapter = (*Client)(nil)
