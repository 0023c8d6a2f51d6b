package indexapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"quotes-api/internal/models"
	"quotes-api/internal/monitoring"
	"quotes-api/internal/providers"
)

const Name = "indexapi"

// Config holds Index API client settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	RateLimit int // requests per minute
}

// Client fetches benchmark index levels. Only caret-prefixed symbols reach
// it; instrument symbols answer empty so the equity cascade is untouched.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Entry
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.indexapi.io/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 6 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 60
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimit)), 5),
		log:        logrus.WithField("provider", Name),
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) Configured() bool { return c.apiKey != "" }

type indexRow struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"changePercent"`
}

// FetchQuotes implements providers.Adapter. It tries one batch call first and
// falls back to per-symbol requests for anything the batch missed.
func (c *Client) FetchQuotes(ctx context.Context, syms []string, market models.Market) ([]models.Quote, error) {
	if !c.Configured() {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeUnauthorized, "api key missing", false)
	}
	indexes := make([]string, 0, len(syms))
	for _, s := range syms {
		if models.IsIndexSymbol(s) {
			indexes = append(indexes, s)
		}
	}
	if len(indexes) == 0 {
		return nil, nil
	}

	bySym, batchErr := c.batch(ctx, indexes)
	transport := 0
	answered := 0
	if batchErr != nil && providers.IsTransport(batchErr) {
		transport++
	} else {
		answered++
	}

	var out []models.Quote
	for _, orig := range indexes {
		row, ok := bySym[strings.ToUpper(orig)]
		if !ok {
			var err error
			row, err = c.fetchOne(ctx, orig)
			if err != nil && providers.IsTransport(err) {
				transport++
			} else {
				answered++
			}
		}
		if row == nil || row.Price <= 0 {
			continue
		}
		out = append(out, models.Quote{
			Symbol:    orig,
			Name:      models.DisplayName(orig, row.Name),
			Price:     decimal.NewFromFloat(row.Price),
			ChangePct: decimal.NewFromFloat(row.ChangePercent),
			Volume:    decimal.Zero,
			Provider:  Name,
			Timestamp: time.Now(),
		})
	}
	if answered == 0 && transport > 0 {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeNetworkError, "all index requests failed", true)
	}
	return out, nil
}

func (c *Client) batch(ctx context.Context, indexes []string) (map[string]*indexRow, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeRateLimit, "rate limit wait cancelled", true)
	}
	u := c.baseURL + "/quotes?symbols=" + url.QueryEscape(strings.Join(indexes, ",")) + "&apikey=" + url.QueryEscape(c.apiKey)

	var rows []indexRow
	err := providers.GetJSON(ctx, c.httpClient, Name, u, &rows)
	monitoring.ProviderRequest(Name, err == nil)
	if err != nil {
		c.log.WithError(err).Debug("batch failed")
		return nil, err
	}
	m := make(map[string]*indexRow, len(rows))
	for _, r := range rows {
		r := r
		m[strings.ToUpper(r.Symbol)] = &r
	}
	return m, nil
}

func (c *Client) fetchOne(ctx context.Context, sym string) (*indexRow, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeRateLimit, "rate limit wait cancelled", true)
	}
	u := c.baseURL + "/quote?symbol=" + url.QueryEscape(sym) + "&apikey=" + url.QueryEscape(c.apiKey)

	var row indexRow
	err := providers.GetJSON(ctx, c.httpClient, Name, u, &row)
	monitoring.ProviderRequest(Name, err == nil)
	if err != nil {
		return nil, err
	}
	if row.Symbol == "" {
		row.Symbol = sym
	}
	return &row, nil
}

var _ providers.Adapter = (*Client)(nil)
