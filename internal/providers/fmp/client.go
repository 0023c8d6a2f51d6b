package fmp

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
	"quotes-api/internal/symbols"
)

const Name = "fmp"

// Config holds Financial Modeling Prep client settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	RateLimit int // requests per minute
}

// Client talks to the FMP v3 quote endpoint. The free tier only carries US
// listings, so the adapter answers empty for everything else and the cascade
// moves on.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Entry
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://financialmodelingprep.com/api/v3"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 120
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

type quoteRow struct {
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Price             float64 `json:"price"`
	ChangesPercentage float64 `json:"changesPercentage"`
	Volume            float64 `json:"volume"`
	Exchange          string  `json:"exchange"`
}

// FetchQuotes implements providers.Adapter. One comma-joined request covers
// the whole batch.
func (c *Client) FetchQuotes(ctx context.Context, syms []string, market models.Market) ([]models.Quote, error) {
	if market != models.MarketUS {
		return nil, nil
	}
	if !c.Configured() {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeUnauthorized, "api key missing", false)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeRateLimit, "rate limit wait cancelled", true)
	}

	joined := make([]string, len(syms))
	for i, s := range syms {
		joined[i] = symbols.ToProviderSymbol(s, market, symbols.ProviderFMP)
	}
	u := c.baseURL + "/quote/" + url.PathEscape(strings.Join(joined, ",")) + "?apikey=" + url.QueryEscape(c.apiKey)

	var rows []quoteRow
	err := providers.GetJSON(ctx, c.httpClient, Name, u, &rows)
	monitoring.ProviderRequest(Name, err == nil)
	if err != nil {
		return nil, err
	}

	bySym := make(map[string]quoteRow, len(rows))
	for _, r := range rows {
		bySym[strings.ToUpper(r.Symbol)] = r
	}

	var out []models.Quote
	for i, orig := range syms {
		r, ok := bySym[strings.ToUpper(joined[i])]
		if !ok || r.Price <= 0 {
			continue
		}
		out = append(out, models.Quote{
			Symbol:    orig,
			Name:      models.DisplayName(orig, r.Name),
			Price:     decimal.NewFromFloat(r.Price),
			ChangePct: decimal.NewFromFloat(r.ChangesPercentage),
			Volume:    decimal.NewFromFloat(r.Volume),
			Provider:  Name,
			Exchange:  r.Exchange,
			Timestamp: time.Now(),
		})
	}
	return out, nil
}

var _ providers.Adapter = (*Client)(nil)
