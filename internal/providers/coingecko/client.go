package coingecko

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

const Name = "coingecko"

// Config holds CoinGecko client settings.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit int // requests per minute
}

// Client reads the simple/price endpoint. Coverage is limited to assets in
// the static id lookup; unmapped bases are skipped rather than guessed.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Entry
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 6 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 30
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimit)), 3),
		log:        logrus.WithField("provider", Name),
	}
}

func (c *Client) Name() string { return Name }

type priceRow struct {
	USD       float64 `json:"usd"`
	USDVol    float64 `json:"usd_24h_vol"`
	USDChange float64 `json:"usd_24h_change"`
}

// FetchQuotes implements providers.Adapter. One call covers every mapped
// base.
func (c *Client) FetchQuotes(ctx context.Context, bases []string, market models.Market) ([]models.Quote, error) {
	if market != models.MarketCrypto {
		return nil, nil
	}
	ids := make([]string, 0, len(bases))
	idToBase := make(map[string]string, len(bases))
	for _, b := range bases {
		if id, ok := symbols.CoinGeckoID(b); ok {
			ids = append(ids, id)
			idToBase[id] = strings.ToUpper(b)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeRateLimit, "rate limit wait cancelled", true)
	}

	u := c.baseURL + "/simple/price?ids=" + url.QueryEscape(strings.Join(ids, ",")) +
		"&vs_currencies=usd&include_24hr_vol=true&include_24hr_change=true"

	var rows map[string]priceRow
	err := providers.GetJSON(ctx, c.httpClient, Name, u, &rows)
	monitoring.ProviderRequest(Name, err == nil)
	if err != nil {
		return nil, err
	}

	var out []models.Quote
	for _, id := range ids {
		row, ok := rows[id]
		if !ok || row.USD <= 0 {
			continue
		}
		base := idToBase[id]
		price := decimal.NewFromFloat(row.USD)
		out = append(out, models.Quote{
			Symbol:    base,
			Name:      models.DisplayName(base, ""),
			Price:     price,
			PriceUSD:  price,
			ChangePct: decimal.NewFromFloat(row.USDChange),
			Volume:    decimal.NewFromFloat(row.USDVol),
			Provider:  Name,
			Timestamp: time.Now(),
		})
	}
	return out, nil
}

var _ providers.Adapter = (*Client)(nil)
