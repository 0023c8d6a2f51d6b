package twelvedata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"quotes-api/internal/models"
	"quotes-api/internal/monitoring"
	"quotes-api/internal/providers"
	"quotes-api/internal/symbols"
)

const Name = "twelvedata"

// Venue codes for the Mexican exchange. BMV is the home venue but frequently
// answers with last-close data outside a narrow window; XMEX carries intraday
// ticks, so suspect BMV quotes are re-issued pinned to it.
const (
	venueBMV  = "BMV"
	venueXMEX = "XMEX"
)

// Config holds Twelve Data client settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	BatchSize  int
	GroupDelay time.Duration
	RateLimit  int // requests per minute
}

// Client talks to the Twelve Data REST API. It covers equity quotes, the
// price-only endpoint, crypto pair quotes, time series and forex, since the
// upstream serves all of them under one key.
type Client struct {
	apiKey     string
	baseURL    string
	batchSize  int
	groupDelay time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Entry
}

// NewClient creates a Twelve Data client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twelvedata.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 300
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		batchSize:  cfg.BatchSize,
		groupDelay: cfg.GroupDelay,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimit)), 10),
		log:        logrus.WithField("provider", Name),
	}
}

// Name implements providers.Adapter.
func (c *Client) Name() string { return Name }

// failTally counts request outcomes across one fan-out. A provider that never
// produced a response at all is reported as a batch-level error so the
// cascade's failure guard sees it; a provider that answered with error rows
// just yields fewer quotes.
type failTally struct {
	transport int32
	answered  int32
}

func (t *failTally) note(err error) {
	if err != nil && providers.IsTransport(err) {
		atomic.AddInt32(&t.transport, 1)
		return
	}
	atomic.AddInt32(&t.answered, 1)
}

func (t *failTally) allTransport() bool {
	return atomic.LoadInt32(&t.transport) > 0 && atomic.LoadInt32(&t.answered) == 0
}

// Configured reports whether the client has a usable credential.
func (c *Client) Configured() bool { return c.apiKey != "" }

// FetchQuotes implements the primary equity feed. Symbols are batched, and
// each returned quote runs through the per-symbol validity check with the
// venue-pin/no-pin/alias retry sequence before it is accepted.
func (c *Client) FetchQuotes(ctx context.Context, syms []string, market models.Market) ([]models.Quote, error) {
	if !c.Configured() {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeUnauthorized, "api key missing", false)
	}
	if market == models.MarketCrypto {
		return c.cryptoQuotes(ctx, syms)
	}

	var (
		mu    sync.Mutex
		out   []models.Quote
		tally failTally
	)
	for i, group := range providers.Chunk(syms, c.batchSize) {
		if i > 0 && c.groupDelay > 0 {
			select {
			case <-ctx.Done():
				return out, nil
			case <-time.After(c.groupDelay):
			}
		}

		batch := c.batchQuotes(ctx, group, market, &tally)

		var wg sync.WaitGroup
		for _, orig := range group {
			wg.Add(1)
			go func(orig string) {
				defer wg.Done()
				q := c.resolveEquity(ctx, orig, market, batch, &tally)
				if q != nil {
					mu.Lock()
					out = append(out, *q)
					mu.Unlock()
				}
			}(orig)
		}
		wg.Wait()
	}
	if tally.allTransport() {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeNetworkError, "all quote requests failed", true)
	}
	return ordered(syms, out), nil
}

// batchQuotes issues one comma-joined quote request for a group. A failed
// batch is not fatal; resolveEquity falls back to single-symbol requests.
func (c *Client) batchQuotes(ctx context.Context, group []string, market models.Market, tally *failTally) map[string]*quoteItem {
	tdSyms := make([]string, len(group))
	for i, s := range group {
		tdSyms[i] = symbols.ToProviderSymbol(s, market, symbols.ProviderTwelveData)
	}
	params := url.Values{"apikey": {c.apiKey}, "symbol": {strings.Join(tdSyms, ",")}}
	if market == models.MarketMX {
		params.Set("exchange", venueBMV)
	}

	var raw batchResponse
	err := c.get(ctx, "/quote", params, &raw)
	monitoring.ProviderRequest(Name, err == nil)
	tally.note(err)
	if err != nil {
		c.log.WithError(err).WithField("market", market).Debug("batch quote failed")
		return nil
	}
	items := raw.items()
	if len(items) == 0 {
		return nil
	}
	m := make(map[string]*quoteItem, len(items))
	for _, it := range items {
		it := it
		if k := strings.ToUpper(it.Symbol); k != "" {
			m[k] = &it
		}
	}
	return m
}

// resolveEquity applies the per-symbol decision procedure: take the batch row
// (or fetch one), detect suspect data, and walk the retry ladder of
// alternate-venue pin, no pin, then the dual-listed alias under the same
// sequence. Returns nil when every attempt failed.
func (c *Client) resolveEquity(ctx context.Context, orig string, market models.Market, batch map[string]*quoteItem, tally *failTally) *models.Quote {
	tdSym := symbols.ToProviderSymbol(orig, market, symbols.ProviderTwelveData)

	var it *quoteItem
	if cached, ok := batch[strings.ToUpper(tdSym)]; ok {
		it = cached
	} else {
		params := map[string]string{}
		if market == models.MarketMX {
			params["exchange"] = venueBMV
		}
		it, _ = c.fetchQuote(ctx, tdSym, params, tally)
	}

	// Suspect BMV rows are re-issued pinned to the intraday venue before
	// they are trusted.
	if market == models.MarketMX && it != nil && !it.failed() && isSuspect(it, market) {
		if alt, err := c.fetchQuote(ctx, tdSym, map[string]string{"mic_code": venueXMEX}, tally); err == nil && alt.usablePrice() {
			it = alt
		}
	}
	if market == models.MarketMX && (it == nil || it.failed() || !it.usablePrice()) {
		if alt, err := c.fetchQuote(ctx, tdSym, map[string]string{"mic_code": venueXMEX}, tally); err == nil && !alt.failed() {
			it = alt
		}
	}
	if market == models.MarketMX && (it == nil || it.failed() || !it.usablePrice()) {
		// Last venue attempt: let the provider pick.
		if alt, err := c.fetchQuote(ctx, tdSym, nil, tally); err == nil && !alt.failed() {
			it = alt
		}
	}

	usedAlias := ""
	if it == nil || it.failed() || !it.usablePrice() {
		if alias := symbols.DualListedAlias(orig, market); alias != "" && alias != tdSym {
			if aq := c.tryAliasQuote(ctx, alias, market, tally); aq != nil {
				it = aq
				usedAlias = alias
			}
		}
	}

	if it == nil || it.failed() || !it.usablePrice() {
		return nil
	}
	return c.normalize(orig, usedAlias, market, it)
}

// tryAliasQuote walks the same venue sequence for a dual-listed alias ticker.
func (c *Client) tryAliasQuote(ctx context.Context, alias string, market models.Market, tally *failTally) *quoteItem {
	attempts := []map[string]string{nil}
	if market == models.MarketMX {
		attempts = []map[string]string{
			{"exchange": venueBMV},
			{"mic_code": venueXMEX},
			nil,
		}
	}
	for _, params := range attempts {
		it, err := c.fetchQuote(ctx, alias, params, tally)
		if err == nil && !it.failed() && it.usablePrice() {
			return it
		}
	}
	return nil
}

// normalize converts a validated quote item into the canonical model,
// applying the closed-market price preference.
func (c *Client) normalize(orig, usedAlias string, market models.Market, it *quoteItem) *models.Quote {
	venue := it.venue()
	var price decimal.Decimal
	switch {
	case market == models.MarketMX && venue == venueXMEX:
		price = firstPositive(it.Price, it.Close, it.PreviousClose)
	case it.marketClosed():
		// Venue reports closed: last close beats a stale intraday tick.
		price = firstPositive(it.PreviousClose, it.Close, it.Price)
	default:
		price = firstPositive(it.Price, it.Close, it.PreviousClose)
	}
	if !price.IsPositive() {
		return nil
	}

	name := it.Name
	if usedAlias != "" {
		name = symbols.AliasDisplayName(usedAlias)
	}
	q := &models.Quote{
		Symbol:    orig,
		Name:      models.DisplayName(orig, name),
		Price:     price,
		ChangePct: num(it.PercentChange),
		Volume:    firstPositive(it.Volume, it.AverageVolume),
		Provider:  Name,
		Exchange:  venue,
		Timestamp: time.Now(),
	}
	if market == models.MarketCrypto {
		q.PriceUSD = price
	}
	return q
}

// fetchQuote issues a single-symbol quote request with optional extra params
// (venue pin).
func (c *Client) fetchQuote(ctx context.Context, sym string, extra map[string]string, tally *failTally) (*quoteItem, error) {
	params := url.Values{"apikey": {c.apiKey}, "symbol": {sym}}
	for k, v := range extra {
		params.Set(k, v)
	}
	var it quoteItem
	err := c.get(ctx, "/quote", params, &it)
	monitoring.ProviderRequest(Name, err == nil)
	tally.note(err)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, v interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return providers.NewProviderError(Name, providers.ErrorCodeRateLimit, "rate limit wait cancelled", true)
	}
	return providers.GetJSON(ctx, c.httpClient, Name, c.baseURL+path+"?"+params.Encode(), v)
}

// ordered rebuilds results in the requested symbol order.
func ordered(syms []string, quotes []models.Quote) []models.Quote {
	bySym := make(map[string]models.Quote, len(quotes))
	for _, q := range quotes {
		bySym[strings.ToUpper(q.Symbol)] = q
	}
	out := make([]models.Quote, 0, len(quotes))
	for _, s := range syms {
		if q, ok := bySym[strings.ToUpper(s)]; ok {
			out = append(out, q)
		}
	}
	return out
}

func firstPositive(vals ...string) decimal.Decimal {
	for _, v := range vals {
		if d := num(v); d.IsPositive() {
			return d
		}
	}
	return decimal.Zero
}

func num(s string) decimal.Decimal {
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

var _ providers.Adapter = (*Client)(nil)

// PriceOnlyAdapter is the last-resort equity feed: the /price endpoint from
// the same provider, attempted with the same venue-pin/no-pin/alias sequence.
// Rows carry no change percent or volume.
type PriceOnlyAdapter struct {
	c *Client
}

// NewPriceOnlyAdapter wraps an existing client.
func NewPriceOnlyAdapter(c *Client) *PriceOnlyAdapter { return &PriceOnlyAdapter{c: c} }

func (p *PriceOnlyAdapter) Name() string { return Name + "_price" }

func (p *PriceOnlyAdapter) FetchQuotes(ctx context.Context, syms []string, market models.Market) ([]models.Quote, error) {
	if !p.c.Configured() {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeUnauthorized, "api key missing", false)
	}
	var out []models.Quote
	var tally failTally
	for _, orig := range syms {
		price := p.resolvePrice(ctx, orig, market, &tally)
		if !price.IsPositive() {
			continue
		}
		out = append(out, models.Quote{
			Symbol:    orig,
			Name:      models.DisplayName(orig, ""),
			Price:     price,
			ChangePct: decimal.Zero,
			Volume:    decimal.Zero,
			Provider:  p.Name(),
			Timestamp: time.Now(),
		})
	}
	if tally.allTransport() {
		return nil, providers.NewProviderError(p.Name(), providers.ErrorCodeNetworkError, "all price requests failed", true)
	}
	return out, nil
}

func (p *PriceOnlyAdapter) resolvePrice(ctx context.Context, orig string, market models.Market, tally *failTally) decimal.Decimal {
	tdSym := symbols.ToProviderSymbol(orig, market, symbols.ProviderTwelveData)

	candidates := []string{tdSym}
	if alias := symbols.DualListedAlias(orig, market); alias != "" && alias != tdSym {
		candidates = append(candidates, alias)
	}
	attempts := []map[string]string{nil}
	if market == models.MarketMX {
		attempts = []map[string]string{
			{"exchange": venueBMV},
			{"mic_code": venueXMEX},
			nil,
		}
	}

	for _, sym := range candidates {
		for _, extra := range attempts {
			params := url.Values{"apikey": {p.c.apiKey}, "symbol": {sym}}
			for k, v := range extra {
				params.Set(k, v)
			}
			var it priceItem
			err := p.c.get(ctx, "/price", params, &it)
			monitoring.ProviderRequest(p.Name(), err == nil)
			tally.note(err)
			if err != nil || it.failed() {
				continue
			}
			if d := firstPositive(it.Price, it.Close, it.PreviousClose); d.IsPositive() {
				return d
			}
		}
	}
	return decimal.Zero
}

var _ providers.Adapter = (*PriceOnlyAdapter)(nil)

// cryptoQuotes fetches {base}/USD pair quotes in batches with an inter-group
// delay, falling back to single-pair requests for bases the batch missed.
func (c *Client) cryptoQuotes(ctx context.Context, bases []string) ([]models.Quote, error) {
	var out []models.Quote
	var tally failTally
	for i, group := range providers.Chunk(bases, c.batchSize) {
		if i > 0 && c.groupDelay > 0 {
			select {
			case <-ctx.Done():
				return out, nil
			case <-time.After(c.groupDelay):
			}
		}

		pairs := make([]string, len(group))
		for j, b := range group {
			pairs[j] = symbols.ToProviderSymbol(b, models.MarketCrypto, symbols.ProviderTwelveData)
		}
		params := url.Values{"apikey": {c.apiKey}, "symbols": {strings.Join(pairs, ",")}}

		var raw batchResponse
		err := c.get(ctx, "/quotes", params, &raw)
		monitoring.ProviderRequest(Name, err == nil)
		tally.note(err)

		got := make(map[string]bool, len(group))
		if err == nil {
			for _, it := range raw.items() {
				it := it
				if it.failed() {
					continue
				}
				base := strings.ToUpper(strings.TrimSuffix(it.Symbol, "/USD"))
				if q := c.normalizeCrypto(base, &it); q != nil {
					out = append(out, *q)
					got[base] = true
				}
			}
		}

		for _, base := range group {
			if got[strings.ToUpper(base)] {
				continue
			}
			pair := symbols.ToProviderSymbol(base, models.MarketCrypto, symbols.ProviderTwelveData)
			it, ferr := c.fetchQuote(ctx, pair, nil, &tally)
			if ferr != nil || it.failed() {
				continue
			}
			if q := c.normalizeCrypto(strings.ToUpper(base), it); q != nil {
				out = append(out, *q)
			}
		}
	}
	if tally.allTransport() {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeNetworkError, "all quote requests failed", true)
	}
	return ordered(bases, out), nil
}

func (c *Client) normalizeCrypto(base string, it *quoteItem) *models.Quote {
	price := firstPositive(it.Price, it.Close, it.PreviousClose)
	if !price.IsPositive() {
		return nil
	}
	return &models.Quote{
		Symbol:    base,
		Name:      models.DisplayName(base, it.Name),
		Price:     price,
		PriceUSD:  price,
		ChangePct: num(it.PercentChange),
		Volume:    firstPositive(it.Volume, it.AverageVolume),
		Provider:  Name,
		Timestamp: time.Now(),
	}
}

// Spark fetches a close-price series for a symbol, oldest first. Minute-level
// requests that come back with date-only timestamps are treated as invalid and
// rerouted, so a daily series never masquerades as intraday data.
func (c *Client) Spark(ctx context.Context, symbol string, market models.Market, interval string, points int) ([]float64, error) {
	if !c.Configured() {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeUnauthorized, "api key missing", false)
	}
	tdSym := symbols.ToProviderSymbol(symbol, market, symbols.ProviderTwelveData)

	candidates := []string{tdSym}
	if alias := symbols.DualListedAlias(symbol, market); alias != "" && alias != tdSym {
		candidates = append(candidates, alias)
	}
	attempts := []map[string]string{nil}
	if market == models.MarketMX {
		attempts = []map[string]string{
			{"exchange": venueBMV},
			{"mic_code": venueXMEX},
			nil,
		}
	}

	var tally failTally
	for _, sym := range candidates {
		for _, extra := range attempts {
			params := url.Values{
				"apikey":     {c.apiKey},
				"symbol":     {sym},
				"interval":   {interval},
				"outputsize": {fmt.Sprintf("%d", points)},
			}
			for k, v := range extra {
				params.Set(k, v)
			}
			var raw seriesResponse
			err := c.get(ctx, "/time_series", params, &raw)
			monitoring.ProviderRequest(Name, err == nil)
			tally.note(err)
			if err != nil || raw.failed() || len(raw.Values) == 0 {
				continue
			}
			if isMinuteInterval(interval) && raw.looksDaily() {
				// EOD rows answered a minute request; keep walking the
				// venue ladder.
				continue
			}
			return raw.closes(), nil
		}
	}
	if tally.allTransport() {
		return nil, providers.NewProviderError(Name, providers.ErrorCodeNetworkError, "all series requests failed", true)
	}
	return nil, nil
}

// Forex fetches a single exchange-rate pair.
func (c *Client) Forex(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	if !c.Configured() {
		return decimal.Zero, providers.NewProviderError(Name, providers.ErrorCodeUnauthorized, "api key missing", false)
	}
	params := url.Values{"apikey": {c.apiKey}, "symbol": {strings.ToUpper(base) + "/" + strings.ToUpper(quote)}}
	var it quoteItem
	err := c.get(ctx, "/forex/quote", params, &it)
	monitoring.ProviderRequest(Name, err == nil)
	if err != nil {
		return decimal.Zero, err
	}
	if it.failed() {
		return decimal.Zero, providers.NewProviderError(Name, providers.ErrorCodeInvalidData, "forex quote rejected", false)
	}
	rate := firstPositive(it.Price, it.Close, it.PreviousClose)
	if !rate.IsPositive() {
		return decimal.Zero, providers.NewProviderError(Name, providers.ErrorCodeNoData, "no usable rate", false)
	}
	return rate, nil
}

func isMinuteInterval(interval string) bool {
	return strings.HasSuffix(strings.ToLower(interval), "min")
}
