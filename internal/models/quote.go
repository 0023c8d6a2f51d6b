package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market identifies the instrument class a symbol belongs to.
type Market string

const (
	MarketUS     Market = "us"
	MarketMX     Market = "mx"
	MarketCrypto Market = "crypto"
)

// Valid reports whether m is one of the supported markets.
func (m Market) Valid() bool {
	switch m {
	case MarketUS, MarketMX, MarketCrypto:
		return true
	}
	return false
}

// Quote is the normalized output unit shared by every provider adapter.
// Symbol is always the canonical (caller-facing) form regardless of what the
// provider was actually queried with.
type Quote struct {
	Symbol    string          `json:"symbol" validate:"required"`
	Name      string          `json:"name,omitempty"`
	Price     decimal.Decimal `json:"price" validate:"gte=0"`
	PriceUSD  decimal.Decimal `json:"price_usd,omitempty"`
	ChangePct decimal.Decimal `json:"change_pct"`
	Volume    decimal.Decimal `json:"volume"`
	Provider  string          `json:"provider,omitempty"`
	Exchange  string          `json:"exchange,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// Valid reports whether the quote carries a usable price. Quotes that fail
// this check are treated as fetch failures and must never be cached or
// returned to callers.
func (q *Quote) Valid() bool {
	return q != nil && q.Symbol != "" && q.Price.IsPositive()
}

// FxRate is a single exchange-rate observation with its origin attached so
// callers can tell a live rate from the hardcoded last resort.
type FxRate struct {
	Base   string          `json:"base"`
	Quote  string          `json:"quote"`
	Rate   decimal.Decimal `json:"rate"`
	Source string          `json:"source"`
}

// IsIndexSymbol reports whether s names a composite benchmark rather than a
// tradable instrument. Benchmarks use a dedicated data path because intraday
// instrument feeds return a tracking-fund proxy price for them.
func IsIndexSymbol(s string) bool {
	return len(s) > 0 && s[0] == '^'
}

// IndexNames maps benchmark symbols to their fixed display names. These
// override any provider-supplied name, which tends to be ambiguous for
// indices.
var IndexNames = map[string]string{
	"^GSPC": "S&P 500",
	"^DJI":  "Dow Jones Industrial Average",
	"^IXIC": "Nasdaq Composite",
	"^MXX":  "S&P/BMV IPC",
}

// DisplayName resolves the user-facing name for a canonical symbol, applying
// the index override table before any provider-supplied name.
func DisplayName(symbol, providerName string) string {
	if n, ok := IndexNames[symbol]; ok {
		return n
	}
	if providerName != "" {
		return providerName
	}
	return symbol
}
