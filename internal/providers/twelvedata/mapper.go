package twelvedata

import (
	"encoding/json"
	"strings"

	"quotes-api/internal/models"
)

// quoteItem is one row of a /quote response. Twelve Data serializes numbers
// as strings, so the fields stay strings and parsing happens at the edge.
type quoteItem struct {
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Exchange      string `json:"exchange"`
	MicCode       string `json:"mic_code"`
	Price         string `json:"price"`
	Close         string `json:"close"`
	PreviousClose string `json:"previous_close"`
	PercentChange string `json:"percent_change"`
	Volume        string `json:"volume"`
	AverageVolume string `json:"average_volume"`
	IsMarketOpen  *bool  `json:"is_market_open"`

	// Error envelope; the API answers 200 with these set on bad symbols.
	Code    int    `json:"code,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

func (it *quoteItem) failed() bool {
	return it == nil || it.Code >= 400 || strings.EqualFold(it.Status, "error")
}

// usablePrice reports whether any of the price fields carries a positive
// value. Zero-priced rows are treated the same as missing rows.
func (it *quoteItem) usablePrice() bool {
	if it == nil {
		return false
	}
	return firstPositive(it.Price, it.Close, it.PreviousClose).IsPositive()
}

// venue returns the mic code when present, otherwise the exchange label.
func (it *quoteItem) venue() string {
	if it.MicCode != "" {
		return it.MicCode
	}
	return it.Exchange
}

// marketClosed reports whether the venue explicitly flags the market closed.
// A missing flag is not "closed"; it feeds the suspect check instead.
func (it *quoteItem) marketClosed() bool {
	return it.IsMarketOpen != nil && !*it.IsMarketOpen
}

// isSuspect flags quotes that are technically well-formed but likely carry
// last-session data instead of live ticks. For the Mexican market the home
// venue does this in three recognizable shapes: the row came from a venue
// other than the intraday one while the market state is closed or unknown, or
// the price equals the previous close exactly.
func isSuspect(it *quoteItem, market models.Market) bool {
	if market != models.MarketMX || it == nil {
		return false
	}
	if it.venue() == venueXMEX {
		return false
	}
	closedOrUnknown := it.IsMarketOpen == nil || !*it.IsMarketOpen
	if closedOrUnknown {
		return true
	}
	price, prev := num(it.Price), num(it.PreviousClose)
	return price.IsPositive() && prev.IsPositive() && price.Equal(prev)
}

// batchResponse covers the two shapes the quote endpoints answer with: a
// {"data": [...]} envelope for multi-symbol requests, or a bare quote object.
type batchResponse struct {
	Data   []quoteItem `json:"data"`
	Code   int         `json:"code,omitempty"`
	Status string      `json:"status,omitempty"`

	raw json.RawMessage
}

func (b *batchResponse) UnmarshalJSON(data []byte) error {
	type alias batchResponse
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*b = batchResponse(a)
	b.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (b *batchResponse) items() []quoteItem {
	if b.Code >= 400 || strings.EqualFold(b.Status, "error") {
		return nil
	}
	if len(b.Data) > 0 {
		return b.Data
	}
	// Single-object shape.
	var it quoteItem
	if err := json.Unmarshal(b.raw, &it); err == nil && it.Symbol != "" && !it.failed() {
		return []quoteItem{it}
	}
	// Multi-symbol requests may also answer keyed by symbol.
	var bySym map[string]quoteItem
	if err := json.Unmarshal(b.raw, &bySym); err == nil {
		out := make([]quoteItem, 0, len(bySym))
		for sym, it := range bySym {
			if it.Symbol == "" {
				it.Symbol = sym
			}
			if !it.failed() {
				out = append(out, it)
			}
		}
		return out
	}
	return nil
}

// priceItem is a /price response row. The endpoint normally answers just
// {"price": "..."} but error envelopes and quote-shaped rows appear too.
type priceItem struct {
	Price         string `json:"price"`
	Close         string `json:"close"`
	PreviousClose string `json:"previous_close"`
	Code          int    `json:"code,omitempty"`
	Status        string `json:"status,omitempty"`
}

func (it *priceItem) failed() bool {
	return it == nil || it.Code >= 400 || strings.EqualFold(it.Status, "error")
}

// seriesResponse is a /time_series answer, newest value first.
type seriesResponse struct {
	Values []seriesValue `json:"values"`
	Code   int           `json:"code,omitempty"`
	Status string        `json:"status,omitempty"`
}

type seriesValue struct {
	Datetime string `json:"datetime"`
	Close    string `json:"close"`
}

func (r *seriesResponse) failed() bool {
	return r.Code >= 400 || strings.EqualFold(r.Status, "error")
}

// looksDaily reports whether the series carries date-only timestamps. A
// minute-interval request answered this way means the venue only has EOD data
// for the symbol.
func (r *seriesResponse) looksDaily() bool {
	for _, v := range r.Values {
		if v.Datetime != "" {
			return !strings.Contains(v.Datetime, ":")
		}
	}
	return false
}

// closes returns the close series oldest first, dropping unparsable rows.
func (r *seriesResponse) closes() []float64 {
	out := make([]float64, 0, len(r.Values))
	for i := len(r.Values) - 1; i >= 0; i-- {
		d := num(r.Values[i].Close)
		if d.IsZero() {
			continue
		}
		f, _ := d.Float64()
		out = append(out, f)
	}
	return out
}
