package symbols

import (
	"strings"

	"quotes-api/internal/models"
)

// Provider identifiers understood by the mapper. Every adapter passes its own
// id so one mapper covers the whole cascade.
const (
	ProviderTwelveData = "twelvedata"
	ProviderFMP        = "fmp"
	ProviderFinnhub    = "finnhub"
	ProviderIndexAPI   = "indexapi"
	ProviderBinance    = "binance"
	ProviderCoinbase   = "coinbase"
	ProviderCoinGecko  = "coingecko"
)

// Static alias tables. These instruments trade under a different code on the
// given feed; the lookup is fixed, not computed.
var (
	twelveDataUS = map[string]string{
		"BRK-B": "BRK.B",
		"BRK-A": "BRK.A",
	}
	twelveDataMX = map[string]string{
		"TLEVISA.CPO": "TLEVISACPO",
	}
	twelveDataIndex = map[string]string{
		"^DJI":  "DJI",
		"^IXIC": "IXIC",
		"^MXX":  "MXX",
	}
	// coinGeckoIDs maps canonical base assets to CoinGecko coin ids.
	coinGeckoIDs = map[string]string{
		"BTC":   "bitcoin",
		"ETH":   "ethereum",
		"USDT":  "tether",
		"BNB":   "binancecoin",
		"SOL":   "solana",
		"XRP":   "ripple",
		"USDC":  "usd-coin",
		"ADA":   "cardano",
		"DOGE":  "dogecoin",
		"AVAX":  "avalanche-2",
		"DOT":   "polkadot",
		"LINK":  "chainlink",
		"MATIC": "matic-network",
		"LTC":   "litecoin",
		"UNI":   "uniswap",
		"AAVE":  "aave",
	}
)

// ToProviderSymbol maps a canonical symbol to the form a specific provider
// expects for the given market. It is a total function: unmapped symbols fall
// through unchanged so callers never have to handle a missing mapping.
func ToProviderSymbol(canonical string, market models.Market, providerID string) string {
	s := canonical
	switch market {
	case models.MarketCrypto:
		return cryptoPair(strings.ToUpper(s), providerID)
	case models.MarketMX:
		s = strings.TrimSuffix(s, ".MX")
		if providerID == ProviderTwelveData {
			if alias, ok := twelveDataMX[s]; ok {
				s = alias
			}
		}
		if (providerID == ProviderFinnhub || providerID == ProviderFMP) && !models.IsIndexSymbol(s) {
			// Yahoo-style suffixed tickers.
			s += ".MX"
		}
	case models.MarketUS:
		if providerID == ProviderTwelveData {
			if alias, ok := twelveDataUS[s]; ok {
				s = alias
			}
		}
	}
	if !models.IsIndexSymbol(canonical) {
		return s
	}
	if providerID == ProviderTwelveData {
		if alias, ok := twelveDataIndex[canonical]; ok {
			return alias
		}
	}
	return s
}

func cryptoPair(base, providerID string) string {
	switch providerID {
	case ProviderTwelveData:
		return base + "/USD"
	case ProviderBinance:
		return base + "USDT"
	case ProviderCoinbase:
		return base + "-USD"
	case ProviderCoinGecko:
		if id, ok := coinGeckoIDs[base]; ok {
			return id
		}
		return strings.ToLower(base)
	}
	return base
}

// CoinGeckoID returns the CoinGecko coin id for a base asset, and whether the
// asset is in the static lookup at all. Assets outside the table cannot be
// queried on that feed.
func CoinGeckoID(base string) (string, bool) {
	id, ok := coinGeckoIDs[strings.ToUpper(base)]
	return id, ok
}

// DualListedAlias returns the alternate ticker for a known dual-listed or
// renamed instrument on the given market, or "" when the symbol has none.
// Adapters retry the alias only after the primary symbol exhausted its venue
// retry sequence.
func DualListedAlias(canonical string, market models.Market) string {
	if market == models.MarketMX && strings.TrimSuffix(canonical, ".MX") == "AMXL" {
		return "AMXB"
	}
	return ""
}

// AliasDisplayName returns the fixed display name to use when a quote was
// resolved through a dual-listed alias, so the row is not labeled with the
// alias code.
func AliasDisplayName(alias string) string {
	if alias == "AMXB" {
		return "América Móvil, S.A.B. de C.V."
	}
	return alias
}
