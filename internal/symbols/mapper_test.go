package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"quotes-api/internal/models"
)

func TestToProviderSymbol(t *testing.T) {
	tests := []struct {
		name     string
		symbol   string
		market   models.Market
		provider string
		want     string
	}{
		{"us passthrough", "AAPL", models.MarketUS, ProviderTwelveData, "AAPL"},
		{"us class share alias", "BRK-B", models.MarketUS, ProviderTwelveData, "BRK.B"},
		{"us alias only on twelvedata", "BRK-B", models.MarketUS, ProviderFMP, "BRK-B"},
		{"mx strips suffix", "WALMEX.MX", models.MarketMX, ProviderTwelveData, "WALMEX"},
		{"mx series ticker", "TLEVISA.CPO", models.MarketMX, ProviderTwelveData, "TLEVISACPO"},
		{"mx renamed listing stays canonical", "AMXL", models.MarketMX, ProviderTwelveData, "AMXL"},
		{"mx finnhub gets suffix back", "WALMEX.MX", models.MarketMX, ProviderFinnhub, "WALMEX.MX"},
		{"mx fmp gets suffix", "WALMEX", models.MarketMX, ProviderFMP, "WALMEX.MX"},
		{"mx index no suffix", "^MXX", models.MarketMX, ProviderFinnhub, "^MXX"},
		{"index caret stripped", "^DJI", models.MarketUS, ProviderTwelveData, "DJI"},
		{"index unmapped kept", "^GSPC", models.MarketUS, ProviderTwelveData, "^GSPC"},
		{"crypto twelvedata pair", "BTC", models.MarketCrypto, ProviderTwelveData, "BTC/USD"},
		{"crypto binance pair", "btc", models.MarketCrypto, ProviderBinance, "BTCUSDT"},
		{"crypto coinbase pair", "ETH", models.MarketCrypto, ProviderCoinbase, "ETH-USD"},
		{"crypto coingecko id", "BTC", models.MarketCrypto, ProviderCoinGecko, "bitcoin"},
		{"crypto coingecko unmapped lowered", "ZZZ", models.MarketCrypto, ProviderCoinGecko, "zzz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToProviderSymbol(tt.symbol, tt.market, tt.provider))
		})
	}
}

func TestDualListedAlias(t *testing.T) {
	assert.Equal(t, "AMXB", DualListedAlias("AMXL", models.MarketMX))
	assert.Equal(t, "AMXB", DualListedAlias("AMXL.MX", models.MarketMX))
	assert.Empty(t, DualListedAlias("AMXL", models.MarketUS))
	assert.Empty(t, DualListedAlias("WALMEX", models.MarketMX))
}

func TestAliasDisplayName(t *testing.T) {
	assert.Equal(t, "América Móvil, S.A.B. de C.V.", AliasDisplayName("AMXB"))
	assert.Equal(t, "OTHER", AliasDisplayName("OTHER"))
}

func TestCoinGeckoID(t *testing.T) {
	id, ok := CoinGeckoID("btc")
	assert.True(t, ok)
	assert.Equal(t, "bitcoin", id)

	_, ok = CoinGeckoID("ZZZ")
	assert.False(t, ok)
}
