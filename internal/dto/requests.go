package dto

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"quotes-api/internal/models"
)

// MaxSymbolsPerRequest bounds one lookup. Anything above this is a client
// error, not a bigger batch.
const MaxSymbolsPerRequest = 50

// QuotesRequest is the query shape of GET /api/v1/quotes.
type QuotesRequest struct {
	Market  string `form:"market" binding:"required,market"`
	Symbols string `form:"symbols" binding:"required"`
}

// CryptoQuotesRequest is the query shape of GET /api/v1/crypto/quotes.
type CryptoQuotesRequest struct {
	Symbols string `form:"symbols" binding:"required"`
}

// SparkRequest is the query shape of GET /api/v1/spark/:symbol.
type SparkRequest struct {
	Market   string `form:"market" binding:"required,market"`
	Interval string `form:"interval" binding:"omitempty,oneof=1min 5min 15min 30min 45min 1h 2h 4h 1day 1week"`
	Points   int    `form:"points" binding:"omitempty,min=1,max=500"`
}

// FxRequest is the query shape of GET /api/v1/fx.
type FxRequest struct {
	Base  string `form:"base" binding:"required,alpha,len=3"`
	Quote string `form:"quote" binding:"required,alpha,len=3"`
}

// RegisterValidations installs the custom tags on gin's validator engine.
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation("market", func(fl validator.FieldLevel) bool {
		return models.Market(fl.Field().String()).Valid()
	})
}

// SymbolList splits a comma-separated symbol parameter, trimming blanks and
// capping the count.
func SymbolList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
		if len(out) == MaxSymbolsPerRequest {
			break
		}
	}
	return out
}
