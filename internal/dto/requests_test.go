package dto

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolList(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "MSFT"}, SymbolList("aapl, msft"))
	assert.Equal(t, []string{"BTC"}, SymbolList(",btc,,"))
	assert.Empty(t, SymbolList("  ,  "))

	long := strings.Repeat("X,", MaxSymbolsPerRequest+10)
	assert.Len(t, SymbolList(long), MaxSymbolsPerRequest)
}

func TestMarketValidation(t *testing.T) {
	v := validator.New()
	require.NoError(t, RegisterValidations(v))

	type probe struct {
		Market string `validate:"required,market"`
	}
	assert.NoError(t, v.Struct(probe{Market: "us"}))
	assert.NoError(t, v.Struct(probe{Market: "mx"}))
	assert.NoError(t, v.Struct(probe{Market: "crypto"}))
	assert.Error(t, v.Struct(probe{Market: "bonds"}))
	assert.Error(t, v.Struct(probe{Market: ""}))
}
