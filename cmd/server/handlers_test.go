package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotes-api/internal/cache"
	"quotes-api/internal/config"
	"quotes-api/internal/dto"
	"quotes-api/internal/models"
	"quotes-api/internal/providers"
	"quotes-api/internal/ratelimit"
	"quotes-api/internal/resolver"
	"quotes-api/internal/stream"
)

type staticAdapter struct {
	prices map[string]float64
}

func (s *staticAdapter) Name() string { return "static" }

func (s *staticAdapter) FetchQuotes(_ context.Context, syms []string, _ models.Market) ([]models.Quote, error) {
	var out []models.Quote
	for _, sym := range syms {
		if p, ok := s.prices[sym]; ok {
			out = append(out, models.Quote{
				Symbol:   sym,
				Name:     sym,
				Price:    decimal.NewFromFloat(p),
				Provider: "static",
			})
		}
	}
	return out, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		// Registering twice is fine; the tag is overwritten.
		require.NoError(t, dto.RegisterValidations(v))
	}

	adapter := &staticAdapter{prices: map[string]float64{"AAPL": 190, "BTC": 97000}}
	res := resolver.New(resolver.Config{},
		cache.NewQuoteCache(cache.NewMemoryStore()),
		ratelimit.NewGuard(3, 0),
		resolver.Deps{
			Equity: []providers.Adapter{adapter},
			Crypto: []providers.Adapter{adapter},
		})

	srv := &Server{
		router:   gin.New(),
		resolver: res,
		streamer: stream.New(config.StreamConfig{}, res),
	}
	srv.setupRoutes(promhttp.Handler())
	return srv
}

func do(srv *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	w := do(newTestServer(t), "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestQuotesEndpoint(t *testing.T) {
	srv := newTestServer(t)

	t.Run("resolves known symbols", func(t *testing.T) {
		w := do(srv, "/api/v1/quotes?market=us&symbols=AAPL,NOPE")
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Market string         `json:"market"`
			Data   []models.Quote `json:"data"`
			Count  int            `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "us", resp.Market)
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, "AAPL", resp.Data[0].Symbol)
	})

	t.Run("rejects unknown market", func(t *testing.T) {
		w := do(srv, "/api/v1/quotes?market=bonds&symbols=AAPL")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects missing symbols", func(t *testing.T) {
		w := do(srv, "/api/v1/quotes?market=us")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCryptoQuotesEndpoint(t *testing.T) {
	w := do(newTestServer(t), "/api/v1/crypto/quotes?symbols=BTC")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "BTC")
}

func TestFxEndpoint(t *testing.T) {
	srv := newTestServer(t)

	w := do(srv, "/api/v1/fx?base=USD&quote=MXN")
	require.Equal(t, http.StatusOK, w.Code)

	var fx models.FxRate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fx))
	assert.Equal(t, "static", fx.Source, "no live source wired, the floor answers")

	w = do(srv, "/api/v1/fx?base=USD&quote=TOOLONG")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSparkEndpointValidation(t *testing.T) {
	srv := newTestServer(t)

	w := do(srv, "/api/v1/spark/AAPL?market=us&interval=2min")
	assert.Equal(t, http.StatusBadRequest, w.Code, "unsupported interval")

	w = do(srv, "/api/v1/spark/AAPL?market=us")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	w := do(newTestServer(t), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}
