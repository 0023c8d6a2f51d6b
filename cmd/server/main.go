package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"quotes-api/internal/cache"
	"quotes-api/internal/config"
	"quotes-api/internal/dto"
	"quotes-api/internal/providers"
	"quotes-api/internal/providers/binance"
	"quotes-api/internal/providers/coinbase"
	"quotes-api/internal/providers/coingecko"
	"quotes-api/internal/providers/finnhub"
	"quotes-api/internal/providers/fmp"
	"quotes-api/internal/providers/indexapi"
	"quotes-api/internal/providers/twelvedata"
	"quotes-api/internal/ratelimit"
	"quotes-api/internal/resolver"
	"quotes-api/internal/scheduler"
	"quotes-api/internal/stream"
	"quotes-api/pkg/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Logging)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := dto.RegisterValidations(v); err != nil {
			logrus.WithError(err).Fatal("failed to register validations")
		}
	}

	// Cache backend: Redis when configured, in-process memory otherwise.
	var store cache.Store
	if cfg.Redis.Addr != "" {
		redisStore, err := cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Timeout:  cfg.Redis.Timeout,
		})
		if err != nil {
			logrus.WithError(err).Fatal("failed to connect to redis")
		}
		store = redisStore
		logrus.WithField("addr", cfg.Redis.Addr).Info("using redis cache")
	} else {
		store = cache.NewMemoryStore()
		logrus.Info("using in-memory cache")
	}
	defer store.Close()

	quoteCache := cache.NewQuoteCache(store)
	guard := ratelimit.NewGuard(cfg.RateLimit.FailureThreshold, cfg.RateLimit.Cooldown)

	// Provider clients.
	td := twelvedata.NewClient(twelvedata.Config{
		APIKey:     cfg.Providers.TwelveData.APIKey,
		BaseURL:    cfg.Providers.TwelveData.BaseURL,
		Timeout:    cfg.Providers.TwelveData.Timeout,
		BatchSize:  cfg.Providers.TwelveData.BatchSize,
		GroupDelay: cfg.Providers.TwelveData.GroupDelay,
		RateLimit:  cfg.Providers.TwelveData.RateLimit,
	})
	fmpClient := fmp.NewClient(fmp.Config{
		APIKey:    cfg.Providers.FMP.APIKey,
		BaseURL:   cfg.Providers.FMP.BaseURL,
		Timeout:   cfg.Providers.FMP.Timeout,
		RateLimit: cfg.Providers.FMP.RateLimit,
	})
	finnhubClient := finnhub.NewClient(finnhub.Config{
		APIKey:    cfg.Providers.Finnhub.APIKey,
		BaseURL:   cfg.Providers.Finnhub.BaseURL,
		Timeout:   cfg.Providers.Finnhub.Timeout,
		RateLimit: cfg.Providers.Finnhub.RateLimit,
	})
	indexClient := indexapi.NewClient(indexapi.Config{
		APIKey:    cfg.Providers.IndexAPI.APIKey,
		BaseURL:   cfg.Providers.IndexAPI.BaseURL,
		Timeout:   cfg.Providers.IndexAPI.Timeout,
		RateLimit: cfg.Providers.IndexAPI.RateLimit,
	})
	binanceClient := binance.NewClient(binance.Config{
		BaseURL:     cfg.Providers.Binance.BaseURL,
		Timeout:     cfg.Providers.Binance.Timeout,
		Concurrency: cfg.Providers.Binance.Concurrency,
		RateLimit:   cfg.Providers.Binance.RateLimit,
	})
	coingeckoClient := coingecko.NewClient(coingecko.Config{
		BaseURL:   cfg.Providers.CoinGecko.BaseURL,
		Timeout:   cfg.Providers.CoinGecko.Timeout,
		RateLimit: cfg.Providers.CoinGecko.RateLimit,
	})
	coinbaseClient := coinbase.NewClient(coinbase.Config{
		BaseURL:     cfg.Providers.Coinbase.BaseURL,
		Timeout:     cfg.Providers.Coinbase.Timeout,
		Concurrency: cfg.Providers.Coinbase.Concurrency,
		RateLimit:   cfg.Providers.Coinbase.RateLimit,
	})

	res := resolver.New(resolver.Config{
		QuoteTTL:       cfg.Cache.QuoteTTLs(),
		SparkTTL:       cfg.Cache.SparkTTL,
		FxTTL:          cfg.Cache.FxTTL,
		SoftDeadline:   cfg.Resolver.SoftDeadline,
		CryptoCoverage: cfg.Resolver.CryptoCoverage,
	}, quoteCache, guard, resolver.Deps{
		Equity: []providers.Adapter{td, fmpClient, finnhubClient, twelvedata.NewPriceOnlyAdapter(td)},
		Index:  []providers.Adapter{indexClient, finnhubClient, fmpClient},
		Crypto: []providers.Adapter{binanceClient, coingeckoClient, coinbaseClient, td},

		Spark:    td,
		Forex:    td,
		Fallback: resolver.LoadFallbackTable(cfg.Resolver.FallbackPath),
		Overlay:  binanceClient,
	})
	res.SetFxFallbacks(resolver.NewOpenERAPI(0), resolver.NewExchangerateHost(0))

	warmer := scheduler.New(cfg.Scheduler, res)
	if err := warmer.Start(); err != nil {
		logrus.WithError(err).Fatal("failed to start cache warmer")
	}
	defer warmer.Stop()

	srv := &Server{
		router:   gin.Default(),
		resolver: res,
		streamer: stream.New(cfg.Stream, res),
	}
	srv.setupRoutes(promhttp.Handler())

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port)
	logrus.WithFields(logrus.Fields{
		"addr":        addr,
		"environment": cfg.Environment,
	}).Info("quotes API starting")

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("server forced to shutdown")
	}

	logrus.Info("server exited")
}
