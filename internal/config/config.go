package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"quotes-api/internal/models"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	Providers   ProvidersConfig
	Cache       CacheConfig
	Resolver    ResolverConfig
	RateLimit   RateLimitConfig
	Stream      StreamConfig
	Scheduler   SchedulerConfig
	Logging     LoggingConfig
	Environment string
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// RedisConfig represents the Redis cache backend configuration. An empty
// Addr selects the in-memory store.
type RedisConfig struct {
	Addr     string
	DB       int
	Password string
	PoolSize int
	Timeout  time.Duration
}

// ProvidersConfig represents external providers configuration
type ProvidersConfig struct {
	TwelveData TwelveDataConfig
	FMP        KeyedProviderConfig
	Finnhub    KeyedProviderConfig
	IndexAPI   KeyedProviderConfig
	Binance    PublicProviderConfig
	CoinGecko  PublicProviderConfig
	Coinbase   PublicProviderConfig
}

// TwelveDataConfig represents Twelve Data API configuration
type TwelveDataConfig struct {
	APIKey     string
	BaseURL    string
	BatchSize  int
	GroupDelay time.Duration
	RateLimit  int
	Timeout    time.Duration
}

// KeyedProviderConfig covers providers that need a credential.
type KeyedProviderConfig struct {
	APIKey    string
	BaseURL   string
	RateLimit int
	Timeout   time.Duration
}

// PublicProviderConfig covers providers without credentials.
type PublicProviderConfig struct {
	BaseURL     string
	RateLimit   int
	Concurrency int
	Timeout     time.Duration
}

// CacheConfig represents cache TTL configuration
type CacheConfig struct {
	USQuoteTTL     time.Duration
	MXQuoteTTL     time.Duration
	CryptoQuoteTTL time.Duration
	SparkTTL       time.Duration
	FxTTL          time.Duration
}

// QuoteTTLs returns the per-market TTL map the resolver consumes.
func (c CacheConfig) QuoteTTLs() map[models.Market]time.Duration {
	return map[models.Market]time.Duration{
		models.MarketUS:     c.USQuoteTTL,
		models.MarketMX:     c.MXQuoteTTL,
		models.MarketCrypto: c.CryptoQuoteTTL,
	}
}

// ResolverConfig represents cascade tuning configuration
type ResolverConfig struct {
	SoftDeadline   time.Duration
	CryptoCoverage float64
	FallbackPath   string
}

// RateLimitConfig represents the provider failure guard configuration
type RateLimitConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// StreamConfig represents WebSocket push configuration
type StreamConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	PushInterval    time.Duration
	MaxSymbols      int
}

// SchedulerConfig represents the background cache-warm configuration
type SchedulerConfig struct {
	Enabled       bool
	WarmSpec      string
	USSymbols     []string
	MXSymbols     []string
	CryptoSymbols []string
}

// LoggingConfig represents logger configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables with defaults. A .env
// file in the working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8010),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", "30s"),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", "30s"),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", "60s"),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", "15s"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Password: getEnv("REDIS_PASSWORD", ""),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
			Timeout:  getEnvAsDuration("REDIS_TIMEOUT", "5s"),
		},
		Providers: ProvidersConfig{
			TwelveData: TwelveDataConfig{
				APIKey:     getEnv("TWELVEDATA_API_KEY", ""),
				BaseURL:    getEnv("TWELVEDATA_BASE_URL", "https://api.twelvedata.com"),
				BatchSize:  getEnvAsInt("TWELVEDATA_BATCH_SIZE", 10),
				GroupDelay: getEnvAsDuration("TWELVEDATA_GROUP_DELAY", "250ms"),
				RateLimit:  getEnvAsInt("TWELVEDATA_RATE_LIMIT", 300),
				Timeout:    getEnvAsDuration("TWELVEDATA_TIMEOUT", "8s"),
			},
			FMP: KeyedProviderConfig{
				APIKey:    getEnv("FMP_API_KEY", ""),
				BaseURL:   getEnv("FMP_BASE_URL", "https://financialmodelingprep.com/api/v3"),
				RateLimit: getEnvAsInt("FMP_RATE_LIMIT", 120),
				Timeout:   getEnvAsDuration("FMP_TIMEOUT", "8s"),
			},
			Finnhub: KeyedProviderConfig{
				APIKey:    getEnv("FINNHUB_API_KEY", ""),
				BaseURL:   getEnv("FINNHUB_BASE_URL", "https://finnhub.io/api/v1"),
				RateLimit: getEnvAsInt("FINNHUB_RATE_LIMIT", 60),
				Timeout:   getEnvAsDuration("FINNHUB_TIMEOUT", "6s"),
			},
			IndexAPI: KeyedProviderConfig{
				APIKey:    getEnv("INDEXAPI_API_KEY", ""),
				BaseURL:   getEnv("INDEXAPI_BASE_URL", "https://api.indexapi.io/v1"),
				RateLimit: getEnvAsInt("INDEXAPI_RATE_LIMIT", 60),
				Timeout:   getEnvAsDuration("INDEXAPI_TIMEOUT", "6s"),
			},
			Binance: PublicProviderConfig{
				BaseURL:     getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
				RateLimit:   getEnvAsInt("BINANCE_RATE_LIMIT", 600),
				Concurrency: getEnvAsInt("BINANCE_CONCURRENCY", 6),
				Timeout:     getEnvAsDuration("BINANCE_TIMEOUT", "5s"),
			},
			CoinGecko: PublicProviderConfig{
				BaseURL:   getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
				RateLimit: getEnvAsInt("COINGECKO_RATE_LIMIT", 30),
				Timeout:   getEnvAsDuration("COINGECKO_TIMEOUT", "6s"),
			},
			Coinbase: PublicProviderConfig{
				BaseURL:     getEnv("COINBASE_BASE_URL", "https://api.coinbase.com/v2"),
				RateLimit:   getEnvAsInt("COINBASE_RATE_LIMIT", 120),
				Concurrency: getEnvAsInt("COINBASE_CONCURRENCY", 4),
				Timeout:     getEnvAsDuration("COINBASE_TIMEOUT", "5s"),
			},
		},
		Cache: CacheConfig{
			USQuoteTTL:     getEnvAsDuration("CACHE_US_TTL", "15s"),
			MXQuoteTTL:     getEnvAsDuration("CACHE_MX_TTL", "15s"),
			CryptoQuoteTTL: getEnvAsDuration("CACHE_CRYPTO_TTL", "15s"),
			SparkTTL:       getEnvAsDuration("CACHE_SPARK_TTL", "60s"),
			FxTTL:          getEnvAsDuration("CACHE_FX_TTL", "1h"),
		},
		Resolver: ResolverConfig{
			SoftDeadline:   getEnvAsDuration("RESOLVER_SOFT_DEADLINE", "10s"),
			CryptoCoverage: getEnvAsFloat("RESOLVER_CRYPTO_COVERAGE", 0.5),
			FallbackPath:   getEnv("CRYPTO_FALLBACK_PATH", ""),
		},
		RateLimit: RateLimitConfig{
			FailureThreshold: getEnvAsInt("GUARD_FAILURE_THRESHOLD", 3),
			Cooldown:         getEnvAsDuration("GUARD_COOLDOWN", "10m"),
		},
		Stream: StreamConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 1024),
			PushInterval:    getEnvAsDuration("WS_PUSH_INTERVAL", "2s"),
			MaxSymbols:      getEnvAsInt("WS_MAX_SYMBOLS", 50),
		},
		Scheduler: SchedulerConfig{
			Enabled:       getEnvAsBool("SCHEDULER_ENABLED", false),
			WarmSpec:      getEnv("SCHEDULER_WARM_SPEC", "@every 1m"),
			USSymbols:     getEnvAsSlice("SCHEDULER_US_SYMBOLS", []string{"AAPL", "MSFT", "NVDA", "^GSPC", "^DJI", "^IXIC"}),
			MXSymbols:     getEnvAsSlice("SCHEDULER_MX_SYMBOLS", []string{"AMXL", "WALMEX", "GFNORTEO", "^MXX"}),
			CryptoSymbols: getEnvAsSlice("SCHEDULER_CRYPTO_SYMBOLS", []string{"BTC", "ETH", "SOL"}),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	if duration, err := time.ParseDuration(defaultValue); err == nil {
		return duration
	}
	return time.Second * 30 // Fallback
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
