package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotes",
		Name:      "provider_requests_total",
		Help:      "Upstream provider requests by provider and outcome",
	}, []string{"provider", "outcome"})

	providerSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotes",
		Name:      "provider_skipped_total",
		Help:      "Provider calls short-circuited by the rate-limit guard",
	}, []string{"provider"})

	cacheOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotes",
		Name:      "cache_ops_total",
		Help:      "Cache reads by data kind and result",
	}, []string{"kind", "result"})

	resolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quotes",
		Name:      "resolve_duration_seconds",
		Help:      "End-to-end quote resolution latency by market",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"market"})

	staleServedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotes",
		Name:      "stale_served_total",
		Help:      "Symbols served from stale cache after a full cascade failure",
	}, []string{"market"})
)

// ProviderRequest records one upstream call outcome ("ok" or "error").
func ProviderRequest(provider string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	providerRequestsTotal.WithLabelValues(provider, outcome).Inc()
}

// ProviderSkipped records a call avoided by the rate-limit guard.
func ProviderSkipped(provider string) {
	providerSkippedTotal.WithLabelValues(provider).Inc()
}

// CacheHit records a fresh cache hit for the given data kind.
func CacheHit(kind string) {
	cacheOpsTotal.WithLabelValues(kind, "hit").Inc()
}

// CacheMiss records a cache miss for the given data kind.
func CacheMiss(kind string) {
	cacheOpsTotal.WithLabelValues(kind, "miss").Inc()
}

// ObserveResolve records end-to-end resolution latency.
func ObserveResolve(market string, d time.Duration) {
	resolveDuration.WithLabelValues(market).Observe(d.Seconds())
}

// StaleServed records a symbol answered from stale cache.
func StaleServed(market string) {
	staleServedTotal.WithLabelValues(market).Inc()
}
