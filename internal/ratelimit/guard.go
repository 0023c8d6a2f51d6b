package ratelimit

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"quotes-api/internal/monitoring"
)

// Guard tracks recent failures per provider and short-circuits a provider
// after repeated consecutive failures, so a rate-limited or dead upstream is
// not hammered on every resolution.
//
// State machine per provider: OK -> (threshold consecutive failures within
// the window) -> COOLING_DOWN -> (window elapses or explicit success) -> OK.
type Guard struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu    sync.Mutex
	state map[string]*providerState
	log   *logrus.Entry
}

type providerState struct {
	failures      int
	lastFailureAt time.Time
}

// NewGuard creates a guard. threshold <= 0 defaults to 3; cooldown <= 0
// defaults to 10 minutes, matching the backoff the upstreams' free tiers
// need.
func NewGuard(threshold int, cooldown time.Duration) *Guard {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 10 * time.Minute
	}
	return &Guard{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     make(map[string]*providerState),
		log:       logrus.WithField("component", "ratelimit_guard"),
	}
}

// WithClock overrides the guard clock. Test use only.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// ShouldSkip reports whether the provider is cooling down. Callers must treat
// a skipped provider as an immediate empty result without issuing network
// calls.
func (g *Guard) ShouldSkip(providerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.state[providerID]
	if !ok || st.failures < g.threshold {
		return false
	}
	if g.now().Sub(st.lastFailureAt) >= g.cooldown {
		// Window elapsed; the provider gets another chance.
		delete(g.state, providerID)
		return false
	}
	monitoring.ProviderSkipped(providerID)
	return true
}

// RecordFailure counts one failed call against the provider.
func (g *Guard) RecordFailure(providerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.state[providerID]
	if !ok {
		st = &providerState{}
		g.state[providerID] = st
	}
	st.failures++
	st.lastFailureAt = g.now()
	if st.failures == g.threshold {
		g.log.WithField("provider", providerID).Warn("provider entering cooldown")
	}
}

// RecordSuccess resets the provider to OK.
func (g *Guard) RecordSuccess(providerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.state, providerID)
}
