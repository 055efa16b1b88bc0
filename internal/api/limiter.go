package api

import (
	"sync"

	"innkeeper/internal/config"

	"golang.org/x/time/rate"
)

const defaultBurst = 5

// clientLimiters hands out one token bucket per API client, shared by the
// HTTP and gRPC surfaces.
type clientLimiters struct {
	limiters sync.Map // map[string]*rate.Limiter
	rps      float64
	burst    int
}

func newClientLimiters(cfg config.APIRateLimitConfig) *clientLimiters {
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &clientLimiters{rps: cfg.RPS, burst: burst}
}

// Allow reports whether the client may make one more call now. A zero RPS
// disables limiting.
func (l *clientLimiters) Allow(key string) bool {
	if l.rps <= 0 {
		return true
	}
	return l.get(key).Allow()
}

func (l *clientLimiters) get(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	actual, _ := l.limiters.LoadOrStore(key, lim)
	return actual.(*rate.Limiter)
}
