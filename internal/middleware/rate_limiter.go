package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yourusername/optout/internal/services/logging"
	"github.com/yourusername/optout/internal/services/monitoring"
)

// RateLimiter provides per-key rate limiting using the token bucket algorithm.
// NOTE: In AWS Lambda, each instance maintains its own rate limiter state.
type RateLimiter struct {
	// SecurityLogger and Monitor receive limit violations when set.
	SecurityLogger *logging.SecurityLogger
	Monitor        *monitoring.CloudWatchMonitor

	limiters map[string]*rateLimiterEntry
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter with the given requests-per-second and burst size.
func NewRateLimiter(requestsPerSecond int, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*rateLimiterEntry),
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
	}

	// Cleanup stale entries every 5 minutes
	go rl.cleanupLoop()

	return rl
}

// getLimiter returns (or creates) a rate limiter for the given key.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, exists := rl.limiters[key]; exists {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	limiter := rate.NewLimiter(rl.rps, rl.burst)
	rl.limiters[key] = &rateLimiterEntry{
		limiter:  limiter,
		lastSeen: time.Now(),
	}
	return limiter
}

// PerIPMiddleware applies per-source-address rate limiting. Webhook callers
// are unauthenticated, so the remote address is the only usable key.
func (rl *RateLimiter) PerIPMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.getLimiter("ip:" + r.RemoteAddr)

		if !limiter.Allow() {
			if rl.SecurityLogger != nil {
				rl.SecurityLogger.LogRateLimitExceeded(r.Context(), r.RemoteAddr, r.URL.Path)
			}
			if rl.Monitor != nil {
				rl.Monitor.PublishRateLimitMetric()
			}
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	}
}

// cleanupLoop removes stale rate limiter entries every 5 minutes.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-10 * time.Minute)
		for key, entry := range rl.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(rl.limiters, key)
			}
		}
		rl.mu.Unlock()
	}
}

// GlobalRateLimiter caps total request throughput across all callers.
type GlobalRateLimiter struct {
	// SecurityLogger and Monitor receive limit violations when set.
	SecurityLogger *logging.SecurityLogger
	Monitor        *monitoring.CloudWatchMonitor

	limiter *rate.Limiter
}

// NewGlobalRateLimiter creates a process-wide rate limiter.
func NewGlobalRateLimiter(requestsPerSecond int, burst int) *GlobalRateLimiter {
	return &GlobalRateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Middleware rejects requests once the global budget is exhausted.
func (g *GlobalRateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.limiter.Allow() {
			if g.SecurityLogger != nil {
				g.SecurityLogger.LogRateLimitExceeded(r.Context(), r.RemoteAddr, r.URL.Path)
			}
			if g.Monitor != nil {
				g.Monitor.PublishRateLimitMetric()
			}
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	}
}
