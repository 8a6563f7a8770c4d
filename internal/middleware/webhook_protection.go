package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WebhookProtection provides rate limiting and idempotency for a webhook
// endpoint. Platforms redeliver on timeouts, so a message ID that was
// already handled gets an immediate 200 without re-running the command.
//
// NOTE: each Lambda instance keeps its own dedup cache; the store-level
// idempotency of add/remove covers redeliveries that land on another
// instance.
type WebhookProtection struct {
	messageIDs  map[string]time.Time // messageID -> processedAt
	mu          sync.RWMutex
	rateLimiter *rate.Limiter
	headerName  string
}

// NewWebhookProtection creates a webhook protection handler that dedups on
// the given message-id header.
func NewWebhookProtection(messageIDHeader string) *WebhookProtection {
	wp := &WebhookProtection{
		messageIDs:  make(map[string]time.Time),
		rateLimiter: rate.NewLimiter(rate.Limit(100), 200), // 100 webhooks/sec, burst 200
		headerName:  messageIDHeader,
	}

	// Cleanup old message IDs periodically
	go wp.cleanupLoop()

	return wp
}

// Middleware applies webhook rate limiting and idempotency checking.
//
// A message ID is recorded only after the handler answered 2xx. Deliveries
// that fail with a 5xx must stay unrecorded: the platform redelivers them,
// and a redelivery swallowed as a "duplicate" would turn a transient store
// failure into a silently lost command. Concurrent deliveries of the same
// message ID can both reach the handler; the store's idempotent add/remove
// makes that harmless.
func (wp *WebhookProtection) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !wp.rateLimiter.Allow() {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		messageID := r.Header.Get(wp.headerName)
		if messageID != "" && wp.isDuplicate(messageID) {
			// Already processed; answer success so the platform stops
			// redelivering.
			w.WriteHeader(http.StatusOK)
			return
		}

		sw := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		if messageID != "" && sw.status >= 200 && sw.status < 300 {
			wp.markProcessed(messageID)
		}
	}
}

// statusCapturingWriter records the status code the handler answered with.
type statusCapturingWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusCapturingWriter) WriteHeader(statusCode int) {
	sw.status = statusCode
	sw.ResponseWriter.WriteHeader(statusCode)
}

// isDuplicate checks if a message has already been processed.
func (wp *WebhookProtection) isDuplicate(messageID string) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	_, exists := wp.messageIDs[messageID]
	return exists
}

// markProcessed records that a message has been processed.
func (wp *WebhookProtection) markProcessed(messageID string) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.messageIDs[messageID] = time.Now()
}

// cleanupLoop removes old message IDs every minute to prevent memory leaks.
func (wp *WebhookProtection) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		wp.mu.Lock()
		cutoff := time.Now().Add(-15 * time.Minute)
		for id, timestamp := range wp.messageIDs {
			if timestamp.Before(cutoff) {
				delete(wp.messageIDs, id)
			}
		}
		wp.mu.Unlock()
	}
}
