package logging

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// SecurityLogger provides structured security event logging.
// Events are logged as JSON to stdout (captured by CloudWatch Logs in Lambda).
type SecurityLogger struct{}

// SecurityEvent represents a structured security event.
type SecurityEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	Severity  string                 `json:"severity"` // INFO, WARNING, CRITICAL
	UserID    string                 `json:"user_id,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Success   bool                   `json:"success"`
}

// NewSecurityLogger creates a new security logger.
func NewSecurityLogger() *SecurityLogger {
	return &SecurityLogger{}
}

// LogEvent logs a security event as structured JSON.
func (sl *SecurityLogger) LogEvent(_ context.Context, event SecurityEvent) {
	event.Timestamp = time.Now()
	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("[SECURITY_ERROR] Failed to marshal event: %v", err)
		return
	}
	log.Printf("[SECURITY] %s", string(eventJSON))
}

// LogWebhookSignatureFailure logs an inbound delivery that failed HMAC or
// ed25519 verification.
func (sl *SecurityLogger) LogWebhookSignatureFailure(ctx context.Context, platform, ipAddress string) {
	sl.LogEvent(ctx, SecurityEvent{
		EventType: "webhook_signature_failure",
		Severity:  "WARNING",
		IPAddress: ipAddress,
		Success:   false,
		Details: map[string]interface{}{
			"platform": platform,
		},
	})
}

// LogCredentialRefresh logs the outcome of a refresh-token exchange.
func (sl *SecurityLogger) LogCredentialRefresh(ctx context.Context, success bool, reason string) {
	severity := "INFO"
	details := map[string]interface{}{}
	if !success {
		severity = "CRITICAL"
		details["reason"] = reason
	}
	sl.LogEvent(ctx, SecurityEvent{
		EventType: "credential_refresh",
		Severity:  severity,
		Success:   success,
		Details:   details,
	})
}

// LogOptOutChange logs a completed opt-out state transition.
func (sl *SecurityLogger) LogOptOutChange(ctx context.Context, userID, platform, command string) {
	sl.LogEvent(ctx, SecurityEvent{
		EventType: "optout_change",
		Severity:  "INFO",
		UserID:    userID,
		Success:   true,
		Details: map[string]interface{}{
			"platform": platform,
			"command":  command,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation.
func (sl *SecurityLogger) LogRateLimitExceeded(ctx context.Context, ipAddress, endpoint string) {
	sl.LogEvent(ctx, SecurityEvent{
		EventType: "rate_limit_exceeded",
		Severity:  "WARNING",
		IPAddress: ipAddress,
		Success:   false,
		Details: map[string]interface{}{
			"endpoint": endpoint,
		},
	})
}
