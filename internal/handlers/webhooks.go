package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/yourusername/optout/internal/services/logging"
	"github.com/yourusername/optout/internal/services/monitoring"
	"github.com/yourusername/optout/internal/services/optout"
	"github.com/yourusername/optout/internal/services/twitch"
)

// WebhookHandler handles incoming Twitch EventSub webhook events.
type WebhookHandler struct {
	commands       *optout.Service
	securityLogger *logging.SecurityLogger
	monitor        *monitoring.CloudWatchMonitor
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(commands *optout.Service, securityLogger *logging.SecurityLogger, monitor *monitoring.CloudWatchMonitor) *WebhookHandler {
	return &WebhookHandler{
		commands:       commands,
		securityLogger: securityLogger,
		monitor:        monitor,
	}
}

// HandleTwitchWebhook processes incoming EventSub deliveries: verify the
// signature over the exact received bytes, classify the delivery, and
// dispatch whisper commands. Signature failures stop everything with a 403;
// store failures answer 5xx so Twitch redelivers.
func (h *WebhookHandler) HandleTwitchWebhook(w http.ResponseWriter, r *http.Request) {
	// Limit request body size to prevent abuse
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024) // 1MB max

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("[WEBHOOK_ERROR] Failed to read body: %v", err)
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	messageID := r.Header.Get(twitch.HeaderMessageID)
	timestamp := r.Header.Get(twitch.HeaderMessageTimestamp)
	signature := r.Header.Get(twitch.HeaderMessageSignature)

	if !twitch.VerifyWebhookSignature(messageID, timestamp, signature, body) {
		log.Printf("[WEBHOOK_ERROR] Invalid signature for message %s from %s", messageID, r.RemoteAddr)
		if h.securityLogger != nil {
			h.securityLogger.LogWebhookSignatureFailure(r.Context(), "twitch", r.RemoteAddr)
		}
		if h.monitor != nil {
			h.monitor.PublishSecurityMetric("SignatureFailure", false)
		}
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	event, err := twitch.ClassifyEvent(r.Header.Get(twitch.HeaderMessageType), body)
	if err != nil {
		log.Printf("[WEBHOOK_ERROR] Unclassifiable delivery %s: %v", messageID, err)
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	switch event.Kind {
	case twitch.EventChallenge:
		log.Printf("[WEBHOOK] Challenge response for message %s", messageID)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(event.Challenge))

	case twitch.EventRevocation:
		log.Printf("[WEBHOOK] Subscription revoked")
		w.WriteHeader(http.StatusNoContent)

	case twitch.EventNotification:
		h.handleWhisper(w, r, event.Whisper)
	}
}

// handleWhisper dispatches the whisper text as a command. Processing is
// synchronous: in Lambda, goroutines get frozen after the handler returns,
// and Twitch allows 10s for a response.
func (h *WebhookHandler) handleWhisper(w http.ResponseWriter, r *http.Request, whisper twitch.WhisperEvent) {
	ctx := r.Context()

	outcome, err := h.commands.HandleCommand(ctx, whisper.FromUserID, whisper.FromUserName, "twitch", whisper.Whisper.Text)
	if err != nil {
		log.Printf("[WEBHOOK_ERROR] Command failed for %s: %v", whisper.FromUserID, err)
		if errors.Is(err, optout.ErrStoreAuth) {
			http.Error(w, "Store authorization failed", http.StatusBadGateway)
		} else {
			http.Error(w, "Store request failed", http.StatusBadGateway)
		}
		return
	}

	if outcome.Mutated {
		if h.securityLogger != nil {
			h.securityLogger.LogOptOutChange(ctx, whisper.FromUserID, "twitch", outcome.Command.String())
		}
		if h.monitor != nil {
			h.monitor.PublishCommandMetric("twitch", outcome.Command.String())
		}
	}

	w.WriteHeader(http.StatusOK)
}
