package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/yourusername/optout/internal/services/discord"
	"github.com/yourusername/optout/internal/services/logging"
	"github.com/yourusername/optout/internal/services/monitoring"
	"github.com/yourusername/optout/internal/services/optout"
)

// InteractionHandler handles Discord interaction webhooks (slash commands).
type InteractionHandler struct {
	publicKey      string
	interactions   *discord.InteractionService
	securityLogger *logging.SecurityLogger
	monitor        *monitoring.CloudWatchMonitor
}

// NewInteractionHandler creates a new Discord interaction handler.
func NewInteractionHandler(publicKey string, interactions *discord.InteractionService, securityLogger *logging.SecurityLogger, monitor *monitoring.CloudWatchMonitor) *InteractionHandler {
	return &InteractionHandler{
		publicKey:      publicKey,
		interactions:   interactions,
		securityLogger: securityLogger,
		monitor:        monitor,
	}
}

// HandleDiscordInteraction verifies and processes an interaction delivery.
// Discord's endpoint validation sends deliberately bad signatures and
// expects a 401 for them.
func (h *InteractionHandler) HandleDiscordInteraction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024) // 1MB max

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("[INTERACTION_ERROR] Failed to read body: %v", err)
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get(discord.HeaderSignature)
	timestamp := r.Header.Get(discord.HeaderTimestamp)

	if !discord.VerifyInteraction(h.publicKey, signature, timestamp, body) {
		log.Printf("[INTERACTION_ERROR] Invalid signature from %s", r.RemoteAddr)
		if h.securityLogger != nil {
			h.securityLogger.LogWebhookSignatureFailure(r.Context(), "discord", r.RemoteAddr)
		}
		if h.monitor != nil {
			h.monitor.PublishSecurityMetric("SignatureFailure", false)
		}
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	response, err := h.interactions.Handle(r.Context(), body)
	if err != nil {
		log.Printf("[INTERACTION_ERROR] %v", err)
		switch {
		case errors.Is(err, optout.ErrStoreAuth), errors.Is(err, optout.ErrStoreRequest):
			http.Error(w, "Store request failed", http.StatusBadGateway)
		case errors.Is(err, discord.ErrUnknownInteraction):
			writeJSONError(w, http.StatusBadRequest, "Unknown Type")
		default:
			writeJSONError(w, http.StatusBadRequest, "Invalid payload")
		}
		return
	}

	if h.monitor != nil && response.Type == discord.ResponseTypeChannelMessage {
		h.monitor.PublishCommandMetric("discord", "interaction")
	}

	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	json.NewEncoder(w).Encode(response)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
