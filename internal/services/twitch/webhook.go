package twitch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventSub webhook header names.
const (
	HeaderMessageID        = "Twitch-Eventsub-Message-Id"
	HeaderMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	HeaderMessageSignature = "Twitch-Eventsub-Message-Signature"
	HeaderMessageType      = "Twitch-Eventsub-Message-Type"
)

// signaturePrefix is the algorithm tag Twitch puts in front of the hex MAC.
const signaturePrefix = "sha256="

// replayWindow rejects deliveries older than Twitch's replay guidance.
const replayWindow = 10 * time.Minute

// webhookSecret is the shared secret used for webhook signature verification.
// Set via SetWebhookSecret at startup rather than reading from env vars.
var webhookSecret string

// SetWebhookSecret configures the webhook secret used for signature verification.
// Must be called before handling any webhooks.
func SetWebhookSecret(secret string) {
	webhookSecret = secret
}

// VerifyWebhookSignature checks the HMAC-SHA256 signature of an EventSub
// delivery. The signing input is messageID+timestamp+rawBody with no
// delimiters, and body must be the exact bytes read off the wire: a
// re-serialized body will never match.
//
// Returns false (never panics) on missing headers, an unparseable or stale
// timestamp, or a signature mismatch. This is the sole trust boundary of
// the service; nothing downstream runs unless it returns true.
func VerifyWebhookSignature(messageID, timestamp, signature string, body []byte) bool {
	if webhookSecret == "" || messageID == "" || timestamp == "" || signature == "" {
		return false
	}

	// Reject replays outside the delivery window.
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return false
	}
	if time.Since(t) > replayWindow {
		return false
	}

	h := hmac.New(sha256.New, []byte(webhookSecret))
	h.Write([]byte(messageID))
	h.Write([]byte(timestamp))
	h.Write(body)
	computed := signaturePrefix + hex.EncodeToString(h.Sum(nil))

	// hmac.Equal compares in constant time and returns false outright on a
	// length mismatch, so a wrong-length header leaks nothing.
	return hmac.Equal([]byte(signature), []byte(computed))
}
