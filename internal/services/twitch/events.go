package twitch

import (
	"encoding/json"
	"fmt"
)

// EventSub message types carried in the Twitch-Eventsub-Message-Type header.
const (
	MessageTypeNotification = "notification"
	MessageTypeVerification = "webhook_callback_verification"
	MessageTypeRevocation   = "revocation"
)

// EventKind tags the classified webhook delivery.
type EventKind int

const (
	// EventChallenge is the subscription handshake; the challenge string
	// must be echoed back verbatim as the response body.
	EventChallenge EventKind = iota
	// EventRevocation means Twitch dropped the subscription; acknowledge
	// and do nothing else.
	EventRevocation
	// EventNotification carries a whisper event.
	EventNotification
)

// WhisperEvent is the inner event of a user.whisper.message notification.
type WhisperEvent struct {
	FromUserID   string `json:"from_user_id"`
	FromUserName string `json:"from_user_name"`
	Whisper      struct {
		Text string `json:"text"`
	} `json:"whisper"`
}

// Event is the tagged result of classifying a verified webhook body.
// Only the field matching Kind is populated.
type Event struct {
	Kind      EventKind
	Challenge string
	Whisper   WhisperEvent
}

// notificationPayload is the envelope Twitch wraps around deliveries.
type notificationPayload struct {
	Challenge string          `json:"challenge"`
	Event     json.RawMessage `json:"event"`
}

// ClassifyEvent turns a message type and verified body into a closed Event
// variant. Payloads that don't match the expected shape for their declared
// type are rejected here rather than propagated inward as loose maps.
func ClassifyEvent(messageType string, body []byte) (Event, error) {
	switch messageType {
	case MessageTypeVerification:
		var payload notificationPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return Event{}, fmt.Errorf("invalid verification payload: %w", err)
		}
		if payload.Challenge == "" {
			return Event{}, fmt.Errorf("verification payload missing challenge")
		}
		return Event{Kind: EventChallenge, Challenge: payload.Challenge}, nil

	case MessageTypeRevocation:
		// Body content is irrelevant; the subscription is already gone.
		return Event{Kind: EventRevocation}, nil

	case MessageTypeNotification:
		var payload notificationPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return Event{}, fmt.Errorf("invalid notification payload: %w", err)
		}
		if len(payload.Event) == 0 {
			return Event{}, fmt.Errorf("notification payload missing event")
		}
		var whisper WhisperEvent
		if err := json.Unmarshal(payload.Event, &whisper); err != nil {
			return Event{}, fmt.Errorf("invalid whisper event: %w", err)
		}
		if whisper.FromUserID == "" {
			return Event{}, fmt.Errorf("whisper event missing from_user_id")
		}
		return Event{Kind: EventNotification, Whisper: whisper}, nil

	default:
		return Event{}, fmt.Errorf("unknown message type %q", messageType)
	}
}
