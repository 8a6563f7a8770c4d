package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EventSubService manages the bot's EventSub subscription. Used by the
// setup CLI, not the request path.
type EventSubService struct {
	ClientID string

	// BaseURL overrides the Helix endpoint, for tests.
	BaseURL string

	callbackURL   string
	webhookSecret string
	httpClient    *http.Client
}

// NewEventSubService creates an EventSub service. callbackURL is the public
// URL of this service's /webhooks/twitch route.
func NewEventSubService(clientID, callbackURL, webhookSecret string) *EventSubService {
	return &EventSubService{
		ClientID:      clientID,
		BaseURL:       DefaultHelixURL,
		callbackURL:   callbackURL,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Subscription represents a Twitch EventSub subscription.
type Subscription struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	Transport Transport         `json:"transport"`
	CreatedAt string            `json:"created_at"`
}

// Transport represents the webhook transport for EventSub.
type Transport struct {
	Method   string `json:"method"`
	Callback string `json:"callback"`
	Secret   string `json:"secret,omitempty"`
}

// CreateSubscriptionRequest is the body of the subscription create call.
type CreateSubscriptionRequest struct {
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	Transport Transport         `json:"transport"`
}

// CreateWhisperSubscription subscribes to user.whisper.message for the bot
// user, so chat commands whispered to the bot arrive at the webhook.
// Requires a user access token carrying the user:read:whispers scope.
func (s *EventSubService) CreateWhisperSubscription(ctx context.Context, botUserID, userAccessToken string) (*Subscription, error) {
	reqBody := CreateSubscriptionRequest{
		Type:    "user.whisper.message",
		Version: "1",
		Condition: map[string]string{
			"user_id": botUserID,
		},
		Transport: Transport{
			Method:   "webhook",
			Callback: s.callbackURL,
			Secret:   s.webhookSecret,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/eventsub/subscriptions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+userAccessToken)
	req.Header.Set("Client-Id", s.ClientID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to create subscription (%d): %s", resp.StatusCode, respBody)
	}

	var result struct {
		Data []Subscription `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode subscription response: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("no subscription returned")
	}

	return &result.Data[0], nil
}
