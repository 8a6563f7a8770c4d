package twitch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/yourusername/optout/internal/services/optout"
)

// DefaultHelixURL is the Twitch Helix API base URL.
const DefaultHelixURL = "https://api.twitch.tv/helix"

// WhisperClient sends confirmation whispers from the bot account using the
// rotating user credential held by the CredentialManager.
type WhisperClient struct {
	ClientID string
	BotID    string

	// BaseURL overrides the Helix endpoint, for tests.
	BaseURL string

	creds      *CredentialManager
	httpClient *http.Client
}

// NewWhisperClient creates a whisper client bound to the given credential
// manager.
func NewWhisperClient(clientID, botID string, creds *CredentialManager) *WhisperClient {
	return &WhisperClient{
		ClientID:   clientID,
		BotID:      botID,
		BaseURL:    DefaultHelixURL,
		creds:      creds,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers a whisper to toUserID.
//
// On a 401/403 it runs the refresh protocol and retries the send exactly
// once with the rotated token. A second auth failure on the retry is
// surfaced as a channel auth failure, never a second refresh: if the
// provider rejects a freshly-minted token, refreshing again cannot help.
func (c *WhisperClient) Send(ctx context.Context, toUserID, text string) error {
	token := c.creds.AccessToken()

	status, err := c.post(ctx, toUserID, text, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		newToken, refreshErr := c.creds.Refresh(ctx, token)
		if refreshErr != nil {
			return refreshErr
		}

		status, err = c.post(ctx, toUserID, text, newToken)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return fmt.Errorf("%w: whisper rejected after refresh (%d)", optout.ErrChannelAuth, status)
		}
	}

	if status < 200 || status > 299 {
		return fmt.Errorf("%w: whisper to %s returned %d", optout.ErrChannelRequest, toUserID, status)
	}
	return nil
}

// post performs a single whisper request and returns the response status.
// Transport-level failures are channel request errors.
func (c *WhisperClient) post(ctx context.Context, toUserID, text, token string) (int, error) {
	reqURL := fmt.Sprintf("%s/whispers?from_user_id=%s&to_user_id=%s&message=%s",
		c.BaseURL, url.QueryEscape(c.BotID), url.QueryEscape(toUserID), url.QueryEscape(text))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", optout.ErrChannelRequest, err)
	}
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", optout.ErrChannelRequest, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
