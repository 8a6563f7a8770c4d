package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTokenURL is Twitch's OAuth token endpoint.
const DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

// DefaultAuthorizeURL is Twitch's OAuth authorization endpoint.
const DefaultAuthorizeURL = "https://id.twitch.tv/oauth2/authorize"

// OAuthService handles Twitch OAuth 2.0 flows.
type OAuthService struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// TokenURL overrides the token endpoint, for tests.
	TokenURL string

	httpClient *http.Client
}

// NewOAuthService creates a new Twitch OAuth service with the given credentials.
func NewOAuthService(clientID, clientSecret, redirectURI string) *OAuthService {
	return &OAuthService{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		TokenURL:     DefaultTokenURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// GetAuthURL generates the Twitch OAuth authorization URL for the whisper
// scopes the bot account needs.
func (s *OAuthService) GetAuthURL(state string) string {
	params := url.Values{
		"client_id":     {s.ClientID},
		"redirect_uri":  {s.RedirectURI},
		"response_type": {"code"},
		"scope":         {"user:manage:whispers user:read:whispers"},
		"state":         {state},
	}
	return DefaultAuthorizeURL + "?" + params.Encode()
}

// TokenResponse represents the Twitch OAuth token response.
type TokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int      `json:"expires_in"`
	TokenType    string   `json:"token_type"`
	Scope        []string `json:"scope"`
}

// ExchangeCode exchanges an authorization code for an access/refresh token
// pair. Used once, by the setup CLI, to seed the credential secret.
func (s *OAuthService) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	return s.postToken(ctx, url.Values{
		"client_id":     {s.ClientID},
		"client_secret": {s.ClientSecret},
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {s.RedirectURI},
	})
}

// RefreshToken exchanges a refresh token for a new access/refresh token
// pair. Twitch invalidates the old refresh token on use, so the caller must
// persist both new values before relying on the result.
func (s *OAuthService) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return s.postToken(ctx, url.Values{
		"client_id":     {s.ClientID},
		"client_secret": {s.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

func (s *OAuthService) postToken(ctx context.Context, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("twitch oauth error (%d): %s", resp.StatusCode, body)
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &tokenResp, nil
}
