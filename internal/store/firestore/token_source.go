package firestore

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// datastoreScope grants Firestore document access.
	datastoreScope = "https://www.googleapis.com/auth/datastore"

	// jwtBearerGrant is the OAuth grant for service-account assertions.
	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// ServiceAccount is the relevant subset of a Google service-account key
// file. This is the store's own identity, independent of the rotating
// Twitch credential.
type ServiceAccount struct {
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// ParseServiceAccount decodes a service-account key JSON blob.
func ParseServiceAccount(raw []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("failed to parse service account JSON: %w", err)
	}
	if sa.ProjectID == "" || sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, fmt.Errorf("service account JSON missing required fields")
	}
	if sa.TokenURI == "" {
		sa.TokenURI = "https://oauth2.googleapis.com/token"
	}
	return &sa, nil
}

// tokenSource mints and caches bearer tokens for the service account by
// signing an RS256 assertion and exchanging it at the Google token
// endpoint. Tokens are refreshed 5 minutes before expiry.
type tokenSource struct {
	account    *ServiceAccount
	key        *rsa.PrivateKey
	httpClient *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(account *ServiceAccount, httpClient *http.Client) (*tokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(account.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account private key: %w", err)
	}
	return &tokenSource{
		account:    account,
		key:        key,
		httpClient: httpClient,
	}, nil
}

// bearer returns a valid access token for the service account.
func (ts *tokenSource) bearer(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && time.Now().Before(ts.expires) {
		return ts.token, nil
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   ts.account.ClientEmail,
		"sub":   ts.account.ClientEmail,
		"aud":   ts.account.TokenURI,
		"scope": datastoreScope,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(ts.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign service account assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.account.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token exchange returned %d: %s", resp.StatusCode, body)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	ts.token = tokenResp.AccessToken
	ts.expires = now.Add(time.Duration(tokenResp.ExpiresIn-300) * time.Second)
	return ts.token, nil
}
