package twitch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/yourusername/optout/internal/services/logging"
	"github.com/yourusername/optout/internal/services/optout"
)

// UserToken is the rotating bearer credential for the bot's Twitch user.
// The in-process copy is a cache; the secret store holds the durable copy.
type UserToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int       `json:"expires_in"`
	ObtainedAt   time.Time `json:"obtained_at"`
}

// TokenPersister durably stores a rotated token pair. Implemented by the
// secrets manager (with optional KMS encryption of the refresh token).
type TokenPersister interface {
	SaveUserToken(ctx context.Context, token UserToken) error
}

// CredentialManager owns the user token and the refresh protocol. All
// outbound senders read the token through it and report auth failures back
// to it; nothing else in the process touches the credential.
//
// Refresh is strictly reactive (no background renewal) and single-flight:
// concurrent invocations that observe the same dead token share one
// exchange against the provider, since Twitch invalidates the previous
// refresh token on use and a second exchange would race the first.
type CredentialManager struct {
	// SecurityLogger receives refresh outcomes when set.
	SecurityLogger *logging.SecurityLogger

	oauth     *OAuthService
	persister TokenPersister

	group   singleflight.Group
	limiter *rate.Limiter

	mu    sync.RWMutex
	token UserToken
}

// NewCredentialManager seeds the manager with the token pair loaded from
// the secret store at startup.
func NewCredentialManager(oauth *OAuthService, persister TokenPersister, seed UserToken) *CredentialManager {
	return &CredentialManager{
		oauth:     oauth,
		persister: persister,
		// Process-wide cap on refresh attempts. A provider that is
		// globally rejecting the client would otherwise trigger a refresh
		// per inbound whisper.
		limiter: rate.NewLimiter(rate.Every(30*time.Second), 3),
		token:   seed,
	}
}

// AccessToken returns the current access token.
func (m *CredentialManager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token.AccessToken
}

// Refresh exchanges the stored refresh token for a new pair after an
// outbound call using failedAccessToken got a 401/403.
//
// The new pair is persisted to the secret store before it is returned or
// installed in memory, so a crash between refresh and persist can lose at
// most the exchange itself, never leave a stale durable copy that a later
// cold start would trust. If another invocation already rotated the
// credential, its result is reused without a second exchange.
func (m *CredentialManager) Refresh(ctx context.Context, failedAccessToken string) (string, error) {
	v, err, _ := m.group.Do("twitch-user-token", func() (interface{}, error) {
		m.mu.RLock()
		current := m.token
		m.mu.RUnlock()

		// A concurrent caller already refreshed; its token is the one to use.
		if current.AccessToken != failedAccessToken {
			return current.AccessToken, nil
		}

		if !m.limiter.Allow() {
			return "", fmt.Errorf("refresh attempts rate limited: %w", optout.ErrCredentialRefresh)
		}

		log.Printf("[CREDENTIALS] Access token rejected, refreshing")
		resp, err := m.oauth.RefreshToken(ctx, current.RefreshToken)
		if err != nil {
			if m.SecurityLogger != nil {
				m.SecurityLogger.LogCredentialRefresh(ctx, false, err.Error())
			}
			return "", fmt.Errorf("%w: %v", optout.ErrCredentialRefresh, err)
		}

		rotated := UserToken{
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
			ExpiresIn:    resp.ExpiresIn,
			ObtainedAt:   time.Now().UTC(),
		}

		// Persist before use. The secret store is the durable copy; the
		// old refresh token died the moment the exchange succeeded.
		if err := m.persister.SaveUserToken(ctx, rotated); err != nil {
			return "", fmt.Errorf("%w: persisting rotated token: %v", optout.ErrCredentialRefresh, err)
		}

		m.mu.Lock()
		m.token = rotated
		m.mu.Unlock()

		if m.SecurityLogger != nil {
			m.SecurityLogger.LogCredentialRefresh(ctx, true, "")
		}
		log.Printf("[CREDENTIALS] Token refreshed and persisted")
		return rotated.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
