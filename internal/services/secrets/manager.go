package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/yourusername/optout/internal/services/encryption"
	"github.com/yourusername/optout/internal/services/twitch"
)

// Secret names in AWS Secrets Manager.
const (
	twitchOAuthSecret    = "optout/twitch-oauth"
	discordSecret        = "optout/discord"
	serviceAccountSecret = "optout/firestore-service-account"
	userTokenSecret      = "optout/twitch-user-token"
)

// Manager provides centralized secrets management via AWS Secrets Manager.
// Falls back to environment variables in development when ENVIRONMENT != "production".
//
// It is also the durable side of the credential lifecycle: rotated user
// tokens are written back through PutSecretValue, with the refresh token
// encrypted at rest by the encryption service when a KMS key is configured.
type Manager struct {
	client    *secretsmanager.Client
	encryptor *encryption.Service
	cache     map[string]cachedSecret
	mu        sync.RWMutex
	isDev     bool

	// devTokens holds rotated tokens in dev mode, where there is no
	// Secrets Manager to write back to.
	devToken *twitch.UserToken
}

type cachedSecret struct {
	value     string
	fetchedAt time.Time
}

// TwitchOAuth holds the Twitch application credentials.
type TwitchOAuth struct {
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	WebhookSecret string `json:"webhook_secret"`
	BotUserID     string `json:"bot_user_id"`
}

// DiscordKeys holds the Discord application verification key.
type DiscordKeys struct {
	PublicKey string `json:"public_key"`
}

// userTokenRecord is the persisted shape of the rotating user credential.
// RefreshToken carries the encryption service's prefix when encrypted.
type userTokenRecord struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	ObtainedAt   int64  `json:"obtained_at"`
}

var (
	instance *Manager
	once     sync.Once
	initErr  error
)

// NewManager creates or returns the singleton secrets manager.
func NewManager(encryptor *encryption.Service) (*Manager, error) {
	once.Do(func() {
		env := os.Getenv("ENVIRONMENT")
		if env != "production" {
			// Development mode: use environment variables
			instance = &Manager{
				encryptor: encryptor,
				cache:     make(map[string]cachedSecret),
				isDev:     true,
			}
			log.Println("[SECRETS] Using environment variables (development mode)")
			return
		}

		cfg, err := config.LoadDefaultConfig(context.Background())
		if err != nil {
			initErr = fmt.Errorf("failed to load AWS config for Secrets Manager: %w", err)
			return
		}

		instance = &Manager{
			client:    secretsmanager.NewFromConfig(cfg),
			encryptor: encryptor,
			cache:     make(map[string]cachedSecret),
			isDev:     false,
		}
		log.Println("[SECRETS] Using AWS Secrets Manager (production mode)")
	})

	if initErr != nil {
		return nil, initErr
	}
	return instance, nil
}

// GetTwitchOAuth returns the Twitch application credentials.
func (m *Manager) GetTwitchOAuth() (*TwitchOAuth, error) {
	if m.isDev {
		return &TwitchOAuth{
			ClientID:      os.Getenv("TWITCH_CLIENT_ID"),
			ClientSecret:  os.Getenv("TWITCH_CLIENT_SECRET"),
			WebhookSecret: os.Getenv("TWITCH_WEBHOOK_SECRET"),
			BotUserID:     os.Getenv("TWITCH_BOT_ID"),
		}, nil
	}

	var s TwitchOAuth
	raw, err := m.getSecret(twitchOAuthSecret)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("failed to parse Twitch OAuth secret: %w", err)
	}
	return &s, nil
}

// GetDiscordKeys returns the Discord interaction verification key.
func (m *Manager) GetDiscordKeys() (*DiscordKeys, error) {
	if m.isDev {
		return &DiscordKeys{PublicKey: os.Getenv("DISCORD_PUBLIC_KEY")}, nil
	}

	var s DiscordKeys
	raw, err := m.getSecret(discordSecret)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("failed to parse Discord secret: %w", err)
	}
	return &s, nil
}

// GetServiceAccountJSON returns the raw Firestore service-account key file.
func (m *Manager) GetServiceAccountJSON() (string, error) {
	if m.isDev {
		raw := os.Getenv("FIREBASE_CREDS")
		if raw == "" {
			return "", fmt.Errorf("FIREBASE_CREDS environment variable not set")
		}
		return raw, nil
	}
	return m.getSecret(serviceAccountSecret)
}

// GetUserToken loads the persisted rotating user credential, decrypting the
// refresh token if it was stored encrypted.
func (m *Manager) GetUserToken() (twitch.UserToken, error) {
	if m.isDev {
		m.mu.RLock()
		devToken := m.devToken
		m.mu.RUnlock()
		if devToken != nil {
			return *devToken, nil
		}
		expiresIn, _ := strconv.Atoi(os.Getenv("TWITCH_USER_EXPIRES_IN"))
		obtained, _ := strconv.ParseInt(os.Getenv("TWITCH_USER_OBTAIN_TIMESTAMP"), 10, 64)
		return twitch.UserToken{
			AccessToken:  os.Getenv("TWITCH_USER_AUTH"),
			RefreshToken: os.Getenv("TWITCH_REFRESH_TOKEN"),
			ExpiresIn:    expiresIn,
			ObtainedAt:   time.Unix(obtained, 0).UTC(),
		}, nil
	}

	raw, err := m.getSecret(userTokenSecret)
	if err != nil {
		return twitch.UserToken{}, err
	}

	var record userTokenRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return twitch.UserToken{}, fmt.Errorf("failed to parse user token secret: %w", err)
	}

	refreshToken := record.RefreshToken
	if m.encryptor != nil && encryption.IsEncrypted(refreshToken) {
		refreshToken, err = m.encryptor.Decrypt(refreshToken)
		if err != nil {
			return twitch.UserToken{}, fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
	}

	return twitch.UserToken{
		AccessToken:  record.AccessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    record.ExpiresIn,
		ObtainedAt:   time.Unix(record.ObtainedAt, 0).UTC(),
	}, nil
}

// SaveUserToken persists a rotated token pair. Implements twitch.TokenPersister.
func (m *Manager) SaveUserToken(ctx context.Context, token twitch.UserToken) error {
	if m.isDev {
		copied := token
		m.mu.Lock()
		m.devToken = &copied
		m.mu.Unlock()
		log.Println("[SECRETS] Rotated token kept in memory (development mode)")
		return nil
	}

	refreshToken := token.RefreshToken
	if m.encryptor != nil {
		encrypted, err := m.encryptor.Encrypt(refreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		refreshToken = encrypted
	}

	record := userTokenRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    token.ExpiresIn,
		ObtainedAt:   token.ObtainedAt.Unix(),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal user token: %w", err)
	}

	secretName := userTokenSecret
	secretString := string(raw)
	_, err = m.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     &secretName,
		SecretString: &secretString,
	})
	if err != nil {
		return fmt.Errorf("failed to store rotated token: %w", err)
	}

	// The cached copy is stale the moment the new version lands.
	m.mu.Lock()
	delete(m.cache, userTokenSecret)
	m.mu.Unlock()

	return nil
}

// getSecret fetches a secret from AWS Secrets Manager with a 5-minute cache.
func (m *Manager) getSecret(secretName string) (string, error) {
	// Check cache (TTL: 5 minutes)
	m.mu.RLock()
	if cached, ok := m.cache[secretName]; ok {
		if time.Since(cached.fetchedAt) < 5*time.Minute {
			m.mu.RUnlock()
			return cached.value, nil
		}
	}
	m.mu.RUnlock()

	// Fetch from Secrets Manager
	result, err := m.client.GetSecretValue(context.Background(), &secretsmanager.GetSecretValueInput{
		SecretId: &secretName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch secret %s: %w", secretName, err)
	}

	value := *result.SecretString

	// Update cache
	m.mu.Lock()
	m.cache[secretName] = cachedSecret{
		value:     value,
		fetchedAt: time.Now(),
	}
	m.mu.Unlock()

	return value, nil
}

// InvalidateCache clears all cached secrets (call after secret rotation).
func (m *Manager) InvalidateCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]cachedSecret)
}
