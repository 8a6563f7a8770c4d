package config

import (
	"fmt"
	"log"
	"os"

	"github.com/yourusername/optout/internal/services/encryption"
	"github.com/yourusername/optout/internal/services/secrets"
)

// Store backend selectors.
const (
	StoreBackendFirestore = "firestore"
	StoreBackendPostgres  = "postgres"
)

// Config holds all application configuration.
// In production, secrets are loaded from AWS Secrets Manager.
// In development, everything comes from environment variables.
type Config struct {
	// Twitch
	TwitchClientID      string
	TwitchClientSecret  string
	TwitchWebhookSecret string
	TwitchBotID         string

	// Discord
	DiscordPublicKey string

	// Record store
	StoreBackend       string
	ServiceAccountJSON string // Firestore backend
	DatabaseURL        string // Postgres backend

	// App (non-secret)
	APIBaseURL  string
	Environment string
	LogLevel    string

	// AWS
	KMSKeyID string
}

// Load reads all configuration from the appropriate source.
// Production: secrets from AWS Secrets Manager, non-secrets from env vars.
// Development: everything from environment variables (loaded from .env).
func Load() (*Config, error) {
	cfg := &Config{
		// Non-secret config always comes from env vars
		APIBaseURL:   os.Getenv("API_BASE_URL"),
		Environment:  os.Getenv("ENVIRONMENT"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		KMSKeyID:     os.Getenv("KMS_KEY_ID"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StoreBackend: os.Getenv("STORE_BACKEND"),
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = StoreBackendFirestore
	}

	if err := cfg.loadSecrets(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadSecrets fills in secret fields through the secrets manager, which
// itself falls back to env vars outside production.
func (c *Config) loadSecrets() error {
	encryptor, err := encryption.NewService(c.KMSKeyID)
	if err != nil {
		log.Printf("[SECURITY_WARN] Failed to init encryption service: %v", err)
	}

	mgr, err := secrets.NewManager(encryptor)
	if err != nil {
		return fmt.Errorf("failed to create secrets manager: %w", err)
	}

	twitchOAuth, err := mgr.GetTwitchOAuth()
	if err != nil {
		return fmt.Errorf("failed to get Twitch OAuth secret: %w", err)
	}
	c.TwitchClientID = twitchOAuth.ClientID
	c.TwitchClientSecret = twitchOAuth.ClientSecret
	c.TwitchWebhookSecret = twitchOAuth.WebhookSecret
	c.TwitchBotID = twitchOAuth.BotUserID

	discordKeys, err := mgr.GetDiscordKeys()
	if err != nil {
		return fmt.Errorf("failed to get Discord secret: %w", err)
	}
	c.DiscordPublicKey = discordKeys.PublicKey

	if c.StoreBackend == StoreBackendFirestore {
		serviceAccount, err := mgr.GetServiceAccountJSON()
		if err != nil {
			return fmt.Errorf("failed to get Firestore service account: %w", err)
		}
		c.ServiceAccountJSON = serviceAccount
	}

	log.Printf("[CONFIG] Loaded secrets (store backend: %s)", c.StoreBackend)
	return nil
}

// IsProduction returns true if running in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
