package encryption

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// Service encrypts sensitive credential fields before they are persisted.
// The secret store already encrypts at rest; this adds a separate KMS key
// boundary for the refresh token, which outlives access tokens by months.
// In development mode (no KMS key ID), it falls back to base64 encoding
// which is NOT secure but allows local testing without AWS infrastructure.
type Service struct {
	client *kms.Client
	keyID  string
	isDev  bool
}

var (
	instance *Service
	once     sync.Once
	initErr  error
)

// NewService creates or returns the singleton encryption service.
// Pass the KMS key ID from the centralized config (empty string enables dev mode).
func NewService(kmsKeyID string) (*Service, error) {
	once.Do(func() {
		if kmsKeyID == "" {
			// Development mode - no real encryption
			instance = &Service{isDev: true}
			return
		}

		cfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			initErr = fmt.Errorf("failed to load AWS config: %w", err)
			return
		}

		instance = &Service{
			client: kms.NewFromConfig(cfg),
			keyID:  kmsKeyID,
			isDev:  false,
		}
	})

	if initErr != nil {
		return nil, initErr
	}
	return instance, nil
}

// Encrypt encrypts plaintext and returns a prefixed base64 ciphertext.
func (s *Service) Encrypt(plaintext string) (string, error) {
	if s.isDev {
		return "dev:" + base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
	}

	result, err := s.client.Encrypt(context.Background(), &kms.EncryptInput{
		KeyId:     &s.keyID,
		Plaintext: []byte(plaintext),
	})
	if err != nil {
		return "", fmt.Errorf("KMS encryption failed: %w", err)
	}

	return "kms:" + base64.StdEncoding.EncodeToString(result.CiphertextBlob), nil
}

// Decrypt reverses Encrypt. Unprefixed values are treated as plaintext,
// so credentials seeded before encryption was enabled still load.
func (s *Service) Decrypt(ciphertext string) (string, error) {
	switch {
	case strings.HasPrefix(ciphertext, "dev:"):
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, "dev:"))
		if err != nil {
			return "", fmt.Errorf("failed to decode dev ciphertext: %w", err)
		}
		return string(decoded), nil

	case strings.HasPrefix(ciphertext, "kms:"):
		blob, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, "kms:"))
		if err != nil {
			return "", fmt.Errorf("failed to decode ciphertext: %w", err)
		}
		if s.isDev {
			return "", fmt.Errorf("cannot decrypt KMS ciphertext in development mode")
		}
		result, err := s.client.Decrypt(context.Background(), &kms.DecryptInput{
			CiphertextBlob: blob,
		})
		if err != nil {
			return "", fmt.Errorf("KMS decryption failed: %w", err)
		}
		return string(result.Plaintext), nil

	default:
		return ciphertext, nil
	}
}

// IsEncrypted checks if a value carries one of the encryption prefixes.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, "kms:") || strings.HasPrefix(value, "dev:")
}
