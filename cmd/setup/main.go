// Command setup performs the one-time bootstrap for the opt-out service:
// it walks the operator through the Twitch authorization-code grant for the
// bot account, persists the initial token pair to the secret store, and
// creates the user.whisper.message EventSub subscription pointing at the
// deployed webhook endpoint.
//
// The Secrets Manager secret resources themselves are provisioned by the
// deployment template; this tool only seeds their values.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/yourusername/optout/internal/config"
	"github.com/yourusername/optout/internal/services/encryption"
	"github.com/yourusername/optout/internal/services/secrets"
	"github.com/yourusername/optout/internal/services/twitch"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.TwitchClientID == "" || cfg.TwitchClientSecret == "" {
		log.Fatal("Twitch client credentials are not configured")
	}
	if cfg.APIBaseURL == "" {
		log.Fatal("API_BASE_URL is not set")
	}

	encryptor, err := encryption.NewService(cfg.KMSKeyID)
	if err != nil {
		log.Fatalf("failed to init encryption service: %v", err)
	}
	secretsMgr, err := secrets.NewManager(encryptor)
	if err != nil {
		log.Fatalf("failed to init secrets manager: %v", err)
	}

	oauth := twitch.NewOAuthService(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.APIBaseURL+"/setup/callback")

	fmt.Println("Open this URL in a browser while logged in as the bot account:")
	fmt.Println()
	fmt.Println("  " + oauth.GetAuthURL("setup"))
	fmt.Println()
	fmt.Print("Paste the \"code\" query parameter from the redirect: ")

	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		log.Fatalf("failed to read code: %v", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		log.Fatal("no authorization code provided")
	}

	tokenResp, err := oauth.ExchangeCode(ctx, code)
	if err != nil {
		log.Fatalf("code exchange failed: %v", err)
	}

	token := twitch.UserToken{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresIn:    tokenResp.ExpiresIn,
		ObtainedAt:   time.Now().UTC(),
	}
	if err := secretsMgr.SaveUserToken(ctx, token); err != nil {
		log.Fatalf("failed to persist token: %v", err)
	}
	fmt.Println("Token pair stored.")

	eventsub := twitch.NewEventSubService(cfg.TwitchClientID, cfg.APIBaseURL+"/webhooks/twitch", cfg.TwitchWebhookSecret)
	sub, err := eventsub.CreateWhisperSubscription(ctx, cfg.TwitchBotID, token.AccessToken)
	if err != nil {
		log.Fatalf("failed to create whisper subscription: %v", err)
	}

	fmt.Printf("EventSub subscription %s created (status: %s).\n", sub.ID, sub.Status)
	fmt.Println("Twitch will now verify the webhook callback; check the service logs.")
}
