package discord

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yourusername/optout/internal/services/optout"
)

// ErrUnknownInteraction marks interaction or command types this service
// does not handle. Answered with a 400, matching Discord's expectations.
var ErrUnknownInteraction = errors.New("unknown interaction")

// Interaction header names.
const (
	HeaderSignature = "X-Signature-Ed25519"
	HeaderTimestamp = "X-Signature-Timestamp"
)

// Interaction types and response types, per the Discord interactions API.
const (
	InteractionTypePing               = 1
	InteractionTypeApplicationCommand = 2

	ResponseTypePong           = 1
	ResponseTypeChannelMessage = 4
)

// Interaction is the subset of the interaction payload this service reads.
type Interaction struct {
	Type int `json:"type"`
	Data struct {
		Name string `json:"name"`
	} `json:"data"`
	Member *struct {
		User InteractionUser `json:"user"`
	} `json:"member"`
	User *InteractionUser `json:"user"`
}

// InteractionUser identifies the invoking Discord user.
type InteractionUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Response is an interaction response body.
type Response struct {
	Type int           `json:"type"`
	Data *ResponseData `json:"data,omitempty"`
}

// ResponseData carries the visible message content.
type ResponseData struct {
	Content string `json:"content"`
}

// VerifyInteraction checks the ed25519 signature Discord attaches to every
// interaction. The signed input is timestamp||rawBody; publicKey is the
// application's hex-encoded verification key. Returns false on any missing
// or malformed input.
func VerifyInteraction(publicKey, signature, timestamp string, body []byte) bool {
	if publicKey == "" || signature == "" || timestamp == "" {
		return false
	}

	key, err := hex.DecodeString(publicKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	msg := make([]byte, 0, len(timestamp)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, body...)

	return ed25519.Verify(ed25519.PublicKey(key), msg, sig)
}

// InteractionService turns verified slash-command interactions into opt-out
// state changes. Confirmation is carried in the interaction response itself,
// so the dispatcher runs without a notifier.
type InteractionService struct {
	commands *optout.Service
}

// NewInteractionService creates the interaction handler backed by the given
// opt-out store.
func NewInteractionService(store optout.Store) *InteractionService {
	return &InteractionService{
		commands: optout.NewService(store, nil),
	}
}

// Handle processes a verified interaction body and returns the response to
// send. Store errors bubble up so the HTTP layer can answer 5xx and let
// Discord's client show the failure instead of a false confirmation.
func (s *InteractionService) Handle(ctx context.Context, body []byte) (*Response, error) {
	var interaction Interaction
	if err := json.Unmarshal(body, &interaction); err != nil {
		return nil, fmt.Errorf("invalid interaction payload: %w", err)
	}

	switch interaction.Type {
	case InteractionTypePing:
		return &Response{Type: ResponseTypePong}, nil

	case InteractionTypeApplicationCommand:
		user := interaction.invokingUser()
		if user == nil {
			return nil, fmt.Errorf("interaction missing invoking user")
		}
		return s.handleCommand(ctx, interaction.Data.Name, user)

	default:
		return nil, fmt.Errorf("%w: type %d", ErrUnknownInteraction, interaction.Type)
	}
}

// invokingUser returns the user behind the interaction: member.user in
// guilds, top-level user in DMs.
func (i *Interaction) invokingUser() *InteractionUser {
	if i.Member != nil {
		return &i.Member.User
	}
	return i.User
}

func (s *InteractionService) handleCommand(ctx context.Context, name string, user *InteractionUser) (*Response, error) {
	// Slash commands arrive by registered name, without the "/" the chat
	// commands carry; route them through the same dispatcher.
	var text string
	switch name {
	case "optout":
		text = "/optout"
	case "optin":
		text = "/optin"
	default:
		return nil, fmt.Errorf("%w: command %q", ErrUnknownInteraction, name)
	}

	outcome, err := s.commands.HandleCommand(ctx, user.ID, user.Username, "discord", text)
	if err != nil {
		return nil, err
	}

	content := "You have been opted out of the leaderboards."
	if outcome.Command == optout.CommandOptIn {
		content = "You have been opted in to the leaderboards."
	}
	return &Response{
		Type: ResponseTypeChannelMessage,
		Data: &ResponseData{Content: content},
	}, nil
}
