package optout

import (
	"context"
	"log"
)

// Notifier sends a confirmation message back to the user over the
// platform's messaging channel. Implemented by the Twitch whisper client;
// Discord interactions respond inline and pass a no-op notifier.
type Notifier interface {
	Send(ctx context.Context, toUserID, text string) error
}

// Outcome describes what a dispatched command did, for logging and the
// HTTP response.
type Outcome struct {
	Command Command
	Mutated bool
}

const (
	optOutConfirmation = "You have been opted out of the leaderboards"
	optInConfirmation  = "You have been opted back into the leaderboards"
)

// Service maps recognized commands onto idempotent store mutations and
// sends a best-effort confirmation afterwards.
type Service struct {
	store    Store
	notifier Notifier
}

// NewService creates the command dispatcher. notifier may be nil when the
// transport carries its own reply channel.
func NewService(store Store, notifier Notifier) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
	}
}

// HandleCommand parses the message text and applies the resulting state
// transition for (userID, platform).
//
// The store mutation is the durable source of truth: a failed confirmation
// message is logged and dropped, never used to roll back or fail the
// mutation. Store errors are returned as-is so the caller can map them to
// a 5xx response and let the platform redeliver.
func (s *Service) HandleCommand(ctx context.Context, userID, userName, platform, text string) (Outcome, error) {
	cmd := ParseCommand(text)

	switch cmd {
	case CommandOptOut:
		log.Printf("[OPTOUT] Opting out %s (%s) on %s", userName, userID, platform)
		if err := s.store.Add(ctx, userID, platform); err != nil {
			return Outcome{Command: cmd}, err
		}
		s.confirm(ctx, userID, optOutConfirmation)
		return Outcome{Command: cmd, Mutated: true}, nil

	case CommandOptIn:
		log.Printf("[OPTOUT] Opting in %s (%s) on %s", userName, userID, platform)
		if err := s.store.Remove(ctx, userID, platform); err != nil {
			return Outcome{Command: cmd}, err
		}
		s.confirm(ctx, userID, optInConfirmation)
		return Outcome{Command: cmd, Mutated: true}, nil

	default:
		// Whispers that aren't commands are common (people reply to the
		// bot); acknowledge without touching state.
		return Outcome{Command: CommandUnrecognized}, nil
	}
}

// confirm sends the confirmation whisper. Best-effort only.
func (s *Service) confirm(ctx context.Context, userID, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, userID, text); err != nil {
		log.Printf("[OPTOUT_WARN] Confirmation to %s failed (state change kept): %v", userID, err)
	}
}
