package optout

import "strings"

// Command is the closed set of chat commands this service understands.
type Command int

const (
	// CommandUnrecognized is anything that is not one of the two fixed
	// tokens. It is informational, never an error.
	CommandUnrecognized Command = iota
	// CommandOptOut suppresses the sender on the given platform.
	CommandOptOut
	// CommandOptIn removes a previous suppression.
	CommandOptIn
)

const (
	optOutToken = "/optout"
	optInToken  = "/optin"
)

// ParseCommand extracts the command from free-text message body.
// Only the first whitespace-delimited token is considered, matched
// case-sensitively, so "/optout please" still opts out while "/OptOut"
// does not.
func ParseCommand(text string) Command {
	token := text
	if fields := strings.Fields(text); len(fields) > 0 {
		token = fields[0]
	}

	switch token {
	case optOutToken:
		return CommandOptOut
	case optInToken:
		return CommandOptIn
	default:
		return CommandUnrecognized
	}
}

// String returns the command name for logging.
func (c Command) String() string {
	switch c {
	case CommandOptOut:
		return "optout"
	case CommandOptIn:
		return "optin"
	default:
		return "unrecognized"
	}
}
