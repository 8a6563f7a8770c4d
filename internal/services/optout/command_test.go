package optout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/optout/internal/services/optout"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		text string
		want optout.Command
	}{
		{"optout", "/optout", optout.CommandOptOut},
		{"optin", "/optin", optout.CommandOptIn},
		{"optout with trailing text", "/optout thanks", optout.CommandOptOut},
		{"optin with leading whitespace", "  /optin", optout.CommandOptIn},
		{"case sensitive", "/OptOut", optout.CommandUnrecognized},
		{"missing slash", "optout", optout.CommandUnrecognized},
		{"embedded token", "please /optout", optout.CommandUnrecognized},
		{"empty", "", optout.CommandUnrecognized},
		{"whitespace only", "   ", optout.CommandUnrecognized},
		{"chatter", "hey what does this bot do", optout.CommandUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, optout.ParseCommand(tt.text))
		})
	}
}
