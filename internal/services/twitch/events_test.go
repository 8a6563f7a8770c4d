package twitch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/optout/internal/services/twitch"
)

func TestClassifyEvent(t *testing.T) {
	t.Run("challenge", func(t *testing.T) {
		event, err := twitch.ClassifyEvent(twitch.MessageTypeVerification, []byte(`{"challenge":"abc123"}`))
		require.NoError(t, err)
		assert.Equal(t, twitch.EventChallenge, event.Kind)
		assert.Equal(t, "abc123", event.Challenge)
	})

	t.Run("challenge missing token", func(t *testing.T) {
		_, err := twitch.ClassifyEvent(twitch.MessageTypeVerification, []byte(`{}`))
		require.Error(t, err)
	})

	t.Run("revocation", func(t *testing.T) {
		event, err := twitch.ClassifyEvent(twitch.MessageTypeRevocation, []byte(`{"subscription":{"status":"authorization_revoked"}}`))
		require.NoError(t, err)
		assert.Equal(t, twitch.EventRevocation, event.Kind)
	})

	t.Run("whisper notification", func(t *testing.T) {
		body := []byte(`{
			"event": {
				"from_user_id": "1234",
				"from_user_name": "chatter",
				"whisper": {"text": "/optout"}
			}
		}`)
		event, err := twitch.ClassifyEvent(twitch.MessageTypeNotification, body)
		require.NoError(t, err)
		assert.Equal(t, twitch.EventNotification, event.Kind)
		assert.Equal(t, "1234", event.Whisper.FromUserID)
		assert.Equal(t, "chatter", event.Whisper.FromUserName)
		assert.Equal(t, "/optout", event.Whisper.Whisper.Text)
	})

	t.Run("notification missing event", func(t *testing.T) {
		_, err := twitch.ClassifyEvent(twitch.MessageTypeNotification, []byte(`{"subscription":{}}`))
		require.Error(t, err)
	})

	t.Run("notification missing sender", func(t *testing.T) {
		_, err := twitch.ClassifyEvent(twitch.MessageTypeNotification, []byte(`{"event":{"whisper":{"text":"hi"}}}`))
		require.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := twitch.ClassifyEvent(twitch.MessageTypeNotification, []byte(`{not json`))
		require.Error(t, err)
	})

	t.Run("unknown message type", func(t *testing.T) {
		_, err := twitch.ClassifyEvent("mystery", []byte(`{}`))
		require.Error(t, err)
	})
}
