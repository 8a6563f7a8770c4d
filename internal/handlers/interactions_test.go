package handlers_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/optout/internal/handlers"
	"github.com/yourusername/optout/internal/services/discord"
)

// interactionFixture holds a handler wired with a fresh signing key.
type interactionFixture struct {
	handler *handlers.InteractionHandler
	store   *trackingStore
	priv    ed25519.PrivateKey
}

func newInteractionFixture(t *testing.T) *interactionFixture {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	store := newTrackingStore()
	return &interactionFixture{
		handler: handlers.NewInteractionHandler(hex.EncodeToString(pub), discord.NewInteractionService(store), nil, nil),
		store:   store,
		priv:    priv,
	}
}

// signedInteraction builds a POST with a valid ed25519 signature over
// timestamp||body.
func (f *interactionFixture) signedInteraction(body string) *http.Request {
	timestamp := "1700000000"
	sig := ed25519.Sign(f.priv, append([]byte(timestamp), body...))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/discord", strings.NewReader(body))
	req.Header.Set(discord.HeaderSignature, hex.EncodeToString(sig))
	req.Header.Set(discord.HeaderTimestamp, timestamp)
	return req
}

func TestHandleDiscordInteraction(t *testing.T) {
	t.Run("ping answered with pong", func(t *testing.T) {
		f := newInteractionFixture(t)

		rec := httptest.NewRecorder()
		f.handler.HandleDiscordInteraction(rec, f.signedInteraction(`{"type": 1}`))

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Type int `json:"type"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, discord.ResponseTypePong, resp.Type)
	})

	t.Run("bad signature rejected with 401", func(t *testing.T) {
		f := newInteractionFixture(t)

		req := f.signedInteraction(`{"type": 1}`)
		req.Header.Set(discord.HeaderSignature, strings.Repeat("ab", ed25519.SignatureSize))
		rec := httptest.NewRecorder()
		f.handler.HandleDiscordInteraction(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing signature headers rejected with 401", func(t *testing.T) {
		f := newInteractionFixture(t)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/discord", strings.NewReader(`{"type": 1}`))
		rec := httptest.NewRecorder()
		f.handler.HandleDiscordInteraction(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("optout slash command mutates and confirms", func(t *testing.T) {
		f := newInteractionFixture(t)

		body := `{
			"type": 2,
			"data": {"name": "optout"},
			"user": {"id": "9876", "username": "someone"}
		}`
		rec := httptest.NewRecorder()
		f.handler.HandleDiscordInteraction(rec, f.signedInteraction(body))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, f.store.records["9876_discord"])

		var resp struct {
			Type int `json:"type"`
			Data struct {
				Content string `json:"content"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, discord.ResponseTypeChannelMessage, resp.Type)
		assert.Contains(t, resp.Data.Content, "opted out")
	})

	t.Run("unknown interaction type answered with Unknown Type", func(t *testing.T) {
		f := newInteractionFixture(t)

		rec := httptest.NewRecorder()
		f.handler.HandleDiscordInteraction(rec, f.signedInteraction(`{"type": 9}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Unknown Type", resp["error"])
	})
}
