package discord_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/optout/internal/services/discord"
)

// fakeStore is a minimal in-memory optout.Store.
type fakeStore struct {
	records map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]bool)}
}

func (s *fakeStore) Add(_ context.Context, userID, platform string) error {
	s.records[userID+"_"+platform] = true
	return nil
}

func (s *fakeStore) Remove(_ context.Context, userID, platform string) error {
	delete(s.records, userID+"_"+platform)
	return nil
}

func (s *fakeStore) Exists(_ context.Context, userID, platform string) (bool, error) {
	return s.records[userID+"_"+platform], nil
}

func TestVerifyInteraction(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pubHex := hex.EncodeToString(pub)

	sign := func(timestamp string, body []byte) string {
		msg := append([]byte(timestamp), body...)
		return hex.EncodeToString(ed25519.Sign(priv, msg))
	}

	body := []byte(`{"type": 1}`)
	timestamp := "1700000000"

	t.Run("valid signature accepted", func(t *testing.T) {
		assert.True(t, discord.VerifyInteraction(pubHex, sign(timestamp, body), timestamp, body))
	})

	t.Run("mutated body rejected", func(t *testing.T) {
		assert.False(t, discord.VerifyInteraction(pubHex, sign(timestamp, body), timestamp, []byte(`{"type": 2}`)))
	})

	t.Run("mutated timestamp rejected", func(t *testing.T) {
		assert.False(t, discord.VerifyInteraction(pubHex, sign(timestamp, body), "1700000001", body))
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		otherPub, _, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		assert.False(t, discord.VerifyInteraction(hex.EncodeToString(otherPub), sign(timestamp, body), timestamp, body))
	})

	t.Run("malformed inputs rejected", func(t *testing.T) {
		sig := sign(timestamp, body)
		assert.False(t, discord.VerifyInteraction("", sig, timestamp, body))
		assert.False(t, discord.VerifyInteraction(pubHex, "", timestamp, body))
		assert.False(t, discord.VerifyInteraction(pubHex, sig, "", body))
		assert.False(t, discord.VerifyInteraction("not hex", sig, timestamp, body))
		assert.False(t, discord.VerifyInteraction(pubHex, "abcd", timestamp, body))
		assert.False(t, discord.VerifyInteraction(pubHex[:10], sig, timestamp, body))
	})
}

func TestHandleInteraction(t *testing.T) {
	ctx := context.Background()

	t.Run("ping answered with pong", func(t *testing.T) {
		svc := discord.NewInteractionService(newFakeStore())

		resp, err := svc.Handle(ctx, []byte(`{"type": 1}`))
		require.NoError(t, err)
		assert.Equal(t, discord.ResponseTypePong, resp.Type)
		assert.Nil(t, resp.Data)
	})

	t.Run("optout command from a guild member", func(t *testing.T) {
		store := newFakeStore()
		svc := discord.NewInteractionService(store)

		body := `{
			"type": 2,
			"data": {"name": "optout"},
			"member": {"user": {"id": "9876", "username": "someone"}}
		}`
		resp, err := svc.Handle(ctx, []byte(body))
		require.NoError(t, err)
		assert.Equal(t, discord.ResponseTypeChannelMessage, resp.Type)
		require.NotNil(t, resp.Data)
		assert.Contains(t, resp.Data.Content, "opted out")
		assert.True(t, store.records["9876_discord"])
	})

	t.Run("optin command from a DM", func(t *testing.T) {
		store := newFakeStore()
		store.records["9876_discord"] = true
		svc := discord.NewInteractionService(store)

		body := `{
			"type": 2,
			"data": {"name": "optin"},
			"user": {"id": "9876", "username": "someone"}
		}`
		resp, err := svc.Handle(ctx, []byte(body))
		require.NoError(t, err)
		assert.Contains(t, resp.Data.Content, "opted in")
		assert.False(t, store.records["9876_discord"])
	})

	t.Run("unknown command rejected", func(t *testing.T) {
		svc := discord.NewInteractionService(newFakeStore())

		body := `{
			"type": 2,
			"data": {"name": "leaderboard"},
			"user": {"id": "9876", "username": "someone"}
		}`
		_, err := svc.Handle(ctx, []byte(body))
		require.Error(t, err)
		assert.ErrorIs(t, err, discord.ErrUnknownInteraction)
	})

	t.Run("unknown interaction type rejected", func(t *testing.T) {
		svc := discord.NewInteractionService(newFakeStore())

		_, err := svc.Handle(ctx, []byte(`{"type": 5}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, discord.ErrUnknownInteraction)
	})

	t.Run("missing invoking user rejected", func(t *testing.T) {
		svc := discord.NewInteractionService(newFakeStore())

		_, err := svc.Handle(ctx, []byte(`{"type": 2, "data": {"name": "optout"}}`))
		assert.Error(t, err)
	})

	t.Run("invalid JSON rejected", func(t *testing.T) {
		svc := discord.NewInteractionService(newFakeStore())

		_, err := svc.Handle(ctx, []byte(`not json`))
		assert.Error(t, err)
	})
}
