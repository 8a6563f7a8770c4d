package handlers_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/optout/internal/handlers"
	"github.com/yourusername/optout/internal/services/optout"
	"github.com/yourusername/optout/internal/services/twitch"
)

const testWebhookSecret = "supersecretsigningkey"

// trackingStore counts mutations so dispatch behavior can be asserted.
type trackingStore struct {
	records map[string]bool
	adds    int
	removes int
	failErr error
}

func newTrackingStore() *trackingStore {
	return &trackingStore{records: make(map[string]bool)}
}

func (s *trackingStore) Add(_ context.Context, userID, platform string) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.adds++
	s.records[userID+"_"+platform] = true
	return nil
}

func (s *trackingStore) Remove(_ context.Context, userID, platform string) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.removes++
	delete(s.records, userID+"_"+platform)
	return nil
}

func (s *trackingStore) Exists(_ context.Context, userID, platform string) (bool, error) {
	return s.records[userID+"_"+platform], nil
}

// signedRequest builds a webhook POST with a valid EventSub signature.
func signedRequest(t *testing.T, messageType, body string) *http.Request {
	t.Helper()

	messageID := "msg-" + messageType
	timestamp := time.Now().UTC().Format(time.RFC3339)

	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(messageID + timestamp + body))
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/twitch", strings.NewReader(body))
	req.Header.Set(twitch.HeaderMessageID, messageID)
	req.Header.Set(twitch.HeaderMessageTimestamp, timestamp)
	req.Header.Set(twitch.HeaderMessageSignature, signature)
	req.Header.Set(twitch.HeaderMessageType, messageType)
	return req
}

func whisperBody(text string) string {
	return fmt.Sprintf(`{
		"subscription": {"type": "user.whisper.message"},
		"event": {
			"from_user_id": "1234",
			"from_user_login": "chatter",
			"from_user_name": "Chatter",
			"whisper": {"text": %q}
		}
	}`, text)
}

func TestHandleTwitchWebhook(t *testing.T) {
	twitch.SetWebhookSecret(testWebhookSecret)
	t.Cleanup(func() { twitch.SetWebhookSecret("") })

	newHandler := func(store optout.Store) *handlers.WebhookHandler {
		return handlers.NewWebhookHandler(optout.NewService(store, nil), nil, nil)
	}

	t.Run("challenge is echoed verbatim as text", func(t *testing.T) {
		handler := newHandler(newTrackingStore())

		body := `{"challenge": "abc123", "subscription": {"type": "user.whisper.message"}}`
		rec := httptest.NewRecorder()
		handler.HandleTwitchWebhook(rec, signedRequest(t, twitch.MessageTypeVerification, body))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
		assert.Equal(t, "abc123", rec.Body.String())
	})

	t.Run("revocation acknowledged with 204", func(t *testing.T) {
		handler := newHandler(newTrackingStore())

		body := `{"subscription": {"type": "user.whisper.message", "status": "authorization_revoked"}}`
		rec := httptest.NewRecorder()
		handler.HandleTwitchWebhook(rec, signedRequest(t, twitch.MessageTypeRevocation, body))

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("bad signature rejected with 403 before dispatch", func(t *testing.T) {
		store := newTrackingStore()
		handler := newHandler(store)

		req := signedRequest(t, twitch.MessageTypeNotification, whisperBody("/optout"))
		req.Header.Set(twitch.HeaderMessageSignature, "sha256=deadbeef")
		rec := httptest.NewRecorder()
		handler.HandleTwitchWebhook(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Zero(t, store.adds)
	})

	t.Run("missing signature headers rejected with 403", func(t *testing.T) {
		handler := newHandler(newTrackingStore())

		req := httptest.NewRequest(http.MethodPost, "/webhooks/twitch", strings.NewReader(whisperBody("/optout")))
		rec := httptest.NewRecorder()
		handler.HandleTwitchWebhook(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("optout whisper adds the record", func(t *testing.T) {
		store := newTrackingStore()
		handler := newHandler(store)

		rec := httptest.NewRecorder()
		handler.HandleTwitchWebhook(rec, signedRequest(t, twitch.MessageTypeNotification, whisperBody("/optout")))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, store.adds)
		assert.True(t, store.records["1234_twitch"])
	})

	t.Run("optin whisper removes the record", func(t *testing.T) {
		store := newTrackingStore()
		store.records["1234_twitch"] = true
		handler := newHandler(store)

		rec := httptest.NewRecorder()
		handler.HandleTwitchWebhook(rec, signedRequest(t, twitch.MessageTypeNotification, whisperBody("/optin")))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, store.removes)
		assert.False(t, store.records["1234_twitch"])
	})

	t.Run("unrecognized whisper acknowledged without mutation", func(t *testing.T) {
		store := newTrackingStore()
		handler := newHandler(store)

		rec := httptest.NewRecorder()
		handler.HandleTwitchWebhook(rec, signedRequest(t, twitch.MessageTypeNotification, whisperBody("hello there")))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, store.adds)
		assert.Zero(t, store.removes)
	})

	t.Run("store failure answers 502 so Twitch redelivers", func(t *testing.T) {
		store := newTrackingStore()
		store.failErr = fmt.Errorf("%w: store returned 500", optout.ErrStoreRequest)
		handler := newHandler(store)

		rec := httptest.NewRecorder()
		handler.HandleTwitchWebhook(rec, signedRequest(t, twitch.MessageTypeNotification, whisperBody("/optout")))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("malformed notification answers 400", func(t *testing.T) {
		handler := newHandler(newTrackingStore())

		body := `{"subscription": {"type": "user.whisper.message"}, "event": {}}`
		rec := httptest.NewRecorder()
		handler.HandleTwitchWebhook(rec, signedRequest(t, twitch.MessageTypeNotification, body))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("signature checked over the exact received bytes", func(t *testing.T) {
		store := newTrackingStore()
		handler := newHandler(store)

		// Sign one body, deliver another.
		req := signedRequest(t, twitch.MessageTypeNotification, whisperBody("/optout"))
		req.Body = httptest.NewRequest(http.MethodPost, "/webhooks/twitch", strings.NewReader(whisperBody("/optin"))).Body
		rec := httptest.NewRecorder()
		handler.HandleTwitchWebhook(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Zero(t, store.adds)
		assert.Zero(t, store.removes)
	})
}
