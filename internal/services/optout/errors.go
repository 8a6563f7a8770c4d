package optout

import "errors"

// Sentinel error kinds for the opt-out pipeline. Handlers branch on these
// with errors.Is to pick the HTTP status and the retry policy; wrap them
// with fmt.Errorf("...: %w", Err...) to add detail.
var (
	// ErrStoreAuth is returned when the record store rejects our bearer
	// token (401/403). Never retried within the request.
	ErrStoreAuth = errors.New("opt-out store rejected credentials")

	// ErrStoreRequest is returned for any other non-success response from
	// the record store.
	ErrStoreRequest = errors.New("opt-out store request failed")

	// ErrChannelAuth is returned when the outbound messaging channel
	// rejects the user access token. Triggers at most one credential
	// refresh per logical request.
	ErrChannelAuth = errors.New("messaging channel rejected credentials")

	// ErrChannelRequest is returned for non-auth messaging failures.
	// Not retried here; confirmation messages are best-effort.
	ErrChannelRequest = errors.New("messaging channel request failed")

	// ErrCredentialRefresh is returned when the refresh-token exchange
	// itself fails. The caller must not retry the original send.
	ErrCredentialRefresh = errors.New("credential refresh failed")
)
