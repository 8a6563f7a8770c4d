package optout

import "context"

// Store persists opt-out records keyed by (userID, platform).
//
// Both operations are idempotent: Add on an already-opted-out user and
// Remove on an absent record are successes, not errors. Implementations
// classify 401/403 from the backing store as ErrStoreAuth and any other
// non-success response as ErrStoreRequest.
type Store interface {
	// Add records that userID on platform wants to be suppressed.
	Add(ctx context.Context, userID, platform string) error

	// Remove deletes the suppression record if present.
	Remove(ctx context.Context, userID, platform string) error

	// Exists reports whether a suppression record is present.
	Exists(ctx context.Context, userID, platform string) (bool, error)
}
