package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/yourusername/optout/internal/services/optout"
)

// OptOutStore is the Postgres-backed opt-out record store, used instead of
// the document store when STORE_BACKEND=postgres. Implements optout.Store.
//
// Schema:
//
//	CREATE TABLE opt_outs (
//	    user_id    TEXT NOT NULL,
//	    platform   TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    PRIMARY KEY (user_id, platform)
//	);
type OptOutStore struct{}

// NewOptOutStore creates a new opt-out store accessor.
func NewOptOutStore() *OptOutStore {
	return &OptOutStore{}
}

// Add inserts the suppression record. ON CONFLICT DO NOTHING makes a repeat
// opt-out a no-op success and keeps the original created_at.
func (s *OptOutStore) Add(ctx context.Context, userID, platform string) error {
	query := `
		INSERT INTO opt_outs (user_id, platform)
		VALUES ($1, $2)
		ON CONFLICT (user_id, platform) DO NOTHING
	`
	if _, err := Pool.Exec(ctx, query, userID, platform); err != nil {
		return fmt.Errorf("%w: %v", optout.ErrStoreRequest, err)
	}
	return nil
}

// Remove deletes the suppression record; deleting an absent row is success.
func (s *OptOutStore) Remove(ctx context.Context, userID, platform string) error {
	query := `DELETE FROM opt_outs WHERE user_id = $1 AND platform = $2`
	if _, err := Pool.Exec(ctx, query, userID, platform); err != nil {
		return fmt.Errorf("%w: %v", optout.ErrStoreRequest, err)
	}
	return nil
}

// Exists reports whether the record is present.
func (s *OptOutStore) Exists(ctx context.Context, userID, platform string) (bool, error) {
	query := `SELECT 1 FROM opt_outs WHERE user_id = $1 AND platform = $2`

	var one int
	err := Pool.QueryRow(ctx, query, userID, platform).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", optout.ErrStoreRequest, err)
	}
	return true, nil
}
