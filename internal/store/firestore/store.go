// Package firestore implements the opt-out record store on the Firestore
// REST API. Records live in the opt_outs collection as presence-only
// documents named {userID}_{platform}.
package firestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yourusername/optout/internal/services/optout"
)

const collection = "opt_outs"

// Store is an optout.Store backed by Firestore.
type Store struct {
	// BaseURL overrides the Firestore endpoint, for tests.
	BaseURL string

	projectID  string
	tokens     *tokenSource
	httpClient *http.Client
}

// New creates a Firestore-backed store authenticated as the given service
// account.
func New(account *ServiceAccount) (*Store, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	tokens, err := newTokenSource(account, httpClient)
	if err != nil {
		return nil, err
	}
	return &Store{
		BaseURL:    "https://firestore.googleapis.com/v1",
		projectID:  account.ProjectID,
		tokens:     tokens,
		httpClient: httpClient,
	}, nil
}

// document is the Firestore REST representation of an opt-out record.
type document struct {
	Fields map[string]documentValue `json:"fields"`
}

type documentValue struct {
	StringValue    string `json:"stringValue,omitempty"`
	TimestampValue string `json:"timestampValue,omitempty"`
}

func (s *Store) docURL(userID, platform string) string {
	return fmt.Sprintf("%s/projects/%s/databases/(default)/documents/%s/%s_%s",
		s.BaseURL, s.projectID, collection, userID, platform)
}

// Add writes the suppression record. Checking existence first keeps a
// repeated /optout from rewriting the document (and its created_at).
func (s *Store) Add(ctx context.Context, userID, platform string) error {
	exists, err := s.Exists(ctx, userID, platform)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	doc := document{
		Fields: map[string]documentValue{
			"id":         {StringValue: userID},
			"platform":   {StringValue: platform},
			"created_at": {TimestampValue: time.Now().UTC().Format(time.RFC3339)},
		},
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", optout.ErrStoreRequest, err)
	}

	status, err := s.do(ctx, http.MethodPatch, s.docURL(userID, platform), body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: add returned %d", optout.ErrStoreRequest, status)
	}
	return nil
}

// Remove deletes the suppression record. Firestore deletes are idempotent;
// a missing document is success either way.
func (s *Store) Remove(ctx context.Context, userID, platform string) error {
	status, err := s.do(ctx, http.MethodDelete, s.docURL(userID, platform), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return fmt.Errorf("%w: remove returned %d", optout.ErrStoreRequest, status)
	}
	return nil
}

// Exists reports whether the record is present.
func (s *Store) Exists(ctx context.Context, userID, platform string) (bool, error) {
	status, err := s.do(ctx, http.MethodGet, s.docURL(userID, platform), nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: lookup returned %d", optout.ErrStoreRequest, status)
	}
}

// do runs one authenticated request and maps auth rejections to the store
// auth error kind. 404 is returned to callers, who decide whether absence
// is an error.
func (s *Store) do(ctx context.Context, method, reqURL string, body []byte) (int, error) {
	token, err := s.tokens.bearer(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", optout.ErrStoreAuth, err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", optout.ErrStoreRequest, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", optout.ErrStoreRequest, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return resp.StatusCode, fmt.Errorf("%w: store returned %d", optout.ErrStoreAuth, resp.StatusCode)
	}
	return resp.StatusCode, nil
}
