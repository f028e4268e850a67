// Package store provides persistence for game documents.
//
// All game state is stored as JSON documents addressed by string keys.
// Backends implement DocumentStore; callers use the typed helpers to
// round-trip Go values.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no document exists for the requested key.
var ErrNotFound = errors.New("document not found")

// DocumentStore is the persistence interface for JSON game documents.
type DocumentStore interface {
	// Load returns the raw document stored under key.
	//
	// Postcondition: Returns ErrNotFound if no document exists for key.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save writes doc under key, replacing any existing document.
	Save(ctx context.Context, key string, doc []byte) error

	// Delete removes the document under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// LoadJSON loads the document under key and unmarshals it into v.
//
// Precondition: v must be a non-nil pointer.
// Postcondition: Returns ErrNotFound (wrapped) if no document exists for key.
func LoadJSON(ctx context.Context, s DocumentStore, key string, v any) error {
	doc, err := s.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("loading %s: %w", key, err)
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// SaveJSON marshals v and stores it under key.
func SaveJSON(ctx context.Context, s DocumentStore, key string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.Save(ctx, key, doc); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}
