package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cory-johannsen/arbiter/internal/store"
)

// DocumentStore implements store.DocumentStore on a single documents table.
// Each row holds one JSON game document keyed by its namespace-prefixed key.
type DocumentStore struct {
	pool *Pool
}

// NewDocumentStore creates a document store backed by the given pool.
//
// Precondition: pool must be non-nil and connected.
func NewDocumentStore(pool *Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

// Load implements store.DocumentStore.
//
// Postcondition: Returns store.ErrNotFound if no row exists for key.
func (s *DocumentStore) Load(ctx context.Context, key string) ([]byte, error) {
	var doc []byte
	err := s.pool.DB().QueryRow(ctx,
		`SELECT doc FROM documents WHERE key = $1`, key,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document %s: %w", key, err)
	}
	return doc, nil
}

// Save implements store.DocumentStore via an upsert.
func (s *DocumentStore) Save(ctx context.Context, key string, doc []byte) error {
	_, err := s.pool.DB().Exec(ctx,
		`INSERT INTO documents (key, doc, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		key, doc,
	)
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", key, err)
	}
	return nil
}

// Delete implements store.DocumentStore. Deleting a missing key is not an error.
func (s *DocumentStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.DB().Exec(ctx, `DELETE FROM documents WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", key, err)
	}
	return nil
}
