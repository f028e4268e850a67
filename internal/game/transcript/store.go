package transcript

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arbiter/internal/store"
)

// minResumeBytes is the smallest stored transcript considered worth
// resuming. Anything smaller is treated as an aborted seed.
const minResumeBytes = 100

// Store persists transcripts as JSON documents.
type Store struct {
	docs   store.DocumentStore
	logger *zap.Logger
}

// NewStore creates a transcript store.
//
// Precondition: docs and logger must be non-nil.
func NewStore(docs store.DocumentStore, logger *zap.Logger) *Store {
	return &Store{docs: docs, logger: logger}
}

// Load returns the stored transcript for the encounter, or nil when no
// resumable transcript exists.
//
// Postcondition: A non-nil Log is returned only for a stored transcript
// larger than the resume threshold.
func (s *Store) Load(ctx context.Context, encounterID string) (*Log, error) {
	doc, err := s.docs.Load(ctx, store.TranscriptKey(encounterID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading transcript for %s: %w", encounterID, err)
	}
	if len(doc) <= minResumeBytes {
		s.logger.Debug("stored transcript too small to resume",
			zap.String("encounter_id", encounterID),
			zap.Int("bytes", len(doc)),
		)
		return nil, nil
	}

	var msgs []Message
	if err := store.LoadJSON(ctx, s.docs, store.TranscriptKey(encounterID), &msgs); err != nil {
		return nil, err
	}
	s.logger.Info("resuming transcript",
		zap.String("encounter_id", encounterID),
		zap.Int("messages", len(msgs)),
	)
	return FromMessages(msgs), nil
}

// Save writes the transcript for the encounter.
func (s *Store) Save(ctx context.Context, encounterID string, log *Log) error {
	return store.SaveJSON(ctx, s.docs, store.TranscriptKey(encounterID), log.Messages())
}

// Archive copies the transcript's user and assistant messages to an
// archive document and removes the live transcript.
//
// Postcondition: Returns the archive identifier. The live transcript no
// longer exists.
func (s *Store) Archive(ctx context.Context, encounterID string, log *Log) (string, error) {
	archiveID := uuid.NewString()
	if err := store.SaveJSON(ctx, s.docs, store.ArchiveKey(encounterID, archiveID), log.NonSystem()); err != nil {
		return "", fmt.Errorf("archiving transcript for %s: %w", encounterID, err)
	}
	if err := s.docs.Delete(ctx, store.TranscriptKey(encounterID)); err != nil {
		return "", fmt.Errorf("removing live transcript for %s: %w", encounterID, err)
	}
	s.logger.Info("transcript archived",
		zap.String("encounter_id", encounterID),
		zap.String("archive_id", archiveID),
		zap.Int("messages", log.Len()),
	)
	return archiveID, nil
}
