// Package updates applies free-text change descriptions to stored game
// documents. The referee reports changes as prose ("Goblin A takes 5
// damage, now 2/7 HP"); a low-temperature model call merges them into
// the JSON document, which is validated before being written back.
package updates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arbiter/internal/game/encounter"
	"github.com/cory-johannsen/arbiter/internal/game/llmjson"
	"github.com/cory-johannsen/arbiter/internal/game/transcript"
	"github.com/cory-johannsen/arbiter/internal/oracle"
	"github.com/cory-johannsen/arbiter/internal/store"
)

const mergePrompt = `You maintain game state documents for a tabletop
roleplaying session. You are given the current JSON document and a plain
text description of changes. Apply the changes and respond with the
complete updated JSON document and nothing else. Preserve every field you
were not asked to change. Never remove fields.`

// mergeTemperature keeps document merges deterministic.
const mergeTemperature = 0.2

// CharacterUpdater applies change descriptions to character and NPC sheets.
type CharacterUpdater struct {
	docs   store.DocumentStore
	oracle oracle.Oracle
	logger *zap.Logger
}

// NewCharacterUpdater creates a character updater.
//
// Precondition: docs, o, and logger must be non-nil.
func NewCharacterUpdater(docs store.DocumentStore, o oracle.Oracle, logger *zap.Logger) *CharacterUpdater {
	return &CharacterUpdater{docs: docs, oracle: o, logger: logger}
}

// UpdateCharacter merges changes into the named character's sheet. Player
// characters are looked up first; NPC sheets under the normalized name
// are the fallback.
//
// Postcondition: The stored sheet reflects the changes, or the document
// is untouched and an error is returned.
func (u *CharacterUpdater) UpdateCharacter(ctx context.Context, name, changes string) error {
	key := store.CharacterKey(name)
	doc, err := u.docs.Load(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		key = store.NPCKey(encounter.NormalizeNPCName(name))
		doc, err = u.docs.Load(ctx, key)
	}
	if err != nil {
		return fmt.Errorf("loading sheet for %q: %w", name, err)
	}

	merged, err := u.merge(ctx, doc, changes)
	if err != nil {
		return fmt.Errorf("merging changes for %q: %w", name, err)
	}

	if err := u.docs.Save(ctx, key, merged); err != nil {
		return fmt.Errorf("saving sheet for %q: %w", name, err)
	}
	u.logger.Info("character sheet updated",
		zap.String("name", name),
		zap.String("key", key),
		zap.String("changes", changes),
	)
	return nil
}

func (u *CharacterUpdater) merge(ctx context.Context, doc []byte, changes string) ([]byte, error) {
	return mergeDocument(ctx, u.oracle, doc, changes, func(data []byte) error {
		var m map[string]json.RawMessage
		return json.Unmarshal(data, &m)
	})
}

// EncounterUpdater applies change descriptions to encounter documents.
type EncounterUpdater struct {
	docs   store.DocumentStore
	oracle oracle.Oracle
	logger *zap.Logger
}

// NewEncounterUpdater creates an encounter updater.
//
// Precondition: docs, o, and logger must be non-nil.
func NewEncounterUpdater(docs store.DocumentStore, o oracle.Oracle, logger *zap.Logger) *EncounterUpdater {
	return &EncounterUpdater{docs: docs, oracle: o, logger: logger}
}

// UpdateEncounter merges changes into the encounter document.
//
// Postcondition: The stored document still decodes as an encounter, or
// the document is untouched and an error is returned.
func (u *EncounterUpdater) UpdateEncounter(ctx context.Context, encounterID, changes string) error {
	key := store.EncounterKey(encounterID)
	doc, err := u.docs.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("loading encounter %q: %w", encounterID, err)
	}

	merged, err := mergeDocument(ctx, u.oracle, doc, changes, func(data []byte) error {
		var enc encounter.Encounter
		return json.Unmarshal(data, &enc)
	})
	if err != nil {
		return fmt.Errorf("merging changes for encounter %q: %w", encounterID, err)
	}

	if err := u.docs.Save(ctx, key, merged); err != nil {
		return fmt.Errorf("saving encounter %q: %w", encounterID, err)
	}
	u.logger.Info("encounter updated",
		zap.String("encounter_id", encounterID),
		zap.String("changes", changes),
	)
	return nil
}

// mergeDocument asks the oracle to apply changes to doc and verifies the
// result with validate before returning it.
func mergeDocument(ctx context.Context, o oracle.Oracle, doc []byte, changes string, validate func([]byte) error) ([]byte, error) {
	msgs := []transcript.Message{
		{Role: transcript.RoleSystem, Content: mergePrompt},
		{Role: transcript.RoleUser, Content: fmt.Sprintf("Current document:\n%s\n\nChanges to apply:\n%s", doc, changes)},
	}

	raw, err := o.Complete(ctx, msgs, mergeTemperature)
	if err != nil {
		return nil, err
	}

	payload, err := llmjson.Extract(raw)
	if err != nil {
		return nil, err
	}
	if err := validate([]byte(payload)); err != nil {
		return nil, fmt.Errorf("merged document invalid: %w", err)
	}
	return []byte(payload), nil
}
