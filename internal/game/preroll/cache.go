package preroll

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arbiter/internal/game/encounter"
	"github.com/cory-johannsen/arbiter/internal/store"
)

// Cache serves each combat round's preroll set, generating it at most
// once per round and persisting it on the encounter document so a
// resumed session sees the same dice.
type Cache struct {
	gen    *Generator
	docs   store.DocumentStore
	logger *zap.Logger
}

// NewCache creates a preroll cache.
//
// Precondition: gen, docs, and logger must be non-nil.
func NewCache(gen *Generator, docs store.DocumentStore, logger *zap.Logger) *Cache {
	return &Cache{gen: gen, docs: docs, logger: logger}
}

// GetOrGenerate returns the preroll set for the given round. A cached set
// for the same round is reused without touching the store; otherwise a new
// set is generated, attached to the encounter, and the encounter persisted.
//
// Postcondition: enc.Preroll is non-nil, holds rolls for round, and
// carries an ID of the form "<round>-<suffix>".
func (c *Cache) GetOrGenerate(ctx context.Context, enc *encounter.Encounter, round int, attacks AttackSource) (*encounter.PrerollCache, error) {
	if enc.Preroll != nil && enc.Preroll.Round == round && enc.Preroll.Rolls != "" {
		c.logger.Debug("preroll cache hit",
			zap.String("encounter_id", enc.ID),
			zap.Int("round", round),
			zap.String("preroll_id", enc.Preroll.ID),
		)
		return enc.Preroll, nil
	}

	rolls := c.gen.Generate(enc, attacks)
	set := &encounter.PrerollCache{
		Round: round,
		Rolls: rolls,
		ID:    fmt.Sprintf("%d-%s", round, uuid.NewString()[:8]),
	}
	enc.Preroll = set

	if err := store.SaveJSON(ctx, c.docs, store.EncounterKey(enc.ID), enc); err != nil {
		return nil, fmt.Errorf("persisting preroll set for %s: %w", enc.ID, err)
	}

	c.logger.Info("preroll set generated",
		zap.String("encounter_id", enc.ID),
		zap.Int("round", round),
		zap.String("preroll_id", set.ID),
	)
	return set, nil
}
