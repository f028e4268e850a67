package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "encounter:goblin_ambush_001", EncounterKey("goblin_ambush_001"))
	assert.Equal(t, "character:eirik", CharacterKey("eirik"))
	assert.Equal(t, "monster:goblin", MonsterKey("goblin"))
	assert.Equal(t, "npc:scout_kira", NPCKey("scout_kira"))
	assert.Equal(t, "party:tracker", PartyKey())
	assert.Equal(t, "transcript:goblin_ambush_001", TranscriptKey("goblin_ambush_001"))
	assert.Equal(t, "archive:goblin_ambush_001:abc123", ArchiveKey("goblin_ambush_001", "abc123"))
	assert.Equal(t, "location:ravine", LocationKey("ravine"))
}

func TestLoadSaveJSON(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	type doc struct {
		Name  string `json:"name"`
		Round int    `json:"round"`
	}

	require.NoError(t, SaveJSON(ctx, s, "test:doc", doc{Name: "goblin", Round: 3}))

	var got doc
	require.NoError(t, LoadJSON(ctx, s, "test:doc", &got))
	assert.Equal(t, doc{Name: "goblin", Round: 3}, got)
}

func TestLoadJSONMissing(t *testing.T) {
	s := NewMemoryStore()
	var v map[string]any
	err := LoadJSON(context.Background(), s, "test:missing", &v)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadJSONMalformed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "test:bad", []byte("not json")))

	var v map[string]any
	err := LoadJSON(ctx, s, "test:bad", &v)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	doc := []byte(`{"a":1}`)
	require.NoError(t, s.Save(ctx, "k", doc))
	doc[1] = 'x'

	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), got)

	// Mutating the loaded slice must not affect the stored copy.
	got[1] = 'y'
	again, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), again)
}
