package transcript

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arbiter/internal/store"
)

func TestAppendAndMessages(t *testing.T) {
	l := New()
	l.Append(RoleSystem, "You are the combat referee.")
	l.Append(RoleUser, "Player: I attack the goblin")
	l.Append(RoleAssistant, `{"narration": "You swing."}`)

	assert.Equal(t, 3, l.Len())
	msgs := l.Messages()
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[2].Role)

	// Messages returns a copy.
	msgs[0].Content = "mutated"
	assert.Equal(t, "You are the combat referee.", l.Messages()[0].Content)
}

func TestTruncate(t *testing.T) {
	l := New()
	l.Append(RoleUser, "a")
	l.Append(RoleAssistant, "b")
	l.Append(RoleUser, "c")

	l.Truncate(1)
	assert.Equal(t, 2, l.Len())

	l.Truncate(0)
	assert.Equal(t, 2, l.Len())

	l.Truncate(10)
	assert.Equal(t, 0, l.Len())
}

func TestReplaceSystem(t *testing.T) {
	l := New()
	l.Append(RoleSystem, "Player Character:\n{old}")
	l.Append(RoleUser, "Player: hello")

	l.ReplaceSystem("Player Character:", "Player Character:\n{new}")
	msgs := l.Messages()
	assert.Equal(t, "Player Character:\n{new}", msgs[0].Content)
	assert.Equal(t, 2, l.Len(), "must replace in place, not append")

	l.ReplaceSystem("Monster Templates:", "Monster Templates:\n{goblin}")
	assert.Equal(t, 3, l.Len(), "missing prefix appends")
}

func TestReplaceSystemSkipsUserMessages(t *testing.T) {
	l := New()
	l.Append(RoleUser, "Location: somewhere")
	l.ReplaceSystem("Location:", "Location: new")
	msgs := l.Messages()
	assert.Equal(t, "Location: somewhere", msgs[0].Content)
	assert.Equal(t, RoleSystem, msgs[1].Role)
}

func TestPruneUserNotes(t *testing.T) {
	l := New()
	l.Append(RoleSystem, "context")
	l.Append(RoleUser, "--- CURRENT COMBAT STATE ---\nstate\n--- END ---\nPlayer: I attack\nNotes follow")
	l.Append(RoleAssistant, "{}")
	l.Append(RoleUser, "--- CURRENT COMBAT STATE ---\nstate2\n--- END ---\nPlayer: I dodge")

	l.PruneUserNotes()
	msgs := l.Messages()
	assert.Equal(t, "Player: I attack", msgs[1].Content, "old user prompts reduced to the player line")
	assert.True(t, strings.Contains(msgs[3].Content, "state2"), "latest user prompt untouched")
}

func TestPruneUserNotesNoPlayerLine(t *testing.T) {
	l := New()
	l.Append(RoleUser, "Dungeon Master Note: resolve the goblin's turn")
	l.Append(RoleUser, "Player: next")

	l.PruneUserNotes()
	assert.Equal(t, "Dungeon Master Note: resolve the goblin's turn", l.Messages()[0].Content)
}

func TestNonSystem(t *testing.T) {
	l := New()
	l.Append(RoleSystem, "ctx")
	l.Append(RoleUser, "Player: go")
	l.Append(RoleAssistant, "{}")

	out := l.NonSystem()
	require.Len(t, out, 2)
	assert.Equal(t, RoleUser, out[0].Role)
	assert.Equal(t, RoleAssistant, out[1].Role)
}

func TestTail(t *testing.T) {
	l := New()
	for _, c := range []string{"a", "b", "c", "d"} {
		l.Append(RoleUser, c)
	}
	tail := l.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "c", tail[0].Content)
	assert.Equal(t, "d", tail[1].Content)

	assert.Len(t, l.Tail(10), 4)
	assert.Nil(t, l.Tail(0))
}

func TestStoreSaveLoad(t *testing.T) {
	docs := store.NewMemoryStore()
	s := NewStore(docs, zap.NewNop())
	ctx := context.Background()

	l := New()
	l.Append(RoleSystem, strings.Repeat("You are the combat referee for this encounter. ", 4))
	l.Append(RoleUser, "Player: I attack the goblin with my mace")
	require.NoError(t, s.Save(ctx, "goblin_ambush_001", l))

	got, err := s.Load(ctx, "goblin_ambush_001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, l.Messages(), got.Messages())
}

func TestStoreLoadMissing(t *testing.T) {
	s := NewStore(store.NewMemoryStore(), zap.NewNop())
	got, err := s.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreLoadTinyTranscriptNotResumed(t *testing.T) {
	docs := store.NewMemoryStore()
	s := NewStore(docs, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, docs.Save(ctx, store.TranscriptKey("e1"), []byte(`[]`)))
	got, err := s.Load(ctx, "e1")
	require.NoError(t, err)
	assert.Nil(t, got, "transcripts under the resume threshold start fresh")
}

func TestStoreArchive(t *testing.T) {
	docs := store.NewMemoryStore()
	s := NewStore(docs, zap.NewNop())
	ctx := context.Background()

	l := New()
	l.Append(RoleSystem, "ctx")
	l.Append(RoleUser, "Player: finish him")
	l.Append(RoleAssistant, `{"narration": "The goblin falls."}`)
	require.NoError(t, s.Save(ctx, "e1", l))

	archiveID, err := s.Archive(ctx, "e1", l)
	require.NoError(t, err)
	assert.NotEmpty(t, archiveID)

	// Live transcript is gone.
	got, err := s.Load(ctx, "e1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Archive holds only the non-system messages.
	var archived []Message
	require.NoError(t, store.LoadJSON(ctx, docs, store.ArchiveKey("e1", archiveID), &archived))
	require.Len(t, archived, 2)
	assert.Equal(t, RoleUser, archived[0].Role)
}
