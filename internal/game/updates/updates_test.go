package updates

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arbiter/internal/game/transcript"
	"github.com/cory-johannsen/arbiter/internal/store"
)

// mergeOracle returns a fixed response and records the request.
type mergeOracle struct {
	response string
	err      error
	lastMsgs []transcript.Message
	temp     float64
}

func (o *mergeOracle) Complete(_ context.Context, msgs []transcript.Message, temperature float64) (string, error) {
	o.lastMsgs = msgs
	o.temp = temperature
	if o.err != nil {
		return "", o.err
	}
	return o.response, nil
}

func TestUpdateCharacter(t *testing.T) {
	docs := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, docs.Save(ctx, store.CharacterKey("Eirik"), []byte(`{"name":"Eirik","hitPoints":17}`)))

	o := &mergeOracle{response: "```json\n{\"name\":\"Eirik\",\"hitPoints\":12}\n```"}
	u := NewCharacterUpdater(docs, o, zap.NewNop())

	require.NoError(t, u.UpdateCharacter(ctx, "Eirik", "takes 5 damage, now 12 HP"))

	got, err := docs.Load(ctx, store.CharacterKey("Eirik"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Eirik","hitPoints":12}`, string(got))

	assert.Equal(t, 0.2, o.temp)
	body := o.lastMsgs[1].Content
	assert.Contains(t, body, `"hitPoints":17`)
	assert.Contains(t, body, "takes 5 damage")
}

func TestUpdateCharacterFallsBackToNPC(t *testing.T) {
	docs := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, docs.Save(ctx, store.NPCKey("kira"), []byte(`{"name":"Kira","hitPoints":9}`)))

	o := &mergeOracle{response: `{"name":"Kira","hitPoints":4}`}
	u := NewCharacterUpdater(docs, o, zap.NewNop())

	require.NoError(t, u.UpdateCharacter(ctx, "Kira", "takes 5 damage"))

	got, err := docs.Load(ctx, store.NPCKey("kira"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Kira","hitPoints":4}`, string(got))
}

func TestUpdateCharacterUnknownName(t *testing.T) {
	u := NewCharacterUpdater(store.NewMemoryStore(), &mergeOracle{response: "{}"}, zap.NewNop())
	err := u.UpdateCharacter(context.Background(), "Nobody", "anything")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateCharacterRejectsBadMerge(t *testing.T) {
	docs := store.NewMemoryStore()
	ctx := context.Background()
	original := []byte(`{"name":"Eirik","hitPoints":17}`)
	require.NoError(t, docs.Save(ctx, store.CharacterKey("Eirik"), original))

	o := &mergeOracle{response: "sorry, I cannot do that"}
	u := NewCharacterUpdater(docs, o, zap.NewNop())

	err := u.UpdateCharacter(ctx, "Eirik", "takes 5 damage")
	assert.Error(t, err)

	got, loadErr := docs.Load(ctx, store.CharacterKey("Eirik"))
	require.NoError(t, loadErr)
	assert.Equal(t, original, got, "failed merge must not touch the document")
}

func TestUpdateEncounter(t *testing.T) {
	docs := store.NewMemoryStore()
	ctx := context.Background()
	original := `{"encounterId":"e1","combat_round":1,"creatures":[{"name":"Goblin A","type":"enemy","initiative":12,"currentHitPoints":7,"maxHitPoints":7,"status":"alive","condition":"none"}]}`
	require.NoError(t, docs.Save(ctx, store.EncounterKey("e1"), []byte(original)))

	updated := strings.Replace(original, `"currentHitPoints":7`, `"currentHitPoints":2`, 1)
	o := &mergeOracle{response: updated}
	u := NewEncounterUpdater(docs, o, zap.NewNop())

	require.NoError(t, u.UpdateEncounter(ctx, "e1", "Goblin A takes 5 damage, now 2/7"))

	got, err := docs.Load(ctx, store.EncounterKey("e1"))
	require.NoError(t, err)
	assert.Contains(t, string(got), `"currentHitPoints":2`)
}

func TestUpdateEncounterRejectsNonEncounterResult(t *testing.T) {
	docs := store.NewMemoryStore()
	ctx := context.Background()
	original := []byte(`{"encounterId":"e1","combat_round":1,"creatures":[]}`)
	require.NoError(t, docs.Save(ctx, store.EncounterKey("e1"), original))

	o := &mergeOracle{response: `{"encounterId":"e1","creatures":"oops"}`}
	u := NewEncounterUpdater(docs, o, zap.NewNop())

	err := u.UpdateEncounter(ctx, "e1", "anything")
	assert.Error(t, err)

	got, loadErr := docs.Load(ctx, store.EncounterKey("e1"))
	require.NoError(t, loadErr)
	assert.Equal(t, original, got)
}

func TestUpdateEncounterOracleError(t *testing.T) {
	docs := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, docs.Save(ctx, store.EncounterKey("e1"), []byte(`{"encounterId":"e1","creatures":[]}`)))

	o := &mergeOracle{err: errors.New("down")}
	u := NewEncounterUpdater(docs, o, zap.NewNop())
	assert.Error(t, u.UpdateEncounter(ctx, "e1", "x"))
}
