package combat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arbiter/internal/config"
	"github.com/cory-johannsen/arbiter/internal/game/dice"
	"github.com/cory-johannsen/arbiter/internal/game/encounter"
	"github.com/cory-johannsen/arbiter/internal/game/preroll"
	"github.com/cory-johannsen/arbiter/internal/game/rules"
	"github.com/cory-johannsen/arbiter/internal/game/transcript"
	"github.com/cory-johannsen/arbiter/internal/store"
)

const testEncounterID = "enc-17"

const encounterDoc = `{
	"encounterId": "enc-17",
	"combat_round": 1,
	"creatures": [
		{"name": "Eirik", "type": "player", "initiative": 20, "currentHitPoints": 17, "maxHitPoints": 24, "status": "alive", "condition": "none"},
		{"name": "Goblin A", "type": "enemy", "monsterType": "goblin", "initiative": 18, "currentHitPoints": 7, "maxHitPoints": 7, "status": "alive", "condition": "none"},
		{"name": "Goblin B", "type": "enemy", "monsterType": "goblin", "initiative": 12, "currentHitPoints": 7, "maxHitPoints": 7, "status": "alive", "condition": "none"}
	]
}`

// goblinFirstDoc puts Goblin A ahead of the player in initiative.
const goblinFirstDoc = `{
	"encounterId": "enc-17",
	"combat_round": 1,
	"creatures": [
		{"name": "Eirik", "type": "player", "initiative": 20, "currentHitPoints": 17, "maxHitPoints": 24, "status": "alive", "condition": "none"},
		{"name": "Goblin A", "type": "enemy", "monsterType": "goblin", "initiative": 22, "currentHitPoints": 7, "maxHitPoints": 7, "status": "alive", "condition": "none"},
		{"name": "Goblin B", "type": "enemy", "monsterType": "goblin", "initiative": 12, "currentHitPoints": 7, "maxHitPoints": 7, "status": "alive", "condition": "none"}
	]
}`

const playerDoc = `{
	"name": "Eirik",
	"class": "cleric",
	"hitPoints": 17,
	"maxHitPoints": 24,
	"status": "alive",
	"condition": "none"
}`

const goblinDoc = `{
	"name": "Goblin",
	"maxHitPoints": 7,
	"actions": [
		{"name": "Scimitar", "attackBonus": 4, "damage": "1d6+2"}
	]
}`

const partyDoc = `{
	"partyName": "The Lanterns",
	"worldConditions": {
		"activeCombatEncounter": "enc-17",
		"lastCompletedEncounter": ""
	}
}`

const openingText = `{
	"narration": "Torchlight gutters as two goblins slip from the shadows.",
	"actions": [],
	"combat_round": 1
}`

// scriptedOracle replays canned responses and records every call. The
// final response repeats once the script runs out.
type scriptedOracle struct {
	responses []string
	calls     int
	temps     []float64
	lastMsgs  []transcript.Message
}

func (o *scriptedOracle) Complete(_ context.Context, msgs []transcript.Message, temperature float64) (string, error) {
	i := o.calls
	o.calls++
	o.temps = append(o.temps, temperature)
	o.lastMsgs = msgs
	if i >= len(o.responses) {
		i = len(o.responses) - 1
	}
	return o.responses[i], nil
}

// scriptedValidator replays canned verdicts; the final verdict repeats.
type scriptedValidator struct {
	verdicts []rules.Verdict
	calls    int
	triggers []string
}

func (v *scriptedValidator) Validate(_ context.Context, _ string, trigger string, _ *encounter.Encounter, _ *encounter.PrerollCache, _ []transcript.Message) (rules.Verdict, error) {
	i := v.calls
	v.calls++
	v.triggers = append(v.triggers, trigger)
	if len(v.verdicts) == 0 {
		return rules.Verdict{Valid: true}, nil
	}
	if i >= len(v.verdicts) {
		i = len(v.verdicts) - 1
	}
	return v.verdicts[i], nil
}

func acceptAll() *scriptedValidator {
	return &scriptedValidator{verdicts: []rules.Verdict{{Valid: true}}}
}

type staticSummarizer struct{ text string }

func (s staticSummarizer) Summarize(context.Context, []transcript.Message) (string, error) {
	return s.text, nil
}

// fakeCharacters records character mutations without touching the store.
type fakeCharacters struct {
	calls [][2]string
}

func (f *fakeCharacters) UpdateCharacter(_ context.Context, name, changes string) error {
	f.calls = append(f.calls, [2]string{name, changes})
	return nil
}

// fakeEncounters records encounter mutations; apply, when set, performs
// the mutation against the store.
type fakeEncounters struct {
	calls [][2]string
	apply func(ctx context.Context, encounterID, changes string) error
}

func (f *fakeEncounters) UpdateEncounter(ctx context.Context, encounterID, changes string) error {
	f.calls = append(f.calls, [2]string{encounterID, changes})
	if f.apply != nil {
		return f.apply(ctx, encounterID, changes)
	}
	return nil
}

// fixedSource always rolls the maximum, making preroll output deterministic.
type fixedSource struct{}

func (fixedSource) Intn(n int) int { return n - 1 }

type harness struct {
	docs       *store.MemoryStore
	oracle     *scriptedOracle
	validator  *scriptedValidator
	characters *fakeCharacters
	encounters *fakeEncounters
	deps       Deps
}

func newHarness(t *testing.T, encDoc string, o *scriptedOracle, v *scriptedValidator) *harness {
	t.Helper()
	docs := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, docs.Save(ctx, store.EncounterKey(testEncounterID), []byte(encDoc)))
	require.NoError(t, docs.Save(ctx, store.CharacterKey("Eirik"), []byte(playerDoc)))
	require.NoError(t, docs.Save(ctx, store.MonsterKey("goblin"), []byte(goblinDoc)))
	require.NoError(t, docs.Save(ctx, store.PartyKey(), []byte(partyDoc)))

	h := &harness{
		docs:       docs,
		oracle:     o,
		validator:  v,
		characters: &fakeCharacters{},
		encounters: &fakeEncounters{},
	}
	logger := zap.NewNop()
	gen := preroll.NewGenerator(dice.NewLoggedRoller(fixedSource{}, logger))
	h.deps = Deps{
		Docs:        docs,
		Oracle:      o,
		Validator:   v,
		Summarizer:  staticSummarizer{text: "The goblins fell to Eirik's mace."},
		Characters:  h.characters,
		Encounters:  h.encounters,
		Prerolls:    preroll.NewCache(gen, docs, logger),
		Transcripts: transcript.NewStore(docs, logger),
		Logger:      logger,
		Config: config.CombatConfig{
			MaxRetries:        5,
			ValidationRetries: 3,
			BaseTemperature:   0.8,
			MinTemperature:    0.2,
			TemperatureDecay:  0.15,
			HistoryWindow:     10,
		},
	}
	return h
}

func TestStartSessionSeedsTranscript(t *testing.T) {
	h := newHarness(t, encounterDoc, &scriptedOracle{responses: []string{openingText}}, acceptAll())

	s, err := StartSession(context.Background(), h.deps, testEncounterID, "Eirik")
	require.NoError(t, err)

	assert.True(t, s.Active())
	assert.Equal(t, "Eirik", s.CurrentTurn(), "highest initiative acts first")
	assert.Equal(t, 1, h.oracle.calls, "one opening narration call")

	raw, err := h.docs.Load(context.Background(), store.TranscriptKey(testEncounterID))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Torchlight gutters")
}

func TestStartSessionResumesStoredTranscript(t *testing.T) {
	h := newHarness(t, encounterDoc, &scriptedOracle{responses: []string{openingText}}, acceptAll())
	ctx := context.Background()

	first, err := StartSession(ctx, h.deps, testEncounterID, "Eirik")
	require.NoError(t, err)
	seeded := first.log.Len()

	resumed, err := StartSession(ctx, h.deps, testEncounterID, "Eirik")
	require.NoError(t, err)

	assert.Equal(t, 1, h.oracle.calls, "resume must not narrate a second opening")
	assert.Equal(t, seeded, resumed.log.Len())
}

func TestStartSessionMissingEncounterFails(t *testing.T) {
	h := newHarness(t, encounterDoc, &scriptedOracle{responses: []string{openingText}}, acceptAll())
	require.NoError(t, h.docs.Delete(context.Background(), store.EncounterKey(testEncounterID)))

	_, err := StartSession(context.Background(), h.deps, testEncounterID, "Eirik")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEndCombatUpdatesPartyAndArchives(t *testing.T) {
	allDead := strings.ReplaceAll(encounterDoc, `"currentHitPoints": 7, "maxHitPoints": 7, "status": "alive"`,
		`"currentHitPoints": 0, "maxHitPoints": 7, "status": "dead"`)
	h := newHarness(t, encounterDoc, &scriptedOracle{responses: []string{openingText, playerTurnResponse}}, acceptAll())
	h.encounters.apply = func(ctx context.Context, encounterID, changes string) error {
		return h.docs.Save(ctx, store.EncounterKey(encounterID), []byte(allDead))
	}
	ctx := context.Background()

	s, err := StartSession(ctx, h.deps, testEncounterID, "Eirik")
	require.NoError(t, err)

	state, err := s.ProcessPlayerTurn(ctx, "Eirik", "I strike down both goblins")
	require.NoError(t, err)

	assert.False(t, state.Active)
	assert.False(t, s.Active())
	assert.Equal(t, "The goblins fell to Eirik's mace.", state.Summary)

	party := &encounter.Party{}
	require.NoError(t, store.LoadJSON(ctx, h.docs, store.PartyKey(), party))
	assert.Empty(t, party.ActiveEncounter)
	assert.Equal(t, testEncounterID, party.LastCompletedEncounter)

	_, err = h.docs.Load(ctx, store.TranscriptKey(testEncounterID))
	assert.ErrorIs(t, err, store.ErrNotFound, "live transcript must be archived away")
	archived := false
	for _, key := range h.docs.Keys() {
		if strings.HasPrefix(key, "archive:"+testEncounterID+":") {
			archived = true
		}
	}
	assert.True(t, archived)

	_, err = s.ProcessPlayerTurn(ctx, "Eirik", "anything")
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestStateReadsWithoutProcessingTurn(t *testing.T) {
	h := newHarness(t, encounterDoc, &scriptedOracle{responses: []string{openingText}}, acceptAll())

	s, err := StartSession(context.Background(), h.deps, testEncounterID, "Eirik")
	require.NoError(t, err)
	callsBefore := h.oracle.calls

	state := s.State()

	assert.Equal(t, testEncounterID, state.EncounterID)
	assert.True(t, state.Active)
	assert.Equal(t, "Eirik", state.CurrentTurn)
	assert.Len(t, state.Order, 3)
	assert.Equal(t, callsBefore, h.oracle.calls, "reading state must not call the oracle")
}

func TestEndTerminatesActiveSession(t *testing.T) {
	h := newHarness(t, encounterDoc, &scriptedOracle{responses: []string{openingText}}, acceptAll())
	ctx := context.Background()

	s, err := StartSession(ctx, h.deps, testEncounterID, "Eirik")
	require.NoError(t, err)

	require.NoError(t, s.End(ctx))
	assert.False(t, s.Active())

	party := &encounter.Party{}
	require.NoError(t, store.LoadJSON(ctx, h.docs, store.PartyKey(), party))
	assert.Empty(t, party.ActiveEncounter)
	assert.Equal(t, testEncounterID, party.LastCompletedEncounter)

	_, err = s.ProcessPlayerTurn(ctx, "Eirik", "I attack")
	assert.ErrorIs(t, err, ErrSessionEnded)

	assert.NoError(t, s.End(ctx), "ending a finished session is a no-op")
}

func TestStopRequestHaltsAIBatchLoop(t *testing.T) {
	h := newHarness(t, goblinFirstDoc, &scriptedOracle{responses: []string{openingText, aiTurnResponse}}, acceptAll())
	ctx := context.Background()

	s, err := StartSession(ctx, h.deps, testEncounterID, "Eirik")
	require.NoError(t, err)
	require.Equal(t, "Goblin A", s.CurrentTurn())
	callsBefore := h.oracle.calls

	s.stop.Store(true)
	state, err := s.ProcessAITurns(ctx)
	require.NoError(t, err)

	assert.Equal(t, callsBefore, h.oracle.calls, "a stop request must not narrate further turns")
	assert.Equal(t, "Goblin A", state.CurrentTurn)
}
