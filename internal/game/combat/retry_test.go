package combat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/arbiter/internal/config"
	"github.com/cory-johannsen/arbiter/internal/game/rules"
	"github.com/cory-johannsen/arbiter/internal/game/transcript"
)

func TestAttemptTemperatureSchedule(t *testing.T) {
	cfg := config.CombatConfig{BaseTemperature: 0.8, MinTemperature: 0.2, TemperatureDecay: 0.15}

	assert.InDelta(t, 0.8, attemptTemperature(cfg, 0), 1e-9)
	assert.InDelta(t, 0.65, attemptTemperature(cfg, 1), 1e-9)
	assert.InDelta(t, 0.5, attemptTemperature(cfg, 2), 1e-9)
	assert.InDelta(t, 0.35, attemptTemperature(cfg, 3), 1e-9)
	assert.InDelta(t, 0.2, attemptTemperature(cfg, 4), 1e-9)
	assert.InDelta(t, 0.2, attemptTemperature(cfg, 9), 1e-9, "schedule bottoms out at the floor")
}

func TestPropertyAttemptTemperatureMonotone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := config.CombatConfig{
			BaseTemperature:  rapid.Float64Range(0.2, 1.0).Draw(t, "base"),
			MinTemperature:   rapid.Float64Range(0.0, 0.2).Draw(t, "floor"),
			TemperatureDecay: rapid.Float64Range(0.0, 0.5).Draw(t, "decay"),
		}
		prev := attemptTemperature(cfg, 0)
		for attempt := 1; attempt < 10; attempt++ {
			cur := attemptTemperature(cfg, attempt)
			if cur > prev {
				t.Fatalf("temperature rose from %f to %f at attempt %d", prev, cur, attempt)
			}
			if cur < cfg.MinTemperature {
				t.Fatalf("temperature %f fell below floor %f", cur, cfg.MinTemperature)
			}
			prev = cur
		}
	})
}

func correctiveCount(msgs []transcript.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role == transcript.RoleUser && strings.Contains(m.Content, "previous response was rejected") {
			n++
		}
	}
	return n
}

func TestTurnFailsAfterAllAttempts(t *testing.T) {
	reject := &scriptedValidator{verdicts: []rules.Verdict{{
		Valid:          false,
		Reason:         "Sacred Flame used a d20 from the attack pool",
		Recommendation: "Use the generic d8 pool for spell damage",
	}}}
	h := newHarness(t, encounterDoc, &scriptedOracle{responses: []string{openingText, playerTurnResponse}}, reject)
	ctx := context.Background()

	s, err := StartSession(ctx, h.deps, testEncounterID, "Eirik")
	require.NoError(t, err)
	callsBefore := h.oracle.calls
	notesBefore := correctiveCount(s.log.Messages())
	judgedBefore := reject.calls

	_, err = s.ProcessPlayerTurn(ctx, "Eirik", "I cast Sacred Flame")
	assert.ErrorIs(t, err, ErrTurnFailed)

	assert.True(t, s.Active(), "a failed turn leaves the session live for a retry")
	assert.Equal(t, "Eirik", s.CurrentTurn())
	assert.Equal(t, 5, h.oracle.calls-callsBefore, "one narration call per attempt")
	assert.Equal(t, 5, correctiveCount(s.log.Messages())-notesBefore, "one corrective note per rejected attempt")
	assert.Empty(t, h.characters.calls, "rejected responses must not be applied")
	assert.Equal(t, 5, reject.calls-judgedBefore)
}

func TestTurnFailureDecaysTemperature(t *testing.T) {
	reject := &scriptedValidator{verdicts: []rules.Verdict{{Valid: false, Reason: "no"}}}
	h := newHarness(t, encounterDoc, &scriptedOracle{responses: []string{openingText, playerTurnResponse}}, reject)
	ctx := context.Background()

	s, err := StartSession(ctx, h.deps, testEncounterID, "Eirik")
	require.NoError(t, err)

	_, err = s.ProcessPlayerTurn(ctx, "Eirik", "I attack")
	require.ErrorIs(t, err, ErrTurnFailed)

	turnTemps := h.oracle.temps[len(h.oracle.temps)-5:]
	assert.InDelta(t, 0.8, turnTemps[0], 1e-9)
	assert.InDelta(t, 0.2, turnTemps[4], 1e-9)
	for i := 1; i < len(turnTemps); i++ {
		assert.LessOrEqual(t, turnTemps[i], turnTemps[i-1])
	}
}

func TestUnparseableResponseRetriesWithNote(t *testing.T) {
	h := newHarness(t, encounterDoc,
		&scriptedOracle{responses: []string{openingText, "the goblin dies, trust me", playerTurnResponse}}, acceptAll())
	ctx := context.Background()

	s, err := StartSession(ctx, h.deps, testEncounterID, "Eirik")
	require.NoError(t, err)

	state, err := s.ProcessPlayerTurn(ctx, "Eirik", "I swing my mace at Goblin A")
	require.NoError(t, err)

	assert.Equal(t, "Goblin A", state.CurrentTurn)
	noted := false
	for _, m := range s.log.Messages() {
		if strings.Contains(m.Content, invalidJSONNote) {
			noted = true
		}
	}
	assert.True(t, noted, "the parse failure must leave a corrective note")
	require.Len(t, h.characters.calls, 1, "the corrected attempt is applied once")
}

func TestAcceptedResponseAppendedOnce(t *testing.T) {
	h := newHarness(t, encounterDoc, &scriptedOracle{responses: []string{openingText, playerTurnResponse}}, acceptAll())
	ctx := context.Background()

	s, err := StartSession(ctx, h.deps, testEncounterID, "Eirik")
	require.NoError(t, err)

	_, err = s.ProcessPlayerTurn(ctx, "Eirik", "I swing my mace at Goblin A")
	require.NoError(t, err)

	count := 0
	for _, m := range s.log.Messages() {
		if m.Role == transcript.RoleAssistant && strings.Contains(m.Content, "mace cracks") {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestTurnCanceledByContext(t *testing.T) {
	h := newHarness(t, encounterDoc, &scriptedOracle{responses: []string{openingText, playerTurnResponse}}, acceptAll())

	s, err := StartSession(context.Background(), h.deps, testEncounterID, "Eirik")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.ProcessPlayerTurn(ctx, "Eirik", "I attack")
	assert.ErrorIs(t, err, context.Canceled)
}
