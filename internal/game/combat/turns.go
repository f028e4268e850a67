package combat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arbiter/internal/game/encounter"
	"github.com/cory-johannsen/arbiter/internal/game/prompt"
	"github.com/cory-johannsen/arbiter/internal/store"
)

// ProcessPlayerTurn resolves the acting player's turn: the player's
// declared action is narrated, validated, applied, and the turn order
// advances.
//
// Precondition: it must be playerName's turn. Out-of-turn submissions
// return ErrNotYourTurn without mutating any state.
// Postcondition: On success the encounter document and transcript are
// persisted and the returned state reflects the next turn. On failure
// the session stays active so the turn can be retried.
func (s *Session) ProcessPlayerTurn(ctx context.Context, playerName, text string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return State{}, ErrSessionEnded
	}
	if !strings.EqualFold(playerName, s.currentTurn) {
		return State{}, fmt.Errorf("%w: it is %s's turn", ErrNotYourTurn, s.currentTurn)
	}

	if err := s.syncContext(ctx); err != nil {
		return State{}, err
	}
	s.log.PruneUserNotes()

	set, err := s.deps.Prerolls.GetOrGenerate(ctx, s.enc, s.enc.Round, s.roster)
	if err != nil {
		return State{}, fmt.Errorf("preroll dice: %w", err)
	}

	state := s.roster.RenderState(s.enc)
	res, err := s.runAttempts(ctx, prompt.PlayerTurn(s.enc, state, set, text), set)
	if err != nil {
		s.saveTranscript(ctx)
		return State{}, err
	}

	roundBefore := s.enc.Round
	if err := s.applyResponse(ctx, res); err != nil {
		return State{}, err
	}
	s.advance(roundBefore)

	if err := s.finishTurn(ctx); err != nil {
		return State{}, err
	}
	return s.snapshot(), nil
}

// ProcessAITurns resolves consecutive NPC and enemy turns until the
// order reaches a player, the round would be crossed into, or combat
// ends. Each oracle call narrates the remaining non-player turns of the
// current round in one batch.
//
// Postcondition: On return the current turn is a player's turn, or the
// session has ended. A failed batch leaves the session active so the
// caller can retry.
func (s *Session) ProcessAITurns(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.active && s.currentTurn != "" && !s.isPlayerTurn() {
		if err := ctx.Err(); err != nil {
			return State{}, err
		}
		if s.stop.Load() {
			break
		}

		if err := s.syncContext(ctx); err != nil {
			return State{}, err
		}

		set, err := s.deps.Prerolls.GetOrGenerate(ctx, s.enc, s.enc.Round, s.roster)
		if err != nil {
			return State{}, fmt.Errorf("preroll dice: %w", err)
		}

		state := s.roster.RenderState(s.enc)
		res, err := s.runAttempts(ctx, prompt.AITurn(s.enc, state, set, s.currentTurn), set)
		if err != nil {
			s.saveTranscript(ctx)
			return State{}, err
		}

		roundBefore := s.enc.Round
		if err := s.applyResponse(ctx, res); err != nil {
			return State{}, err
		}
		s.advanceBatch(roundBefore)

		if err := s.finishTurn(ctx); err != nil {
			return State{}, err
		}
	}
	return s.snapshot(), nil
}

// isPlayerTurn reports whether the current turn belongs to a player.
func (s *Session) isPlayerTurn() bool {
	c := s.enc.Find(s.currentTurn)
	return c != nil && c.IsPlayer()
}

// syncContext reloads the encounter and creature documents and refreshes
// the transcript's system context slots so the oracle sees current state,
// including writes made by other systems between turns.
//
// Postcondition: s.enc reflects the stored encounter document; the round
// number never decreases.
func (s *Session) syncContext(ctx context.Context) error {
	fresh := &encounter.Encounter{}
	if err := store.LoadJSON(ctx, s.deps.Docs, store.EncounterKey(s.encounterID), fresh); err != nil {
		return fmt.Errorf("reload encounter: %w", err)
	}
	fresh.NormalizeStatuses()
	if fresh.Round < s.enc.Round {
		fresh.Round = s.enc.Round
	}
	s.enc = fresh

	if err := s.roster.Reload(ctx, s.enc); err != nil {
		return fmt.Errorf("reload roster: %w", err)
	}
	if err := prompt.RefreshPlayer(s.log, s.roster); err != nil {
		return err
	}
	return prompt.RefreshEncounterDetails(s.log, s.enc)
}

// advance moves the turn pointer one step. When the narrated response
// already advanced the round, the wrap bump from NextTurn is undone so
// the round is not counted twice.
func (s *Session) advance(roundBefore int) {
	already := s.enc.Round > roundBefore
	prev := s.enc.Round
	s.currentTurn = s.enc.NextTurn(s.currentTurn)
	if already && s.enc.Round > prev {
		s.enc.Round = prev
	}
}

// advanceBatch moves the turn pointer past the turns an AI batch just
// narrated: forward to the next player, or to the top of the next round,
// whichever comes first.
func (s *Session) advanceBatch(roundBefore int) {
	if s.enc.Round > roundBefore {
		// The narration already crossed the round boundary.
		s.currentTurn = s.enc.FirstTurn()
		return
	}
	start := s.enc.Round
	cur := s.currentTurn
	for {
		cur = s.enc.NextTurn(cur)
		if cur == "" {
			break
		}
		if c := s.enc.Find(cur); c != nil && c.IsPlayer() {
			break
		}
		if s.enc.Round > start {
			break
		}
	}
	s.currentTurn = cur
}

// finishTurn persists the encounter and transcript and ends the session
// when the encounter is over.
func (s *Session) finishTurn(ctx context.Context) error {
	if err := store.SaveJSON(ctx, s.deps.Docs, store.EncounterKey(s.encounterID), s.enc); err != nil {
		return fmt.Errorf("save encounter: %w", err)
	}
	if s.enc.Ended() {
		return s.endCombat(ctx)
	}
	return s.deps.Transcripts.Save(ctx, s.encounterID, s.log)
}

// saveTranscript persists the transcript best effort, keeping the
// corrective notes from a failed turn for the next attempt.
func (s *Session) saveTranscript(ctx context.Context) {
	if err := s.deps.Transcripts.Save(ctx, s.encounterID, s.log); err != nil {
		s.logger.Warn("save transcript failed", zap.Error(err))
	}
}
