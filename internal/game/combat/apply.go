package combat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arbiter/internal/game/encounter"
	"github.com/cory-johannsen/arbiter/internal/game/llmjson"
	"github.com/cory-johannsen/arbiter/internal/store"
)

// turnResponse is the structured payload the oracle must return for
// every resolved turn.
type turnResponse struct {
	Narration   string       `json:"narration"`
	Actions     []turnAction `json:"actions"`
	CombatRound int          `json:"combat_round"`
}

type turnAction struct {
	Action     string       `json:"action"`
	Parameters actionParams `json:"parameters"`
}

type actionParams struct {
	CharacterName string          `json:"characterName"`
	EncounterID   string          `json:"encounterId"`
	Changes       json.RawMessage `json:"changes"`
}

// changesText renders the changes payload as free text. String payloads
// are unquoted; object payloads pass through as raw JSON.
func (p actionParams) changesText() string {
	var s string
	if err := json.Unmarshal(p.Changes, &s); err == nil {
		return s
	}
	return string(p.Changes)
}

// parseResponse extracts and decodes the turn payload from raw oracle
// output.
//
// Postcondition: Returns an error if no JSON object is found or the
// payload has no narration.
func parseResponse(text string) (turnResponse, error) {
	var res turnResponse
	if err := llmjson.Unmarshal(text, &res); err != nil {
		return turnResponse{}, err
	}
	if strings.TrimSpace(res.Narration) == "" {
		return turnResponse{}, fmt.Errorf("turn response has no narration")
	}
	return res, nil
}

// applyResponse applies every action in the accepted response, then
// reloads the encounter so the session sees the mutated documents.
// Actions are isolated: one failed action is logged and skipped without
// blocking the rest.
//
// Precondition: caller holds the session mutex.
// Postcondition: s.enc reflects the stored encounter document. The
// round number never decreases. The encounter document is NOT persisted
// here; the caller saves once after advancing the turn.
func (s *Session) applyResponse(ctx context.Context, res turnResponse) error {
	for _, a := range res.Actions {
		kind := strings.ToLower(strings.TrimSpace(a.Action))
		switch kind {
		case "updatecharacterinfo":
			if err := s.deps.Characters.UpdateCharacter(ctx, a.Parameters.CharacterName, a.Parameters.changesText()); err != nil {
				s.logger.Error("character update failed",
					zap.String("character", a.Parameters.CharacterName),
					zap.Error(err))
			}
		case "updateencounter":
			id := a.Parameters.EncounterID
			if id == "" {
				id = s.encounterID
			}
			if err := s.deps.Encounters.UpdateEncounter(ctx, id, a.Parameters.changesText()); err != nil {
				s.logger.Error("encounter update failed",
					zap.String("encounter_id", id),
					zap.Error(err))
			}
		default:
			s.logger.Debug("ignoring unknown action", zap.String("action", a.Action))
		}
	}

	reloaded := &encounter.Encounter{}
	if err := store.LoadJSON(ctx, s.deps.Docs, store.EncounterKey(s.encounterID), reloaded); err != nil {
		return fmt.Errorf("reload encounter after actions: %w", err)
	}
	reloaded.NormalizeStatuses()

	if res.CombatRound > reloaded.Round {
		reloaded.Round = res.CombatRound
	}
	if reloaded.Round < s.enc.Round {
		reloaded.Round = s.enc.Round
	}
	s.enc = reloaded
	return nil
}
