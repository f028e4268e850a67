// Package combat orchestrates live combat sessions: it seeds and resumes
// the narration transcript, runs the narrate-validate-retry loop against
// the oracle, applies the accepted state mutations, and advances the turn
// order until the encounter ends.
package combat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arbiter/internal/config"
	"github.com/cory-johannsen/arbiter/internal/game/encounter"
	"github.com/cory-johannsen/arbiter/internal/game/preroll"
	"github.com/cory-johannsen/arbiter/internal/game/prompt"
	"github.com/cory-johannsen/arbiter/internal/game/rules"
	"github.com/cory-johannsen/arbiter/internal/game/transcript"
	"github.com/cory-johannsen/arbiter/internal/observability"
	"github.com/cory-johannsen/arbiter/internal/oracle"
	"github.com/cory-johannsen/arbiter/internal/store"
)

var (
	// ErrNotYourTurn is returned when a player acts out of turn.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrSessionEnded is returned when a turn is submitted to a finished session.
	ErrSessionEnded = errors.New("combat session has ended")
	// ErrTurnFailed is returned when every narration attempt for a turn was rejected.
	ErrTurnFailed = errors.New("turn failed after all narration attempts")
)

// CharacterMutator applies a free-text change description to a stored
// character or NPC document.
type CharacterMutator interface {
	UpdateCharacter(ctx context.Context, name, changes string) error
}

// EncounterMutator applies a free-text change description to a stored
// encounter document.
type EncounterMutator interface {
	UpdateEncounter(ctx context.Context, encounterID, changes string) error
}

// Deps bundles everything a Session needs. All fields are required
// unless noted otherwise.
type Deps struct {
	Docs        store.DocumentStore
	Oracle      oracle.Oracle
	Validator   rules.Validator
	Summarizer  rules.Summarizer
	Characters  CharacterMutator
	Encounters  EncounterMutator
	Prerolls    *preroll.Cache
	Transcripts *transcript.Store
	Logger      *zap.Logger
	Config      config.CombatConfig
}

// Session drives a single combat encounter for one player. All turn
// processing is serialized through the session mutex. The stop flag is
// set outside the mutex so an in-flight AI batch loop can observe an
// external End between batches.
type Session struct {
	mu   sync.Mutex
	stop atomic.Bool

	deps   Deps
	logger *zap.Logger

	encounterID string
	enc         *encounter.Encounter
	roster      *encounter.Roster
	log         *transcript.Log

	currentTurn string
	active      bool
	summary     string
}

// StartSession loads the encounter and all creature documents, resumes
// or seeds the narration transcript, and determines the opening turn.
//
// Precondition: encounterID and playerName must be non-empty.
// Postcondition: Returns an active session positioned at the current
// turn, or an error if any required document is missing or malformed.
func StartSession(ctx context.Context, deps Deps, encounterID, playerName string) (*Session, error) {
	logger := observability.ComponentLogger(deps.Logger, "session", encounterID)

	enc := &encounter.Encounter{}
	if err := store.LoadJSON(ctx, deps.Docs, store.EncounterKey(encounterID), enc); err != nil {
		return nil, fmt.Errorf("load encounter %s: %w", encounterID, err)
	}
	enc.NormalizeStatuses()

	roster := encounter.NewRoster(deps.Docs, logger)
	if err := roster.Load(ctx, enc, playerName); err != nil {
		return nil, fmt.Errorf("load roster for encounter %s: %w", encounterID, err)
	}

	s := &Session{
		deps:        deps,
		logger:      logger,
		encounterID: encounterID,
		enc:         enc,
		roster:      roster,
		active:      true,
	}

	resumed, err := s.resumeOrSeed(ctx)
	if err != nil {
		return nil, err
	}

	if enc.Ended() {
		if err := s.endCombat(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}

	s.currentTurn = enc.FirstTurn()
	logger.Info("combat session started",
		zap.Bool("resumed", resumed),
		zap.Int("round", enc.Round),
		zap.String("first_turn", s.currentTurn))

	if !resumed {
		// Best effort: an opening scene makes the transcript readable,
		// but a failed oracle call must not block the session.
		if err := s.narrateOpening(ctx); err != nil {
			logger.Warn("opening narration failed", zap.Error(err))
		}
	}
	return s, nil
}

// resumeOrSeed restores a stored transcript when one exists, otherwise
// seeds a fresh transcript with the system context slots.
func (s *Session) resumeOrSeed(ctx context.Context) (bool, error) {
	log, err := s.deps.Transcripts.Load(ctx, s.encounterID)
	if err != nil {
		return false, fmt.Errorf("load transcript: %w", err)
	}
	if log != nil {
		s.log = log
		// Refresh the context slots: the stored transcript may predate
		// document edits made between sessions.
		if err := prompt.RefreshEncounterDetails(s.log, s.enc); err != nil {
			return false, err
		}
		if err := prompt.RefreshPlayer(s.log, s.roster); err != nil {
			return false, err
		}
		return true, nil
	}

	s.log = transcript.New()
	location := s.loadLocation(ctx)
	if err := prompt.Seed(s.log, s.enc, s.roster, location); err != nil {
		return false, fmt.Errorf("seed transcript: %w", err)
	}
	return false, nil
}

// loadLocation fetches the location description for the encounter, if
// the encounter document names one. Missing locations are not an error.
func (s *Session) loadLocation(ctx context.Context) string {
	var doc struct {
		LocationID string `json:"locationId"`
	}
	if err := store.LoadJSON(ctx, s.deps.Docs, store.EncounterKey(s.encounterID), &doc); err != nil || doc.LocationID == "" {
		return ""
	}
	raw, err := s.deps.Docs.Load(ctx, store.LocationKey(doc.LocationID))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("load location", zap.String("location_id", doc.LocationID), zap.Error(err))
		}
		return ""
	}
	return string(raw)
}

// narrateOpening runs a scene-setting turn through the same
// validate-and-retry pipeline as regular turns before the first action.
func (s *Session) narrateOpening(ctx context.Context) error {
	set, err := s.deps.Prerolls.GetOrGenerate(ctx, s.enc, s.enc.Round, s.roster)
	if err != nil {
		return fmt.Errorf("preroll dice: %w", err)
	}
	state := s.roster.RenderState(s.enc)
	res, err := s.runAttempts(ctx, prompt.Opening(s.enc, state, set), set)
	if err != nil {
		s.saveTranscript(ctx)
		return err
	}
	if err := s.applyResponse(ctx, res); err != nil {
		return err
	}
	return s.deps.Transcripts.Save(ctx, s.encounterID, s.log)
}

// EncounterID returns the encounter this session drives.
func (s *Session) EncounterID() string { return s.encounterID }

// Active reports whether the session still accepts turns.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// CurrentTurn returns the name of the creature whose turn it is.
func (s *Session) CurrentTurn() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTurn
}

// Summary returns the end-of-combat summary, or "" while combat is live.
func (s *Session) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// State returns the current combat state without processing a turn.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// End terminates the session on demand: the party tracker is advanced
// and the transcript archived as if the encounter had concluded.
//
// Postcondition: Active() is false. An in-flight AI batch loop exits at
// its next liveness check rather than narrating further turns. Ending a
// finished session is a no-op.
func (s *Session) End(ctx context.Context) error {
	s.stop.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	s.logger.Info("combat session ended externally")
	return s.endCombat(ctx)
}

// endCombat finishes the session: the party tracker is advanced, a
// summary is generated and the transcript archived, both best effort.
//
// Precondition: caller holds the session mutex or is the only goroutine
// with access to the session.
// Postcondition: Active() is false. The party tracker no longer names
// this encounter as active.
func (s *Session) endCombat(ctx context.Context) error {
	s.active = false
	s.currentTurn = ""

	party := &encounter.Party{}
	if err := store.LoadJSON(ctx, s.deps.Docs, store.PartyKey(), party); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load party tracker: %w", err)
		}
		party = &encounter.Party{ActiveEncounter: s.encounterID}
	}
	party.CompleteEncounter()
	if err := store.SaveJSON(ctx, s.deps.Docs, store.PartyKey(), party); err != nil {
		return fmt.Errorf("save party tracker: %w", err)
	}

	if summary, err := s.deps.Summarizer.Summarize(ctx, s.log.NonSystem()); err != nil {
		s.logger.Warn("combat summary failed", zap.Error(err))
	} else {
		s.summary = summary
		s.log.Append(transcript.RoleAssistant, "Combat Summary: "+summary)
	}

	archiveID, err := s.deps.Transcripts.Archive(ctx, s.encounterID, s.log)
	if err != nil {
		s.logger.Warn("transcript archive failed", zap.Error(err))
	} else {
		s.logger.Info("combat ended",
			zap.Int("round", s.enc.Round),
			zap.String("archive_id", archiveID))
	}
	return nil
}
