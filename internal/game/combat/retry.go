package combat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arbiter/internal/config"
	"github.com/cory-johannsen/arbiter/internal/game/encounter"
	"github.com/cory-johannsen/arbiter/internal/game/transcript"
	"github.com/cory-johannsen/arbiter/internal/oracle"
)

const invalidJSONNote = "Invalid JSON format. Please try again."

// attemptTemperature returns the sampling temperature for the given
// zero-based attempt. The schedule decays linearly from the base and
// never drops below the configured floor.
func attemptTemperature(cfg config.CombatConfig, attempt int) float64 {
	t := cfg.BaseTemperature - cfg.TemperatureDecay*float64(attempt)
	if t < cfg.MinTemperature {
		return cfg.MinTemperature
	}
	return t
}

// runAttempts drives the narrate-validate-retry loop for one turn.
// The turn prompt is appended to the transcript up front. Each rejected
// attempt appends exactly one corrective note; the accepted response is
// appended as the assistant turn exactly once.
//
// Precondition: caller holds the session mutex.
// Postcondition: On success the transcript ends with the accepted
// assistant response. On failure the transcript ends with the final
// corrective note and the returned error wraps ErrTurnFailed.
func (s *Session) runAttempts(ctx context.Context, turnPrompt string, set *encounter.PrerollCache) (turnResponse, error) {
	s.log.Append(transcript.RoleUser, turnPrompt)

	for attempt := 0; attempt < s.deps.Config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return turnResponse{}, err
		}
		temp := attemptTemperature(s.deps.Config, attempt)

		text, err := s.deps.Oracle.Complete(ctx, s.log.Messages(), temp)
		if err != nil {
			if oracle.IsTransient(err) {
				s.logger.Warn("narration attempt failed",
					zap.Int("attempt", attempt+1),
					zap.Error(err))
				continue
			}
			return turnResponse{}, fmt.Errorf("narration attempt %d: %w", attempt+1, err)
		}

		res, err := parseResponse(text)
		if err != nil {
			s.logger.Warn("narration response unparseable",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			s.log.Append(transcript.RoleUser, correctiveNote(invalidJSONNote))
			continue
		}

		verdict, err := s.deps.Validator.Validate(ctx, text, turnPrompt, s.enc, set, s.log.NonSystem())
		if err != nil {
			return turnResponse{}, fmt.Errorf("validate attempt %d: %w", attempt+1, err)
		}
		if !verdict.Valid {
			s.logger.Info("narration rejected",
				zap.Int("attempt", attempt+1),
				zap.String("reason", verdict.Reason))
			s.log.Append(transcript.RoleUser, correctiveNote(verdict.Feedback()))
			continue
		}

		s.log.Append(transcript.RoleAssistant, text)
		return res, nil
	}

	return turnResponse{}, fmt.Errorf("%w (attempts: %d)", ErrTurnFailed, s.deps.Config.MaxRetries)
}

// correctiveNote phrases rejection feedback as a DM note so the next
// attempt can correct itself.
func correctiveNote(feedback string) string {
	return "Dungeon Master Note: Your previous response was rejected. " + feedback +
		" Respond again, following the required response format exactly."
}
