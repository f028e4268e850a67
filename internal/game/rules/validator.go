// Package rules judges referee responses against the combat rules before
// they are accepted into the transcript.
package rules

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arbiter/internal/game/encounter"
	"github.com/cory-johannsen/arbiter/internal/game/llmjson"
	"github.com/cory-johannsen/arbiter/internal/game/transcript"
	"github.com/cory-johannsen/arbiter/internal/oracle"
)

//go:embed validator_prompt.txt
var validatorPrompt string

// judgeTemperature keeps the auditor deterministic relative to narration.
const judgeTemperature = 0.3

// Verdict is the validator's judgment of one referee response.
type Verdict struct {
	Valid bool `json:"valid"`
	// Reason explains a rejection in one sentence.
	Reason string `json:"reason"`
	// Recommendation tells the referee how to correct the response.
	Recommendation string `json:"recommendation"`
}

// Feedback renders the corrective note shown to the referee on retry.
func (v Verdict) Feedback() string {
	parts := make([]string, 0, 2)
	if v.Reason != "" {
		parts = append(parts, v.Reason)
	}
	if v.Recommendation != "" {
		parts = append(parts, v.Recommendation)
	}
	return strings.Join(parts, " ")
}

// Validator judges whether a referee response is a legal continuation of
// the combat.
type Validator interface {
	// Validate returns the verdict for response given the current state.
	// trigger is the turn prompt that elicited the response, so the
	// auditor judges the response against what was actually asked.
	//
	// Precondition: response must be non-empty.
	Validate(ctx context.Context, response, trigger string, enc *encounter.Encounter, set *encounter.PrerollCache, history []transcript.Message) (Verdict, error)
}

// OracleValidator judges responses with a second model call at low
// temperature. Auditor failures fail open: a response is assumed valid
// when the auditor itself cannot produce a verdict.
type OracleValidator struct {
	oracle  oracle.Oracle
	retries int
	logger  *zap.Logger
}

// NewOracleValidator creates a model-backed validator.
//
// Precondition: o and logger must be non-nil; retries >= 1.
func NewOracleValidator(o oracle.Oracle, retries int, logger *zap.Logger) *OracleValidator {
	return &OracleValidator{oracle: o, retries: retries, logger: logger}
}

// Validate implements Validator.
//
// Postcondition: Returns a fail-open valid verdict if every auditor
// attempt fails; the error is nil in that case.
func (v *OracleValidator) Validate(ctx context.Context, response, trigger string, enc *encounter.Encounter, set *encounter.PrerollCache, history []transcript.Message) (Verdict, error) {
	msgs := v.buildConversation(response, trigger, enc, set, history)

	var lastErr error
	for attempt := 1; attempt <= v.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Verdict{}, err
		}

		raw, err := v.oracle.Complete(ctx, msgs, judgeTemperature)
		if err != nil {
			lastErr = err
			v.logger.Warn("validator call failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		var verdict Verdict
		if err := llmjson.Unmarshal(raw, &verdict); err != nil {
			lastErr = err
			v.logger.Warn("validator returned unparseable verdict",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		v.logger.Debug("validator verdict",
			zap.Bool("valid", verdict.Valid),
			zap.String("reason", verdict.Reason),
		)
		return verdict, nil
	}

	// Fail open: narration proceeds rather than deadlocking the session
	// on a broken auditor.
	v.logger.Warn("validator exhausted, assuming response valid",
		zap.Int("attempts", v.retries),
		zap.Error(lastErr),
	)
	return Verdict{Valid: true, Reason: "validator unavailable"}, nil
}

// historyPairs is the number of trailing conversation messages shown to
// the auditor for context.
const historyPairs = 6

func (v *OracleValidator) buildConversation(response, trigger string, enc *encounter.Encounter, set *encounter.PrerollCache, history []transcript.Message) []transcript.Message {
	msgs := []transcript.Message{
		{Role: transcript.RoleSystem, Content: validatorPrompt},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Combat round: %d\n", enc.Round)
	b.WriteString("Initiative order (living):\n")
	for _, c := range enc.InitiativeOrder() {
		fmt.Fprintf(&b, "  %s (%s, initiative %d, HP %d/%d)\n", c.Name, c.Type, c.Initiative, c.CurrentHP, c.MaxHP)
	}
	if set != nil {
		fmt.Fprintf(&b, "\nPreroll set %s:\n%s\n", set.ID, set.Rolls)
	}

	if len(history) > 0 {
		b.WriteString("\nRecent conversation:\n")
		start := len(history) - historyPairs
		if start < 0 {
			start = 0
		}
		for _, m := range history[start:] {
			fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
		}
	}

	if trigger != "" {
		fmt.Fprintf(&b, "\nPrompt that triggered the response:\n%s\n", trigger)
	}
	fmt.Fprintf(&b, "\nReferee response to judge:\n%s", response)
	msgs = append(msgs, transcript.Message{Role: transcript.RoleUser, Content: b.String()})
	return msgs
}
