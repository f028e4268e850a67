package rules

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arbiter/internal/game/transcript"
	"github.com/cory-johannsen/arbiter/internal/oracle"
)

const summaryPrompt = `You summarize finished combat encounters. Given the
combat conversation, write a short past-tense summary (3-5 sentences) of
what happened: who fought, the decisive moments, and the outcome. Respond
with plain prose, no JSON.`

const summaryTemperature = 0.5

// Summarizer produces a prose summary of a finished combat.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []transcript.Message) (string, error)
}

// OracleSummarizer summarizes combat with a model call.
type OracleSummarizer struct {
	oracle oracle.Oracle
	logger *zap.Logger
}

// NewOracleSummarizer creates a model-backed summarizer.
//
// Precondition: o and logger must be non-nil.
func NewOracleSummarizer(o oracle.Oracle, logger *zap.Logger) *OracleSummarizer {
	return &OracleSummarizer{oracle: o, logger: logger}
}

// Summarize implements Summarizer.
func (s *OracleSummarizer) Summarize(ctx context.Context, msgs []transcript.Message) (string, error) {
	var b strings.Builder
	for _, m := range msgs {
		if m.Role == transcript.RoleSystem {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}

	conversation := []transcript.Message{
		{Role: transcript.RoleSystem, Content: summaryPrompt},
		{Role: transcript.RoleUser, Content: b.String()},
	}

	summary, err := s.oracle.Complete(ctx, conversation, summaryTemperature)
	if err != nil {
		return "", fmt.Errorf("summarizing combat: %w", err)
	}
	s.logger.Debug("combat summarized", zap.Int("chars", len(summary)))
	return strings.TrimSpace(summary), nil
}
