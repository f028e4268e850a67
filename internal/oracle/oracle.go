// Package oracle wraps the language model that narrates and referees
// combat turns.
package oracle

import (
	"context"

	"github.com/cory-johannsen/arbiter/internal/game/transcript"
)

// Oracle produces a completion for a conversation at a given sampling
// temperature. Implementations must be safe for concurrent use.
type Oracle interface {
	// Complete sends the conversation and returns the model's text response.
	//
	// Precondition: msgs must contain at least one user message.
	Complete(ctx context.Context, msgs []transcript.Message, temperature float64) (string, error)
}
