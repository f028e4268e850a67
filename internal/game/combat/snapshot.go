package combat

import (
	"strings"

	"github.com/cory-johannsen/arbiter/internal/game/encounter"
	"github.com/cory-johannsen/arbiter/internal/game/llmjson"
	"github.com/cory-johannsen/arbiter/internal/game/transcript"
)

// InitiativeEntry is one living creature in the displayed turn order.
type InitiativeEntry struct {
	Name       string                 `json:"name"`
	Type       encounter.CreatureType `json:"type"`
	Initiative int                    `json:"initiative"`
	CurrentHP  int                    `json:"currentHitPoints"`
	MaxHP      int                    `json:"maxHitPoints"`
	Status     string                 `json:"status"`
	Acting     bool                   `json:"acting"`
}

// State is a display snapshot of a combat session.
type State struct {
	EncounterID string            `json:"encounterId"`
	Round       int               `json:"round"`
	CurrentTurn string            `json:"currentTurn"`
	Active      bool              `json:"active"`
	Order       []InitiativeEntry `json:"order"`
	Log         []string          `json:"log"`
	Summary     string            `json:"summary,omitempty"`
}

// snapshot builds the display state for the session's current position.
// Dead creatures are excluded from the order; the log shows the trailing
// transcript window.
//
// Precondition: caller holds the session mutex.
func (s *Session) snapshot() State {
	st := State{
		EncounterID: s.encounterID,
		Round:       s.enc.Round,
		CurrentTurn: s.currentTurn,
		Active:      s.active,
		Summary:     s.summary,
	}
	for _, c := range s.enc.InitiativeOrder() {
		st.Order = append(st.Order, InitiativeEntry{
			Name:       c.Name,
			Type:       c.Type,
			Initiative: c.Initiative,
			CurrentHP:  c.CurrentHP,
			MaxHP:      c.MaxHP,
			Status:     c.Status,
			Acting:     strings.EqualFold(c.Name, s.currentTurn),
		})
	}
	st.Log = logLines(s.log, s.deps.Config.HistoryWindow)
	return st
}

// logLines renders the trailing window of the transcript for display.
// Player lines pass through; assistant messages are reduced to their
// narration. DM notes and turn prompts are omitted.
func logLines(log *transcript.Log, window int) []string {
	msgs := log.NonSystem()
	if window > 0 && len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	var lines []string
	for _, m := range msgs {
		switch m.Role {
		case transcript.RoleUser:
			if strings.HasPrefix(m.Content, "Player: ") {
				lines = append(lines, m.Content)
			} else if i := strings.LastIndex(m.Content, "Player: "); i >= 0 {
				// Turn prompts embed the player's declaration between the
				// state block and the closing instructions.
				line := m.Content[i:]
				if j := strings.Index(line, "\n"); j >= 0 {
					line = line[:j]
				}
				lines = append(lines, line)
			}
		case transcript.RoleAssistant:
			lines = append(lines, "DM: "+narrationOf(m.Content))
		}
	}
	return lines
}

// narrationOf pulls the narration field from a structured response,
// falling back to the raw text when the response is not structured.
func narrationOf(content string) string {
	var res struct {
		Narration string `json:"narration"`
	}
	if err := llmjson.Unmarshal(content, &res); err == nil && res.Narration != "" {
		return res.Narration
	}
	return content
}
