package encounter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Sheet is a character, NPC, or monster document. Sheets are authored by
// outside tooling and carry far more detail than combat needs, so the
// model keeps the raw document and exposes accessors for the handful of
// fields combat reads.
type Sheet struct {
	raw map[string]json.RawMessage
}

// ParseSheet decodes a sheet document.
//
// Precondition: doc must be a JSON object.
func ParseSheet(doc []byte) (*Sheet, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("parsing sheet: %w", err)
	}
	return &Sheet{raw: raw}, nil
}

// JSON returns the full sheet document.
func (s *Sheet) JSON() ([]byte, error) {
	return json.Marshal(s.raw)
}

// dynamicKeys are per-combat state that is presented in the dynamic state
// block rather than the system prompt. Stripping them from the prompt copy
// keeps the model from reading stale values.
var dynamicKeys = []string{"hitPoints", "status", "condition", "condition_affected"}

// StaticJSON returns the sheet with per-combat dynamic fields removed.
// Used when embedding sheets in system prompts.
func (s *Sheet) StaticJSON() ([]byte, error) {
	filtered := make(map[string]json.RawMessage, len(s.raw))
	for k, v := range s.raw {
		filtered[k] = v
	}
	for _, k := range dynamicKeys {
		delete(filtered, k)
	}
	return json.Marshal(filtered)
}

func (s *Sheet) stringField(key string) string {
	v, ok := s.raw[key]
	if !ok {
		return ""
	}
	var out string
	if err := json.Unmarshal(v, &out); err != nil {
		return ""
	}
	return out
}

func (s *Sheet) intField(key string) int {
	v, ok := s.raw[key]
	if !ok {
		return 0
	}
	var out int
	if err := json.Unmarshal(v, &out); err != nil {
		return 0
	}
	return out
}

// Name returns the sheet's name field.
func (s *Sheet) Name() string { return s.stringField("name") }

// HitPoints returns current hit points.
func (s *Sheet) HitPoints() int { return s.intField("hitPoints") }

// MaxHitPoints returns maximum hit points.
func (s *Sheet) MaxHitPoints() int { return s.intField("maxHitPoints") }

// Status returns the status field, e.g. "alive" or "dead".
func (s *Sheet) Status() string { return s.stringField("status") }

// Condition returns the condition field, e.g. "none" or "poisoned".
func (s *Sheet) Condition() string { return s.stringField("condition") }

// ActiveConditions returns the sheet's condition_affected list, or nil.
func (s *Sheet) ActiveConditions() []string {
	v, ok := s.raw["condition_affected"]
	if !ok {
		return nil
	}
	var out []string
	if err := json.Unmarshal(v, &out); err != nil {
		return nil
	}
	return out
}

// SpellSlot describes one spell slot level.
type SpellSlot struct {
	Level   int
	Current int
	Max     int
}

// SpellSlots returns the sheet's spell slots for levels with a nonzero
// maximum, in ascending level order. Sheets without spellcasting return nil.
func (s *Sheet) SpellSlots() []SpellSlot {
	castingRaw, ok := s.raw["spellcasting"]
	if !ok {
		return nil
	}
	var casting struct {
		SpellSlots map[string]struct {
			Current int `json:"current"`
			Max     int `json:"max"`
		} `json:"spellSlots"`
	}
	if err := json.Unmarshal(castingRaw, &casting); err != nil {
		return nil
	}

	var out []SpellSlot
	for level := 1; level <= 9; level++ {
		slot, ok := casting.SpellSlots[fmt.Sprintf("level%d", level)]
		if !ok || slot.Max <= 0 {
			continue
		}
		out = append(out, SpellSlot{Level: level, Current: slot.Current, Max: slot.Max})
	}
	return out
}

// Attacks returns the names of the sheet's attack entries. Player and NPC
// sheets list them under "attacksAndSpellcasting"; monster templates list
// them under "actions".
func (s *Sheet) Attacks() []string {
	for _, key := range []string{"attacksAndSpellcasting", "actions"} {
		v, ok := s.raw[key]
		if !ok {
			continue
		}
		var entries []struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(v, &entries); err != nil {
			continue
		}
		var names []string
		for _, e := range entries {
			if e.Name != "" {
				names = append(names, e.Name)
			}
		}
		return names
	}
	return nil
}

// NormalizeNPCName converts a display name into an NPC document key:
// lowercased, spaces replaced with underscores. Names with more than two
// underscore segments are truncated to the first segment, so
// "Kira of the Vale" resolves to the document stored under "kira".
func NormalizeNPCName(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, " ", "_")
	if parts := strings.Split(key, "_"); len(parts) > 2 {
		key = parts[0]
	}
	return key
}
