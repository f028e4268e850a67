package encounter

import (
	"encoding/json"
	"fmt"
)

// Party is the party tracker document. It carries world state shared
// across encounters; combat only touches the encounter pointers, so
// everything else is preserved verbatim.
type Party struct {
	// ActiveEncounter is the encounter currently in progress, or "".
	ActiveEncounter string
	// LastCompletedEncounter is the most recently finished encounter.
	LastCompletedEncounter string

	extra      map[string]json.RawMessage
	worldExtra map[string]json.RawMessage
}

// UnmarshalJSON decodes a party tracker document, retaining unknown keys
// both at the top level and inside worldConditions.
func (p *Party) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.worldExtra = make(map[string]json.RawMessage)
	if wc, ok := raw["worldConditions"]; ok {
		var world map[string]json.RawMessage
		if err := json.Unmarshal(wc, &world); err != nil {
			return fmt.Errorf("worldConditions: %w", err)
		}
		if v, ok := world["activeCombatEncounter"]; ok {
			if err := json.Unmarshal(v, &p.ActiveEncounter); err != nil {
				return fmt.Errorf("activeCombatEncounter: %w", err)
			}
		}
		if v, ok := world["lastCompletedEncounter"]; ok {
			if err := json.Unmarshal(v, &p.LastCompletedEncounter); err != nil {
				return fmt.Errorf("lastCompletedEncounter: %w", err)
			}
		}
		delete(world, "activeCombatEncounter")
		delete(world, "lastCompletedEncounter")
		p.worldExtra = world
	}

	delete(raw, "worldConditions")
	p.extra = raw
	return nil
}

// MarshalJSON encodes the party tracker, merging retained keys back in.
func (p Party) MarshalJSON() ([]byte, error) {
	world := make(map[string]json.RawMessage, len(p.worldExtra)+2)
	for k, v := range p.worldExtra {
		world[k] = v
	}
	active, err := json.Marshal(p.ActiveEncounter)
	if err != nil {
		return nil, err
	}
	world["activeCombatEncounter"] = active
	last, err := json.Marshal(p.LastCompletedEncounter)
	if err != nil {
		return nil, err
	}
	world["lastCompletedEncounter"] = last

	out := make(map[string]json.RawMessage, len(p.extra)+1)
	for k, v := range p.extra {
		out[k] = v
	}
	wc, err := json.Marshal(world)
	if err != nil {
		return nil, err
	}
	out["worldConditions"] = wc

	return json.Marshal(out)
}

// CompleteEncounter records the active encounter as finished.
//
// Postcondition: ActiveEncounter == "" and LastCompletedEncounter holds
// the previously active encounter if one was set.
func (p *Party) CompleteEncounter() {
	if p.ActiveEncounter != "" {
		p.LastCompletedEncounter = p.ActiveEncounter
	}
	p.ActiveEncounter = ""
}
