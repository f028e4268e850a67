// Package encounter defines the combat encounter document model.
//
// Encounters are stored as JSON documents authored by outside tooling, so
// the model preserves fields it does not understand: unknown keys survive a
// load/modify/save cycle untouched.
package encounter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// CreatureType classifies a combatant.
type CreatureType string

const (
	TypePlayer CreatureType = "player"
	TypeNPC    CreatureType = "npc"
	TypeEnemy  CreatureType = "enemy"
)

// PrerollCache holds the dice prerolled for one combat round.
type PrerollCache struct {
	// Round is the combat round these rolls were generated for.
	Round int `json:"round"`
	// Rolls is the rendered dice text injected into the turn prompt.
	Rolls string `json:"rolls"`
	// ID uniquely identifies this preroll set, e.g. "3-a1b2c3d4".
	ID string `json:"preroll_id"`
}

// Creature is one combatant in an encounter.
type Creature struct {
	Name              string       `json:"name"`
	Type              CreatureType `json:"type"`
	MonsterType       string       `json:"monsterType,omitempty"`
	Initiative        int          `json:"initiative"`
	CurrentHP         int          `json:"currentHitPoints"`
	MaxHP             int          `json:"maxHitPoints"`
	Status            string       `json:"status"`
	Condition         string       `json:"condition"`
	ConditionAffected []string     `json:"condition_affected,omitempty"`

	// extra holds document fields this model does not interpret.
	extra map[string]json.RawMessage
}

// creatureJSON mirrors Creature's known fields for codec use.
type creatureJSON struct {
	Name              string       `json:"name"`
	Type              CreatureType `json:"type"`
	MonsterType       string       `json:"monsterType,omitempty"`
	Initiative        int          `json:"initiative"`
	CurrentHP         int          `json:"currentHitPoints"`
	MaxHP             int          `json:"maxHitPoints"`
	Status            string       `json:"status"`
	Condition         string       `json:"condition"`
	ConditionAffected []string     `json:"condition_affected,omitempty"`
}

var creatureKnownKeys = []string{
	"name", "type", "monsterType", "initiative",
	"currentHitPoints", "maxHitPoints", "status", "condition", "condition_affected",
}

// UnmarshalJSON decodes a creature, retaining unknown keys.
func (c *Creature) UnmarshalJSON(data []byte) error {
	var known creatureJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range creatureKnownKeys {
		delete(raw, k)
	}

	c.Name = known.Name
	c.Type = known.Type
	c.MonsterType = known.MonsterType
	c.Initiative = known.Initiative
	c.CurrentHP = known.CurrentHP
	c.MaxHP = known.MaxHP
	c.Status = known.Status
	c.Condition = known.Condition
	c.ConditionAffected = known.ConditionAffected
	c.extra = raw
	return nil
}

// MarshalJSON encodes the creature, merging retained unknown keys back in.
func (c Creature) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(c.extra)+len(creatureKnownKeys))
	for k, v := range c.extra {
		out[k] = v
	}
	known, err := json.Marshal(creatureJSON{
		Name:              c.Name,
		Type:              c.Type,
		MonsterType:       c.MonsterType,
		Initiative:        c.Initiative,
		CurrentHP:         c.CurrentHP,
		MaxHP:             c.MaxHP,
		Status:            c.Status,
		Condition:         c.Condition,
		ConditionAffected: c.ConditionAffected,
	})
	if err != nil {
		return nil, err
	}
	var knownMap map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return nil, err
	}
	for k, v := range knownMap {
		out[k] = v
	}
	return json.Marshal(out)
}

// IsDead reports whether the creature's status is "dead", case-insensitively.
func (c Creature) IsDead() bool {
	return strings.EqualFold(strings.TrimSpace(c.Status), "dead")
}

// IsPlayer reports whether the creature is player-controlled.
func (c Creature) IsPlayer() bool {
	return c.Type == TypePlayer
}

// Encounter is a combat encounter document.
type Encounter struct {
	ID        string
	Creatures []Creature
	// Round is the current combat round, starting at 1.
	Round   int
	Preroll *PrerollCache

	// extra holds document fields this model does not interpret.
	extra map[string]json.RawMessage

	// hadCurrentRound records whether the source document carried the
	// legacy "current_round" key, so saves keep it in sync.
	hadCurrentRound bool
}

var encounterKnownKeys = []string{
	"encounterId", "creatures", "combat_round", "current_round", "preroll_cache",
}

// UnmarshalJSON decodes an encounter document, retaining unknown keys.
//
// Postcondition: Round >= 1. Documents carrying only the legacy
// "current_round" key are honored; absent both, the round defaults to 1.
func (e *Encounter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["encounterId"]; ok {
		if err := json.Unmarshal(v, &e.ID); err != nil {
			return fmt.Errorf("encounterId: %w", err)
		}
	}
	if v, ok := raw["creatures"]; ok {
		if err := json.Unmarshal(v, &e.Creatures); err != nil {
			return fmt.Errorf("creatures: %w", err)
		}
	}

	e.Round = 0
	if v, ok := raw["combat_round"]; ok {
		if err := json.Unmarshal(v, &e.Round); err != nil {
			return fmt.Errorf("combat_round: %w", err)
		}
	}
	if v, ok := raw["current_round"]; ok {
		e.hadCurrentRound = true
		if e.Round == 0 {
			if err := json.Unmarshal(v, &e.Round); err != nil {
				return fmt.Errorf("current_round: %w", err)
			}
		}
	}
	if e.Round < 1 {
		e.Round = 1
	}

	if v, ok := raw["preroll_cache"]; ok && string(v) != "null" {
		e.Preroll = &PrerollCache{}
		if err := json.Unmarshal(v, e.Preroll); err != nil {
			return fmt.Errorf("preroll_cache: %w", err)
		}
	}

	for _, k := range encounterKnownKeys {
		delete(raw, k)
	}
	e.extra = raw
	return nil
}

// MarshalJSON encodes the encounter, merging retained unknown keys back in.
func (e Encounter) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.extra)+len(encounterKnownKeys))
	for k, v := range e.extra {
		out[k] = v
	}

	id, err := json.Marshal(e.ID)
	if err != nil {
		return nil, err
	}
	out["encounterId"] = id

	creatures, err := json.Marshal(e.Creatures)
	if err != nil {
		return nil, err
	}
	out["creatures"] = creatures

	round, err := json.Marshal(e.Round)
	if err != nil {
		return nil, err
	}
	out["combat_round"] = round
	if e.hadCurrentRound {
		out["current_round"] = round
	}

	if e.Preroll != nil {
		cache, err := json.Marshal(e.Preroll)
		if err != nil {
			return nil, err
		}
		out["preroll_cache"] = cache
	}

	return json.Marshal(out)
}

// Find returns a pointer to the creature with the given name, or nil.
// Matching is case-insensitive.
func (e *Encounter) Find(name string) *Creature {
	for i := range e.Creatures {
		if strings.EqualFold(e.Creatures[i].Name, name) {
			return &e.Creatures[i]
		}
	}
	return nil
}

// Living returns the creatures that are not dead, in document order.
func (e *Encounter) Living() []Creature {
	var out []Creature
	for _, c := range e.Creatures {
		if !c.IsDead() {
			out = append(out, c)
		}
	}
	return out
}

// InitiativeOrder returns the living creatures sorted by initiative,
// highest first. Ties break alphabetically by name.
func (e *Encounter) InitiativeOrder() []Creature {
	living := e.Living()
	sort.SliceStable(living, func(i, j int) bool {
		if living[i].Initiative != living[j].Initiative {
			return living[i].Initiative > living[j].Initiative
		}
		return living[i].Name < living[j].Name
	})
	return living
}

// FirstTurn returns the name of the creature that acts first in the
// current round, or "" if no one is alive.
func (e *Encounter) FirstTurn() string {
	order := e.InitiativeOrder()
	if len(order) == 0 {
		return ""
	}
	return order[0].Name
}

// NextTurn returns the name of the creature that acts after current,
// advancing the round when the order wraps. If current is not found in
// the living order, it restarts at the top of the order.
//
// Postcondition: Returns "" only when no creature is alive. The round
// number never decreases.
func (e *Encounter) NextTurn(current string) string {
	order := e.InitiativeOrder()
	if len(order) == 0 {
		return ""
	}

	idx := -1
	for i, c := range order {
		if strings.EqualFold(c.Name, current) {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Current actor died or left the order. Restart at the top.
		return order[0].Name
	}

	next := idx + 1
	if next >= len(order) {
		e.Round++
		next = 0
	}
	return order[next].Name
}

// Ended reports whether combat is over: no creatures, all players dead,
// or all enemies and NPCs dead.
func (e *Encounter) Ended() bool {
	if len(e.Creatures) == 0 {
		return true
	}
	playersAlive := false
	oppositionAlive := false
	for _, c := range e.Creatures {
		if c.IsDead() {
			continue
		}
		switch c.Type {
		case TypePlayer:
			playersAlive = true
		case TypeNPC, TypeEnemy:
			oppositionAlive = true
		}
	}
	return !playersAlive || !oppositionAlive
}

// NormalizeStatuses lowercases and trims every creature status so that
// status checks behave uniformly regardless of document authorship.
func (e *Encounter) NormalizeStatuses() {
	for i := range e.Creatures {
		e.Creatures[i].Status = strings.ToLower(strings.TrimSpace(e.Creatures[i].Status))
	}
}
