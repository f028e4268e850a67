// Package prompt composes the referee conversation: the seeded system
// context for an encounter and the per-turn prompts carrying combat state
// and prerolled dice.
package prompt

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cory-johannsen/arbiter/internal/game/encounter"
	"github.com/cory-johannsen/arbiter/internal/game/transcript"
)

//go:embed combat_prompt.txt
var combatPrompt string

// System slot prefixes. ReplaceSystem keys off these to refresh seeded
// context in place.
const (
	SlotEncounterID = "Current Combat Encounter:"
	SlotPlayer      = "Player Character:"
	SlotMonsters    = "Monster Templates:"
	SlotLocation    = "Location:"
	SlotNPCs        = "NPC Templates:"
	SlotEncounter   = "Encounter Details:"
)

const (
	stateHeader = "--- CURRENT COMBAT STATE ---"
	diceHeader  = "--- PRE-ROLLED DICE FOR NPCS/MONSTERS ---"
	endHeader   = "--- END OF STATE & DICE ---"
)

const diceUsageRules = `CRITICAL DICE USAGE:
- Attack rolls MUST use the acting creature's prerolled attack dice, in order.
- Saving throws MUST use the creature's prerolled save for the matching ability.
- The generic pool is ONLY for damage and effect dice.
- Never invent dice results and never reuse a consumed roll.`

// Seed populates an empty transcript with the system context for an
// encounter: the referee instructions, the encounter identity, the static
// sheets, and the location.
//
// Precondition: log must be empty; roster must be loaded.
func Seed(log *transcript.Log, enc *encounter.Encounter, roster *encounter.Roster, location string) error {
	log.Append(transcript.RoleSystem, combatPrompt)
	log.Append(transcript.RoleSystem, fmt.Sprintf("%s %s", SlotEncounterID, enc.ID))

	playerSlot, err := playerSlot(roster)
	if err != nil {
		return err
	}
	log.Append(transcript.RoleSystem, playerSlot)

	monsterSlot, err := monsterSlot(roster)
	if err != nil {
		return err
	}
	log.Append(transcript.RoleSystem, monsterSlot)

	if location == "" {
		location = "unknown"
	}
	log.Append(transcript.RoleSystem, fmt.Sprintf("%s\n%s", SlotLocation, location))

	if len(roster.NPCKeys()) > 0 {
		npcSlot, err := npcSlot(roster)
		if err != nil {
			return err
		}
		log.Append(transcript.RoleSystem, npcSlot)
	}

	encSlot, err := encounterSlot(enc)
	if err != nil {
		return err
	}
	log.Append(transcript.RoleSystem, encSlot)
	return nil
}

// RefreshEncounterDetails updates the seeded encounter document slot.
func RefreshEncounterDetails(log *transcript.Log, enc *encounter.Encounter) error {
	slot, err := encounterSlot(enc)
	if err != nil {
		return err
	}
	log.ReplaceSystem(SlotEncounter, slot)
	return nil
}

// RefreshPlayer updates the seeded player character slot.
func RefreshPlayer(log *transcript.Log, roster *encounter.Roster) error {
	slot, err := playerSlot(roster)
	if err != nil {
		return err
	}
	log.ReplaceSystem(SlotPlayer, slot)
	return nil
}

func playerSlot(roster *encounter.Roster) (string, error) {
	static, err := roster.Player().StaticJSON()
	if err != nil {
		return "", fmt.Errorf("rendering player sheet: %w", err)
	}
	return fmt.Sprintf("%s\n%s", SlotPlayer, static), nil
}

func monsterSlot(roster *encounter.Roster) (string, error) {
	var b strings.Builder
	b.WriteString(SlotMonsters)
	for _, mt := range roster.MonsterTypes() {
		doc, err := roster.Monster(mt).JSON()
		if err != nil {
			return "", fmt.Errorf("rendering monster template %q: %w", mt, err)
		}
		fmt.Fprintf(&b, "\n%s:\n%s", mt, doc)
	}
	return b.String(), nil
}

func npcSlot(roster *encounter.Roster) (string, error) {
	var b strings.Builder
	b.WriteString(SlotNPCs)
	for _, key := range roster.NPCKeys() {
		doc, err := roster.NPC(key).StaticJSON()
		if err != nil {
			return "", fmt.Errorf("rendering npc %q: %w", key, err)
		}
		fmt.Fprintf(&b, "\n%s:\n%s", key, doc)
	}
	return b.String(), nil
}

// encounterSlot renders the encounter document without its preroll cache;
// dice reach the model through the turn prompt instead.
func encounterSlot(enc *encounter.Encounter) (string, error) {
	data, err := json.Marshal(enc)
	if err != nil {
		return "", fmt.Errorf("rendering encounter: %w", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return "", err
	}
	delete(m, "preroll_cache")
	filtered, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s\n%s", SlotEncounter, filtered), nil
}

// DiceBlock renders the preroll section of a turn prompt.
func DiceBlock(set *encounter.PrerollCache) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DM Note: COMBAT ROUND %d - DICE AVAILABLE:\n", set.Round)
	fmt.Fprintf(&b, "Preroll Set ID: %s\n\n", set.ID)
	b.WriteString(strings.TrimRight(set.Rolls, "\n"))
	b.WriteString("\n\n")
	b.WriteString(diceUsageRules)
	return b.String()
}

// turnContract bounds a turn response: resolve the rest of the current
// round, never spill into the next one.
const turnContract = `Now, continue the combat flow by narrating and resolving all remaining monster and NPC turns for the current round in initiative order.

Your response MUST stop at one of two points:
1. When you have resolved the turn for the LAST creature in the current round's initiative order.
2. When the initiative order returns to the player's turn.

Do not narrate or process any actions from the next round in this response.`

// PlayerTurn composes the prompt for a player-initiated turn: the live
// combat state, the prerolled dice, the "Player:" line carrying the
// player's text, and the stopping contract for the rest of the round.
func PlayerTurn(enc *encounter.Encounter, state string, set *encounter.PrerollCache, playerText string) string {
	var b strings.Builder
	writeStateAndDice(&b, enc, state, set)
	fmt.Fprintf(&b, "Player: %s\n\n", playerText)
	b.WriteString(turnContract)
	return b.String()
}

// Opening composes the scene-setting prompt issued before the first
// turn of a fresh session.
func Opening(enc *encounter.Encounter, state string, set *encounter.PrerollCache) string {
	var b strings.Builder
	writeStateAndDice(&b, enc, state, set)
	b.WriteString("Dungeon Master Note: Combat is beginning. ")
	b.WriteString("Describe the scene and announce the initiative order. ")
	b.WriteString("Do not resolve any turns yet.")
	return b.String()
}

// AITurn composes the prompt instructing the referee to resolve
// non-player turns starting with actor.
func AITurn(enc *encounter.Encounter, state string, set *encounter.PrerollCache, actor string) string {
	var b strings.Builder
	writeStateAndDice(&b, enc, state, set)
	fmt.Fprintf(&b, "Dungeon Master Note: It is %s's turn.\n\n", actor)
	b.WriteString(turnContract)
	return b.String()
}

func writeStateAndDice(b *strings.Builder, enc *encounter.Encounter, state string, set *encounter.PrerollCache) {
	b.WriteString(stateHeader)
	b.WriteString("\n")
	fmt.Fprintf(b, "Round: %d\n", enc.Round)
	fmt.Fprintf(b, "Initiative Order: %s\n", initiativeLine(enc))
	b.WriteString("All Creatures State:\n")
	b.WriteString(strings.TrimRight(state, "\n"))
	b.WriteString("\n\n")
	b.WriteString(diceHeader)
	b.WriteString("\n")
	b.WriteString(DiceBlock(set))
	b.WriteString("\n")
	b.WriteString(endHeader)
	b.WriteString("\n\n")
}

func initiativeLine(enc *encounter.Encounter) string {
	order := enc.InitiativeOrder()
	names := make([]string, 0, len(order))
	for _, c := range order {
		names = append(names, fmt.Sprintf("%s (%d)", c.Name, c.Initiative))
	}
	return strings.Join(names, ", ")
}
