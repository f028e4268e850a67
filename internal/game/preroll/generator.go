// Package preroll generates and caches the dice made available to the
// referee for NPC and monster actions. Rolling ahead of narration keeps
// the model from inventing its own numbers.
package preroll

import (
	"fmt"
	"strings"

	"github.com/cory-johannsen/arbiter/internal/game/dice"
	"github.com/cory-johannsen/arbiter/internal/game/encounter"
)

// AttackSource resolves the attack entries available to a creature.
// *encounter.Roster satisfies it.
type AttackSource interface {
	Attacks(c encounter.Creature) []string
}

// poolSizes is the number of generic dice rolled per die type each round.
var poolSizes = []struct {
	Sides int
	Count int
}{
	{4, 8},
	{6, 8},
	{8, 6},
	{10, 6},
	{12, 4},
	{20, 10},
}

// saveAbilities are the ability saving throws prerolled per creature.
var saveAbilities = []string{"STR", "DEX", "CON", "INT", "WIS", "CHA"}

// Generator renders preroll text for a combat round.
type Generator struct {
	roller *dice.Roller
}

// NewGenerator creates a Generator rolling with the given roller.
//
// Precondition: roller must be non-nil.
func NewGenerator(roller *dice.Roller) *Generator {
	return &Generator{roller: roller}
}

// Generate renders the full preroll block for the encounter's living
// creatures: a generic dice pool, per-creature attack rolls, and
// per-creature saving throws.
//
// Postcondition: The returned text is non-empty and lists every living
// creature in initiative order.
func (g *Generator) Generate(enc *encounter.Encounter, attacks AttackSource) string {
	var b strings.Builder

	b.WriteString("=== GENERIC DICE ===\n")
	for _, pool := range poolSizes {
		values := make([]string, pool.Count)
		for i := range values {
			values[i] = fmt.Sprintf("%d", g.roller.Die(pool.Sides))
		}
		fmt.Fprintf(&b, "d%d: %s\n", pool.Sides, strings.Join(values, ", "))
	}

	order := enc.InitiativeOrder()

	b.WriteString("\n=== CREATURE ATTACKS ===\n")
	for _, c := range order {
		if c.IsPlayer() {
			fmt.Fprintf(&b, "[PLAYER: %s] Must make own rolls\n", c.Name)
			continue
		}
		fmt.Fprintf(&b, "%s:\n", c.Name)
		names := attacks.Attacks(c)
		if len(names) == 0 {
			fmt.Fprintf(&b, "  Attack: %d\n", g.roller.Die(20))
			continue
		}
		for _, name := range names {
			fmt.Fprintf(&b, "  %s: %d\n", name, g.roller.Die(20))
		}
	}

	b.WriteString("\n=== SAVING THROWS ===\n")
	for _, c := range order {
		if c.IsPlayer() {
			continue
		}
		saves := make([]string, len(saveAbilities))
		for i, ability := range saveAbilities {
			saves[i] = fmt.Sprintf("%s:%d", ability, g.roller.Die(20))
		}
		fmt.Fprintf(&b, "%s: %s\n", c.Name, strings.Join(saves, " "))
	}

	return b.String()
}
