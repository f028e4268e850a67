package encounter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arbiter/internal/store"
)

// Roster resolves and caches the sheets behind an encounter's creatures:
// the player character, the monster templates for enemies, and NPC sheets.
//
// Player and monster documents are required; a missing NPC sheet is logged
// and skipped so a mis-keyed ally does not abort the session.
type Roster struct {
	store  store.DocumentStore
	logger *zap.Logger

	playerName string
	player     *Sheet
	monsters   map[string]*Sheet // keyed by monsterType
	npcs       map[string]*Sheet // keyed by normalized name
}

// NewRoster creates an empty roster backed by the given store.
//
// Precondition: s and logger must be non-nil.
func NewRoster(s store.DocumentStore, logger *zap.Logger) *Roster {
	return &Roster{
		store:    s,
		logger:   logger,
		monsters: make(map[string]*Sheet),
		npcs:     make(map[string]*Sheet),
	}
}

// Load resolves all sheets referenced by the encounter.
//
// Precondition: playerName must match a player creature in enc.
// Postcondition: Player and monster sheets are resolved or an error is
// returned. NPC sheets are resolved best-effort.
func (r *Roster) Load(ctx context.Context, enc *Encounter, playerName string) error {
	r.playerName = playerName

	doc, err := r.store.Load(ctx, store.CharacterKey(playerName))
	if err != nil {
		return fmt.Errorf("loading player character %q: %w", playerName, err)
	}
	player, err := ParseSheet(doc)
	if err != nil {
		return fmt.Errorf("parsing player character %q: %w", playerName, err)
	}
	r.player = player

	for _, c := range enc.Creatures {
		switch c.Type {
		case TypeEnemy:
			if c.MonsterType == "" {
				return fmt.Errorf("enemy %q has no monsterType", c.Name)
			}
			if _, ok := r.monsters[c.MonsterType]; ok {
				continue
			}
			doc, err := r.store.Load(ctx, store.MonsterKey(c.MonsterType))
			if err != nil {
				return fmt.Errorf("loading monster template %q: %w", c.MonsterType, err)
			}
			sheet, err := ParseSheet(doc)
			if err != nil {
				return fmt.Errorf("parsing monster template %q: %w", c.MonsterType, err)
			}
			r.monsters[c.MonsterType] = sheet

		case TypeNPC:
			key := NormalizeNPCName(c.Name)
			if _, ok := r.npcs[key]; ok {
				continue
			}
			doc, err := r.store.Load(ctx, store.NPCKey(key))
			if errors.Is(err, store.ErrNotFound) {
				r.logger.Warn("npc sheet not found, continuing without it",
					zap.String("npc", c.Name),
					zap.String("key", key),
				)
				continue
			}
			if err != nil {
				return fmt.Errorf("loading npc %q: %w", key, err)
			}
			sheet, err := ParseSheet(doc)
			if err != nil {
				return fmt.Errorf("parsing npc %q: %w", key, err)
			}
			r.npcs[key] = sheet
		}
	}
	return nil
}

// Reload refreshes the player and NPC sheets from the store. Called
// before player turns so narration reflects writes made by other systems.
func (r *Roster) Reload(ctx context.Context, enc *Encounter) error {
	doc, err := r.store.Load(ctx, store.CharacterKey(r.playerName))
	if err != nil {
		return fmt.Errorf("reloading player character %q: %w", r.playerName, err)
	}
	player, err := ParseSheet(doc)
	if err != nil {
		return fmt.Errorf("parsing player character %q: %w", r.playerName, err)
	}
	r.player = player

	for key := range r.npcs {
		doc, err := r.store.Load(ctx, store.NPCKey(key))
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("npc sheet disappeared", zap.String("key", key))
			continue
		}
		if err != nil {
			return fmt.Errorf("reloading npc %q: %w", key, err)
		}
		sheet, err := ParseSheet(doc)
		if err != nil {
			return fmt.Errorf("parsing npc %q: %w", key, err)
		}
		r.npcs[key] = sheet
	}
	return nil
}

// Player returns the player character sheet.
//
// Precondition: Load must have succeeded.
func (r *Roster) Player() *Sheet { return r.player }

// PlayerName returns the player character's name.
func (r *Roster) PlayerName() string { return r.playerName }

// Monster returns the template for the given monsterType, or nil.
func (r *Roster) Monster(monsterType string) *Sheet { return r.monsters[monsterType] }

// MonsterTypes returns the loaded monster types in sorted order.
func (r *Roster) MonsterTypes() []string {
	types := make([]string, 0, len(r.monsters))
	for t := range r.monsters {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// NPC returns the sheet for the given creature name, or nil if it was
// not resolved.
func (r *Roster) NPC(name string) *Sheet { return r.npcs[NormalizeNPCName(name)] }

// NPCKeys returns the resolved NPC keys in sorted order.
func (r *Roster) NPCKeys() []string {
	keys := make([]string, 0, len(r.npcs))
	for k := range r.npcs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Attacks returns the attack entry names for the given creature: monster
// template attacks for enemies, sheet attacks for NPCs. Players make their
// own rolls, so their attacks are not listed.
func (r *Roster) Attacks(c Creature) []string {
	switch c.Type {
	case TypeEnemy:
		if sheet := r.monsters[c.MonsterType]; sheet != nil {
			return sheet.Attacks()
		}
	case TypeNPC:
		if sheet := r.NPC(c.Name); sheet != nil {
			return sheet.Attacks()
		}
	}
	return nil
}

// RenderState produces the dynamic combat state block for turn prompts.
// The player character appears first, sourced from the character sheet.
// Every other creature's live values (current HP, status, condition)
// come from the encounter entry; NPC sheets contribute max HP and spell
// slots only.
func (r *Roster) RenderState(enc *Encounter) string {
	var b strings.Builder

	if r.player != nil {
		r.renderPlayer(&b, enc.Find(r.playerName))
	}

	for _, c := range enc.Creatures {
		if c.Type == TypePlayer {
			continue
		}
		var sheet *Sheet
		if c.Type == TypeNPC {
			sheet = r.NPC(c.Name)
		}
		renderCreature(&b, c, sheet)
	}

	return strings.TrimRight(b.String(), "\n")
}

// renderPlayer writes the player's state from the character sheet. When
// the sheet lacks a max HP (some conversions omit it), the encounter
// entry's value fills in.
func (r *Roster) renderPlayer(b *strings.Builder, entry *Creature) {
	maxHP := r.player.MaxHitPoints()
	if maxHP == 0 && entry != nil {
		maxHP = entry.MaxHP
	}

	fmt.Fprintf(b, "%s:\n", r.playerName)
	fmt.Fprintf(b, "  - HP: %d/%d\n", r.player.HitPoints(), maxHP)
	fmt.Fprintf(b, "  - Status: %s\n", r.player.Status())
	fmt.Fprintf(b, "  - Condition: %s\n", r.player.Condition())
	writeActiveConditions(b, r.player.ActiveConditions())
	writeSpellSlots(b, r.player)
}

// renderCreature writes a non-player creature's state. Current HP,
// status, and condition always come from the encounter entry, which is
// the live record during combat. The sheet, when present, supplies max
// HP and spell slots.
func renderCreature(b *strings.Builder, c Creature, sheet *Sheet) {
	maxHP := c.MaxHP
	if sheet != nil && sheet.MaxHitPoints() > 0 {
		maxHP = sheet.MaxHitPoints()
	}

	fmt.Fprintf(b, "%s:\n", c.Name)
	fmt.Fprintf(b, "  - HP: %d/%d\n", c.CurrentHP, maxHP)
	fmt.Fprintf(b, "  - Status: %s\n", c.Status)
	fmt.Fprintf(b, "  - Condition: %s\n", c.Condition)
	writeActiveConditions(b, c.ConditionAffected)
	if sheet != nil {
		writeSpellSlots(b, sheet)
	}
}

func writeActiveConditions(b *strings.Builder, conditions []string) {
	if len(conditions) == 0 {
		return
	}
	fmt.Fprintf(b, "  - Active Conditions: %s\n", strings.Join(conditions, ", "))
}

func writeSpellSlots(b *strings.Builder, sheet *Sheet) {
	slots := sheet.SpellSlots()
	if len(slots) == 0 {
		return
	}
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		parts = append(parts, fmt.Sprintf("L%d:%d/%d", s.Level, s.Current, s.Max))
	}
	fmt.Fprintf(b, "  - Spell Slots: %s\n", strings.Join(parts, ", "))
}
