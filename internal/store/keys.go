package store

import "fmt"

// Key builders for the document namespaces used by the combat server.
// Keys are flat strings with a type prefix, e.g. "encounter:goblin_ambush_001".

// EncounterKey returns the key for a combat encounter document.
func EncounterKey(encounterID string) string {
	return fmt.Sprintf("encounter:%s", encounterID)
}

// CharacterKey returns the key for a player character sheet.
func CharacterKey(name string) string {
	return fmt.Sprintf("character:%s", name)
}

// MonsterKey returns the key for a monster template.
func MonsterKey(monsterType string) string {
	return fmt.Sprintf("monster:%s", monsterType)
}

// NPCKey returns the key for an NPC sheet.
func NPCKey(name string) string {
	return fmt.Sprintf("npc:%s", name)
}

// PartyKey returns the key for the party tracker document.
func PartyKey() string {
	return "party:tracker"
}

// TranscriptKey returns the key for an encounter's conversation transcript.
func TranscriptKey(encounterID string) string {
	return fmt.Sprintf("transcript:%s", encounterID)
}

// ArchiveKey returns the key for an archived combat conversation.
func ArchiveKey(encounterID, archiveID string) string {
	return fmt.Sprintf("archive:%s:%s", encounterID, archiveID)
}

// LocationKey returns the key for a location description document.
func LocationKey(locationID string) string {
	return fmt.Sprintf("location:%s", locationID)
}
