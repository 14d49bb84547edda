// Package game implements NymQuest's authoritative game state (spec.md
// §3, §4.7): players, the bounded world, faction/display-ID allocation,
// movement with collision, cooldown-gated combat with crit/XP/leveling,
// and chat/emote validation. Every mutation here is expected to run on
// the single server event-loop goroutine; the package does no locking of
// its own, matching the "session state as owned records" design note in
// spec.md §9.
//
// Grounded on client2/connection.go's owned-by-one-goroutine struct
// convention, and server/internal/decoy/decoy.go's comment style for
// documenting single-owner-goroutine invariants inline.
package game

import (
	"time"

	"github.com/google/uuid"
)

// Faction is one of the five playable factions, spec.md §3.
type Faction uint8

const (
	FactionNyms Faction = iota
	FactionCorporate
	FactionCipher
	FactionMonks
	FactionIndependent
)

func (f Faction) String() string {
	switch f {
	case FactionNyms:
		return "Nyms"
	case FactionCorporate:
		return "Corporate"
	case FactionCipher:
		return "Cipher"
	case FactionMonks:
		return "Monks"
	case FactionIndependent:
		return "Independent"
	default:
		return "Unknown"
	}
}

// ParseFaction resolves a faction by name, case-sensitive per spec.md §3's
// closed set.
func ParseFaction(s string) (Faction, bool) {
	switch s {
	case "Nyms":
		return FactionNyms, true
	case "Corporate":
		return FactionCorporate, true
	case "Cipher":
		return FactionCipher, true
	case "Monks":
		return FactionMonks, true
	case "Independent":
		return FactionIndependent, true
	default:
		return 0, false
	}
}

// Vec2 is a position or direction vector.
type Vec2 struct {
	X float64
	Y float64
}

// Player is the server's authoritative record for one live player
// (spec.md §3). internal_id is the opaque primary key and is never
// transmitted on the wire; only DisplayID is.
type Player struct {
	InternalID uuid.UUID

	DisplayID string
	Name      string
	Faction   Faction

	Position Vec2

	HP    int
	Level int
	XP    int

	LastAttackAt    time.Time
	HasAttacked     bool
	LastHeartbeatAt time.Time

	TransportTag string
}

// HPMax returns hp_max for the player's current level, spec.md §3:
// hp_max = 100 + 5*(level-1).
func (p *Player) HPMax() int {
	return HPMaxForLevel(p.Level)
}

// HPMaxForLevel computes hp_max for an arbitrary level.
func HPMaxForLevel(level int) int {
	return 100 + 5*(level-1)
}

// XPToNext returns xp_to_next(level) = level*100, spec.md §3.
func XPToNext(level int) int {
	return level * 100
}

// NewPlayer constructs a freshly-registered player at the given spawn
// position, per spec.md §4.7 Register: hp=100, level=1, xp=0.
func NewPlayer(internalID uuid.UUID, displayID, name string, faction Faction, spawn Vec2, tag string, now time.Time) *Player {
	return &Player{
		InternalID:      internalID,
		DisplayID:       displayID,
		Name:            name,
		Faction:         faction,
		Position:        spawn,
		HP:              100,
		Level:           1,
		XP:              0,
		LastHeartbeatAt: now,
		TransportTag:    tag,
	}
}
